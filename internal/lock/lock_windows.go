//go:build windows

package lock

import (
	"os"

	"golang.org/x/sys/windows"
)

// On Windows we lock the first byte of the file, creating it (and padding
// it to at least one byte) if necessary, matching locking.py's use of
// msvcrt.locking on a single-byte region.
func platformLock(f *os.File, exclusive bool) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		if _, err := f.Write([]byte{0}); err != nil {
			return err
		}
	}
	var flags uint32
	if exclusive {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY
	} else {
		flags = windows.LOCKFILE_FAIL_IMMEDIATELY
	}
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, ol)
}

func platformUnlock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
