// Package journal implements the per-file undo journal from spec §4.3: an
// append-only log of page pre-images, used to roll back an in-progress
// transaction or recover an orphaned one at startup. The on-disk shape is
// intentionally the flat one storage_engine.py writes — a bare sequence of
// [u32 big-endian page number][PAGE_SIZE bytes], no header, no checksum —
// rather than the header/checksum framing other_examples/minisql's
// RollbackJournal uses, since spec.md names the exact wire format.
package journal

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/pager"
)

// PathFor returns the journal path for a given data file path.
func PathFor(dataPath string) string { return dataPath + "-journal" }

// Exists reports whether a journal file is present for dataPath.
func Exists(dataPath string) bool {
	_, err := os.Stat(PathFor(dataPath))
	return err == nil
}

// AppendPreImage appends one (pageNum, pageBytes) entry to dataPath's
// journal, creating the journal file if this is its first entry. pageBytes
// must be exactly pager.PageSize bytes (the pre-mutation contents of that
// page, as read by the caller before writing the new contents).
func AppendPreImage(dataPath string, pageNum uint32, pageBytes []byte) error {
	f, err := os.OpenFile(PathFor(dataPath), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	var numBuf [4]byte
	binary.BigEndian.PutUint32(numBuf[:], pageNum)
	if _, err := f.Write(numBuf[:]); err != nil {
		return err
	}
	if _, err := f.Write(pageBytes); err != nil {
		return err
	}
	return f.Sync()
}

// Replay reads every (pageNum, pageBytes) entry from dataPath's journal (if
// any) and writes each page's bytes back into dataPath at the recorded
// offset, then deletes the journal. It is shared by both Rollback and
// startup recovery, per spec §4.3's identical replay loop for each.
func Replay(dataPath string) error {
	journalPath := PathFor(dataPath)
	jf, err := os.Open(journalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	dbf, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		jf.Close()
		return err
	}

	replayErr := func() error {
		defer jf.Close()
		defer dbf.Close()
		for {
			var numBuf [4]byte
			_, err := io.ReadFull(jf, numBuf[:])
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			pageNum := binary.BigEndian.Uint32(numBuf[:])
			pageBytes := make([]byte, pager.PageSize)
			if _, err := io.ReadFull(jf, pageBytes); err != nil {
				return err
			}
			offset := int64(pageNum) * int64(pager.PageSize)
			if _, err := dbf.WriteAt(pageBytes, offset); err != nil {
				return err
			}
		}
	}()
	if replayErr != nil {
		return replayErr
	}
	return os.Remove(journalPath)
}

// Delete removes dataPath's journal file if present, used on commit (the
// pre-images are no longer needed once the transaction is durable).
func Delete(dataPath string) error {
	err := os.Remove(PathFor(dataPath))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
