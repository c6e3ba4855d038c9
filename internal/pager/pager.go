// Package pager implements fixed-size page reads and writes against a
// single on-disk file. There is deliberately no page cache here: per
// spec's concurrency model, every read goes through the filesystem, and
// the only synchronization is the directory-wide advisory lock (internal/lock)
// plus the undo journal (internal/journal). This mirrors storage_engine.py's
// _read_page/_write_page, which always open, seek, and read/write directly.
package pager

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// PageSize is the fixed size of every page, matching spec's PAGE_SIZE.
const PageSize = 4096

// Pager performs page-addressed I/O against one file, keeping the handle
// open for the Pager's lifetime (reads/writes still always seek first, so
// concurrent Pagers over the same path from other processes are safe as
// long as the directory lock is respected by callers).
type Pager struct {
	file *os.File
	path string
}

// Open opens (creating if necessary) the file at path for page I/O.
func Open(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &Pager{file: f, path: path}, nil
}

// Path returns the backing file path.
func (p *Pager) Path() string { return p.path }

// Close closes the underlying file.
func (p *Pager) Close() error { return p.file.Close() }

// Sync flushes the underlying file to stable storage.
func (p *Pager) Sync() error { return p.file.Sync() }

// ReadPage reads page number pageNum. If the page has never been written
// (all-zero bytes, or short file), it returns ok=false and no error, per
// spec's "zero bytes means absent" convention.
func (p *Pager) ReadPage(pageNum uint32) (data []byte, ok bool, err error) {
	buf := make([]byte, PageSize)
	offset := int64(pageNum) * int64(PageSize)
	n, err := p.file.ReadAt(buf, offset)
	if err != nil && n == 0 {
		// Short or missing region: treat as an absent page, same as an
		// all-zero page, unless the error is something other than EOF.
		if isEOF(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if allZero(buf) {
		return nil, false, nil
	}
	return buf, true, nil
}

// WritePage writes payload (which must be <= PageSize) into page pageNum,
// right-padded with zero bytes to PageSize, then syncs.
func (p *Pager) WritePage(pageNum uint32, payload []byte) error {
	if len(payload) > PageSize {
		payload = payload[:PageSize]
	}
	buf := make([]byte, PageSize)
	copy(buf, payload)
	offset := int64(pageNum) * int64(PageSize)
	if _, err := p.file.WriteAt(buf, offset); err != nil {
		return err
	}
	return p.file.Sync()
}

// WriteRawPage writes fullPage verbatim (expected to be exactly PageSize
// bytes, already padded) at pageNum, then syncs. journal.Replay does not go
// through it; it writes pre-images with its own file handle.
func (p *Pager) WriteRawPage(pageNum uint32, fullPage []byte) error {
	offset := int64(pageNum) * int64(PageSize)
	if _, err := p.file.WriteAt(fullPage, offset); err != nil {
		return err
	}
	return p.file.Sync()
}

func allZero(b []byte) bool {
	return bytes.Count(b, []byte{0}) == len(b)
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
