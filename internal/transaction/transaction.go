// Package transaction implements the process-level transaction state
// machine from spec §4.3: a single Idle/Active state, a directory-wide
// advisory lock, and an undo journal keyed by (data file, page number).
//
// This replaces the teacher's redo-WAL TransactionManager (a single shared
// *.wal file with LSNs, built for a B+Tree with leaf-linked pages) with the
// per-file undo-journal model storage_engine.py actually implements: no
// LSNs, no shared WAL file, one journal per touched data file, deleted on
// commit and replayed on rollback. The state-machine shape (an owned
// manager guarding Begin/Commit/Rollback, page writes routed through one
// choke point) is kept from the teacher; the persistence mechanism is not.
package transaction

import (
	"sync"
	"time"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dberrors"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dblog"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/journal"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/lock"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/pager"
)

// State is the transaction manager's process-level state.
type State uint8

const (
	Idle State = iota
	Active
)

// Manager owns the single directory lock and the journaled-pages map for
// one database directory. It is not reentrant: spec.md's Design Notes
// explicitly call for a single owned object rather than a process-wide
// singleton, so callers construct one Manager per open database.
type Manager struct {
	mu            sync.Mutex
	dirLocker     *lock.Locker
	lockTimeout   time.Duration
	state         State
	journaledPages map[string]map[uint32]bool // data file path -> journaled page numbers
}

// NewManager creates a Manager guarding the directory lock at lockPath.
func NewManager(lockPath string, lockTimeout time.Duration) *Manager {
	return &Manager{
		dirLocker:      lock.New(lockPath),
		lockTimeout:    lockTimeout,
		state:          Idle,
		journaledPages: make(map[string]map[uint32]bool),
	}
}

// Begin starts an explicit transaction: requires Idle, acquires the
// directory's exclusive lock, and resets the journaled-pages map.
func (m *Manager) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Active {
		return dberrors.ErrTransactionActive
	}
	if err := m.dirLocker.Lock(true, m.lockTimeout); err != nil {
		dblog.L().WithError(err).Warn("failed to begin transaction")
		return err
	}
	m.state = Active
	m.journaledPages = make(map[string]map[uint32]bool)
	dblog.L().Debug("transaction begun")
	return nil
}

// InTransaction reports whether a transaction is currently active.
func (m *Manager) InTransaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Active
}

// Commit requires Active: deletes every journal file touched by the
// transaction, resets state, and releases the directory lock.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Active {
		return dberrors.ErrNoActiveTransaction
	}
	for filePath := range m.journaledPages {
		if err := journal.Delete(filePath); err != nil {
			dblog.L().WithError(err).WithField("file", filePath).Warn("failed to commit transaction")
			return err
		}
	}
	m.state = Idle
	m.journaledPages = make(map[string]map[uint32]bool)
	if err := m.dirLocker.Unlock(); err != nil {
		dblog.L().WithError(err).Warn("failed to release lock on commit")
		return err
	}
	dblog.L().Debug("transaction committed")
	return nil
}

// Rollback requires Active: replays every journal touched by the
// transaction (restoring pre-images and deleting the journal), resets
// state, and releases the directory lock.
func (m *Manager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Active {
		return dberrors.ErrNoActiveTransaction
	}
	var firstErr error
	for filePath := range m.journaledPages {
		if err := journal.Replay(filePath); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.state = Idle
	m.journaledPages = make(map[string]map[uint32]bool)
	if uerr := m.dirLocker.Unlock(); uerr != nil && firstErr == nil {
		firstErr = uerr
	}
	if firstErr != nil {
		dblog.L().WithError(firstErr).Warn("failed to roll back transaction cleanly")
	} else {
		dblog.L().Debug("transaction rolled back")
	}
	return firstErr
}

// WritePage writes newContents to page pageNum of the pager p, which is
// backed by file filePath. If a transaction is active and this is the
// first touch of (filePath, pageNum) in it, the page's current on-disk
// contents are journaled first (spec's write-path ordering requirement:
// pre-image reaches the journal before the mutation reaches the data
// file). Outside a transaction the write goes straight through.
func (m *Manager) WritePage(filePath string, p *pager.Pager, pageNum uint32, newContents []byte) error {
	m.mu.Lock()
	active := m.state == Active
	var needsJournal bool
	if active {
		pages, ok := m.journaledPages[filePath]
		if !ok {
			pages = make(map[uint32]bool)
			m.journaledPages[filePath] = pages
		}
		needsJournal = !pages[pageNum]
		if needsJournal {
			pages[pageNum] = true
		}
	}
	m.mu.Unlock()

	if needsJournal {
		preImage, ok, err := p.ReadPage(pageNum)
		if err != nil {
			return err
		}
		if !ok {
			preImage = make([]byte, pager.PageSize)
		}
		if err := journal.AppendPreImage(filePath, pageNum, preImage); err != nil {
			return err
		}
	}
	return p.WritePage(pageNum, newContents)
}

// AcquireRead takes the directory's shared lock for the duration of a read
// performed outside a transaction; inside a transaction it is a no-op
// (the exclusive lock held by Begin already covers it). Returns a release
// function that must always be called.
func (m *Manager) AcquireRead() (release func() error, err error) {
	m.mu.Lock()
	active := m.state == Active
	m.mu.Unlock()
	if active {
		return func() error { return nil }, nil
	}
	if err := m.dirLocker.Lock(false, m.lockTimeout); err != nil {
		return nil, err
	}
	return m.dirLocker.Unlock, nil
}

// Recover replays the orphaned "-journal" file of each data file in
// dataPaths (the caller finds them by scanning the directory) against that
// data file, and deletes the journal. It takes the directory exclusive
// lock for its duration, matching storage_engine.py's _recover.
func Recover(dirLockPath string, lockTimeout time.Duration, dataPaths []string) error {
	dblog.L().WithField("count", len(dataPaths)).Info("recovering orphaned journals")
	l := lock.New(dirLockPath)
	if err := l.Lock(true, lockTimeout); err != nil {
		dblog.L().WithError(err).Warn("failed to acquire lock for recovery")
		return err
	}
	defer l.Unlock()
	for _, dataPath := range dataPaths {
		if err := journal.Replay(dataPath); err != nil {
			dblog.L().WithError(err).WithField("file", dataPath).Warn("failed to replay journal during recovery")
			return err
		}
		dblog.L().WithField("file", dataPath).Info("replayed orphaned journal")
	}
	return nil
}
