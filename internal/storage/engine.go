package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/btree"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dberrors"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/pager"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/transaction"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"
)

const (
	tableExt = ".db"
	indexExt = ".idx"
	lockFile = ".db_lock"
)

// Engine is the storage engine facade from spec §4.5: one Engine per open
// database directory, holding every table/index file's Pager and the
// directory's single transaction Manager. It is grounded directly on
// storage_engine.py's StorageEngine class.
type Engine struct {
	dir string
	txm *transaction.Manager

	mu     sync.Mutex
	pagers map[string]*pager.Pager
}

// Open opens (creating if necessary) the database directory at dir,
// replaying any journal left by a crashed process before returning, per
// spec §4.3's recovery-at-startup requirement.
func Open(dir string, lockTimeout time.Duration) (*Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(dir, lockFile)
	e := &Engine{
		dir:    dir,
		txm:    transaction.NewManager(lockPath, lockTimeout),
		pagers: make(map[string]*pager.Pager),
	}
	orphaned, err := e.orphanedJournalDataPaths()
	if err != nil {
		return nil, err
	}
	if len(orphaned) > 0 {
		if err := transaction.Recover(lockPath, lockTimeout, orphaned); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) orphanedJournalDataPaths() ([]string, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		if strings.HasSuffix(ent.Name(), "-journal") {
			dataName := strings.TrimSuffix(ent.Name(), "-journal")
			out = append(out, filepath.Join(e.dir, dataName))
		}
	}
	return out, nil
}

// Close closes every open file handle the Engine holds.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, p := range e.pagers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) tablePath(name string) string { return filepath.Join(e.dir, name+tableExt) }
func (e *Engine) indexPath(name string) string { return filepath.Join(e.dir, name+indexExt) }

func (e *Engine) getPager(path string) (*pager.Pager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pagers[path]; ok {
		return p, nil
	}
	p, err := pager.Open(path)
	if err != nil {
		return nil, err
	}
	e.pagers[path] = p
	return p, nil
}

// Begin, Commit, and Rollback delegate to the Engine's transaction.Manager.
func (e *Engine) Begin() error    { return e.txm.Begin() }
func (e *Engine) Commit() error   { return e.txm.Commit() }
func (e *Engine) Rollback() error { return e.txm.Rollback() }

// InTransaction reports whether an explicit or implicit transaction is
// currently open.
func (e *Engine) InTransaction() bool { return e.txm.InTransaction() }

func (e *Engine) loadTableMeta(name string) (*TableMeta, *pager.Pager, error) {
	path := e.tablePath(name)
	pgr, err := e.getPager(path)
	if err != nil {
		return nil, nil, err
	}
	data, ok, err := pgr.ReadPage(0)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, dberrors.ErrTableNotFound
	}
	meta, err := decodeTableMeta(data, pgr, e.txm, path)
	if err != nil {
		return nil, nil, err
	}
	return meta, pgr, nil
}

func (e *Engine) loadIndexMeta(name string) (*IndexMeta, *pager.Pager, error) {
	path := e.indexPath(name)
	pgr, err := e.getPager(path)
	if err != nil {
		return nil, nil, err
	}
	data, ok, err := pgr.ReadPage(0)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, dberrors.ErrIndexNotFound
	}
	meta, err := decodeIndexMeta(data, pgr, e.txm, path)
	if err != nil {
		return nil, nil, err
	}
	return meta, pgr, nil
}

// CreateTable registers a new table with the given columns and primary-key
// column, matching storage_engine.py's create_table. The table's B-Tree
// root begins at page 1; an empty leaf is written there explicitly so the
// file has a well-formed root from the moment the table is created.
func (e *Engine) CreateTable(name string, columns []value.ColumnDef, primaryKey string) error {
	path := e.tablePath(name)
	pgr, err := e.getPager(path)
	if err != nil {
		return err
	}
	if _, ok, err := pgr.ReadPage(0); err != nil {
		return err
	} else if ok {
		return dberrors.ErrTableExists
	}
	found := false
	for _, c := range columns {
		if c.Name == primaryKey {
			found = true
			break
		}
	}
	if primaryKey == "" || !found {
		return dberrors.ErrMissingPrimaryKey
	}
	meta := &TableMeta{
		pgr: pgr, txm: e.txm, filePath: path,
		Schema:   value.Schema{Columns: columns, PrimaryKey: primaryKey, Indexes: map[string]string{}},
		rootPage: 1,
		nextPage: 2,
	}
	if err := meta.Flush(); err != nil {
		return err
	}
	return e.txm.WritePage(path, pgr, 1, btree.EncodeEmptyLeaf())
}

// CreateIndex registers a secondary index on table/column and backfills it
// from the table's existing rows, matching storage_engine.py's
// create_index.
func (e *Engine) CreateIndex(indexName, table, column string) error {
	tableMeta, tablePgr, err := e.loadTableMeta(table)
	if err != nil {
		return err
	}
	if !tableMeta.Schema.HasColumn(column) {
		return dberrors.ErrColumnNotFound
	}
	if _, exists := tableMeta.Schema.Indexes[indexName]; exists {
		return dberrors.ErrIndexExists
	}

	idxPath := e.indexPath(indexName)
	idxPgr, err := e.getPager(idxPath)
	if err != nil {
		return err
	}
	if _, ok, err := idxPgr.ReadPage(0); err != nil {
		return err
	} else if ok {
		return dberrors.ErrIndexExists
	}
	idxMeta := &IndexMeta{pgr: idxPgr, txm: e.txm, filePath: idxPath, rootPage: 1, nextPage: 2}
	if err := idxMeta.Flush(); err != nil {
		return err
	}
	if err := e.txm.WritePage(idxPath, idxPgr, 1, btree.EncodeEmptyLeaf()); err != nil {
		return err
	}

	tablePath := e.tablePath(table)
	tableTree := btree.Open(tablePgr, e.txm, tablePath, tableMeta)
	blobs, err := tableTree.All()
	if err != nil {
		return err
	}
	idxTree := btree.Open(idxPgr, e.txm, idxPath, idxMeta)
	columns := tableMeta.Schema.ColumnNames()
	for _, blob := range blobs {
		row, err := value.ReadRow(bytesReader(blob), columns)
		if err != nil {
			return err
		}
		colVal, ok := row.Get(column)
		if !ok || colVal.IsNull() {
			continue
		}
		pkVal, ok := row.Get(tableMeta.Schema.PrimaryKey)
		if !ok {
			continue
		}
		encodedPK, err := encodeValue(pkVal)
		if err != nil {
			return err
		}
		if err := idxTree.Insert(colVal, encodedPK); err != nil {
			return err
		}
	}

	tableMeta.Schema.Indexes[indexName] = column
	return tableMeta.Flush()
}

// InsertRecord inserts row into table's B-Tree keyed by its primary-key
// value, then into every secondary index whose column the row supplies a
// non-null value for, matching storage_engine.py's insert_record. Like the
// B-Tree it sits on, this does not reject a duplicate primary key — it
// inserts the new leaf entry in key order, same as the source.
func (e *Engine) InsertRecord(table string, row value.Row) error {
	meta, pgr, err := e.loadTableMeta(table)
	if err != nil {
		return err
	}
	pkVal, ok := row.Get(meta.Schema.PrimaryKey)
	if !ok || pkVal.IsNull() {
		return dberrors.ErrMissingPKValue
	}

	path := e.tablePath(table)
	encodedRow, err := encodeRow(meta.Schema.ColumnNames(), row)
	if err != nil {
		return err
	}
	tree := btree.Open(pgr, e.txm, path, meta)
	if err := tree.Insert(pkVal, encodedRow); err != nil {
		return err
	}

	for idxName, col := range meta.Schema.Indexes {
		colVal, ok := row.Get(col)
		if !ok || colVal.IsNull() {
			continue
		}
		if err := e.insertIntoIndex(idxName, colVal, pkVal); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) insertIntoIndex(indexName string, key, pkVal value.Value) error {
	idxMeta, idxPgr, err := e.loadIndexMeta(indexName)
	if err != nil {
		return err
	}
	encodedPK, err := encodeValue(pkVal)
	if err != nil {
		return err
	}
	tree := btree.Open(idxPgr, e.txm, e.indexPath(indexName), idxMeta)
	return tree.Insert(key, encodedPK)
}

func (e *Engine) deleteFromIndex(indexName string, key value.Value) error {
	idxMeta, idxPgr, err := e.loadIndexMeta(indexName)
	if err != nil {
		return err
	}
	tree := btree.Open(idxPgr, e.txm, e.indexPath(indexName), idxMeta)
	return tree.Delete(key)
}

// UpdateRecord applies patch on top of the existing record for pk, writing
// it back as delete-then-reinsert (matching storage_engine.py's
// update_record, which does not mutate a leaf entry in place) and
// refreshing any secondary index entries whose column changed.
func (e *Engine) UpdateRecord(table string, pk value.Value, patch value.Row) error {
	meta, pgr, err := e.loadTableMeta(table)
	if err != nil {
		return err
	}
	path := e.tablePath(table)
	tree := btree.Open(pgr, e.txm, path, meta)
	columns := meta.Schema.ColumnNames()

	blob, found, err := tree.Search(pk)
	if err != nil {
		return err
	}
	if !found {
		return dberrors.ErrRecordNotFound
	}
	oldRow, err := value.ReadRow(bytesReader(blob), columns)
	if err != nil {
		return err
	}

	merged := oldRow.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	newPK, ok := merged.Get(meta.Schema.PrimaryKey)
	if !ok || newPK.IsNull() {
		return dberrors.ErrMissingPKValue
	}

	for idxName, col := range meta.Schema.Indexes {
		if oldVal, ok := oldRow.Get(col); ok && !oldVal.IsNull() {
			if err := e.deleteFromIndex(idxName, oldVal); err != nil {
				return err
			}
		}
	}
	if err := tree.Delete(pk); err != nil {
		return err
	}
	encodedRow, err := encodeRow(columns, merged)
	if err != nil {
		return err
	}
	if err := tree.Insert(newPK, encodedRow); err != nil {
		return err
	}
	for idxName, col := range meta.Schema.Indexes {
		if newVal, ok := merged.Get(col); ok && !newVal.IsNull() {
			if err := e.insertIntoIndex(idxName, newVal, newPK); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteRecord removes the row keyed by pk from table and every secondary
// index referencing it, matching storage_engine.py's delete_record. If
// record is nil it is looked up first so the correct index entries can be
// removed.
func (e *Engine) DeleteRecord(table string, pk value.Value, record value.Row) error {
	meta, pgr, err := e.loadTableMeta(table)
	if err != nil {
		return err
	}
	path := e.tablePath(table)
	tree := btree.Open(pgr, e.txm, path, meta)

	if record == nil {
		blob, found, err := tree.Search(pk)
		if err != nil {
			return err
		}
		if !found {
			return dberrors.ErrRecordNotFound
		}
		record, err = value.ReadRow(bytesReader(blob), meta.Schema.ColumnNames())
		if err != nil {
			return err
		}
	}

	for idxName, col := range meta.Schema.Indexes {
		if v, ok := record.Get(col); ok && !v.IsNull() {
			if err := e.deleteFromIndex(idxName, v); err != nil {
				return err
			}
		}
	}
	return tree.Delete(pk)
}

// SearchPK looks up a single row by primary key, taking the directory's
// shared lock for the duration unless a transaction is already active
// (transaction.Manager.AcquireRead's no-op-inside-a-transaction rule).
func (e *Engine) SearchPK(table string, pk value.Value) (value.Row, bool, error) {
	release, err := e.txm.AcquireRead()
	if err != nil {
		return nil, false, err
	}
	defer release()

	meta, pgr, err := e.loadTableMeta(table)
	if err != nil {
		return nil, false, err
	}
	tree := btree.Open(pgr, e.txm, e.tablePath(table), meta)
	blob, found, err := tree.Search(pk)
	if err != nil || !found {
		return nil, found, err
	}
	row, err := value.ReadRow(bytesReader(blob), meta.Schema.ColumnNames())
	return row, true, err
}

// SearchIndex looks up a secondary index by key, returning the single
// primary-key value stored in its leaf for that key, if the key exists.
func (e *Engine) SearchIndex(indexName string, key value.Value) (value.Value, bool, error) {
	release, err := e.txm.AcquireRead()
	if err != nil {
		return value.Value{}, false, err
	}
	defer release()

	idxMeta, idxPgr, err := e.loadIndexMeta(indexName)
	if err != nil {
		return value.Value{}, false, err
	}
	tree := btree.Open(idxPgr, e.txm, e.indexPath(indexName), idxMeta)
	blob, found, err := tree.Search(key)
	if err != nil || !found {
		return value.Value{}, found, err
	}
	pkVal, err := decodeValue(blob)
	return pkVal, true, err
}

// GetTableMetadata returns table's schema, matching storage_engine.py's
// get_table_metadata.
func (e *Engine) GetTableMetadata(table string) (*value.Schema, error) {
	release, err := e.txm.AcquireRead()
	if err != nil {
		return nil, err
	}
	defer release()

	meta, _, err := e.loadTableMeta(table)
	if err != nil {
		return nil, err
	}
	schema := meta.Schema
	return &schema, nil
}

// GetAllRecords returns every row of table in primary-key order, matching
// storage_engine.py's get_all_records (a full B-Tree traversal).
func (e *Engine) GetAllRecords(table string) ([]value.Row, error) {
	release, err := e.txm.AcquireRead()
	if err != nil {
		return nil, err
	}
	defer release()

	meta, pgr, err := e.loadTableMeta(table)
	if err != nil {
		return nil, err
	}
	tree := btree.Open(pgr, e.txm, e.tablePath(table), meta)
	blobs, err := tree.All()
	if err != nil {
		return nil, err
	}
	columns := meta.Schema.ColumnNames()
	rows := make([]value.Row, 0, len(blobs))
	for _, blob := range blobs {
		row, err := value.ReadRow(bytesReader(blob), columns)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

