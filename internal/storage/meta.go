// Package storage implements the storage engine facade from spec §4.5:
// table and index files, their page-0 metadata, and CRUD operations
// layered over internal/btree, with transaction lifecycle and startup
// recovery delegated to internal/transaction. It is grounded directly on
// storage_engine.py's StorageEngine class rather than the teacher's
// B+Tree-oriented internal/storage/types.go (a CompositeKey/multi-column
// primary-key model this spec does not call for): a table here always has
// exactly one primary-key column, matching spec.md's DATA MODEL.
package storage

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/pager"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/transaction"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"
)

// TableMeta is a table file's page-0 contents: its schema, primary-key
// column, secondary-index registry, and B-Tree root/next-page pointers.
type TableMeta struct {
	pgr      *pager.Pager
	txm      *transaction.Manager
	filePath string

	Schema   value.Schema
	rootPage uint32
	nextPage uint32
}

func (m *TableMeta) RootPage() uint32      { return m.rootPage }
func (m *TableMeta) SetRootPage(p uint32)  { m.rootPage = p }
func (m *TableMeta) AllocatePage() uint32 {
	p := m.nextPage
	m.nextPage++
	return p
}

// Flush persists the metadata page, routed through the transaction
// manager's write path so it is journaled like any other mutated page.
func (m *TableMeta) Flush() error {
	return m.txm.WritePage(m.filePath, m.pgr, 0, m.encode())
}

func (m *TableMeta) encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, m.rootPage)
	binary.Write(&buf, binary.BigEndian, m.nextPage)
	binary.Write(&buf, binary.BigEndian, uint16(len(m.Schema.Columns)))
	for _, c := range m.Schema.Columns {
		writeString(&buf, c.Name)
		writeString(&buf, string(c.Type))
	}
	writeString(&buf, m.Schema.PrimaryKey)
	binary.Write(&buf, binary.BigEndian, uint16(len(m.Schema.Indexes)))
	for idxName, col := range m.Schema.Indexes {
		writeString(&buf, idxName)
		writeString(&buf, col)
	}
	return buf.Bytes()
}

func decodeTableMeta(data []byte, pgr *pager.Pager, txm *transaction.Manager, filePath string) (*TableMeta, error) {
	r := bytes.NewReader(data)
	m := &TableMeta{pgr: pgr, txm: txm, filePath: filePath}
	if err := binary.Read(r, binary.BigEndian, &m.rootPage); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &m.nextPage); err != nil {
		return nil, err
	}
	var colCount uint16
	if err := binary.Read(r, binary.BigEndian, &colCount); err != nil {
		return nil, err
	}
	m.Schema.Columns = make([]value.ColumnDef, colCount)
	for i := range m.Schema.Columns {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		typ, err := readString(r)
		if err != nil {
			return nil, err
		}
		m.Schema.Columns[i] = value.ColumnDef{Name: name, Type: value.ColumnType(typ)}
	}
	pk, err := readString(r)
	if err != nil {
		return nil, err
	}
	m.Schema.PrimaryKey = pk
	var idxCount uint16
	if err := binary.Read(r, binary.BigEndian, &idxCount); err != nil {
		return nil, err
	}
	m.Schema.Indexes = make(map[string]string, idxCount)
	for i := uint16(0); i < idxCount; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		col, err := readString(r)
		if err != nil {
			return nil, err
		}
		m.Schema.Indexes[name] = col
	}
	return m, nil
}

// IndexMeta is a secondary index file's page-0 contents: just the B-Tree
// root/next-page pointers, per spec §3.
type IndexMeta struct {
	pgr      *pager.Pager
	txm      *transaction.Manager
	filePath string

	rootPage uint32
	nextPage uint32
}

func (m *IndexMeta) RootPage() uint32     { return m.rootPage }
func (m *IndexMeta) SetRootPage(p uint32) { m.rootPage = p }
func (m *IndexMeta) AllocatePage() uint32 {
	p := m.nextPage
	m.nextPage++
	return p
}

func (m *IndexMeta) Flush() error {
	return m.txm.WritePage(m.filePath, m.pgr, 0, m.encode())
}

func (m *IndexMeta) encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, m.rootPage)
	binary.Write(&buf, binary.BigEndian, m.nextPage)
	return buf.Bytes()
}

func decodeIndexMeta(data []byte, pgr *pager.Pager, txm *transaction.Manager, filePath string) (*IndexMeta, error) {
	r := bytes.NewReader(data)
	m := &IndexMeta{pgr: pgr, txm: txm, filePath: filePath}
	if err := binary.Read(r, binary.BigEndian, &m.rootPage); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &m.nextPage); err != nil {
		return nil, err
	}
	return m, nil
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
