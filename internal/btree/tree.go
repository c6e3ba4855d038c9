package btree

import (
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dberrors"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dblog"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/pager"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/transaction"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"
)

// MetaStore is the page-0 metadata owner for a table or index file: it
// tracks the current B-Tree root page and the next page number to
// allocate, and is responsible for persisting itself (through the
// transaction manager's write path, so metadata mutations are journaled
// like any other page write). Table files and index files have different
// page-0 layouts (a table's also carries its schema), so this interface
// lets one Tree implementation serve both, matching spec §3's description
// of page 0 as the only place the two file kinds differ.
type MetaStore interface {
	RootPage() uint32
	SetRootPage(page uint32)
	AllocatePage() uint32
	Flush() error
}

// Tree is a classic B-Tree of order Order over one data file.
type Tree struct {
	pgr      *pager.Pager
	txm      *transaction.Manager
	filePath string
	meta     MetaStore
}

// Open returns a Tree bound to pgr/txm/filePath, using meta for root/next
// page bookkeeping. The caller (internal/storage) is responsible for
// having already created the file's page 0 and initial empty-leaf root.
func Open(pgr *pager.Pager, txm *transaction.Manager, filePath string, meta MetaStore) *Tree {
	return &Tree{pgr: pgr, txm: txm, filePath: filePath, meta: meta}
}

func (t *Tree) readNode(pageNum uint32) (*node, error) {
	data, ok, err := t.pgr.ReadPage(pageNum)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newLeaf(), nil
	}
	return decodeNode(data)
}

func (t *Tree) writeNode(pageNum uint32, n *node) error {
	encoded, err := n.encode()
	if err != nil {
		return err
	}
	return t.txm.WritePage(t.filePath, t.pgr, pageNum, encoded)
}

// Search performs a point lookup, returning the leaf value blob for key if
// present.
func (t *Tree) Search(key value.Value) ([]byte, bool, error) {
	n, err := t.readNode(t.meta.RootPage())
	if err != nil {
		return nil, false, err
	}
	for !n.isLeaf {
		i := firstIndexNotLess(n.keys, key)
		n, err = t.readNode(n.children[i])
		if err != nil {
			return nil, false, err
		}
	}
	i := firstIndexNotLess(n.keys, key)
	if i < len(n.keys) && n.keys[i].Equal(key) {
		return n.leafValues[i], true, nil
	}
	return nil, false, nil
}

// Insert places (key, val) into the tree, splitting nodes as needed on the
// way down, per spec §4.4's Insert algorithm.
func (t *Tree) Insert(key value.Value, val []byte) error {
	rootPage := t.meta.RootPage()
	root, err := t.readNode(rootPage)
	if err != nil {
		return err
	}
	if len(root.keys) == MaxKeys {
		newRootPage := t.meta.AllocatePage()
		newRoot := newInternal()
		newRoot.children = []uint32{rootPage}
		if err := t.splitChild(newRootPage, newRoot, 0, rootPage, root); err != nil {
			return err
		}
		t.meta.SetRootPage(newRootPage)
		if err := t.meta.Flush(); err != nil {
			return err
		}
		dblog.L().WithField("file", t.filePath).Debug("promoted b-tree root")
		rootPage = newRootPage
		root, err = t.readNode(rootPage)
		if err != nil {
			return err
		}
	}
	return t.insertNonFull(rootPage, root, key, val)
}

func (t *Tree) insertNonFull(pageNum uint32, n *node, key value.Value, val []byte) error {
	if n.isLeaf {
		i := len(n.keys) - 1
		n.keys = append(n.keys, value.Value{})
		n.leafValues = append(n.leafValues, nil)
		for i >= 0 && value.Compare(key, n.keys[i]) < 0 {
			n.keys[i+1] = n.keys[i]
			n.leafValues[i+1] = n.leafValues[i]
			i--
		}
		n.keys[i+1] = key
		n.leafValues[i+1] = val
		return t.writeNode(pageNum, n)
	}

	i := len(n.keys) - 1
	for i >= 0 && value.Compare(key, n.keys[i]) < 0 {
		i--
	}
	i++

	childPage := n.children[i]
	child, err := t.readNode(childPage)
	if err != nil {
		return err
	}
	if len(child.keys) == MaxKeys {
		if err := t.splitChild(pageNum, n, i, childPage, child); err != nil {
			return err
		}
		if value.Compare(key, n.keys[i]) > 0 {
			i++
		}
		childPage = n.children[i]
		child, err = t.readNode(childPage)
		if err != nil {
			return err
		}
	}
	return t.insertNonFull(childPage, child, key, val)
}

// splitChild allocates a new sibling page for child (currently at
// childPage, referenced as parent.children[childIndex]), promoting its
// middle key into parent.keys[childIndex]. The sibling takes the keys
// strictly above the middle. A leaf child retains the keys and values up
// to and including the middle, so the promoted key's value stays in a leaf
// (searches for a key equal to a separator descend into the left child);
// an internal child retains the keys strictly below the middle, and
// internal nodes split their Order children on each side.
func (t *Tree) splitChild(parentPage uint32, parent *node, childIndex int, childPage uint32, child *node) error {
	newPage := t.meta.AllocatePage()
	mid := Order - 1
	sibling := &node{isLeaf: child.isLeaf}

	midKey := child.keys[mid]
	parent.keys = insertKeyAt(parent.keys, childIndex, midKey)
	parent.children = insertPageAt(parent.children, childIndex+1, newPage)

	sibling.keys = append([]value.Value{}, child.keys[mid+1:]...)
	if child.isLeaf {
		sibling.leafValues = append([][]byte{}, child.leafValues[mid+1:]...)
		child.leafValues = child.leafValues[:mid+1]
		child.keys = child.keys[:mid+1]
	} else {
		sibling.children = append([]uint32{}, child.children[mid+1:]...)
		child.children = child.children[:mid+1]
		child.keys = child.keys[:mid]
	}

	if err := t.writeNode(newPage, sibling); err != nil {
		return err
	}
	if err := t.writeNode(childPage, child); err != nil {
		return err
	}
	if err := t.writeNode(parentPage, parent); err != nil {
		return err
	}
	return t.meta.Flush()
}

// Delete removes key from the tree. It only ever removes from a leaf; a
// match found in an internal node fails with ErrInternalNodeDelete, the
// deliberate limitation spec §4.4/§9 calls out. A key absent from the
// tree entirely is a silent no-op, matching storage_engine.py's
// _delete_recursive returning without error when a leaf doesn't contain
// the key.
func (t *Tree) Delete(key value.Value) error {
	rootPage := t.meta.RootPage()
	root, err := t.readNode(rootPage)
	if err != nil {
		return err
	}
	if err := t.deleteRecursive(rootPage, root, key); err != nil {
		return err
	}
	if len(root.keys) == 0 && !root.isLeaf {
		t.meta.SetRootPage(root.children[0])
		return t.meta.Flush()
	}
	return nil
}

func (t *Tree) deleteRecursive(pageNum uint32, n *node, key value.Value) error {
	i := firstIndexNotLess(n.keys, key)
	if i < len(n.keys) && n.keys[i].Equal(key) {
		if n.isLeaf {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			n.leafValues = append(n.leafValues[:i], n.leafValues[i+1:]...)
			return t.writeNode(pageNum, n)
		}
		return dberrors.ErrInternalNodeDelete
	}
	if n.isLeaf {
		return nil
	}
	childPage := n.children[i]
	child, err := t.readNode(childPage)
	if err != nil {
		return err
	}
	return t.deleteRecursive(childPage, child, key)
}

// All returns every leaf value in key order, via a full in-order
// traversal (spec §4.4's "Full traversal").
func (t *Tree) All() ([][]byte, error) {
	root, err := t.readNode(t.meta.RootPage())
	if err != nil {
		return nil, err
	}
	var out [][]byte
	if err := t.traverse(root, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) traverse(n *node, out *[][]byte) error {
	if n.isLeaf {
		*out = append(*out, n.leafValues...)
		return nil
	}
	for _, childPage := range n.children {
		child, err := t.readNode(childPage)
		if err != nil {
			return err
		}
		if err := t.traverse(child, out); err != nil {
			return err
		}
	}
	return nil
}

// firstIndexNotLess returns the least index i with key <= keys[i] (spec's
// search/insert descent rule), or len(keys) if none.
func firstIndexNotLess(keys []value.Value, key value.Value) int {
	i := 0
	for i < len(keys) && value.Compare(key, keys[i]) > 0 {
		i++
	}
	return i
}

func insertKeyAt(keys []value.Value, idx int, k value.Value) []value.Value {
	keys = append(keys, value.Value{})
	copy(keys[idx+1:], keys[idx:])
	keys[idx] = k
	return keys
}

func insertPageAt(pages []uint32, idx int, p uint32) []uint32 {
	pages = append(pages, 0)
	copy(pages[idx+1:], pages[idx:])
	pages[idx] = p
	return pages
}
