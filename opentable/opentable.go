// Package opentable is the hash of currently-open inodes: it enforces
// open-mode compatibility, refcounts concurrent opens of the same inode,
// and writes an inode's in-memory snapshot back on last close, per spec
// §4.6.
//
// Table is guarded entirely by the caller's namespace mutex; it has no
// internal locking of its own. GUARDED_BY(namespace mutex).
package opentable

import "github.com/vfscore/vfscore"

// Entry is an OpenedFile: the in-memory record coalescing every handle
// currently open against one inode.
type Entry struct {
	InodeIndex  uint32
	RefCount    int
	PermRead    bool
	PermWrite   bool
	Inode       vfscore.Inode
	DeferDelete bool
}

// Table is the set of currently-open inodes, keyed by inode index.
type Table struct {
	entries map[uint32]*Entry
}

// New returns an empty open-file table.
func New() *Table {
	return &Table{entries: make(map[uint32]*Entry)}
}

// Acquire grants an open of inodeIndex under the requested permissions. If
// an entry already exists, it's granted only when both the existing entry
// and the new request are read-only; any other combination fails with
// ErrBusy, per spec §4.6 and invariant 5 (at most one writer, excluding all
// other opens). loadInode is called only when no entry yet exists.
func (t *Table) Acquire(inodeIndex uint32, wantRead, wantWrite bool, loadInode func() (vfscore.Inode, error)) (*Entry, error) {
	if existing, ok := t.entries[inodeIndex]; ok {
		if existing.PermWrite || wantWrite {
			return nil, vfscore.ErrBusy
		}
		existing.RefCount++
		return existing, nil
	}

	inode, err := loadInode()
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		InodeIndex: inodeIndex,
		RefCount:   1,
		PermRead:   wantRead,
		PermWrite:  wantWrite,
		Inode:      inode,
	}
	t.entries[inodeIndex] = entry
	return entry, nil
}

// Release decrements entry's refcount. When it reaches zero, the entry is
// removed from the table and flush is invoked: flush is responsible for
// either persisting the in-memory inode snapshot (normal close) or
// releasing its blocks and freeing the inode (DeferDelete close), per
// which of those entry.DeferDelete selects.
func (t *Table) Release(entry *Entry, flush func(*Entry) error) error {
	entry.RefCount--
	if entry.RefCount > 0 {
		return nil
	}
	delete(t.entries, entry.InodeIndex)
	return flush(entry)
}

// Lookup returns the existing entry for inodeIndex, if any, without
// acquiring a new reference.
func (t *Table) Lookup(inodeIndex uint32) (*Entry, bool) {
	e, ok := t.entries[inodeIndex]
	return e, ok
}

// Drain flushes and removes every remaining entry, in unspecified order.
// Used by unmount to write back every inode still held open.
func (t *Table) Drain(flush func(*Entry) error) error {
	for index, entry := range t.entries {
		if err := flush(entry); err != nil {
			return err
		}
		delete(t.entries, index)
	}
	return nil
}
