// Package vfs ties BlockSpace, InodeSpace, Namespace, OpenTable, and
// FileHandle together into the mount/format/unmount surface spec §4.8
// describes, and the programmatic open/read/write/close/create/remove/
// rename API of spec §6.
//
// It lives outside the root vfscore package because every leaf package
// (blockspace, inodespace, blockmap, dirent, namespace, opentable,
// filehandle) already imports vfscore for shared types and errors;
// composing them from within vfscore itself would be an import cycle.
package vfs

import (
	"log"

	"github.com/vfscore/vfscore"
	"github.com/vfscore/vfscore/blockmap"
	"github.com/vfscore/vfscore/blockspace"
	"github.com/vfscore/vfscore/dirent"
	"github.com/vfscore/vfscore/filehandle"
	"github.com/vfscore/vfscore/inodespace"
	"github.com/vfscore/vfscore/namespace"
	"github.com/vfscore/vfscore/opentable"
)

// FileSystem is one mounted volume.
type FileSystem struct {
	params vfscore.Params

	bs *blockspace.BlockSpace
	is *inodespace.InodeSpace
	ns *namespace.Namespace
	ot *opentable.Table
}

// Format initializes fresh backing files for a new volume at dir, per spec
// §4.1/§4.2 format(). It does not create the root directory; Mount with
// formatFirst set does that after formatting.
func Format(dir string, params vfscore.Params) error {
	if err := blockspace.Format(dir, params); err != nil {
		return err
	}
	if err := inodespace.Format(dir, params); err != nil {
		return err
	}
	log.Printf("vfs: formatted volume at %s (storages=%d blocksize=%d inodes=%d)",
		dir, params.StorageAmount, params.BlockSize, params.MaxFileAmount)
	return nil
}

// Mount opens the backing files at dir and initializes every manager. If
// formatFirst is set, it formats fresh backing files first and then
// initializes the root directory as an empty directory with one data
// block, per spec §4.8.
func Mount(dir string, formatFirst bool, params vfscore.Params) (*FileSystem, error) {
	if formatFirst {
		if err := Format(dir, params); err != nil {
			return nil, err
		}
	}

	bs, err := blockspace.Init(dir, params)
	if err != nil {
		return nil, err
	}
	log.Printf("vfs: initialized block space")

	is, err := inodespace.Init(dir, params)
	if err != nil {
		return nil, err
	}
	log.Printf("vfs: initialized inode space")

	fs := &FileSystem{
		params: params,
		bs:     bs,
		is:     is,
		ot:     opentable.New(),
	}
	fs.ns = namespace.New(bs, is, params)

	if formatFirst {
		root := vfscore.Inode{IsBusy: true, IsDir: true, BlkSize: 1}
		addr, err := bs.Alloc()
		if err != nil {
			return nil, err
		}
		root.Block[0] = addr
		if err := is.Write(vfscore.RootInodeIndex, root); err != nil {
			return nil, err
		}
		log.Printf("vfs: created root directory '/' [0]")
	}

	return fs, nil
}

// Unmount flushes the free-block bitmap, closes every backing file, and
// drops the in-memory open table, flushing any inode still held open.
func (fs *FileSystem) Unmount() error {
	fs.ns.Mu.Lock()
	defer fs.ns.Mu.Unlock()

	if err := fs.ot.Drain(fs.flushEntry); err != nil {
		return err
	}

	if err := fs.is.Shutdown(); err != nil {
		return err
	}
	return fs.bs.Shutdown()
}

// flushEntry is the opentable release hook: it either persists the
// in-memory inode snapshot (normal close) or releases the inode's blocks
// and frees the inode (deferred-delete close), per spec §4.6.
func (fs *FileSystem) flushEntry(entry *opentable.Entry) error {
	if entry.DeferDelete {
		if err := blockmap.ReleaseAll(fs.bs, fs.params, &entry.Inode); err != nil {
			return err
		}
		return fs.is.Free(entry.InodeIndex)
	}
	return fs.is.Write(entry.InodeIndex, entry.Inode)
}

// Handle is a FileSystem-bound open file view: a filehandle.Handle plus
// enough context to release its opentable entry on Close.
type Handle struct {
	fs    *FileSystem
	inner *filehandle.Handle
}

// Open resolves path under the requested mode and returns a Handle.
// mode is the character vocabulary from spec §6 (r/w/c/t/a).
func (fs *FileSystem) Open(path string, mode string) (*Handle, error) {
	flags, err := vfscore.ParseMode(mode)
	if err != nil {
		return nil, err
	}

	fs.ns.Mu.Lock()
	defer fs.ns.Mu.Unlock()

	index, in, err := fs.ns.Resolve(path, flags.Create())
	if err != nil {
		return nil, err
	}
	if in.IsDir {
		return nil, vfscore.ErrIsADirectory
	}

	entry, err := fs.ot.Acquire(index, flags.Read(), flags.Write(), func() (vfscore.Inode, error) {
		return fs.is.Read(index)
	})
	if err != nil {
		return nil, err
	}

	inner, err := filehandle.Open(fs.bs, fs.params, entry, flags.Truncate(), func() error {
		return fs.ot.Release(entry, fs.flushEntry)
	})
	if err != nil {
		return nil, err
	}
	return &Handle{fs: fs, inner: inner}, nil
}

// Read reads from h into dst.
func (h *Handle) Read(dst []byte) (int, error) { return h.inner.Read(dst) }

// Write writes src to h.
func (h *Handle) Write(src []byte) (int, error) { return h.inner.Write(src) }

// Seek repositions h's cursor.
func (h *Handle) Seek(offset int64, whence filehandle.Whence) (int64, error) {
	return h.inner.Seek(offset, whence)
}

// Close releases h's pinned block and its opentable reference. The
// namespace mutex guards the opentable mutation Close triggers.
func (h *Handle) Close() error {
	h.fs.ns.Mu.Lock()
	defer h.fs.ns.Mu.Unlock()
	return h.inner.Close()
}

// Create resolves path, creating every missing intermediate component.
func (fs *FileSystem) Create(path string, isDir bool) error {
	fs.ns.Mu.Lock()
	defer fs.ns.Mu.Unlock()
	return fs.ns.Create(path, isDir)
}

// Remove deletes path. See namespace.Namespace.Remove for the recursive and
// deferred-delete semantics.
func (fs *FileSystem) Remove(path string, recursive bool) error {
	fs.ns.Mu.Lock()
	defer fs.ns.Mu.Unlock()

	isOpen := func(index uint32) bool {
		_, ok := fs.ot.Lookup(index)
		return ok
	}
	deferDelete := func(index uint32) {
		if entry, ok := fs.ot.Lookup(index); ok {
			entry.DeferDelete = true
		}
	}
	releaseBlocks := func(in *vfscore.Inode) error {
		return blockmap.ReleaseAll(fs.bs, fs.params, in)
	}

	return fs.ns.Remove(path, recursive, isOpen, deferDelete, releaseBlocks)
}

// Rename moves the record for oldPath to newPath.
func (fs *FileSystem) Rename(oldPath, newPath string) error {
	fs.ns.Mu.Lock()
	defer fs.ns.Mu.Unlock()
	return fs.ns.Rename(oldPath, newPath)
}

// List returns the names of path's directory entries. It is not part of
// spec §6's core API surface but is a thin convenience the CLI front end
// needs, built directly on dirent.Enumerate.
func (fs *FileSystem) List(path string) ([]string, error) {
	fs.ns.Mu.Lock()
	defer fs.ns.Mu.Unlock()

	_, in, err := fs.ns.Resolve(path, false)
	if err != nil {
		return nil, err
	}
	if !in.IsDir {
		return nil, vfscore.ErrNotADirectory
	}

	var names []string
	err = dirent.Enumerate(fs.bs, fs.params, in, func(r dirent.Record) {
		names = append(names, r.NameString())
	})
	return names, err
}
