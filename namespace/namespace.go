// Package namespace is the path parser and resolver: it walks the
// hierarchy, creates directories and files on demand, and performs
// create/remove/rename under a single global mutex, per spec §4.5.
package namespace

import (
	"regexp"
	"strings"

	"github.com/jacobsa/syncutil"
	"github.com/vfscore/vfscore"
	"github.com/vfscore/vfscore/dirent"
)

// blockSpace is the subset of *blockspace.BlockSpace the namespace layer
// needs to read and mutate directory contents.
type blockSpace interface {
	Alloc() (vfscore.BlockAddress, error)
	Free(addr vfscore.BlockAddress) error
	Pin(addr vfscore.BlockAddress) ([]byte, error)
	Unpin(addr vfscore.BlockAddress, buf []byte) error
}

// inodeSpace is the subset of *inodespace.InodeSpace the namespace layer
// needs.
type inodeSpace interface {
	Get() (uint32, error)
	Free(index uint32) error
	Read(index uint32) (vfscore.Inode, error)
	Write(index uint32, in vfscore.Inode) error
}

var componentPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// Namespace resolves, creates, removes, and renames paths over a directory
// hierarchy rooted at inode 0. Its methods do not lock Mu themselves; the
// caller (package vfs) holds Mu around every call. There is no internal
// locking beyond that invariant-checked mutex, matching spec §5's single
// global namespace mutex.
type Namespace struct {
	Mu syncutil.InvariantMutex // GUARDED_BY: nothing; this IS the lock

	bs     blockSpace
	is     inodeSpace
	params vfscore.Params
}

// New constructs a Namespace over the given managers. The invariant check
// verifies root inode 0 is always busy and a directory, per spec §3
// invariant 6.
func New(bs blockSpace, is inodeSpace, params vfscore.Params) *Namespace {
	ns := &Namespace{bs: bs, is: is, params: params}
	ns.Mu = syncutil.NewInvariantMutex(ns.checkInvariants)
	return ns
}

func (ns *Namespace) checkInvariants() {
	root, err := ns.is.Read(vfscore.RootInodeIndex)
	if err != nil {
		panic(err)
	}
	if !root.IsBusy || !root.IsDir {
		panic("root inode 0 must always be busy and a directory")
	}
}

// splitPath validates path and returns its components. Paths must start
// with "/"; components must match [A-Za-z0-9_.]+ and be 1..NameMax bytes.
func (ns *Namespace) splitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, vfscore.ErrInvalidPath.WithMessage("path must start with /: " + path)
	}
	if path == "/" {
		return nil, nil
	}

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, p := range parts {
		if p == "" {
			return nil, vfscore.ErrInvalidPath.WithMessage("empty path component in: " + path)
		}
		if uint32(len(p)) > ns.params.NameMax {
			return nil, vfscore.ErrInvalidPath.WithMessage("path component too long: " + p)
		}
		if !componentPattern.MatchString(p) {
			return nil, vfscore.ErrInvalidPath.WithMessage("path component has invalid characters: " + p)
		}
	}
	return parts, nil
}

// PathParent splits path at the last "/", returning the parent path and the
// leaf name.
func PathParent(path string) (parent string, leaf string) {
	i := strings.LastIndex(path, "/")
	if i == 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

// allocChildInode allocates a fresh inode, gives it one data block (every
// inode, directory or regular file, owns block[0] from creation, per
// original_source/vfs/ivfs.cpp's CreateFileInDir), and writes it to disk.
func (ns *Namespace) allocChildInode(isDir bool) (uint32, error) {
	index, err := ns.is.Get()
	if err != nil {
		return 0, err
	}
	addr, err := ns.bs.Alloc()
	if err != nil {
		return 0, err
	}
	in := vfscore.Inode{
		IsBusy:  true,
		IsDir:   isDir,
		BlkSize: 1,
	}
	in.Block[0] = addr
	if err := ns.is.Write(index, in); err != nil {
		return 0, err
	}
	return index, nil
}

// Resolve walks path from root, creating missing intermediate directories
// (and the terminal component, as a directory or regular file depending on
// whether it's the last component) when createMissing is set.
func (ns *Namespace) Resolve(path string, createMissing bool) (index uint32, in vfscore.Inode, err error) {
	return ns.resolve(path, createMissing, false)
}

// resolve is Resolve with a choice of type for a created terminal
// component: a directory when leafIsDir is set, a regular file otherwise.
func (ns *Namespace) resolve(path string, createMissing, leafIsDir bool) (index uint32, in vfscore.Inode, err error) {
	parts, err := ns.splitPath(path)
	if err != nil {
		return 0, vfscore.Inode{}, err
	}

	curIndex := vfscore.RootInodeIndex
	curInode, err := ns.is.Read(curIndex)
	if err != nil {
		return 0, vfscore.Inode{}, err
	}

	for i, name := range parts {
		if !curInode.IsDir {
			return 0, vfscore.Inode{}, vfscore.ErrNotADirectory
		}

		childIndex, found, ferr := dirent.Find(ns.bs, ns.params, curInode, name)
		if ferr != nil {
			return 0, vfscore.Inode{}, ferr
		}

		if !found {
			if !createMissing {
				return 0, vfscore.Inode{}, vfscore.ErrNotFound
			}
			isDir := leafIsDir || i != len(parts)-1
			newIndex, aerr := ns.allocChildInode(isDir)
			if aerr != nil {
				return 0, vfscore.Inode{}, aerr
			}
			if ierr := dirent.Insert(ns.bs, ns.params, &curInode, name, newIndex); ierr != nil {
				return 0, vfscore.Inode{}, ierr
			}
			if werr := ns.is.Write(curIndex, curInode); werr != nil {
				return 0, vfscore.Inode{}, werr
			}
			childIndex = newIndex
		}

		childInode, rerr := ns.is.Read(childIndex)
		if rerr != nil {
			return 0, vfscore.Inode{}, rerr
		}
		curIndex, curInode = childIndex, childInode
	}

	return curIndex, curInode, nil
}

// Create resolves path with creation enabled. If the terminal component
// already exists, it succeeds only when its IsDir matches isDir.
func (ns *Namespace) Create(path string, isDir bool) error {
	_, in, err := ns.resolve(path, true, isDir)
	if err != nil {
		return err
	}
	if in.IsDir != isDir {
		return vfscore.ErrExists.WithMessage("existing entry has a different type: " + path)
	}
	return nil
}

// Remove deletes path. If the leaf is a directory with entries and
// recursive is false, it fails with ErrDirectoryNotEmpty. isOpen reports
// whether an inode is currently held in the open table; when it is, blocks
// are not released immediately (the caller must instead mark the entry for
// deferred deletion — see opentable.Entry.DeferDelete), per spec §4.5.
func (ns *Namespace) Remove(path string, recursive bool, isOpen func(uint32) bool, deferDelete func(uint32), releaseBlocks func(*vfscore.Inode) error) error {
	parentPath, leaf := PathParent(path)
	parentIndex, parentInode, err := ns.Resolve(parentPath, false)
	if err != nil {
		return err
	}

	leafIndex, found, err := dirent.Find(ns.bs, ns.params, parentInode, leaf)
	if err != nil {
		return err
	}
	if !found {
		return vfscore.ErrNotFound
	}

	leafInode, err := ns.is.Read(leafIndex)
	if err != nil {
		return err
	}

	if leafInode.IsDir {
		if !recursive {
			hasEntries := false
			if err := dirent.Enumerate(ns.bs, ns.params, leafInode, func(dirent.Record) { hasEntries = true }); err != nil {
				return err
			}
			if hasEntries {
				return vfscore.ErrDirectoryNotEmpty
			}
		} else {
			var children []dirent.Record
			if err := dirent.Enumerate(ns.bs, ns.params, leafInode, func(r dirent.Record) {
				children = append(children, r)
			}); err != nil {
				return err
			}
			for _, child := range children {
				childPath := path + "/" + child.NameString()
				if err := ns.Remove(childPath, true, isOpen, deferDelete, releaseBlocks); err != nil {
					return err
				}
			}
		}
	}

	if isOpen(leafIndex) {
		deferDelete(leafIndex)
	} else {
		if err := releaseBlocks(&leafInode); err != nil {
			return err
		}
		if err := ns.is.Free(leafIndex); err != nil {
			return err
		}
	}

	if err := dirent.Remove(ns.bs, ns.params, &parentInode, leaf); err != nil {
		return err
	}
	return ns.is.Write(parentIndex, parentInode)
}

// Rename moves the record for old to new. old must resolve; new's parent
// directory prefix is created on demand; new's leaf must not already
// exist. Renaming a directory moves its entire subtree implicitly, since
// only the directory record's pointer moves.
func (ns *Namespace) Rename(oldPath, newPath string) error {
	oldParentPath, oldLeaf := PathParent(oldPath)
	oldParentIndex, oldParentInode, err := ns.Resolve(oldParentPath, false)
	if err != nil {
		return err
	}
	childIndex, found, err := dirent.Find(ns.bs, ns.params, oldParentInode, oldLeaf)
	if err != nil {
		return err
	}
	if !found {
		return vfscore.ErrNotFound
	}

	newParentPath, newLeaf := PathParent(newPath)
	newParentIndex, newParentInode, err := ns.resolve(newParentPath, true, true)
	if err != nil {
		return err
	}
	if _, exists, ferr := dirent.Find(ns.bs, ns.params, newParentInode, newLeaf); ferr != nil {
		return ferr
	} else if exists {
		return vfscore.ErrExists
	}

	if err := dirent.Remove(ns.bs, ns.params, &oldParentInode, oldLeaf); err != nil {
		return err
	}
	if err := ns.is.Write(oldParentIndex, oldParentInode); err != nil {
		return err
	}

	if err := dirent.Insert(ns.bs, ns.params, &newParentInode, newLeaf, childIndex); err != nil {
		return err
	}
	return ns.is.Write(newParentIndex, newParentInode)
}
