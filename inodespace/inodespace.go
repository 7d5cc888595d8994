// Package inodespace owns the dense inode array file, its free-inode ring
// cache, and random-access read/write of individual inode records, per spec
// §4.2.
package inodespace

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio"
	"github.com/vfscore/vfscore"
)

const inodeSpaceFileName = "inode_space"

// lookaheadSize is K from spec §3's FreeInodeCache: the number of recently
// scanned free indices InodeSpace keeps ready to hand out.
const lookaheadSize = 16

// InodeSpace is the allocator and positional-I/O layer over the packed
// inode array file.
type InodeSpace struct {
	params vfscore.Params
	file   *os.File

	allocMu   sync.Mutex // guards freeCache and scanCursor; spec §5 lock (2a)
	freeCache []uint32
	scanCursor uint32 // next index Get will scan from, once freeCache empties

	ioMu sync.Mutex // serializes read/write; spec §5 lock (2b)
}

// Format creates the inode array file, all-zero, so every slot starts
// non-busy.
func Format(dir string, params vfscore.Params) error {
	size := int64(params.MaxFileAmount) * int64(vfscore.InodeRecordSize)
	buf := make([]byte, size)
	return vfscore.ErrIOError.WrapErrorIfNotNil(
		renameio.WriteFile(filepath.Join(dir, inodeSpaceFileName), buf, 0o644))
}

// Init opens the inode array file. The free-inode cache starts empty; it is
// filled lazily by the first call to Get.
func Init(dir string, params vfscore.Params) (*InodeSpace, error) {
	f, err := os.OpenFile(filepath.Join(dir, inodeSpaceFileName), os.O_RDWR, 0o644)
	if err != nil {
		return nil, vfscore.ErrIOError.WrapError(err)
	}
	return &InodeSpace{
		params:     params,
		file:       f,
		scanCursor: 1, // index 0 is reserved for root, per spec §4.2
	}, nil
}

// Get allocates a free inode and returns its index, marking the inode
// is_busy and persisting that immediately. Index 0 (root) is never handed
// out by the scan.
func (is *InodeSpace) Get() (uint32, error) {
	is.allocMu.Lock()
	defer is.allocMu.Unlock()

	if len(is.freeCache) == 0 {
		if err := is.refillLocked(); err != nil {
			return 0, err
		}
		if len(is.freeCache) == 0 {
			return 0, vfscore.ErrExhausted
		}
	}

	index := is.freeCache[0]
	is.freeCache = is.freeCache[1:]

	inode, err := is.Read(index)
	if err != nil {
		return 0, err
	}
	inode.IsBusy = true
	if err := is.Write(index, inode); err != nil {
		return 0, err
	}
	return index, nil
}

// refillLocked scans forward from scanCursor for up to lookaheadSize
// non-busy inodes, pushing their indices into freeCache in forward order.
// Caller must hold allocMu.
func (is *InodeSpace) refillLocked() error {
	for is.scanCursor < is.params.MaxFileAmount && len(is.freeCache) < lookaheadSize {
		inode, err := is.Read(is.scanCursor)
		if err != nil {
			return err
		}
		if !inode.IsBusy {
			is.freeCache = append(is.freeCache, is.scanCursor)
		}
		is.scanCursor++
	}
	if is.scanCursor >= is.params.MaxFileAmount {
		is.scanCursor = 1
	}
	return nil
}

// Free zeroes the inode on disk and, if there's room, pushes its index back
// into the free cache so a subsequent Get can hand it out without a scan.
func (is *InodeSpace) Free(index uint32) error {
	if err := is.Write(index, vfscore.Inode{}); err != nil {
		return err
	}

	is.allocMu.Lock()
	defer is.allocMu.Unlock()
	if len(is.freeCache) < lookaheadSize {
		is.freeCache = append(is.freeCache, index)
	}
	return nil
}

// Read returns the inode record stored at index.
func (is *InodeSpace) Read(index uint32) (vfscore.Inode, error) {
	is.ioMu.Lock()
	defer is.ioMu.Unlock()

	buf := make([]byte, vfscore.InodeRecordSize)
	offset := int64(index) * int64(vfscore.InodeRecordSize)
	if _, err := is.file.ReadAt(buf, offset); err != nil {
		return vfscore.Inode{}, vfscore.ErrIOError.WrapError(err)
	}
	return vfscore.DecodeInode(buf), nil
}

// Write stores in at index.
func (is *InodeSpace) Write(index uint32, in vfscore.Inode) error {
	is.ioMu.Lock()
	defer is.ioMu.Unlock()

	buf := make([]byte, vfscore.InodeRecordSize)
	vfscore.EncodeInode(buf, in)
	offset := int64(index) * int64(vfscore.InodeRecordSize)
	if _, err := is.file.WriteAt(buf, offset); err != nil {
		return vfscore.ErrIOError.WrapError(err)
	}
	return nil
}

// Shutdown closes the inode array file.
func (is *InodeSpace) Shutdown() error {
	return vfscore.ErrIOError.WrapErrorIfNotNil(is.file.Close())
}
