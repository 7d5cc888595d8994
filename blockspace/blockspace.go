// Package blockspace owns the striped, bitmap-allocated pool of fixed-size
// blocks spread across several storage files, per spec §4.1.
package blockspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/boljen/go-bitmap"
	"github.com/google/renameio"
	"github.com/hashicorp/go-multierror"
	"github.com/noxer/bytewriter"
	"github.com/vfscore/vfscore"
)

const freeBlocksFileName = "free_blocks"

func storageFileName(i uint32) string {
	return fmt.Sprintf("storage%d", i)
}

// BlockSpace is the allocator and pinning layer over N backing storage
// files. Its zero value is not usable; construct with Init or Format+Init.
type BlockSpace struct {
	params vfscore.Params

	mu         sync.Mutex // guards bitmap and freeCounts; see spec §5 lock (1)
	bitmapFile *os.File
	freeBitmap bitmap.Bitmap
	freeCounts []int // per-storage free block count, parallel to storages

	storages []storageFile
	pagers   []pager
}

// Format lays out the storage files and the free-block bitmap on disk, per
// spec §4.1 format(dir). Every bit starts set (free), matching
// original_source/vfs/blockmanager.cpp's CreateFreeBlockArray.
func Format(dir string, params vfscore.Params) error {
	for i := uint32(0); i < params.StorageAmount; i++ {
		path := filepath.Join(dir, storageFileName(i))
		f, err := os.Create(path)
		if err != nil {
			return vfscore.ErrIOError.WrapError(err)
		}
		err = f.Truncate(int64(params.StorageFileBytes()))
		closeErr := f.Close()
		if err != nil {
			return vfscore.ErrIOError.WrapError(err)
		}
		if closeErr != nil {
			return vfscore.ErrIOError.WrapError(closeErr)
		}
	}

	totalBlocks := params.StorageAmount * params.BlocksPerStorage()
	bitmapBytes := int(totalBlocks) / 8
	if totalBlocks%8 != 0 {
		bitmapBytes++
	}

	buf := make([]byte, bitmapBytes)
	writer := bytewriter.New(buf)
	if _, err := writer.Write(bytes.Repeat([]byte{0xFF}, bitmapBytes)); err != nil {
		return vfscore.ErrIOError.WrapError(err)
	}

	if err := renameio.WriteFile(filepath.Join(dir, freeBlocksFileName), buf, 0o644); err != nil {
		return vfscore.ErrIOError.WrapError(err)
	}
	return nil
}

// Init opens the storage files and the free-block bitmap created by Format,
// and recomputes each storage's free count by popcount of its bitmap region.
func Init(dir string, params vfscore.Params) (*BlockSpace, error) {
	bs := &BlockSpace{params: params}

	bitmapFile, err := os.OpenFile(filepath.Join(dir, freeBlocksFileName), os.O_RDWR, 0o644)
	if err != nil {
		return nil, vfscore.ErrIOError.WrapError(err)
	}
	bs.bitmapFile = bitmapFile

	totalBlocks := params.StorageAmount * params.BlocksPerStorage()
	bitmapBytes := int(totalBlocks) / 8
	if totalBlocks%8 != 0 {
		bitmapBytes++
	}

	raw := make([]byte, bitmapBytes)
	if _, err := bitmapFile.ReadAt(raw, 0); err != nil {
		return nil, vfscore.ErrIOError.WrapError(err)
	}
	bs.freeBitmap = bitmap.NewSlice(raw)

	bs.freeCounts = make([]int, params.StorageAmount)
	perStorage := int(params.BlocksPerStorage())
	for s := 0; s < int(params.StorageAmount); s++ {
		count := 0
		for b := 0; b < perStorage; b++ {
			if bs.freeBitmap.Get(s*perStorage + b) {
				count++
			}
		}
		bs.freeCounts[s] = count
	}

	bs.storages = make([]storageFile, params.StorageAmount)
	bs.pagers = make([]pager, params.StorageAmount)
	for i := uint32(0); i < params.StorageAmount; i++ {
		f, err := os.OpenFile(filepath.Join(dir, storageFileName(i)), os.O_RDWR, 0o644)
		if err != nil {
			return nil, vfscore.ErrIOError.WrapError(err)
		}
		bs.storages[i] = f
		bs.pagers[i] = newPager(f)
	}

	return bs, nil
}

// bitIndex converts a BlockAddress into its flat index in freeBitmap.
func (bs *BlockSpace) bitIndex(addr vfscore.BlockAddress) int {
	return int(addr.StorageNum)*int(bs.params.BlocksPerStorage()) + int(addr.BlockNum)
}

// Alloc selects the storage with the largest current free count (ties
// broken by lowest index), scans its bit region for the first free block,
// clears it, and decrements that storage's free count.
func (bs *BlockSpace) Alloc() (vfscore.BlockAddress, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	best := -1
	for i, count := range bs.freeCounts {
		if count > 0 && (best == -1 || count > bs.freeCounts[best]) {
			best = i
		}
	}
	if best == -1 {
		return vfscore.BlockAddress{}, vfscore.ErrExhausted
	}

	perStorage := int(bs.params.BlocksPerStorage())
	base := best * perStorage
	for b := 0; b < perStorage; b++ {
		if bs.freeBitmap.Get(base + b) {
			bs.freeBitmap.Set(base+b, false)
			bs.freeCounts[best]--
			return vfscore.BlockAddress{StorageNum: uint32(best), BlockNum: uint32(b)}, nil
		}
	}
	// freeCounts and the bitmap disagree; a bug in Free bookkeeping.
	return vfscore.BlockAddress{}, vfscore.ErrIOError.WithMessage("free count out of sync with bitmap")
}

// Free sets the bitmap bit for addr and increments its storage's free count.
func (bs *BlockSpace) Free(addr vfscore.BlockAddress) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	idx := bs.bitIndex(addr)
	if bs.freeBitmap.Get(idx) {
		return vfscore.ErrIOError.WithMessage(fmt.Sprintf("block %+v is already free", addr))
	}
	bs.freeBitmap.Set(idx, true)
	bs.freeCounts[addr.StorageNum]++
	return nil
}

// Pin returns a writable view of block_size bytes at addr, valid until
// Unpin. Pin does not take bs.mu: concurrent pins of different addresses
// proceed in parallel, per spec §4.1.
func (bs *BlockSpace) Pin(addr vfscore.BlockAddress) ([]byte, error) {
	offset := int64(addr.BlockNum) * int64(bs.params.BlockSize)
	buf, err := bs.pagers[addr.StorageNum].pin(bs.storages[addr.StorageNum], offset, int(bs.params.BlockSize))
	if err != nil {
		return nil, vfscore.ErrIOError.WrapError(err)
	}
	return buf, nil
}

// Unpin flushes buf back to addr's backing storage and releases the view.
func (bs *BlockSpace) Unpin(addr vfscore.BlockAddress, buf []byte) error {
	offset := int64(addr.BlockNum) * int64(bs.params.BlockSize)
	if err := bs.pagers[addr.StorageNum].unpin(bs.storages[addr.StorageNum], offset, buf); err != nil {
		return vfscore.ErrIOError.WrapError(err)
	}
	return nil
}

// Shutdown flushes the free-block bitmap and closes every backing file,
// aggregating every close error instead of stopping at the first.
func (bs *BlockSpace) Shutdown() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	var result *multierror.Error
	if _, err := bs.bitmapFile.WriteAt(bs.freeBitmap.Data(false), 0); err != nil {
		result = multierror.Append(result, err)
	}
	if err := bs.bitmapFile.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, s := range bs.storages {
		if err := s.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
