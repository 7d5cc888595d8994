// Package filehandle is the byte cursor over a mapped block: FileHandle
// from spec §4.7. It pre-fetches the next block on boundary crossings and
// tracks the observed seek_end quirk (clamped to byte_size-1, not
// byte_size).
package filehandle

import (
	"github.com/vfscore/vfscore"
	"github.com/vfscore/vfscore/blockmap"
	"github.com/vfscore/vfscore/opentable"
)

// Whence selects the origin for Seek, mirroring the three POSIX seek modes
// spec §6 lists.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// blockSpace is the subset of *blockspace.BlockSpace this package needs.
type blockSpace interface {
	Alloc() (vfscore.BlockAddress, error)
	Free(addr vfscore.BlockAddress) error
	Pin(addr vfscore.BlockAddress) ([]byte, error)
	Unpin(addr vfscore.BlockAddress, buf []byte) error
}

// Handle is one open view onto an inode's byte stream. Multiple Handles may
// share the same opentable.Entry (multi-reader case); each tracks its own
// cursor and pinned block independently.
type Handle struct {
	bs     blockSpace
	params vfscore.Params
	owner  *opentable.Entry

	curBlock  uint32
	curOffset uint32
	curAddr   vfscore.BlockAddress
	buf       []byte

	release func() error
}

// Open positions a new Handle at offset 0 of owner's inode. If truncate is
// set, every existing block is released and replaced with one fresh empty
// block before the cursor is established, per spec §4.7.
//
// release is called by Close after unpinning the current block; it's the
// caller's hook to invoke opentable.Table.Release with the right flush
// behavior, since filehandle has no business knowing about InodeSpace.
func Open(bs blockSpace, params vfscore.Params, owner *opentable.Entry, truncate bool, release func() error) (*Handle, error) {
	if truncate {
		if err := blockmap.ReleaseAll(bs, params, &owner.Inode); err != nil {
			return nil, err
		}
		if _, err := blockmap.Append(bs, params, &owner.Inode); err != nil {
			return nil, err
		}
	}

	h := &Handle{bs: bs, params: params, owner: owner, release: release}
	addr, err := blockmap.Get(bs, params, owner.Inode, 0)
	if err != nil {
		return nil, err
	}
	buf, err := bs.Pin(addr)
	if err != nil {
		return nil, err
	}
	h.curAddr = addr
	h.buf = buf
	return h, nil
}

func (h *Handle) absolutePos() uint64 {
	return uint64(h.curBlock)*uint64(h.params.BlockSize) + uint64(h.curOffset)
}

func (h *Handle) advanceToNextBlock(allocateIfMissing bool) error {
	if err := h.bs.Unpin(h.curAddr, h.buf); err != nil {
		return err
	}
	h.curBlock++
	h.curOffset = 0

	var addr vfscore.BlockAddress
	var err error
	if allocateIfMissing && uint64(h.curBlock) >= h.owner.Inode.BlkSize {
		addr, err = blockmap.Append(h.bs, h.params, &h.owner.Inode)
	} else {
		addr, err = blockmap.Get(h.bs, h.params, h.owner.Inode, h.curBlock)
	}
	if err != nil {
		return err
	}

	buf, err := h.bs.Pin(addr)
	if err != nil {
		return err
	}
	h.curAddr = addr
	h.buf = buf
	return nil
}

// Read copies up to len(dst) bytes starting at the cursor into dst, never
// reading past inode.ByteSize, and returns the number of bytes copied.
func (h *Handle) Read(dst []byte) (int, error) {
	if !h.owner.PermRead {
		return 0, vfscore.ErrBadMode.WithMessage("handle opened without read permission")
	}

	remaining := int(h.owner.Inode.ByteSize - h.absolutePos())
	if remaining < 0 {
		remaining = 0
	}
	length := len(dst)
	if length > remaining {
		length = remaining
	}

	blockSize := int(h.params.BlockSize)
	copied := 0
	for copied < length {
		canRead := blockSize - int(h.curOffset)
		want := length - copied
		if want > canRead {
			want = canRead
		}
		copy(dst[copied:copied+want], h.buf[h.curOffset:int(h.curOffset)+want])
		h.curOffset += uint32(want)
		copied += want

		if copied < length && int(h.curOffset) == blockSize {
			if err := h.advanceToNextBlock(false); err != nil {
				return copied, err
			}
		}
	}
	return copied, nil
}

// Write copies src into the pinned block(s) starting at the cursor,
// allocating new blocks via BlockMap.append as needed, and advances
// inode.ByteSize. It returns the number of bytes written.
func (h *Handle) Write(src []byte) (int, error) {
	if !h.owner.PermWrite {
		return 0, vfscore.ErrBadMode.WithMessage("handle opened without write permission")
	}

	blockSize := int(h.params.BlockSize)
	written := 0
	for written < len(src) {
		canWrite := blockSize - int(h.curOffset)
		want := len(src) - written
		if want > canWrite {
			want = canWrite
		}
		copy(h.buf[h.curOffset:int(h.curOffset)+want], src[written:written+want])
		h.curOffset += uint32(want)
		written += want

		newPos := h.absolutePos()
		if newPos > h.owner.Inode.ByteSize {
			h.owner.Inode.ByteSize = newPos
		}

		if written < len(src) && int(h.curOffset) == blockSize {
			if err := h.advanceToNextBlock(true); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Seek computes a new absolute position per whence and clamps it to
// [0, byte_size-1] — the observed source behavior: seek_end lands on the
// last valid byte, never one past it, so true EOF is unreachable through
// seek_end alone.
func (h *Handle) Seek(offset int64, whence Whence) (int64, error) {
	pos := int64(h.absolutePos())
	var newPos int64
	switch whence {
	case SeekSet:
		newPos = offset
	case SeekCur:
		newPos = pos + offset
	case SeekEnd:
		newPos = int64(h.owner.Inode.ByteSize) - 1 + offset
	default:
		newPos = pos
	}

	maxPos := int64(h.owner.Inode.ByteSize) - 1
	if newPos > maxPos {
		newPos = maxPos
	}
	if newPos < 0 {
		newPos = 0
	}

	blockSize := int64(h.params.BlockSize)
	newBlock := uint32(newPos / blockSize)
	newOffset := uint32(newPos % blockSize)

	if newBlock != h.curBlock {
		if err := h.bs.Unpin(h.curAddr, h.buf); err != nil {
			return 0, err
		}
		addr, err := blockmap.Get(h.bs, h.params, h.owner.Inode, newBlock)
		if err != nil {
			return 0, err
		}
		buf, err := h.bs.Pin(addr)
		if err != nil {
			return 0, err
		}
		h.curAddr = addr
		h.buf = buf
		h.curBlock = newBlock
	}
	h.curOffset = newOffset
	return newPos, nil
}

// Close unpins the current block buffer and invokes the release hook
// supplied to Open.
func (h *Handle) Close() error {
	if err := h.bs.Unpin(h.curAddr, h.buf); err != nil {
		return err
	}
	return h.release()
}
