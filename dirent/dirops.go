package dirent

import (
	"github.com/vfscore/vfscore"
	"github.com/vfscore/vfscore/blockmap"
)

// blockSpace is the subset of *blockspace.BlockSpace the directory codec
// needs, mirroring blockmap's own narrow interface.
type blockSpace interface {
	Alloc() (vfscore.BlockAddress, error)
	Free(addr vfscore.BlockAddress) error
	Pin(addr vfscore.BlockAddress) ([]byte, error)
	Unpin(addr vfscore.BlockAddress, buf []byte) error
}

// recordCount returns how many record slots dir has ever had written to
// them (live or tombstoned), per spec §3/§4.4: byte_size == record_count *
// RecordSize. Every directory walk is bounded by this count, the way
// original_source/vfs/ivfs.cpp bounds ReadDirectory by records_amount,
// rather than by blk_size * RecordsPerBlock: a data block can be a
// recycled block from some other file's old contents, and the slots past
// recordCount within it were never written by this directory and must
// never be read as if they were.
func recordCount(dir vfscore.Inode) uint32 {
	return uint32(dir.ByteSize / uint64(RecordSize))
}

// walk calls fn with the pinned buffer and in-block slot index for every
// record slot in 0..recordCount(dir), unpinning each block once fn has
// seen every slot within it. fn returning true stops the walk early.
func walk(bs blockSpace, params vfscore.Params, dir vfscore.Inode, fn func(buf []byte, slot uint32) bool) error {
	perBlock := RecordsPerBlock(params)
	count := recordCount(dir)

	for start := uint32(0); start < count; start += perBlock {
		addr, err := blockmap.Get(bs, params, dir, start/perBlock)
		if err != nil {
			return err
		}
		buf, err := bs.Pin(addr)
		if err != nil {
			return err
		}

		end := start + perBlock
		if end > count {
			end = count
		}
		stop := false
		for i := start; i < end; i++ {
			if fn(buf, i%perBlock) {
				stop = true
				break
			}
		}

		if err := bs.Unpin(addr, buf); err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// Enumerate calls fn for every record in dir's used record range whose name
// is non-empty. Order is unspecified.
func Enumerate(bs blockSpace, params vfscore.Params, dir vfscore.Inode, fn func(Record)) error {
	return walk(bs, params, dir, func(buf []byte, slot uint32) bool {
		rec := decodeRecord(buf[slot*RecordSize:])
		if !rec.Empty() {
			fn(rec)
		}
		return false
	})
}

// Find performs a linear scan for name, returning the inode index of the
// first exact match. ok is false if no record matches.
func Find(bs blockSpace, params vfscore.Params, dir vfscore.Inode, name string) (index uint32, ok bool, err error) {
	err = Enumerate(bs, params, dir, func(rec Record) {
		if !ok && rec.NameString() == name {
			index = rec.InodeIndex
			ok = true
		}
	})
	return index, ok, err
}

// Insert reuses the first tombstone slot found within dir's used record
// range; otherwise it appends a new record at the next unused slot, reusing
// dir's already-allocated blocks (including the one block every inode owns
// from creation) before asking blockmap to allocate a fresh one. dir is
// mutated in place; the caller owns persisting it.
func Insert(bs blockSpace, params vfscore.Params, dir *vfscore.Inode, name string, childIndex uint32) error {
	rec := NewRecord(name, childIndex)

	reused := false
	err := walk(bs, params, *dir, func(buf []byte, slot uint32) bool {
		if decodeRecord(buf[slot*RecordSize:]).Empty() {
			encodeRecord(buf[slot*RecordSize:], rec)
			reused = true
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if reused {
		return nil
	}

	return appendRecord(bs, params, dir, rec)
}

// appendRecord writes rec into the slot immediately after dir's current
// used record range and grows ByteSize by one record. When that slot falls
// within a data block dir already owns (including the one block[0] every
// inode is allocated at creation), it's written there directly; only once
// every owned block is full does this allocate a fresh one via blockmap.
func appendRecord(bs blockSpace, params vfscore.Params, dir *vfscore.Inode, rec Record) error {
	perBlock := RecordsPerBlock(params)
	count := recordCount(*dir)
	blockIdx := count / perBlock
	slot := count % perBlock

	var addr vfscore.BlockAddress
	var err error
	if blockIdx < uint32(dir.BlkSize) {
		addr, err = blockmap.Get(bs, params, *dir, blockIdx)
	} else {
		addr, err = blockmap.Append(bs, params, dir)
	}
	if err != nil {
		return err
	}

	buf, err := bs.Pin(addr)
	if err != nil {
		return err
	}
	encodeRecord(buf[slot*RecordSize:], rec)
	if err := bs.Unpin(addr, buf); err != nil {
		return err
	}
	dir.ByteSize += uint64(RecordSize)
	return nil
}

// Remove zeroes the matching record, turning it into a tombstone. ByteSize
// is not shrunk; the slot may be recycled by a later Insert.
func Remove(bs blockSpace, params vfscore.Params, dir *vfscore.Inode, name string) error {
	found := false
	err := walk(bs, params, *dir, func(buf []byte, slot uint32) bool {
		if decodeRecord(buf[slot*RecordSize:]).NameString() == name {
			for j := range buf[slot*RecordSize : (slot+1)*RecordSize] {
				buf[slot*RecordSize+uint32(j)] = 0
			}
			found = true
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if !found {
		return vfscore.ErrNotFound
	}
	return nil
}
