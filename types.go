package vfscore

import "encoding/binary"

// BlockAddressSize is the packed on-disk size of a BlockAddress: two
// little-endian uint32 fields.
const BlockAddressSize = 8

// RootInodeIndex is always inode 0, per spec §3 invariant 6.
const RootInodeIndex uint32 = 0

// BlockAddress identifies a block within one of the storage files. The zero
// value (storage 0, block 0) is a valid address: the allocator hands block 0
// of storage 0 out like any other block. InvalidBlockAddress is a separate,
// recognizable "no block here" sentinel that no allocation returns.
type BlockAddress struct {
	StorageNum uint32
	BlockNum   uint32
}

// InvalidBlockAddress marks a BlockAddress slot that has not been allocated.
var InvalidBlockAddress = BlockAddress{StorageNum: 0xFFFFFFFF, BlockNum: 0xFFFFFFFF}

// IsValid reports whether addr differs from the InvalidBlockAddress sentinel.
func (addr BlockAddress) IsValid() bool {
	return addr != InvalidBlockAddress
}

// PutBlockAddress encodes addr into the first BlockAddressSize bytes of buf.
func PutBlockAddress(buf []byte, addr BlockAddress) {
	binary.LittleEndian.PutUint32(buf[0:4], addr.StorageNum)
	binary.LittleEndian.PutUint32(buf[4:8], addr.BlockNum)
}

// GetBlockAddress decodes a BlockAddress from the first BlockAddressSize
// bytes of buf.
func GetBlockAddress(buf []byte) BlockAddress {
	return BlockAddress{
		StorageNum: binary.LittleEndian.Uint32(buf[0:4]),
		BlockNum:   binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// NumDirectBlocks is the number of direct block pointers in an inode
// (block[0..7]), per spec §3.
const NumDirectBlocks = 8

// IndirectBlockSlot and DoubleIndirectBlockSlot index Inode.Block for the
// single- and double-indirect pointers (block[8] and block[9]).
const (
	IndirectBlockSlot       = 8
	DoubleIndirectBlockSlot = 9
)

// NumBlockPointers is the total width of Inode.Block.
const NumBlockPointers = 10

// Inode is the in-memory form of a fixed-size inode record, per spec §3.
type Inode struct {
	IsBusy   bool
	IsDir    bool
	ByteSize uint64
	BlkSize  uint64
	Block    [NumBlockPointers]BlockAddress
}

// InodeRecordSize is the packed on-disk size of one Inode: is_busy (1B) +
// is_dir (1B) + 6B padding to an 8-byte boundary + byte_size (8B) +
// blk_size (8B) + 10 BlockAddress entries (80B) = 104 bytes.
const InodeRecordSize = 1 + 1 + 6 + 8 + 8 + NumBlockPointers*BlockAddressSize

// EncodeInode writes the packed on-disk representation of in into buf, which
// must be at least InodeRecordSize bytes.
func EncodeInode(buf []byte, in Inode) {
	for i := range buf[:InodeRecordSize] {
		buf[i] = 0
	}
	if in.IsBusy {
		buf[0] = 1
	}
	if in.IsDir {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint64(buf[8:16], in.ByteSize)
	binary.LittleEndian.PutUint64(buf[16:24], in.BlkSize)
	for i, addr := range in.Block {
		offset := 24 + i*BlockAddressSize
		PutBlockAddress(buf[offset:offset+BlockAddressSize], addr)
	}
}

// DecodeInode parses the packed on-disk representation of an inode from buf,
// which must be at least InodeRecordSize bytes.
func DecodeInode(buf []byte) Inode {
	var in Inode
	in.IsBusy = buf[0] != 0
	in.IsDir = buf[1] != 0
	in.ByteSize = binary.LittleEndian.Uint64(buf[8:16])
	in.BlkSize = binary.LittleEndian.Uint64(buf[16:24])
	for i := range in.Block {
		offset := 24 + i*BlockAddressSize
		in.Block[i] = GetBlockAddress(buf[offset : offset+BlockAddressSize])
	}
	return in
}
