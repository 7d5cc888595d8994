package vfscore

// Params holds the volume tunables. They are runtime values passed to
// Format and Mount, not Go constants; a volume must be mounted with the same
// values it was formatted with, since changing any of them against an
// existing volume corrupts it.
type Params struct {
	// StorageAmount is the number of backing storage files striped across.
	StorageAmount uint32
	// StorageSize is the number of blocks in each backing storage file. The
	// file's byte size is StorageSize * BlockSize.
	StorageSize uint32
	// BlockSize is the size in bytes of one allocation unit.
	BlockSize uint32
	// MaxFileAmount is the fixed number of inode slots.
	MaxFileAmount uint32
	// NameMax is the longest permitted path component, in bytes, not
	// counting the NUL terminator reserved in a dirent.Record.
	NameMax uint32
}

// DefaultParams returns the reference tunables used by original_source/: four
// storages of 16384 4KiB blocks each (64MiB per storage), 100000 inodes,
// 27-byte names (the
// 28-byte dirent.Record name field minus its NUL terminator).
func DefaultParams() Params {
	return Params{
		StorageAmount: 4,
		StorageSize:   16384,
		BlockSize:     4096,
		MaxFileAmount: 100000,
		NameMax:       27,
	}
}

// BlocksPerStorage is the number of blocks in a single storage file.
func (p Params) BlocksPerStorage() uint32 {
	return p.StorageSize
}

// StorageFileBytes is the byte size of one backing storage file.
func (p Params) StorageFileBytes() uint64 {
	return uint64(p.StorageSize) * uint64(p.BlockSize)
}

// AddrsPerBlock is how many BlockAddress entries fit in one block; this is
// the fan-out of the single- and double-indirect pointers.
func (p Params) AddrsPerBlock() uint32 {
	return p.BlockSize / BlockAddressSize
}

// MaxDirectBytes is the largest file size reachable through direct pointers
// alone.
func (p Params) MaxDirectBytes() uint64 {
	return uint64(NumDirectBlocks) * uint64(p.BlockSize)
}

// MaxSingleIndirectBytes is the largest file size reachable once the
// single-indirect pointer is in play.
func (p Params) MaxSingleIndirectBytes() uint64 {
	return p.MaxDirectBytes() + uint64(p.AddrsPerBlock())*uint64(p.BlockSize)
}

// MaxDoubleIndirectBytes is the largest file size this layout can address at
// all, once the double-indirect pointer is exhausted.
func (p Params) MaxDoubleIndirectBytes() uint64 {
	fanout := uint64(p.AddrsPerBlock())
	return p.MaxSingleIndirectBytes() + fanout*fanout*uint64(p.BlockSize)
}

// InodesPerBlock is how many packed Inode records fit in one block of the
// inode array file.
func (p Params) InodesPerBlock() uint32 {
	return p.BlockSize / InodeRecordSize
}
