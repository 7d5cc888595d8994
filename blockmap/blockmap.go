// Package blockmap translates a logical block index within an inode to a
// physical BlockAddress through the inode's direct, single-indirect, and
// double-indirect pointers, per spec §4.3. It is pure logic layered on
// blockspace.BlockSpace and a vfscore.Inode; it holds no state of its own.
package blockmap

import (
	"github.com/vfscore/vfscore"
)

// blockSpace is the subset of *blockspace.BlockSpace this package needs.
// Declaring it locally (rather than importing blockspace) keeps blockmap
// free of a dependency cycle back up to the package that will eventually
// compose blockmap with blockspace and inodespace.
type blockSpace interface {
	Alloc() (vfscore.BlockAddress, error)
	Free(addr vfscore.BlockAddress) error
	Pin(addr vfscore.BlockAddress) ([]byte, error)
	Unpin(addr vfscore.BlockAddress, buf []byte) error
}

func readIndirect(bs blockSpace, addr vfscore.BlockAddress, slot uint32) (vfscore.BlockAddress, error) {
	buf, err := bs.Pin(addr)
	if err != nil {
		return vfscore.BlockAddress{}, err
	}
	defer bs.Unpin(addr, buf)
	return vfscore.GetBlockAddress(buf[slot*vfscore.BlockAddressSize:]), nil
}

func writeIndirect(bs blockSpace, addr vfscore.BlockAddress, slot uint32, value vfscore.BlockAddress) error {
	buf, err := bs.Pin(addr)
	if err != nil {
		return err
	}
	vfscore.PutBlockAddress(buf[slot*vfscore.BlockAddressSize:], value)
	return bs.Unpin(addr, buf)
}

// Get looks up the Nth logical block of in, per the §3 mapping formula.
func Get(bs blockSpace, params vfscore.Params, in vfscore.Inode, n uint32) (vfscore.BlockAddress, error) {
	a := params.AddrsPerBlock()
	switch {
	case n < vfscore.NumDirectBlocks:
		return in.Block[n], nil
	case n < vfscore.NumDirectBlocks+a:
		return readIndirect(bs, in.Block[vfscore.IndirectBlockSlot], n-vfscore.NumDirectBlocks)
	default:
		rel := n - vfscore.NumDirectBlocks - a
		idx1, idx0 := rel/a, rel%a
		single, err := readIndirect(bs, in.Block[vfscore.DoubleIndirectBlockSlot], idx1)
		if err != nil {
			return vfscore.BlockAddress{}, err
		}
		return readIndirect(bs, single, idx0)
	}
}

// Append allocates a new data block and attaches it as logical block
// in.BlkSize, growing the single- and double-indirect pointer chain as
// needed, and increments in.BlkSize. in is mutated in place; the caller
// (opentable's in-memory inode snapshot) owns persisting it.
func Append(bs blockSpace, params vfscore.Params, in *vfscore.Inode) (vfscore.BlockAddress, error) {
	a := params.AddrsPerBlock()
	newBlock, err := bs.Alloc()
	if err != nil {
		return vfscore.BlockAddress{}, err
	}

	n := uint32(in.BlkSize)
	switch {
	case n < vfscore.NumDirectBlocks:
		in.Block[n] = newBlock
	case n < vfscore.NumDirectBlocks+a:
		if err := appendLevel1(bs, in, n, newBlock); err != nil {
			return vfscore.BlockAddress{}, err
		}
	default:
		if err := appendLevel2(bs, params, in, n, newBlock); err != nil {
			return vfscore.BlockAddress{}, err
		}
	}
	in.BlkSize++
	return newBlock, nil
}

func appendLevel1(bs blockSpace, in *vfscore.Inode, n uint32, newBlock vfscore.BlockAddress) error {
	if n == vfscore.NumDirectBlocks {
		indirect, err := bs.Alloc()
		if err != nil {
			return err
		}
		in.Block[vfscore.IndirectBlockSlot] = indirect
	}
	return writeIndirect(bs, in.Block[vfscore.IndirectBlockSlot], n-vfscore.NumDirectBlocks, newBlock)
}

func appendLevel2(bs blockSpace, params vfscore.Params, in *vfscore.Inode, n uint32, newBlock vfscore.BlockAddress) error {
	a := params.AddrsPerBlock()
	base := n - vfscore.NumDirectBlocks - a
	idx1, idx0 := base/a, base%a

	if n == vfscore.NumDirectBlocks+a {
		double, err := bs.Alloc()
		if err != nil {
			return err
		}
		in.Block[vfscore.DoubleIndirectBlockSlot] = double
	}

	if idx0 == 0 {
		single, err := bs.Alloc()
		if err != nil {
			return err
		}
		if err := writeIndirect(bs, in.Block[vfscore.DoubleIndirectBlockSlot], idx1, single); err != nil {
			return err
		}
	}

	single, err := readIndirect(bs, in.Block[vfscore.DoubleIndirectBlockSlot], idx1)
	if err != nil {
		return err
	}
	return writeIndirect(bs, single, idx0, newBlock)
}

// ReleaseAll frees every block belonging to in (data, single-indirect, and
// double-indirect metadata blocks) and resets ByteSize/BlkSize to 0.
func ReleaseAll(bs blockSpace, params vfscore.Params, in *vfscore.Inode) error {
	a := params.AddrsPerBlock()

	for i := uint32(0); i < uint32(in.BlkSize); i++ {
		addr, err := Get(bs, params, *in, i)
		if err != nil {
			return err
		}
		if err := bs.Free(addr); err != nil {
			return err
		}
	}

	if uint32(in.BlkSize) > vfscore.NumDirectBlocks {
		if err := bs.Free(in.Block[vfscore.IndirectBlockSlot]); err != nil {
			return err
		}
	}

	if uint32(in.BlkSize) > vfscore.NumDirectBlocks+a {
		double := in.Block[vfscore.DoubleIndirectBlockSlot]
		// r is the single-indirect index of the last logical block actually
		// allocated (logical block blk_size-1), not of blk_size itself: when
		// blk_size-8-a lands exactly on a multiple of a, that division alone
		// would point one single-indirect slot past the last one ever
		// written to the double-indirect block.
		r := (uint32(in.BlkSize) - 1 - vfscore.NumDirectBlocks - a) / a
		for i := uint32(0); i <= r; i++ {
			single, err := readIndirect(bs, double, i)
			if err != nil {
				return err
			}
			if err := bs.Free(single); err != nil {
				return err
			}
		}
		if err := bs.Free(double); err != nil {
			return err
		}
	}

	in.ByteSize = 0
	in.BlkSize = 0
	return nil
}
