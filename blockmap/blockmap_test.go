package blockmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vfscore/vfscore"
	"github.com/vfscore/vfscore/blockmap"
	"github.com/vfscore/vfscore/blockspace"
	"github.com/vfscore/vfscore/internal/vfstesting"
)

func newBlockSpace(t *testing.T) (*blockspace.BlockSpace, vfscore.Params) {
	t.Helper()
	dir := vfstesting.TempDir(t)
	params := vfstesting.TinyParams()
	params.StorageAmount = 1
	params.StorageSize = 4096
	params.BlockSize = 64

	require.NoError(t, blockspace.Format(dir, params))
	bs, err := blockspace.Init(dir, params)
	require.NoError(t, err)
	t.Cleanup(func() { bs.Shutdown() })
	return bs, params
}

func TestAppendGetDirectBlocks(t *testing.T) {
	bs, params := newBlockSpace(t)
	var in vfscore.Inode

	var addrs []vfscore.BlockAddress
	for i := 0; i < vfscore.NumDirectBlocks; i++ {
		addr, err := blockmap.Append(bs, params, &in)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	require.Equal(t, uint64(vfscore.NumDirectBlocks), in.BlkSize)

	for i, want := range addrs {
		got, err := blockmap.Get(bs, params, in, uint32(i))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestAppendCrossesIntoSingleIndirect(t *testing.T) {
	bs, params := newBlockSpace(t)
	var in vfscore.Inode

	a := params.AddrsPerBlock()
	total := vfscore.NumDirectBlocks + int(a) + 3

	var addrs []vfscore.BlockAddress
	for i := 0; i < total; i++ {
		addr, err := blockmap.Append(bs, params, &in)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	require.Equal(t, uint64(total), in.BlkSize)

	for i, want := range addrs {
		got, err := blockmap.Get(bs, params, in, uint32(i))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestAppendCrossesIntoDoubleIndirect(t *testing.T) {
	bs, params := newBlockSpace(t)
	var in vfscore.Inode

	a := params.AddrsPerBlock()
	total := vfscore.NumDirectBlocks + int(a) + int(a) + 5

	var addrs []vfscore.BlockAddress
	for i := 0; i < total; i++ {
		addr, err := blockmap.Append(bs, params, &in)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	require.Equal(t, uint64(total), in.BlkSize)

	for i, want := range addrs {
		got, err := blockmap.Get(bs, params, in, uint32(i))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestReleaseAllFreesEverythingAndResetsSizes(t *testing.T) {
	bs, params := newBlockSpace(t)
	var in vfscore.Inode

	a := params.AddrsPerBlock()
	total := vfscore.NumDirectBlocks + int(a) + 5
	for i := 0; i < total; i++ {
		_, err := blockmap.Append(bs, params, &in)
		require.NoError(t, err)
	}
	in.ByteSize = uint64(total) * uint64(params.BlockSize)

	require.NoError(t, blockmap.ReleaseAll(bs, params, &in))
	require.Equal(t, uint64(0), in.ByteSize)
	require.Equal(t, uint64(0), in.BlkSize)

	// Every block this inode held should now be allocatable again: allocate
	// the whole pool back out without hitting exhaustion before `total`.
	count := 0
	for {
		_, err := bs.Alloc()
		if err != nil {
			break
		}
		count++
	}
	require.GreaterOrEqual(t, count, total)
}
