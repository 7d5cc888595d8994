package inodespace

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vfscore/vfscore"
	"github.com/vfscore/vfscore/internal/vfstesting"
)

func TestFormatInitGetFreeRoundTrip(t *testing.T) {
	dir := vfstesting.TempDir(t)
	params := vfstesting.TinyParams()

	require.NoError(t, Format(dir, params))
	is, err := Init(dir, params)
	require.NoError(t, err)

	index, err := is.Get()
	require.NoError(t, err)
	require.NotEqual(t, vfscore.RootInodeIndex, index)

	in, err := is.Read(index)
	require.NoError(t, err)
	require.True(t, in.IsBusy)

	in.ByteSize = 42
	require.NoError(t, is.Write(index, in))

	got, err := is.Read(index)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.ByteSize)

	require.NoError(t, is.Free(index))
	after, err := is.Read(index)
	require.NoError(t, err)
	require.False(t, after.IsBusy)

	require.NoError(t, is.Shutdown())
}

func TestGetNeverHandsOutRootIndex(t *testing.T) {
	dir := vfstesting.TempDir(t)
	params := vfstesting.TinyParams()

	require.NoError(t, Format(dir, params))
	is, err := Init(dir, params)
	require.NoError(t, err)
	defer is.Shutdown()

	for i := 0; i < 10; i++ {
		index, err := is.Get()
		require.NoError(t, err)
		require.NotEqual(t, vfscore.RootInodeIndex, index)
	}
}

func TestGetExhaustionOnceAllBusy(t *testing.T) {
	dir := vfstesting.TempDir(t)
	params := vfstesting.TinyParams()
	params.MaxFileAmount = 4

	require.NoError(t, Format(dir, params))
	is, err := Init(dir, params)
	require.NoError(t, err)
	defer is.Shutdown()

	// index 0 is reserved for root and never scanned, so only 1..3 are
	// available: 3 usable slots.
	for i := 0; i < 3; i++ {
		_, err := is.Get()
		require.NoError(t, err)
	}

	_, err = is.Get()
	require.Error(t, err)
}

func TestFreedIndexIsReusable(t *testing.T) {
	dir := vfstesting.TempDir(t)
	params := vfstesting.TinyParams()
	params.MaxFileAmount = 4

	require.NoError(t, Format(dir, params))
	is, err := Init(dir, params)
	require.NoError(t, err)
	defer is.Shutdown()

	var got []uint32
	for i := 0; i < 3; i++ {
		index, err := is.Get()
		require.NoError(t, err)
		got = append(got, index)
	}
	_, err = is.Get()
	require.Error(t, err)

	require.NoError(t, is.Free(got[0]))

	index, err := is.Get()
	require.NoError(t, err)
	require.Equal(t, got[0], index)
}
