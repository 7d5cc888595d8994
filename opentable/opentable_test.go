package opentable_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vfscore/vfscore"
	"github.com/vfscore/vfscore/opentable"
)

func loadStub(in vfscore.Inode) func() (vfscore.Inode, error) {
	return func() (vfscore.Inode, error) { return in, nil }
}

func TestAcquireSecondReaderSharesEntry(t *testing.T) {
	table := opentable.New()
	loads := 0
	load := func() (vfscore.Inode, error) {
		loads++
		return vfscore.Inode{IsBusy: true}, nil
	}

	e1, err := table.Acquire(1, true, false, load)
	require.NoError(t, err)
	e2, err := table.Acquire(1, true, false, load)
	require.NoError(t, err)

	require.Same(t, e1, e2)
	require.Equal(t, 2, e1.RefCount)
	require.Equal(t, 1, loads, "loadInode must only be called on first acquire")
}

func TestAcquireWriterConflictsWithExistingOpen(t *testing.T) {
	table := opentable.New()
	_, err := table.Acquire(1, true, false, loadStub(vfscore.Inode{}))
	require.NoError(t, err)

	_, err = table.Acquire(1, true, true, loadStub(vfscore.Inode{}))
	require.ErrorIs(t, err, vfscore.ErrBusy)
}

func TestAcquireSecondWriterFailsEvenWithNoOverlap(t *testing.T) {
	table := opentable.New()
	_, err := table.Acquire(1, false, true, loadStub(vfscore.Inode{}))
	require.NoError(t, err)

	_, err = table.Acquire(1, false, true, loadStub(vfscore.Inode{}))
	require.ErrorIs(t, err, vfscore.ErrBusy)
}

func TestReleaseFlushesOnlyWhenRefCountReachesZero(t *testing.T) {
	table := opentable.New()
	entry, err := table.Acquire(1, true, false, loadStub(vfscore.Inode{}))
	require.NoError(t, err)
	_, err = table.Acquire(1, true, false, loadStub(vfscore.Inode{}))
	require.NoError(t, err)

	flushed := 0
	flush := func(*opentable.Entry) error { flushed++; return nil }

	require.NoError(t, table.Release(entry, flush))
	require.Equal(t, 0, flushed)

	_, ok := table.Lookup(1)
	require.True(t, ok)

	require.NoError(t, table.Release(entry, flush))
	require.Equal(t, 1, flushed)

	_, ok = table.Lookup(1)
	require.False(t, ok)
}

func TestDrainFlushesEveryRemainingEntry(t *testing.T) {
	table := opentable.New()
	_, err := table.Acquire(1, true, false, loadStub(vfscore.Inode{}))
	require.NoError(t, err)
	_, err = table.Acquire(2, true, false, loadStub(vfscore.Inode{}))
	require.NoError(t, err)

	flushed := make(map[uint32]bool)
	err = table.Drain(func(e *opentable.Entry) error {
		flushed[e.InodeIndex] = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, flushed[1])
	require.True(t, flushed[2])

	_, ok := table.Lookup(1)
	require.False(t, ok)
}
