package vfs_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vfscore/vfscore"
	"github.com/vfscore/vfscore/filehandle"
	"github.com/vfscore/vfscore/internal/vfstesting"
	"github.com/vfscore/vfscore/vfs"
)

func freshVolume(t *testing.T) *vfs.FileSystem {
	t.Helper()
	dir := vfstesting.TempDir(t)
	params := vfstesting.TinyParams()
	params.StorageAmount = 1
	params.StorageSize = 4096
	params.BlockSize = 64

	fs, err := vfs.Mount(dir, true, params)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Unmount() })
	return fs
}

func TestWriteReadRoundTripOnFreshVolume(t *testing.T) {
	fs := freshVolume(t)

	h, err := fs.Open("/greeting.txt", "wct")
	require.NoError(t, err)
	_, err = h.Write([]byte("hello, volume"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h2, err := fs.Open("/greeting.txt", "r")
	require.NoError(t, err)
	data := make([]byte, len("hello, volume"))
	n, err := h2.Read(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, "hello, volume", string(data))
	require.NoError(t, h2.Close())
}

func TestConcurrentWriterOpenIsBusy(t *testing.T) {
	fs := freshVolume(t)

	h1, err := fs.Open("/f.txt", "wc")
	require.NoError(t, err)
	defer h1.Close()

	_, err = fs.Open("/f.txt", "wc")
	require.ErrorIs(t, err, vfscore.ErrBusy)
}

func TestTwoReadersMayShareAnOpenFile(t *testing.T) {
	fs := freshVolume(t)

	h1, err := fs.Open("/f.txt", "wct")
	require.NoError(t, err)
	_, err = h1.Write([]byte("shared"))
	require.NoError(t, err)
	require.NoError(t, h1.Close())

	r1, err := fs.Open("/f.txt", "r")
	require.NoError(t, err)
	defer r1.Close()

	r2, err := fs.Open("/f.txt", "r")
	require.NoError(t, err)
	defer r2.Close()
}

func TestSeekEndOnEmptyFileClampsToZero(t *testing.T) {
	fs := freshVolume(t)

	h, err := fs.Open("/empty.txt", "wc")
	require.NoError(t, err)
	defer h.Close()

	pos, err := h.Seek(0, filehandle.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)
}

func TestCreateAutoCreatesIntermediateDirectories(t *testing.T) {
	fs := freshVolume(t)

	require.NoError(t, fs.Create("/a/b/c.txt", false))

	names, err := fs.List("/a/b")
	require.NoError(t, err)
	require.Contains(t, names, "c.txt")
}

func TestLargeMultiBlockWriteReadRoundTrip(t *testing.T) {
	fs := freshVolume(t)

	h, err := fs.Open("/big.bin", "wct")
	require.NoError(t, err)

	data := make([]byte, 64*10+17)
	for i := range data {
		data[i] = byte(i % 256)
	}
	n, err := h.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, h.Close())

	h2, err := fs.Open("/big.bin", "r")
	require.NoError(t, err)
	defer h2.Close()

	got := make([]byte, len(data))
	total := 0
	for total < len(got) {
		n, err := h2.Read(got[total:])
		require.NoError(t, err)
		if n == 0 {
			break
		}
		total += n
	}
	require.Equal(t, data, got)
}

func TestRenameThenRecursiveRemove(t *testing.T) {
	fs := freshVolume(t)

	require.NoError(t, fs.Create("/dir/file.txt", false))
	require.NoError(t, fs.Rename("/dir", "/moved"))

	names, err := fs.List("/moved")
	require.NoError(t, err)
	require.Contains(t, names, "file.txt")

	require.NoError(t, fs.Remove("/moved", true))

	_, err = fs.List("/moved")
	require.Error(t, err)
}

func TestRemoveNonRecursiveFailsOnNonEmptyDirectory(t *testing.T) {
	fs := freshVolume(t)
	require.NoError(t, fs.Create("/dir/file.txt", false))

	err := fs.Remove("/dir", false)
	require.ErrorIs(t, err, vfscore.ErrDirectoryNotEmpty)
}

func TestOpenOnDirectoryIsRejected(t *testing.T) {
	fs := freshVolume(t)
	require.NoError(t, fs.Create("/dir", true))

	_, err := fs.Open("/dir", "r")
	require.ErrorIs(t, err, vfscore.ErrIsADirectory)
}

func TestUnmountAfterCreateSucceeds(t *testing.T) {
	fs := freshVolume(t)
	require.NoError(t, fs.Create("/keep.txt", false))
	require.NoError(t, fs.Unmount())
}
