// Package vfstesting provides small test fixtures shared across this
// module's packages, mirroring the teacher's testing/images.go: an
// in-memory backing buffer wrapped with xaionaro-go/bytesextra so tests
// never depend on the real filesystem for the pieces that don't need it,
// plus a tiny preset for fast on-disk fixture setup where they do.
package vfstesting

import (
	"io"
	"sync"
	"testing"

	"github.com/vfscore/vfscore"
	"github.com/xaionaro-go/bytesextra"
)

// MemFile wraps a fixed-size in-memory buffer as a positional-I/O backing
// file: it satisfies io.ReaderAt, io.WriterAt, and io.Closer, which is all
// any storageFile-shaped type in this module needs.
type MemFile struct {
	stream io.ReadWriteSeeker
	mu     sync.Mutex
}

// NewMemFile returns a MemFile of the given size, all zero bytes.
func NewMemFile(size int) *MemFile {
	return &MemFile{stream: bytesextra.NewReadWriteSeeker(make([]byte, size))}
}

func (m *MemFile) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.stream.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(m.stream, p)
}

func (m *MemFile) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.stream.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return m.stream.Write(p)
}

func (m *MemFile) Close() error { return nil }

// TinyParams is a small tunable set sized for fast, in-process tests: two
// storages of 64 blocks each, 64-byte blocks, 64 inodes.
func TinyParams() vfscore.Params {
	return vfscore.Params{
		StorageAmount: 2,
		StorageSize:   64,
		BlockSize:     64,
		MaxFileAmount: 64,
		NameMax:       27,
	}
}

// TempDir returns a fresh temporary directory that's removed when the test
// completes.
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}
