package blockspace

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// storageFile is the narrow interface BlockSpace needs from one backing
// storage file: positional I/O plus Close. *os.File satisfies it directly;
// internal/vfstesting wraps an in-memory buffer with xaionaro-go/bytesextra
// to satisfy it without touching the real filesystem.
type storageFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// pager is the pin/unpin abstraction boundary described in the Design Note
// on memory-mapped block buffers: a platform that can't map file ranges into
// the process substitutes a pread/pwrite-backed buffer instead. Callers of
// BlockSpace never know which implementation is active.
type pager interface {
	pin(f storageFile, offset int64, size int) ([]byte, error)
	unpin(f storageFile, offset int64, buf []byte) error
}

// mmapPager maps the requested range directly into the process with
// unix.Mmap and flushes it back with unix.Msync on unpin. It only applies to
// backing files that are real *os.File values; anything else falls back to
// pagedPager (see newPager). unix.Mmap needs a page-aligned offset, so a
// block whose offset is not a multiple of the page size is read and written
// through pagedPager instead.
type mmapPager struct{}

func (mmapPager) pin(f storageFile, offset int64, size int) ([]byte, error) {
	if offset%int64(os.Getpagesize()) != 0 {
		return pagedPager{}.pin(f, offset, size)
	}
	osFile := f.(*os.File)
	buf, err := unix.Mmap(int(osFile.Fd()), offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (mmapPager) unpin(f storageFile, offset int64, buf []byte) error {
	if offset%int64(os.Getpagesize()) != 0 {
		return pagedPager{}.unpin(f, offset, buf)
	}
	if err := unix.Msync(buf, unix.MS_SYNC); err != nil {
		return err
	}
	return unix.Munmap(buf)
}

// pagedPager backs pin/unpin with plain ReadAt/WriteAt against the file, for
// backing stores that are not a real *os.File (such as an in-memory
// bytesextra stream, which has no file descriptor to mmap) and for the
// non-page-aligned blocks mmapPager hands over to it.
type pagedPager struct{}

func (pagedPager) pin(f storageFile, offset int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if n < size && err == io.EOF {
		err = nil
	}
	return buf, err
}

func (pagedPager) unpin(f storageFile, offset int64, buf []byte) error {
	_, err := f.WriteAt(buf, offset)
	return err
}

// newPager picks mmapPager when f is a real *os.File (so unix.Mmap has a
// file descriptor to work with) and pagedPager otherwise.
func newPager(f storageFile) pager {
	if _, ok := f.(*os.File); ok {
		return mmapPager{}
	}
	return pagedPager{}
}
