// Package dirent encodes and decodes directory contents as fixed-width
// records within a directory inode's data blocks, per spec §4.4.
//
// Record layout is the packed 28-byte-name + uint32-index scheme: see
// DESIGN.md for why this was chosen over the decimal-ASCII alternative
// original_source/ also shows.
package dirent

import (
	"encoding/binary"

	"github.com/vfscore/vfscore"
)

// NameSize is the fixed width of Record.Name, including the NUL terminator.
const NameSize = 28

// RecordSize is the packed on-disk size of one Record: 28 bytes of name
// plus a 4-byte little-endian inode index.
const RecordSize = NameSize + 4

// Record is one (name, inode index) directory entry. A zero leading name
// byte marks the slot as empty or a tombstone.
type Record struct {
	Name       [NameSize]byte
	InodeIndex uint32
}

// Empty reports whether r is an unused or tombstoned slot.
func (r Record) Empty() bool {
	return r.Name[0] == 0
}

// NameString returns the NUL-terminated name as a Go string.
func (r Record) NameString() string {
	n := 0
	for n < NameSize && r.Name[n] != 0 {
		n++
	}
	return string(r.Name[:n])
}

// NewRecord builds a Record for name and index. name must be 1..NameSize-1
// bytes; the caller (namespace) is responsible for that validation.
func NewRecord(name string, index uint32) Record {
	var rec Record
	copy(rec.Name[:], name)
	rec.InodeIndex = index
	return rec
}

func decodeRecord(buf []byte) Record {
	var rec Record
	copy(rec.Name[:], buf[:NameSize])
	rec.InodeIndex = binary.LittleEndian.Uint32(buf[NameSize : NameSize+4])
	return rec
}

func encodeRecord(buf []byte, rec Record) {
	copy(buf[:NameSize], rec.Name[:])
	binary.LittleEndian.PutUint32(buf[NameSize:NameSize+4], rec.InodeIndex)
}

// RecordsPerBlock is how many Records fit in one block.
func RecordsPerBlock(params vfscore.Params) uint32 {
	return params.BlockSize / RecordSize
}
