// Package ext2 implements the on-disk layout engine for the second
// extended filesystem: superblock and group-descriptor handling, bitmap
// allocation, inode access, direct/indirect block mapping, directory
// record management, and link accounting. It is the "core" half of the
// driver described by the specification; the other half, path
// resolution and the generic node interface, lives in package vfs.
package ext2

import (
	"bytes"
	"encoding/binary"

	"github.com/go-ext2/ext2fs/errors"
)

const (
	// SuperblockOffset is the fixed byte offset of the superblock.
	SuperblockOffset = 1024
	// SuperblockRegionSize is how many bytes are reserved for the
	// superblock on disk, regardless of how much of it RawSuperblock
	// actually uses.
	SuperblockRegionSize = 1024
	// Magic is the expected ext2 superblock magic number.
	Magic = 0xEF53

	revision0 = 0
	rev0InodeSize = 128

	rootInum = 2

	formatRegular   = 0x8000
	formatDirectory = 0x4000
	formatSymlink   = 0xA000
	formatMask      = 0xF000

	groupDescriptorSize = 32
	directoryEntryHeaderSize = 8

	directBlockCount = 12
	// Indirect pointer slots within Inode.Block, after the 12 direct
	// pointers.
	singlyIndirectSlot = 12
	doublyIndirectSlot = 13
	triplyIndirectSlot = 14

	maxSymlinkFollows = 8
	maxNameLength     = 255
)

// RawSuperblock is the byte-exact layout of the superblock region read
// from and written to SuperblockOffset, per spec.md §6. Fields not used
// by this driver (creator OS, preallocation hints, journal fields) are
// still round-tripped faithfully so a mount/flush cycle never corrupts
// data the driver doesn't understand.
type RawSuperblock struct {
	NumInodes         uint32
	NumBlocks         uint32
	NumReservedBlocks uint32
	NumFreeBlocks     uint32
	NumFreeInodes     uint32
	FirstDataBlock    uint32
	BlockSizeShift    uint32
	FragSizeShift     uint32
	BlocksPerGroup    uint32
	FragsPerGroup     uint32
	InodesPerGroup    uint32
	MountTime         uint32
	WriteTime         uint32
	MountCount        uint16
	MaxMountCount     uint16
	Magic             uint16
	State             uint16
	Errors            uint16
	MinorRevLevel     uint16
	LastCheck         uint32
	CheckInterval     uint32
	CreatorOS         uint32
	RevLevel          uint32
	DefaultUID        uint16
	DefaultGID        uint16

	// Extended (revision >= 1) fields. Always present in the in-memory
	// struct; only meaningful when RevLevel > 0.
	FirstInode        uint32
	InodeSize         uint16
	BlockGroupNum     uint16
	FeatureCompat     uint32
	FeatureIncompat   uint32
	FeatureROCompat   uint32
	UUID              [16]byte
	VolumeName        [16]byte
	LastMounted       [64]byte
	AlgoBitmap        uint32
	PreallocBlocks    uint8
	PreallocDirBlocks uint8
	Alignment         uint16
	JournalUUID       [16]byte
	JournalInode      uint32
	JournalDev        uint32
	LastOrphan        uint32
}

// RawGroupDescriptor is the 32-byte per-group record living in the
// group descriptor table, per spec.md §3.
type RawGroupDescriptor struct {
	BlockBitmap     uint32
	InodeBitmap     uint32
	InodeTable      uint32
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
	Padding         uint16
	Reserved        [12]byte
}

// RawInode is the byte-exact 128-byte inode record, per spec.md §3.
type RawInode struct {
	Mode        uint16
	UID         uint16
	Size        uint32
	Atime       uint32
	Ctime       uint32
	Mtime       uint32
	Dtime       uint32
	GID         uint16
	LinksCount  uint16
	Sectors     uint32
	Flags       uint32
	OSD1        uint32
	Block       [15]uint32
	Generation  uint32
	FileACL     uint32
	DirACL      uint32
	FragAddr    uint32
	OSD2        [12]byte
}

func decodeInto(dst interface{}, src []byte) error {
	reader := bytes.NewReader(src)
	if err := binary.Read(reader, binary.LittleEndian, dst); err != nil {
		return errors.FSIo.Wrap(err)
	}
	return nil
}

func encodeFrom(src interface{}, size int) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, src); err != nil {
		return nil, errors.FSIo.Wrap(err)
	}
	out := make([]byte, size)
	copy(out, buf.Bytes())
	return out, nil
}

// hasFormat reports whether mode carries the given format bits (one of
// formatRegular, formatDirectory, formatSymlink) in its upper nibble.
func hasFormat(mode uint16, format uint16) bool {
	return mode&formatMask == format
}
