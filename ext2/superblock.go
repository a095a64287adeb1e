package ext2

import (
	"encoding/binary"

	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/errors"
)

// Superblock holds the in-memory superblock plus the geometry derived
// from it. A mount owns exactly one Superblock for its lifetime, per
// spec.md §5's "single process-wide structure" requirement.
type Superblock struct {
	raw RawSuperblock
	dev blockdev.Device

	blockSize        uint32
	inodeSize        uint32
	numGroups        uint32
	pointersPerBlock uint32
}

// LoadSuperblock reads and validates the superblock at SuperblockOffset,
// then derives the geometry spec.md §4.2 describes: block size, inode
// size, group count, and pointers-per-block.
func LoadSuperblock(dev blockdev.Device) (*Superblock, error) {
	buf := make([]byte, SuperblockRegionSize)
	if _, err := dev.ReadAt(buf, SuperblockOffset); err != nil {
		return nil, errors.FSIo.Wrap(err)
	}

	sb := &Superblock{dev: dev}
	if err := decodeInto(&sb.raw, buf); err != nil {
		return nil, err
	}
	if sb.raw.Magic != Magic {
		return nil, errors.FSCorrupt.WithMessage("bad superblock magic")
	}
	if sb.raw.BlocksPerGroup == 0 || sb.raw.InodesPerGroup == 0 {
		return nil, errors.FSCorrupt.WithMessage("zero blocks/inodes per group")
	}

	sb.blockSize = 1024 << sb.raw.BlockSizeShift
	if sb.raw.RevLevel > revision0 {
		sb.inodeSize = uint32(sb.raw.InodeSize)
	} else {
		sb.inodeSize = rev0InodeSize
	}
	if sb.inodeSize == 0 {
		return nil, errors.FSCorrupt.WithMessage("zero inode size")
	}
	sb.numGroups = (sb.raw.NumBlocks + sb.raw.BlocksPerGroup - 1) / sb.raw.BlocksPerGroup
	sb.pointersPerBlock = sb.blockSize / 4
	return sb, nil
}

// Flush writes the in-memory superblock back to SuperblockOffset. Only
// the first binary.Size(raw) bytes of the 1024-byte region are
// overwritten; the remainder of the region is left untouched on disk.
func (sb *Superblock) Flush() error {
	encoded, err := encodeFrom(&sb.raw, binary.Size(sb.raw))
	if err != nil {
		return err
	}
	if _, err := sb.dev.WriteAt(encoded, SuperblockOffset); err != nil {
		return errors.FSIo.Wrap(err)
	}
	return nil
}

func (sb *Superblock) BlockSize() uint32        { return sb.blockSize }
func (sb *Superblock) InodeSize() uint32        { return sb.inodeSize }
func (sb *Superblock) NumGroups() uint32        { return sb.numGroups }
func (sb *Superblock) PointersPerBlock() uint32 { return sb.pointersPerBlock }
func (sb *Superblock) BlocksPerGroup() uint32   { return sb.raw.BlocksPerGroup }
func (sb *Superblock) InodesPerGroup() uint32   { return sb.raw.InodesPerGroup }
func (sb *Superblock) FirstDataBlock() uint32   { return sb.raw.FirstDataBlock }
func (sb *Superblock) NumBlocks() uint32        { return sb.raw.NumBlocks }
func (sb *Superblock) NumInodes() uint32        { return sb.raw.NumInodes }
func (sb *Superblock) NumFreeBlocks() uint32    { return sb.raw.NumFreeBlocks }
func (sb *Superblock) NumFreeInodes() uint32    { return sb.raw.NumFreeInodes }

// DevID returns a stable identifier for the mounted filesystem, derived
// from the volume's on-disk UUID. It fills the role spec.md §6's stat
// record's "dev" field plays in POSIX's struct stat: an opaque value
// stable for the life of the mount that distinguishes this filesystem
// from any other one a caller might have open at the same time.
func (sb *Superblock) DevID() uint64 {
	return binary.LittleEndian.Uint64(sb.raw.UUID[:8])
}

// GroupTableFirstBlock is the block holding the start of the group
// descriptor table: block 2 when the block size is 1024 (so it doesn't
// collide with the boot block at block 0 or the superblock spanning
// part of block 1), block 1 otherwise.
func (sb *Superblock) GroupTableFirstBlock() uint32 {
	if sb.blockSize == 1024 {
		return 2
	}
	return 1
}

func (sb *Superblock) decrementFreeBlocks() { sb.raw.NumFreeBlocks-- }
func (sb *Superblock) incrementFreeBlocks() { sb.raw.NumFreeBlocks++ }
func (sb *Superblock) decrementFreeInodes() { sb.raw.NumFreeInodes-- }
func (sb *Superblock) incrementFreeInodes() { sb.raw.NumFreeInodes++ }
