package ext2

import (
	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/errors"
)

// GroupTable reads and writes the fixed-size group descriptor records
// that immediately follow the superblock, per spec.md §4.3.
type GroupTable struct {
	dev blockdev.Device
	sb  *Superblock
}

func NewGroupTable(dev blockdev.Device, sb *Superblock) *GroupTable {
	return &GroupTable{dev: dev, sb: sb}
}

func (gt *GroupTable) offset(i uint32) int64 {
	blockSize := int64(gt.sb.BlockSize())
	pos := int64(i) * groupDescriptorSize
	block := int64(gt.sb.GroupTableFirstBlock()) + pos/blockSize
	return block*blockSize + pos%blockSize
}

// Read loads the descriptor for group i.
func (gt *GroupTable) Read(i uint32) (RawGroupDescriptor, error) {
	if i >= gt.sb.NumGroups() {
		return RawGroupDescriptor{}, errors.FSRange.WithMessage("group index out of range")
	}

	buf := make([]byte, groupDescriptorSize)
	if _, err := gt.dev.ReadAt(buf, gt.offset(i)); err != nil {
		return RawGroupDescriptor{}, errors.FSIo.Wrap(err)
	}

	var g RawGroupDescriptor
	if err := decodeInto(&g, buf); err != nil {
		return RawGroupDescriptor{}, err
	}
	return g, nil
}

// Write persists the descriptor for group i.
func (gt *GroupTable) Write(i uint32, g RawGroupDescriptor) error {
	if i >= gt.sb.NumGroups() {
		return errors.FSRange.WithMessage("group index out of range")
	}

	encoded, err := encodeFrom(&g, groupDescriptorSize)
	if err != nil {
		return err
	}
	if _, err := gt.dev.WriteAt(encoded, gt.offset(i)); err != nil {
		return errors.FSIo.Wrap(err)
	}
	return nil
}
