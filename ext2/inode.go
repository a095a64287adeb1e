package ext2

import (
	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/errors"
)

// InodeStore reads and writes fixed-size inode records from the inode
// table blocks each group descriptor points at, per spec.md §4.5.
type InodeStore struct {
	dev    blockdev.Device
	sb     *Superblock
	groups *GroupTable
}

func NewInodeStore(dev blockdev.Device, sb *Superblock, groups *GroupTable) *InodeStore {
	return &InodeStore{dev: dev, sb: sb, groups: groups}
}

// offset locates the byte position of inum's inode record: which group
// it belongs to, its index within that group's inode table, and from
// there which table block and byte offset within that block.
func (s *InodeStore) offset(inum uint32) (int64, error) {
	if inum == 0 || inum > s.sb.NumInodes() {
		return 0, errors.FSRange.WithMessage("inode number out of range")
	}

	gi := (inum - 1) / s.sb.InodesPerGroup()
	local := (inum - 1) % s.sb.InodesPerGroup()

	g, err := s.groups.Read(gi)
	if err != nil {
		return 0, err
	}

	byteIntoTable := int64(local) * int64(s.sb.InodeSize())
	blockSize := int64(s.sb.BlockSize())
	block := int64(g.InodeTable) + byteIntoTable/blockSize
	return block*blockSize + byteIntoTable%blockSize, nil
}

// Read loads the inode record for inum.
func (s *InodeStore) Read(inum uint32) (RawInode, error) {
	pos, err := s.offset(inum)
	if err != nil {
		return RawInode{}, err
	}

	buf := make([]byte, s.sb.InodeSize())
	if _, err := s.dev.ReadAt(buf, pos); err != nil {
		return RawInode{}, errors.FSIo.Wrap(err)
	}

	var in RawInode
	if err := decodeInto(&in, buf[:rev0InodeSize]); err != nil {
		return RawInode{}, err
	}
	return in, nil
}

// Write persists the inode record for inum. Only the revision-0 fields
// are encoded; any trailing bytes the superblock's inode size reserves
// beyond rev0InodeSize are left untouched on disk.
func (s *InodeStore) Write(inum uint32, in RawInode) error {
	pos, err := s.offset(inum)
	if err != nil {
		return err
	}

	encoded, err := encodeFrom(&in, rev0InodeSize)
	if err != nil {
		return err
	}
	if _, err := s.dev.WriteAt(encoded, pos); err != nil {
		return errors.FSIo.Wrap(err)
	}
	return nil
}

// IsDir reports whether in's mode carries the directory format bits.
func IsDir(in RawInode) bool { return hasFormat(in.Mode, formatDirectory) }

// IsRegular reports whether in's mode carries the regular-file format bits.
func IsRegular(in RawInode) bool { return hasFormat(in.Mode, formatRegular) }

// IsSymlink reports whether in's mode carries the symlink format bits.
func IsSymlink(in RawInode) bool { return hasFormat(in.Mode, formatSymlink) }
