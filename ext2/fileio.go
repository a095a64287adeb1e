package ext2

import (
	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/errors"
)

// FileIO reads, writes, and truncates the byte stream backing a regular
// file (or a symlink target, or a directory's record stream) through
// its inode's block map, per spec.md §4.6 and §4.7.
type FileIO struct {
	dev   blockdev.Device
	sb    *Superblock
	bmap  *BlockMap
	nodes *InodeStore
}

func NewFileIO(dev blockdev.Device, sb *Superblock, bmap *BlockMap, nodes *InodeStore) *FileIO {
	return &FileIO{dev: dev, sb: sb, bmap: bmap, nodes: nodes}
}

// Read copies up to len(buf) bytes starting at offset into buf, never
// reading past in.Size. Holes (logical blocks with no backing physical
// block) read back as zeros.
func (f *FileIO) Read(in *RawInode, buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errors.FSInvalid.WithMessage("negative read offset")
	}
	size := int64(in.Size)
	if offset >= size {
		return 0, nil
	}
	if remaining := size - offset; int64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	blockSize := int64(f.sb.BlockSize())
	total := 0
	for total < len(buf) {
		pos := offset + int64(total)
		logical := uint32(pos / blockSize)
		within := pos % blockSize

		phys, err := f.bmap.Get(in, logical, false)
		if err != nil {
			return total, err
		}

		n := int(blockSize - within)
		if remain := len(buf) - total; n > remain {
			n = remain
		}

		if phys == 0 {
			for i := 0; i < n; i++ {
				buf[total+i] = 0
			}
		} else {
			scratch := make([]byte, blockSize)
			if _, err := f.dev.ReadAt(scratch, int64(phys)*blockSize); err != nil {
				return total, errors.FSIo.Wrap(err)
			}
			copy(buf[total:total+n], scratch[within:within+int64(n)])
		}
		total += n
	}
	return total, nil
}

// Write copies buf into the file starting at offset, allocating blocks
// as needed, and grows in.Size if the write extends past the current
// end of file. The caller is responsible for persisting in afterward.
func (f *FileIO) Write(in *RawInode, buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errors.FSInvalid.WithMessage("negative write offset")
	}

	blockSize := int64(f.sb.BlockSize())
	total := 0
	for total < len(buf) {
		pos := offset + int64(total)
		logical := uint32(pos / blockSize)
		within := pos % blockSize

		phys, err := f.bmap.Get(in, logical, true)
		if err != nil {
			return total, err
		}

		n := int(blockSize - within)
		if remain := len(buf) - total; n > remain {
			n = remain
		}

		scratch := make([]byte, blockSize)
		if within != 0 || n != int(blockSize) {
			if _, err := f.dev.ReadAt(scratch, int64(phys)*blockSize); err != nil {
				return total, errors.FSIo.Wrap(err)
			}
		}
		copy(scratch[within:within+int64(n)], buf[total:total+n])
		if _, err := f.dev.WriteAt(scratch, int64(phys)*blockSize); err != nil {
			return total, errors.FSIo.Wrap(err)
		}

		total += n
	}

	if newSize := uint32(offset) + uint32(total); newSize > in.Size {
		in.Size = newSize
	}
	return total, nil
}

// Truncate resizes in to newSize, freeing every block beyond the new
// size so shrinking a file never leaks blocks. Growing a file by
// truncation only changes in.Size; the newly exposed range reads back
// as a hole until written.
func (f *FileIO) Truncate(in *RawInode, newSize uint32) error {
	if newSize == 0 {
		if err := f.bmap.FreeAll(in); err != nil {
			return err
		}
		in.Size = 0
		return nil
	}

	if newSize >= in.Size {
		in.Size = newSize
		return nil
	}

	blockSize := f.sb.BlockSize()
	firstFreed := (newSize + blockSize - 1) / blockSize
	lastBlock := (in.Size - 1) / blockSize

	for logical := firstFreed; logical <= lastBlock; logical++ {
		if err := f.bmap.Free(in, logical); err != nil {
			return err
		}
	}

	if within := newSize % blockSize; within != 0 {
		phys, err := f.bmap.Get(in, newSize/blockSize, false)
		if err != nil {
			return err
		}
		if phys != 0 {
			// Zero past the new end of file so a later grow reads zeros.
			pos := int64(phys)*int64(blockSize) + int64(within)
			if _, err := f.dev.WriteAt(make([]byte, blockSize-within), pos); err != nil {
				return errors.FSIo.Wrap(err)
			}
		}
	}

	in.Size = newSize
	return nil
}
