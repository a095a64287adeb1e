package ext2

import (
	"github.com/boljen/go-bitmap"
	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/errors"
)

// Format writes a fresh, minimal ext2 filesystem described by geom onto
// dev: a superblock, a group descriptor table, one block bitmap, inode
// bitmap, and inode table per group, and a populated root directory.
// It does not write backup superblocks or group descriptor copies; the
// sparse_super-style redundancy a production mkfs carries is out of
// scope for a test-fixture formatter.
func Format(dev blockdev.Device, geom Geometry) (*Superblock, error) {
	if geom.BlockSize == 0 || geom.BlocksPerGroup == 0 || geom.InodesPerGroup == 0 {
		return nil, errors.FSInvalid.WithMessage("incomplete geometry")
	}

	numGroups := (geom.TotalBlocks + geom.BlocksPerGroup - 1) / geom.BlocksPerGroup

	sb := &Superblock{
		dev:              dev,
		blockSize:        geom.BlockSize,
		inodeSize:        rev0InodeSize,
		numGroups:        numGroups,
		pointersPerBlock: geom.BlockSize / 4,
	}
	sb.raw = RawSuperblock{
		NumInodes:      numGroups * geom.InodesPerGroup,
		NumBlocks:      geom.TotalBlocks,
		BlockSizeShift:  log2(geom.BlockSize / 1024),
		FragSizeShift:   log2(geom.BlockSize / 1024),
		BlocksPerGroup:  geom.BlocksPerGroup,
		FragsPerGroup:   geom.BlocksPerGroup,
		InodesPerGroup:  geom.InodesPerGroup,
		MaxMountCount:   20,
		Magic:           Magic,
		State:           1,
		Errors:          1,
		RevLevel:        revision0,
	}
	if geom.BlockSize == 1024 {
		sb.raw.FirstDataBlock = 1
	} else {
		sb.raw.FirstDataBlock = 0
	}

	groups := NewGroupTable(dev, sb)
	gdtBlocks := (numGroups*groupDescriptorSize + geom.BlockSize - 1) / geom.BlockSize
	inodeTableBlocks := (geom.InodesPerGroup*rev0InodeSize + geom.BlockSize - 1) / geom.BlockSize

	descriptors := make([]RawGroupDescriptor, numGroups)
	var rootDataBlock uint32

	for i := uint32(0); i < numGroups; i++ {
		rangeStart := sb.raw.FirstDataBlock + i*geom.BlocksPerGroup
		rangeEnd := rangeStart + geom.BlocksPerGroup
		if rangeEnd > geom.TotalBlocks {
			rangeEnd = geom.TotalBlocks
		}

		metaStart := rangeStart
		if i == 0 {
			metaStart = sb.GroupTableFirstBlock() + gdtBlocks
		}

		blockBitmapBlock := metaStart
		inodeBitmapBlock := metaStart + 1
		inodeTableBlock := metaStart + 2
		dataStart := inodeTableBlock + inodeTableBlocks

		// dataStart-rangeStart already folds in the group-descriptor-table
		// overhead for group 0, since metaStart skips past it there.
		usedBlocksInGroup := dataStart - rangeStart
		if i == 0 {
			// The root directory's single data block (dataStart) is handed
			// out directly below rather than through the allocator, so it
			// must be reserved here or AllocBlock would hand it out again.
			usedBlocksInGroup++
		}

		blockBitmapData := make([]byte, geom.BlockSize)
		bm := bitmap.Bitmap(blockBitmapData)
		for b := uint32(0); b < usedBlocksInGroup && b < geom.BlocksPerGroup; b++ {
			bm.Set(int(b), true)
		}
		// Bits past the end of a short final group stand for blocks that
		// don't exist; mark them used so AllocBlock never hands them out.
		for b := rangeEnd - rangeStart; b < geom.BlocksPerGroup; b++ {
			bm.Set(int(b), true)
		}

		inodeBitmapData := make([]byte, geom.BlockSize)
		ibm := bitmap.Bitmap(inodeBitmapData)
		freeInodes := geom.InodesPerGroup
		if i == 0 {
			// Inodes 1..10 are reserved (1 = bad blocks, 2 = root, the
			// rest historically reserved for future use); mark them
			// used so AllocInode never hands them out.
			reserved := uint32(10)
			if reserved > geom.InodesPerGroup {
				reserved = geom.InodesPerGroup
			}
			for idx := uint32(0); idx < reserved; idx++ {
				ibm.Set(int(idx), true)
			}
			freeInodes -= reserved
			rootDataBlock = dataStart
		}

		if _, err := dev.WriteAt(blockBitmapData, int64(blockBitmapBlock)*int64(geom.BlockSize)); err != nil {
			return nil, errors.FSIo.Wrap(err)
		}
		if _, err := dev.WriteAt(inodeBitmapData, int64(inodeBitmapBlock)*int64(geom.BlockSize)); err != nil {
			return nil, errors.FSIo.Wrap(err)
		}

		freeBlocks := (rangeEnd - rangeStart) - usedBlocksInGroup

		descriptors[i] = RawGroupDescriptor{
			BlockBitmap:     blockBitmapBlock,
			InodeBitmap:     inodeBitmapBlock,
			InodeTable:      inodeTableBlock,
			FreeBlocksCount: uint16(freeBlocks),
			FreeInodesCount: uint16(freeInodes),
			UsedDirsCount:   0,
		}
		if i == 0 {
			descriptors[i].UsedDirsCount = 1
		}

		sb.raw.NumFreeBlocks += freeBlocks
		sb.raw.NumFreeInodes += freeInodes
	}

	for i, g := range descriptors {
		if err := groups.Write(uint32(i), g); err != nil {
			return nil, err
		}
	}
	if err := sb.Flush(); err != nil {
		return nil, err
	}

	nodes := NewInodeStore(dev, sb, groups)
	root := RawInode{
		Mode:       formatDirectory | 0755,
		LinksCount: 2,
		Size:       geom.BlockSize,
	}
	root.Block[0] = rootDataBlock
	if err := nodes.Write(rootInum, root); err != nil {
		return nil, err
	}

	bmap := NewBlockMap(dev, sb, NewBitmapAllocator(dev, sb, groups))
	io := NewFileIO(dev, sb, bmap, nodes)
	dirs := NewDirectoryEngine(sb, io)
	if err := dirs.InitDirectory(&root, rootInum, rootInum); err != nil {
		return nil, err
	}

	return sb, nil
}

func log2(n uint32) uint32 {
	var shift uint32
	for n > 1 {
		n >>= 1
		shift++
	}
	return shift
}
