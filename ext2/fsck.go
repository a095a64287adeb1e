package ext2

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"
)

// CheckConsistency walks the mounted filesystem's metadata and reports
// every invariant violation it finds from spec.md §8, rather than
// stopping at the first one. It never modifies the filesystem; repair
// is left to the caller.
func CheckConsistency(d *Driver) error {
	var result *multierror.Error

	var totalFreeBlocks, totalFreeInodes uint32
	for gi := uint32(0); gi < d.SB.NumGroups(); gi++ {
		g, err := d.Groups.Read(gi)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("group %d: %w", gi, err))
			continue
		}

		blockFree, err := d.countFree(g.BlockBitmap, d.SB.BlocksPerGroup())
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("group %d: reading block bitmap: %w", gi, err))
		} else if blockFree != uint32(g.FreeBlocksCount) {
			result = multierror.Append(result, fmt.Errorf(
				"group %d: block bitmap has %d free bits but descriptor claims %d", gi, blockFree, g.FreeBlocksCount))
		}

		inodeFree, err := d.countFree(g.InodeBitmap, d.SB.InodesPerGroup())
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("group %d: reading inode bitmap: %w", gi, err))
		} else if inodeFree != uint32(g.FreeInodesCount) {
			result = multierror.Append(result, fmt.Errorf(
				"group %d: inode bitmap has %d free bits but descriptor claims %d", gi, inodeFree, g.FreeInodesCount))
		}

		totalFreeBlocks += uint32(g.FreeBlocksCount)
		totalFreeInodes += uint32(g.FreeInodesCount)
	}

	if totalFreeBlocks != d.SB.NumFreeBlocks() {
		result = multierror.Append(result, fmt.Errorf(
			"superblock free block count %d disagrees with sum over groups %d", d.SB.NumFreeBlocks(), totalFreeBlocks))
	}
	if totalFreeInodes != d.SB.NumFreeInodes() {
		result = multierror.Append(result, fmt.Errorf(
			"superblock free inode count %d disagrees with sum over groups %d", d.SB.NumFreeInodes(), totalFreeInodes))
	}

	if err := checkDirectory(d, RootInodeNum, RootInodeNum); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func (d *Driver) countFree(block uint32, count uint32) (uint32, error) {
	buf := make([]byte, d.SB.BlockSize())
	if _, err := d.Dev.ReadAt(buf, int64(block)*int64(d.SB.BlockSize())); err != nil {
		return 0, err
	}
	bm := bitmap.Bitmap(buf)
	var free uint32
	for i := uint32(0); i < count; i++ {
		if !bm.Get(int(i)) {
			free++
		}
	}
	return free, nil
}

// checkDirectory recursively verifies that "." and ".." resolve to the
// expected inodes and that every entry's target inode record can be
// read. It does not check the target's inode-bitmap bit or link count.
func checkDirectory(d *Driver, inum, parentInum uint32) error {
	var result *multierror.Error

	in, err := d.Nodes.Read(inum)
	if err != nil {
		return fmt.Errorf("inode %d: %w", inum, err)
	}
	if !IsDir(in) {
		return fmt.Errorf("inode %d: expected directory", inum)
	}

	entries, err := d.Dirs.ReadDir(&in)
	if err != nil {
		return fmt.Errorf("inode %d: reading directory: %w", inum, err)
	}

	sawDot, sawDotDot := false, false
	for _, e := range entries {
		switch e.Name {
		case ".":
			sawDot = true
			if e.Inode != inum {
				result = multierror.Append(result, fmt.Errorf("inode %d: \".\" points to %d, not itself", inum, e.Inode))
			}
		case "..":
			sawDotDot = true
			if e.Inode != parentInum {
				result = multierror.Append(result, fmt.Errorf("inode %d: \"..\" points to %d, expected %d", inum, e.Inode, parentInum))
			}
		default:
			child, err := d.Nodes.Read(e.Inode)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("inode %d: entry %q: %w", inum, e.Name, err))
				continue
			}
			if IsDir(child) {
				if err := checkDirectory(d, e.Inode, inum); err != nil {
					result = multierror.Append(result, err)
				}
			}
		}
	}
	if !sawDot {
		result = multierror.Append(result, fmt.Errorf("inode %d: missing \".\" entry", inum))
	}
	if !sawDotDot {
		result = multierror.Append(result, fmt.Errorf("inode %d: missing \"..\" entry", inum))
	}

	return result.ErrorOrNil()
}
