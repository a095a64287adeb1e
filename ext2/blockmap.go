package ext2

import (
	"encoding/binary"

	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/errors"
)

// BlockMap translates an inode's logical block numbers into physical
// block numbers by walking the direct and indirect pointer slots in
// Inode.Block, per spec.md §4.6. Logical blocks with no backing
// physical block (a hole) read back as zero; Get only allocates when
// create is true, and then allocates indirect blocks before the final
// data block they point at, so a crash mid-allocation never leaves an
// indirect block pointing at garbage.
type BlockMap struct {
	dev   blockdev.Device
	sb    *Superblock
	alloc *BitmapAllocator
}

func NewBlockMap(dev blockdev.Device, sb *Superblock, alloc *BitmapAllocator) *BlockMap {
	return &BlockMap{dev: dev, sb: sb, alloc: alloc}
}

func (m *BlockMap) readPointers(block uint32) ([]uint32, error) {
	ppb := m.sb.PointersPerBlock()
	buf := make([]byte, m.sb.BlockSize())
	if _, err := m.dev.ReadAt(buf, int64(block)*int64(m.sb.BlockSize())); err != nil {
		return nil, errors.FSIo.Wrap(err)
	}
	ptrs := make([]uint32, ppb)
	for i := range ptrs {
		ptrs[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return ptrs, nil
}

func (m *BlockMap) writePointers(block uint32, ptrs []uint32) error {
	buf := make([]byte, m.sb.BlockSize())
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(buf[i*4:], p)
	}
	if _, err := m.dev.WriteAt(buf, int64(block)*int64(m.sb.BlockSize())); err != nil {
		return errors.FSIo.Wrap(err)
	}
	return nil
}

// zeroBlock allocates a fresh block and ensures its contents start at
// all zeros, since both indirect pointer blocks and sparse data blocks
// must read back as zero until something is written into them.
func (m *BlockMap) zeroBlock() (uint32, error) {
	b, err := m.alloc.AllocBlock()
	if err != nil {
		return 0, err
	}
	buf := make([]byte, m.sb.BlockSize())
	if _, err := m.dev.WriteAt(buf, int64(b)*int64(m.sb.BlockSize())); err != nil {
		return 0, errors.FSIo.Wrap(err)
	}
	return b, nil
}

// walk descends level levels of indirection (1, 2, or 3) below root,
// using idx's base-ppb digits (most significant first) to pick a slot
// at each level, allocating indirect blocks and finally the data block
// as needed when create is true.
func (m *BlockMap) walk(root *uint32, level int, idx uint64, ppb uint64, create bool) (uint32, error) {
	if *root == 0 {
		if !create {
			return 0, nil
		}
		b, err := m.zeroBlock()
		if err != nil {
			return 0, err
		}
		*root = b
	}

	ptrs, err := m.readPointers(*root)
	if err != nil {
		return 0, err
	}

	if level == 1 {
		if ptrs[idx] == 0 && create {
			b, err := m.zeroBlock()
			if err != nil {
				return 0, err
			}
			ptrs[idx] = b
			if err := m.writePointers(*root, ptrs); err != nil {
				return 0, err
			}
		}
		return ptrs[idx], nil
	}

	span := uint64(1)
	for i := 1; i < level; i++ {
		span *= ppb
	}
	slot := idx / span
	rest := idx % span

	child := ptrs[slot]
	phys, err := m.walk(&child, level-1, rest, ppb, create)
	if err != nil {
		return 0, err
	}
	if child != ptrs[slot] {
		ptrs[slot] = child
		if err := m.writePointers(*root, ptrs); err != nil {
			return 0, err
		}
	}
	return phys, nil
}

// Get returns the physical block backing logical block number
// `logical` of in, allocating it (and any indirect blocks above it)
// when create is true. It returns FSTooLarge if logical falls beyond
// what triple indirection can address.
func (m *BlockMap) Get(in *RawInode, logical uint32, create bool) (uint32, error) {
	if logical < directBlockCount {
		if in.Block[logical] == 0 && create {
			b, err := m.zeroBlock()
			if err != nil {
				return 0, err
			}
			in.Block[logical] = b
		}
		return in.Block[logical], nil
	}

	ppb := uint64(m.sb.PointersPerBlock())
	idx := uint64(logical) - directBlockCount

	singly := ppb
	doubly := ppb * ppb
	triply := ppb * ppb * ppb

	switch {
	case idx < singly:
		return m.walk(&in.Block[singlyIndirectSlot], 1, idx, ppb, create)
	case idx < singly+doubly:
		return m.walk(&in.Block[doublyIndirectSlot], 2, idx-singly, ppb, create)
	case idx < singly+doubly+triply:
		return m.walk(&in.Block[triplyIndirectSlot], 3, idx-singly-doubly, ppb, create)
	default:
		return 0, errors.FSTooLarge.WithMessage("logical block beyond triple indirection")
	}
}

// FreeAll releases every block referenced by in, direct and indirect
// alike, including the indirect pointer blocks themselves. It is used
// by Truncate(0) and Unlink's final-link cleanup.
func (m *BlockMap) FreeAll(in *RawInode) error {
	for i := 0; i < directBlockCount; i++ {
		if in.Block[i] != 0 {
			if err := m.alloc.FreeBlock(in.Block[i]); err != nil {
				return err
			}
			in.Block[i] = 0
		}
	}

	ppb := uint64(m.sb.PointersPerBlock())
	if err := m.freeIndirect(&in.Block[singlyIndirectSlot], 1, ppb); err != nil {
		return err
	}
	if err := m.freeIndirect(&in.Block[doublyIndirectSlot], 2, ppb); err != nil {
		return err
	}
	if err := m.freeIndirect(&in.Block[triplyIndirectSlot], 3, ppb); err != nil {
		return err
	}
	return nil
}

// Free releases the physical block backing logical block number
// `logical` of in, if any, and collapses any indirect pointer block
// left entirely empty by the release. It is used by Truncate to shrink
// a file without leaking the blocks beyond the new size.
func (m *BlockMap) Free(in *RawInode, logical uint32) error {
	if logical < directBlockCount {
		if in.Block[logical] != 0 {
			if err := m.alloc.FreeBlock(in.Block[logical]); err != nil {
				return err
			}
			in.Block[logical] = 0
		}
		return nil
	}

	ppb := uint64(m.sb.PointersPerBlock())
	idx := uint64(logical) - directBlockCount

	singly := ppb
	doubly := ppb * ppb
	triply := ppb * ppb * ppb

	switch {
	case idx < singly:
		_, err := m.freeAt(&in.Block[singlyIndirectSlot], 1, idx, ppb)
		return err
	case idx < singly+doubly:
		_, err := m.freeAt(&in.Block[doublyIndirectSlot], 2, idx-singly, ppb)
		return err
	case idx < singly+doubly+triply:
		_, err := m.freeAt(&in.Block[triplyIndirectSlot], 3, idx-singly-doubly, ppb)
		return err
	default:
		return errors.FSTooLarge.WithMessage("logical block beyond triple indirection")
	}
}

// freeAt frees the leaf block addressed by idx below root and reports
// whether root still has any live pointer left; when it doesn't, the
// caller frees root itself instead of leaving a dangling empty block.
func (m *BlockMap) freeAt(root *uint32, level int, idx uint64, ppb uint64) (bool, error) {
	if *root == 0 {
		return false, nil
	}
	ptrs, err := m.readPointers(*root)
	if err != nil {
		return false, err
	}

	if level == 1 {
		if ptrs[idx] != 0 {
			if err := m.alloc.FreeBlock(ptrs[idx]); err != nil {
				return false, err
			}
			ptrs[idx] = 0
			if err := m.writePointers(*root, ptrs); err != nil {
				return false, err
			}
		}
	} else {
		span := uint64(1)
		for i := 1; i < level; i++ {
			span *= ppb
		}
		slot := idx / span
		rest := idx % span

		child := ptrs[slot]
		used, err := m.freeAt(&child, level-1, rest, ppb)
		if err != nil {
			return false, err
		}
		if !used {
			child = 0
		}
		if child != ptrs[slot] {
			ptrs[slot] = child
			if err := m.writePointers(*root, ptrs); err != nil {
				return false, err
			}
		}
	}

	for _, p := range ptrs {
		if p != 0 {
			return true, nil
		}
	}
	if err := m.alloc.FreeBlock(*root); err != nil {
		return false, err
	}
	*root = 0
	return false, nil
}

func (m *BlockMap) freeIndirect(root *uint32, level int, ppb uint64) error {
	if *root == 0 {
		return nil
	}
	ptrs, err := m.readPointers(*root)
	if err != nil {
		return err
	}
	for i := range ptrs {
		if ptrs[i] == 0 {
			continue
		}
		if level == 1 {
			if err := m.alloc.FreeBlock(ptrs[i]); err != nil {
				return err
			}
		} else {
			child := ptrs[i]
			if err := m.freeIndirect(&child, level-1, ppb); err != nil {
				return err
			}
		}
	}
	if err := m.alloc.FreeBlock(*root); err != nil {
		return err
	}
	*root = 0
	return nil
}
