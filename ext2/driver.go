package ext2

import (
	"time"

	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/errors"
)

// RootInodeNum is the well-known inode number of the filesystem root.
const RootInodeNum uint32 = rootInum

// Driver composes the on-disk layout engine into the operations a
// mounted filesystem needs: inode lookup, directory traversal,
// file/symlink read and write, and the create/unlink/link family. It
// is the bottom half of the driver described by spec.md §5; package
// vfs's Node implementation is a thin adapter from this onto the
// generic path-resolution surface.
type Driver struct {
	Dev    blockdev.Device
	SB     *Superblock
	Groups *GroupTable
	Alloc  *BitmapAllocator
	Nodes  *InodeStore
	Blocks *BlockMap
	IO     *FileIO
	Dirs   *DirectoryEngine
}

// Mount loads the superblock from dev and wires up the rest of the
// layout engine against it.
func Mount(dev blockdev.Device) (*Driver, error) {
	sb, err := LoadSuperblock(dev)
	if err != nil {
		return nil, err
	}
	groups := NewGroupTable(dev, sb)
	alloc := NewBitmapAllocator(dev, sb, groups)
	nodes := NewInodeStore(dev, sb, groups)
	blocks := NewBlockMap(dev, sb, alloc)
	io := NewFileIO(dev, sb, blocks, nodes)
	dirs := NewDirectoryEngine(sb, io)

	return &Driver{
		Dev: dev, SB: sb, Groups: groups, Alloc: alloc,
		Nodes: nodes, Blocks: blocks, IO: io, Dirs: dirs,
	}, nil
}

func (d *Driver) requireDir(in RawInode) error {
	if !IsDir(in) {
		return errors.FSNotDir.WithMessage("not a directory")
	}
	return nil
}

// Lookup resolves name within the directory inode dirInum.
func (d *Driver) Lookup(dirInum uint32, name string) (uint32, error) {
	dir, err := d.Nodes.Read(dirInum)
	if err != nil {
		return 0, err
	}
	if err := d.requireDir(dir); err != nil {
		return 0, err
	}
	e, err := d.Dirs.Find(&dir, name)
	if err != nil {
		return 0, err
	}
	return e.Inode, nil
}

// ReadDir lists the entries of the directory inode dirInum.
func (d *Driver) ReadDir(dirInum uint32) ([]DirEntry, error) {
	dir, err := d.Nodes.Read(dirInum)
	if err != nil {
		return nil, err
	}
	if err := d.requireDir(dir); err != nil {
		return nil, err
	}
	return d.Dirs.ReadDir(&dir)
}

// ReadFile reads up to len(buf) bytes at offset from inode inum's data.
func (d *Driver) ReadFile(inum uint32, buf []byte, offset int64) (int, error) {
	in, err := d.Nodes.Read(inum)
	if err != nil {
		return 0, err
	}
	return d.IO.Read(&in, buf, offset)
}

// WriteFile writes buf at offset into inode inum's data, persisting the
// updated inode afterward.
func (d *Driver) WriteFile(inum uint32, buf []byte, offset int64) (int, error) {
	in, err := d.Nodes.Read(inum)
	if err != nil {
		return 0, err
	}
	n, err := d.IO.Write(&in, buf, offset)
	if err != nil {
		return n, err
	}
	return n, d.Nodes.Write(inum, in)
}

// Truncate resizes inode inum's data to newSize.
func (d *Driver) Truncate(inum uint32, newSize uint32) error {
	in, err := d.Nodes.Read(inum)
	if err != nil {
		return err
	}
	if err := d.IO.Truncate(&in, newSize); err != nil {
		return err
	}
	return d.Nodes.Write(inum, in)
}

// Stat returns the raw inode record for inum.
func (d *Driver) Stat(inum uint32) (RawInode, error) {
	return d.Nodes.Read(inum)
}

func (d *Driver) createInode(mode uint16) (uint32, RawInode, error) {
	inum, err := d.Alloc.AllocInode()
	if err != nil {
		return 0, RawInode{}, err
	}
	in := RawInode{Mode: mode, LinksCount: 1}
	if err := d.Nodes.Write(inum, in); err != nil {
		return 0, RawInode{}, err
	}
	return inum, in, nil
}

// Create makes a new regular file named name in directory dirInum and
// returns its inode number.
func (d *Driver) Create(dirInum uint32, name string, perm uint16) (uint32, error) {
	dir, err := d.Nodes.Read(dirInum)
	if err != nil {
		return 0, err
	}
	if err := d.requireDir(dir); err != nil {
		return 0, err
	}
	if _, err := d.Dirs.Find(&dir, name); err == nil {
		return 0, errors.FSExists.WithMessage("file already exists: " + name)
	}

	inum, _, err := d.createInode(formatRegular | (perm & 0xFFF))
	if err != nil {
		return 0, err
	}
	if err := d.Dirs.Insert(&dir, name, inum, FileTypeRegular); err != nil {
		return 0, err
	}
	return inum, d.Nodes.Write(dirInum, dir)
}

// Mkdir makes a new directory named name in directory dirInum and
// returns its inode number.
func (d *Driver) Mkdir(dirInum uint32, name string, perm uint16) (uint32, error) {
	dir, err := d.Nodes.Read(dirInum)
	if err != nil {
		return 0, err
	}
	if err := d.requireDir(dir); err != nil {
		return 0, err
	}
	if _, err := d.Dirs.Find(&dir, name); err == nil {
		return 0, errors.FSExists.WithMessage("directory already exists: " + name)
	}

	inum, newDir, err := d.createInode(formatDirectory | (perm & 0xFFF))
	if err != nil {
		return 0, err
	}
	newDir.LinksCount = 2
	newDir.Size = d.SB.BlockSize()
	if err := d.Dirs.InitDirectory(&newDir, inum, dirInum); err != nil {
		return 0, err
	}
	if err := d.Nodes.Write(inum, newDir); err != nil {
		return 0, err
	}

	if err := d.Dirs.Insert(&dir, name, inum, FileTypeDirectory); err != nil {
		return 0, err
	}
	dir.LinksCount++
	if err := d.Nodes.Write(dirInum, dir); err != nil {
		return 0, err
	}
	return inum, d.bumpUsedDirs(inum, 1)
}

// Symlink creates a symlink named name in directory dirInum whose
// target is the literal string target.
func (d *Driver) Symlink(dirInum uint32, name string, target string) (uint32, error) {
	dir, err := d.Nodes.Read(dirInum)
	if err != nil {
		return 0, err
	}
	if err := d.requireDir(dir); err != nil {
		return 0, err
	}
	if _, err := d.Dirs.Find(&dir, name); err == nil {
		return 0, errors.FSExists.WithMessage("entry already exists: " + name)
	}

	inum, in, err := d.createInode(formatSymlink | 0777)
	if err != nil {
		return 0, err
	}
	if _, err := d.IO.Write(&in, []byte(target), 0); err != nil {
		return 0, err
	}
	if err := d.Nodes.Write(inum, in); err != nil {
		return 0, err
	}
	if err := d.Dirs.Insert(&dir, name, inum, FileTypeSymlink); err != nil {
		return 0, err
	}
	return inum, d.Nodes.Write(dirInum, dir)
}

// ReadLink returns a symlink inode's stored target.
func (d *Driver) ReadLink(inum uint32) (string, error) {
	in, err := d.Nodes.Read(inum)
	if err != nil {
		return "", err
	}
	if !IsSymlink(in) {
		return "", errors.FSInvalid.WithMessage("not a symlink")
	}
	buf := make([]byte, in.Size)
	if _, err := d.IO.Read(&in, buf, 0); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Link adds a new name for the existing inode targetInum inside
// directory dirInum and bumps its link count.
func (d *Driver) Link(dirInum uint32, name string, targetInum uint32) error {
	dir, err := d.Nodes.Read(dirInum)
	if err != nil {
		return err
	}
	if err := d.requireDir(dir); err != nil {
		return err
	}
	target, err := d.Nodes.Read(targetInum)
	if err != nil {
		return err
	}
	if IsDir(target) {
		return errors.FSInvalid.WithMessage("cannot hard-link a directory")
	}
	if _, err := d.Dirs.Find(&dir, name); err == nil {
		return errors.FSExists.WithMessage("entry already exists: " + name)
	}

	fileType := uint8(FileTypeRegular)
	if IsSymlink(target) {
		fileType = FileTypeSymlink
	}
	if err := d.Dirs.Insert(&dir, name, targetInum, fileType); err != nil {
		return err
	}
	if err := d.Nodes.Write(dirInum, dir); err != nil {
		return err
	}
	target.LinksCount++
	return d.Nodes.Write(targetInum, target)
}

// Unlink removes name from directory dirInum. When the removed entry's
// link count reaches zero, the inode and every block it references are
// freed; directories additionally decrement the parent's link count and
// the owning group's used-directory count.
func (d *Driver) Unlink(dirInum uint32, name string) error {
	dir, err := d.Nodes.Read(dirInum)
	if err != nil {
		return err
	}
	if err := d.requireDir(dir); err != nil {
		return err
	}

	e, err := d.Dirs.Find(&dir, name)
	if err != nil {
		return err
	}

	target, err := d.Nodes.Read(e.Inode)
	if err != nil {
		return err
	}
	if IsDir(target) {
		empty, err := d.Dirs.IsEmpty(&target)
		if err != nil {
			return err
		}
		if !empty {
			return errors.FSInvalid.WithMessage("directory not empty")
		}
	}

	if err := d.Dirs.Remove(&dir, name); err != nil {
		return err
	}

	wasDir := IsDir(target)
	if wasDir {
		dir.LinksCount--
	}
	if err := d.Nodes.Write(dirInum, dir); err != nil {
		return err
	}

	if target.LinksCount > 0 {
		target.LinksCount--
	}
	if wasDir && target.LinksCount > 0 {
		// An empty directory's remaining link is its own "." entry.
		target.LinksCount--
	}
	if target.LinksCount == 0 {
		if err := d.Blocks.FreeAll(&target); err != nil {
			return err
		}
		target.Dtime = uint32(time.Now().Unix())
		if err := d.Nodes.Write(e.Inode, target); err != nil {
			return err
		}
		if err := d.Alloc.FreeInode(e.Inode); err != nil {
			return err
		}
		if wasDir {
			return d.bumpUsedDirs(e.Inode, -1)
		}
		return nil
	}
	return d.Nodes.Write(e.Inode, target)
}

func (d *Driver) bumpUsedDirs(inum uint32, delta int16) error {
	gi := (inum - 1) / d.SB.InodesPerGroup()
	g, err := d.Groups.Read(gi)
	if err != nil {
		return err
	}
	if delta > 0 {
		g.UsedDirsCount += uint16(delta)
	} else {
		dec := uint16(-delta)
		if g.UsedDirsCount >= dec {
			g.UsedDirsCount -= dec
		}
	}
	return d.Groups.Write(gi, g)
}
