// Package vfs layers path resolution and a generic filesystem-node
// interface on top of package ext2's on-disk layout engine: the part of
// the driver concerned with "/a/b/c", symlink chasing, and dispatching
// create/unlink/mkdir/link by path rather than by inode number.
package vfs

import (
	"github.com/go-ext2/ext2fs/ext2"
)

// Stat is the record spec.md §6 defines: {dev, inum, mode, linkCount,
// uid, gid, rdev, size, blockSize, blocks, atime, mtime, ctime}. Rdev
// is always zero: device special files are a Non-goal, so no inode
// this driver produces ever carries a device number. Blocks reports
// the inode's stored sector count (RawInode.Sectors) as read from disk,
// not a value recomputed from Size. The driver does not update that
// field when it allocates or frees blocks, so it stays zero for every
// inode this driver creates.
type Stat struct {
	Dev        uint64
	Inode      uint32
	Mode       uint16
	LinksCount uint16
	UID        uint16
	GID        uint16
	Rdev       uint32
	Size       uint32
	BlockSize  uint32
	Blocks     uint32
	Atime      uint32
	Mtime      uint32
	Ctime      uint32
	IsDir      bool
	IsSymlink  bool
	IsRegular  bool
}

// DirEntry is one entry of a directory listing, as seen from outside
// the ext2 package (no RecLen/Offset bookkeeping).
type DirEntry struct {
	Name  string
	Inode uint32
	IsDir bool
}

// Node is a handle onto one inode, reachable through the mounted
// driver. It carries no cached state beyond its inode number: every
// operation re-reads the inode record it needs, so a Node stays valid
// across concurrent mutations elsewhere in the tree (aside from the
// entry it names being removed out from under it).
type Node struct {
	drv  *ext2.Driver
	Inum uint32
}

func newNode(drv *ext2.Driver, inum uint32) Node {
	return Node{drv: drv, Inum: inum}
}

// Stat reads the node's current inode record.
func (n Node) Stat() (Stat, error) {
	in, err := n.drv.Stat(n.Inum)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		Dev:        n.drv.SB.DevID(),
		Inode:      n.Inum,
		Mode:       in.Mode,
		LinksCount: in.LinksCount,
		UID:        in.UID,
		GID:        in.GID,
		Size:       in.Size,
		BlockSize:  n.drv.SB.BlockSize(),
		Blocks:     in.Sectors,
		Atime:      in.Atime,
		Mtime:      in.Mtime,
		Ctime:      in.Ctime,
		IsDir:      ext2.IsDir(in),
		IsSymlink:  ext2.IsSymlink(in),
		IsRegular:  ext2.IsRegular(in),
	}, nil
}

// Read reads from the node's file content at offset.
func (n Node) Read(buf []byte, offset int64) (int, error) {
	return n.drv.ReadFile(n.Inum, buf, offset)
}

// Write writes to the node's file content at offset.
func (n Node) Write(buf []byte, offset int64) (int, error) {
	return n.drv.WriteFile(n.Inum, buf, offset)
}

// Truncate resizes the node's file content.
func (n Node) Truncate(size uint32) error {
	return n.drv.Truncate(n.Inum, size)
}

// Readdir lists a directory node's entries, excluding "." and "..".
func (n Node) Readdir() ([]DirEntry, error) {
	entries, err := n.drv.ReadDir(n.Inum)
	if err != nil {
		return nil, err
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, DirEntry{
			Name:  e.Name,
			Inode: e.Inode,
			IsDir: e.FileType == ext2.FileTypeDirectory,
		})
	}
	return out, nil
}

// Find looks up name directly inside this directory node, without
// following a symlink result.
func (n Node) Find(name string) (Node, error) {
	inum, err := n.drv.Lookup(n.Inum, name)
	if err != nil {
		return Node{}, err
	}
	return newNode(n.drv, inum), nil
}

// ReadLink returns a symlink node's stored target text.
func (n Node) ReadLink() (string, error) {
	return n.drv.ReadLink(n.Inum)
}
