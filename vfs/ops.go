package vfs

import (
	"github.com/go-ext2/ext2fs/errors"
)

// Create makes a new regular file at path and returns its node.
func (fs *FS) Create(path string, perm uint16) (Node, error) {
	return fs.createPath(path, false, perm)
}

// Mkdir makes a new directory at path and returns its node.
func (fs *FS) Mkdir(path string, perm uint16) (Node, error) {
	return fs.createPath(path, true, perm)
}

// createPath walks path component by component from the root,
// creating every missing intermediate component as a directory and
// creating the final component as a directory (when isDir) or a
// regular file, per spec.md §4.9: "Intermediate missing components
// are created as directories if isDir is true or if further
// components remain; otherwise the tail component is created as a
// regular file." This mirrors original_source/src/vfs.c's vfscreate,
// which calls prev.create for every component it fails to find along
// the way rather than only the final one.
func (fs *FS) createPath(path string, isDir bool, perm uint16) (Node, error) {
	_, components, err := splitComponents(path)
	if err != nil {
		return Node{}, err
	}
	if len(components) == 0 {
		return Node{}, errors.FSInvalid.WithMessage("path has no final component")
	}

	cursor := fs.root
	for i, name := range components {
		last := i == len(components)-1

		stat, err := cursor.Stat()
		if err != nil {
			return Node{}, err
		}
		if !stat.IsDir {
			return Node{}, errors.FSNotDir.WithMessage("not a directory: " + name)
		}

		child, err := cursor.Find(name)
		if err == nil {
			if last {
				return Node{}, errors.FSExists.WithMessage("already exists: " + name)
			}
			cursor, err = fs.followSymlinks(child, cursor)
			if err != nil {
				return Node{}, err
			}
			continue
		}
		if fsErr, ok := err.(errors.FSError); !ok || fsErr.Code() != errors.FSNotFound {
			return Node{}, err
		}

		if last && !isDir {
			inum, cerr := fs.drv.Create(cursor.Inum, name, perm)
			if cerr != nil {
				return Node{}, cerr
			}
			return newNode(fs.drv, inum), nil
		}

		inum, cerr := fs.drv.Mkdir(cursor.Inum, name, perm)
		if cerr != nil {
			return Node{}, cerr
		}
		cursor = newNode(fs.drv, inum)
		if last {
			return cursor, nil
		}
	}
	return cursor, nil
}

// Symlink creates a symlink at path pointing at target.
func (fs *FS) Symlink(path string, target string) (Node, error) {
	parent, name, err := fs.ResolveParent(path)
	if err != nil {
		return Node{}, err
	}
	inum, err := fs.drv.Symlink(parent.Inum, name, target)
	if err != nil {
		return Node{}, err
	}
	return newNode(fs.drv, inum), nil
}

// Link creates a new name at path pointing at the same inode as
// existingPath.
func (fs *FS) Link(existingPath, path string) error {
	existing, err := fs.Resolve(existingPath)
	if err != nil {
		return err
	}
	parent, name, err := fs.ResolveParent(path)
	if err != nil {
		return err
	}
	return fs.drv.Link(parent.Inum, name, existing.Inum)
}

// Unlink removes the entry at path. If it names a directory, the
// directory must be empty.
func (fs *FS) Unlink(path string) error {
	parent, name, err := fs.ResolveParent(path)
	if err != nil {
		return err
	}
	return fs.drv.Unlink(parent.Inum, name)
}
