package vfs

import (
	"github.com/go-ext2/ext2fs/errors"
	"github.com/go-ext2/ext2fs/ext2"
)

// maxSymlinkFollows bounds how many symlink hops Resolve will chase
// before giving up with FSLoop. The original driver this package is
// modeled on tracked every path visited in a map and detected cycles
// exactly; a bounded counter is simpler, catches the same runaway
// cases, and also catches symlink chains that grow without truly
// cycling (a/ -> b -> c -> ... -> z), which an exact cycle detector
// would let run unbounded.
const maxSymlinkFollows = 8

// FS is a mounted filesystem, ready to resolve paths against its root.
type FS struct {
	drv  *ext2.Driver
	root Node
}

// Mount wraps a loaded ext2 driver with path resolution.
func Mount(drv *ext2.Driver) *FS {
	return &FS{drv: drv, root: newNode(drv, ext2.RootInodeNum)}
}

// Root returns the filesystem's root node.
func (fs *FS) Root() Node { return fs.root }

// BlockSize returns the mounted filesystem's block size.
func (fs *FS) BlockSize() uint32 { return fs.drv.SB.BlockSize() }

// resolveFromNoFollow walks path component by component starting from
// start (or the root, if path is absolute), following symlinks for
// every intermediate directory but not for the final component,
// mirroring getObjectAtPathNoFollow's contract. It returns the
// unresolved final node together with the directory node that
// contained it, since that directory is the cursor a relative symlink
// target found at the final component must itself resolve against.
func (fs *FS) resolveFromNoFollow(start Node, path string) (node Node, containingDir Node, err error) {
	abs, components, err := splitComponents(path)
	if err != nil {
		return Node{}, Node{}, err
	}

	cursor := start
	if abs {
		cursor = fs.root
	}
	if len(components) == 0 {
		return cursor, cursor, nil
	}

	for i, name := range components {
		stat, err := cursor.Stat()
		if err != nil {
			return Node{}, Node{}, err
		}
		if !stat.IsDir {
			return Node{}, Node{}, errors.FSNotDir.WithMessage("not a directory: " + name)
		}

		child, err := cursor.Find(name)
		if err != nil {
			return Node{}, Node{}, err
		}

		if i == len(components)-1 {
			return child, cursor, nil
		}

		child, err = fs.followSymlinks(child, cursor)
		if err != nil {
			return Node{}, Node{}, err
		}
		cursor = child
	}
	return cursor, cursor, nil
}

// followSymlinks dereferences node if it's a symlink, chasing the
// resulting chain up to maxSymlinkFollows hops. Per spec.md §4.9, each
// hop resolves the link's target "from the current directory as the
// new cursor" — containingDir, the directory the symlink itself lives
// in, not the filesystem root — mirroring vfsresolve's recursive call
// with tmp (the directory just walked through) rather than root.
func (fs *FS) followSymlinks(node Node, containingDir Node) (Node, error) {
	dir := containingDir
	for i := 0; ; i++ {
		stat, err := node.Stat()
		if err != nil {
			return Node{}, err
		}
		if !stat.IsSymlink {
			return node, nil
		}
		if i >= maxSymlinkFollows {
			return Node{}, errors.FSLoop.WithMessage("too many levels of symbolic links")
		}

		target, err := node.ReadLink()
		if err != nil {
			return Node{}, err
		}
		node, dir, err = fs.resolveFromNoFollow(dir, target)
		if err != nil {
			return Node{}, err
		}
	}
}

// Resolve resolves path to a node, following a symlink in the final
// component too.
func (fs *FS) Resolve(path string) (Node, error) {
	node, dir, err := fs.resolveFromNoFollow(fs.root, path)
	if err != nil {
		return Node{}, err
	}
	return fs.followSymlinks(node, dir)
}

// ResolveParent resolves every component of path except the last,
// following symlinks along the way, and returns the parent directory
// node plus the unresolved final component name.
func (fs *FS) ResolveParent(path string) (Node, string, error) {
	_, components, err := splitComponents(path)
	if err != nil {
		return Node{}, "", err
	}
	if len(components) == 0 {
		return Node{}, "", errors.FSInvalid.WithMessage("path has no final component")
	}

	parentPath := "/"
	if len(components) > 1 {
		parentPath = "/" + joinComponents(components[:len(components)-1])
	}

	parent, err := fs.Resolve(parentPath)
	if err != nil {
		return Node{}, "", err
	}
	stat, err := parent.Stat()
	if err != nil {
		return Node{}, "", err
	}
	if !stat.IsDir {
		return Node{}, "", errors.FSNotDir.WithMessage("parent is not a directory")
	}

	return parent, components[len(components)-1], nil
}

func joinComponents(components []string) string {
	out := ""
	for i, c := range components {
		if i > 0 {
			out += "/"
		}
		out += c
	}
	return out
}
