package vfs

import (
	"path/filepath"
	"strings"

	"github.com/go-ext2/ext2fs/errors"
)

const maxNameLength = 255

// splitComponents breaks path into its '/'-delimited components,
// skipping empty ones ("//"), per spec.md §4.9. Unlike a lexical
// cleaner such as path.Clean, this never collapses "." or ".."
// itself: those are passed through as ordinary component names so the
// driver resolves them through the directory's own "."/".." entries,
// exactly as original_source/src/vfs.c's vfsresolve does by walking
// one path component at a time instead of normalizing the string
// first. abs reports whether path began with '/'; a caller resolving a
// relative path (a relative symlink target, typically) starts from its
// own current directory rather than the filesystem root.
func splitComponents(path string) (abs bool, components []string, err error) {
	path = filepath.ToSlash(path)
	abs = strings.HasPrefix(path, "/")

	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		if len(p) > maxNameLength {
			return false, nil, errors.FSNameTooLong.WithMessage("path component too long: " + p)
		}
		components = append(components, p)
	}
	return abs, components, nil
}
