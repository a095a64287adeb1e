package vfs_test

import (
	"testing"

	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/ext2"
	"github.com/go-ext2/ext2fs/vfs"
	"github.com/stretchr/testify/require"
)

func mustMount(t *testing.T) *vfs.FS {
	t.Helper()
	geom, err := ext2.GetGeometry("small")
	require.NoError(t, err)

	dev := blockdev.NewMemDevice(geom.TotalSizeBytes())
	_, err = ext2.Format(dev, geom)
	require.NoError(t, err)

	drv, err := ext2.Mount(dev)
	require.NoError(t, err)
	return vfs.Mount(drv)
}

func TestResolveRoot(t *testing.T) {
	fs := mustMount(t)
	node, err := fs.Resolve("/")
	require.NoError(t, err)

	stat, err := node.Stat()
	require.NoError(t, err)
	require.True(t, stat.IsDir)
}

func TestCreateAndResolveNestedPath(t *testing.T) {
	fs := mustMount(t)

	_, err := fs.Mkdir("/a", 0755)
	require.NoError(t, err)
	_, err = fs.Mkdir("/a/b", 0755)
	require.NoError(t, err)
	_, err = fs.Create("/a/b/c.txt", 0644)
	require.NoError(t, err)

	node, err := fs.Resolve("/a/b/c.txt")
	require.NoError(t, err)

	stat, err := node.Stat()
	require.NoError(t, err)
	require.True(t, stat.IsRegular)
}

func TestResolveThroughSymlink(t *testing.T) {
	fs := mustMount(t)
	_, err := fs.Mkdir("/real", 0755)
	require.NoError(t, err)
	_, err = fs.Create("/real/file.txt", 0644)
	require.NoError(t, err)
	_, err = fs.Symlink("/link", "/real")
	require.NoError(t, err)

	node, err := fs.Resolve("/link/file.txt")
	require.NoError(t, err)
	stat, err := node.Stat()
	require.NoError(t, err)
	require.True(t, stat.IsRegular)
}

func TestResolveDetectsSymlinkLoop(t *testing.T) {
	fs := mustMount(t)
	_, err := fs.Symlink("/a", "/b")
	require.NoError(t, err)
	_, err = fs.Symlink("/b", "/a")
	require.NoError(t, err)

	_, err = fs.Resolve("/a")
	require.Error(t, err)
}

func TestUnlinkRemovesEntry(t *testing.T) {
	fs := mustMount(t)
	_, err := fs.Create("/file.txt", 0644)
	require.NoError(t, err)

	require.NoError(t, fs.Unlink("/file.txt"))
	_, err = fs.Resolve("/file.txt")
	require.Error(t, err)
}

func TestHardLinkThroughPaths(t *testing.T) {
	fs := mustMount(t)
	_, err := fs.Create("/original.txt", 0644)
	require.NoError(t, err)
	require.NoError(t, fs.Link("/original.txt", "/alias.txt"))

	original, err := fs.Resolve("/original.txt")
	require.NoError(t, err)
	alias, err := fs.Resolve("/alias.txt")
	require.NoError(t, err)
	require.Equal(t, original.Inum, alias.Inum)
}
