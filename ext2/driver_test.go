package ext2_test

import (
	"testing"

	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/ext2"
	"github.com/stretchr/testify/require"
)

func mustMount(t *testing.T, slug string) *ext2.Driver {
	t.Helper()
	geom, err := ext2.GetGeometry(slug)
	require.NoError(t, err)

	dev := blockdev.NewMemDevice(geom.TotalSizeBytes())
	_, err = ext2.Format(dev, geom)
	require.NoError(t, err)

	drv, err := ext2.Mount(dev)
	require.NoError(t, err)
	return drv
}

func TestFormatProducesConsistentImage(t *testing.T) {
	drv := mustMount(t, "small")
	require.NoError(t, ext2.CheckConsistency(drv))
}

func TestRootDirectoryHasDotEntries(t *testing.T) {
	drv := mustMount(t, "small")
	entries, err := drv.ReadDir(ext2.RootInodeNum)
	require.NoError(t, err)

	names := map[string]uint32{}
	for _, e := range entries {
		names[e.Name] = e.Inode
	}
	require.Equal(t, ext2.RootInodeNum, names["."])
	require.Equal(t, ext2.RootInodeNum, names[".."])
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	drv := mustMount(t, "small")

	inum, err := drv.Create(ext2.RootInodeNum, "hello.txt", 0644)
	require.NoError(t, err)

	payload := []byte("hello, ext2")
	n, err := drv.WriteFile(inum, payload, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = drv.ReadFile(inum, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf)

	require.NoError(t, ext2.CheckConsistency(drv))
}

func TestWriteBeyondBlockSizeUsesIndirection(t *testing.T) {
	drv := mustMount(t, "small")
	inum, err := drv.Create(ext2.RootInodeNum, "big.bin", 0644)
	require.NoError(t, err)

	blockSize := drv.SB.BlockSize()
	payload := make([]byte, blockSize*14)
	for i := range payload {
		payload[i] = byte(i)
	}

	_, err = drv.WriteFile(inum, payload, 0)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	_, err = drv.ReadFile(inum, buf, 0)
	require.NoError(t, err)
	require.Equal(t, payload, buf)
}

func TestTruncateFreesBlocks(t *testing.T) {
	drv := mustMount(t, "small")
	inum, err := drv.Create(ext2.RootInodeNum, "shrink.bin", 0644)
	require.NoError(t, err)

	blockSize := drv.SB.BlockSize()
	payload := make([]byte, blockSize*4)
	_, err = drv.WriteFile(inum, payload, 0)
	require.NoError(t, err)

	freeBefore := drv.SB.NumFreeBlocks()
	require.NoError(t, drv.Truncate(inum, 0))
	freeAfter := drv.SB.NumFreeBlocks()
	require.Greater(t, freeAfter, freeBefore)

	in, err := drv.Stat(inum)
	require.NoError(t, err)
	require.EqualValues(t, 0, in.Size)
}

func TestMkdirAndUnlinkEmptyDir(t *testing.T) {
	drv := mustMount(t, "small")

	sub, err := drv.Mkdir(ext2.RootInodeNum, "sub", 0755)
	require.NoError(t, err)

	entries, err := drv.ReadDir(sub)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, drv.Unlink(ext2.RootInodeNum, "sub"))
	_, err = drv.Lookup(ext2.RootInodeNum, "sub")
	require.Error(t, err)

	require.NoError(t, ext2.CheckConsistency(drv))
}

func TestUnlinkNonEmptyDirFails(t *testing.T) {
	drv := mustMount(t, "small")
	sub, err := drv.Mkdir(ext2.RootInodeNum, "sub", 0755)
	require.NoError(t, err)
	_, err = drv.Create(sub, "file.txt", 0644)
	require.NoError(t, err)

	err = drv.Unlink(ext2.RootInodeNum, "sub")
	require.Error(t, err)
}

func TestHardLinkSharesInode(t *testing.T) {
	drv := mustMount(t, "small")
	inum, err := drv.Create(ext2.RootInodeNum, "a.txt", 0644)
	require.NoError(t, err)

	require.NoError(t, drv.Link(ext2.RootInodeNum, "b.txt", inum))

	resolved, err := drv.Lookup(ext2.RootInodeNum, "b.txt")
	require.NoError(t, err)
	require.Equal(t, inum, resolved)

	in, err := drv.Stat(inum)
	require.NoError(t, err)
	require.EqualValues(t, 2, in.LinksCount)

	require.NoError(t, drv.Unlink(ext2.RootInodeNum, "a.txt"))
	_, err = drv.Stat(inum)
	require.NoError(t, err)
}

func TestSymlinkReadLink(t *testing.T) {
	drv := mustMount(t, "small")
	inum, err := drv.Symlink(ext2.RootInodeNum, "link", "/target")
	require.NoError(t, err)

	target, err := drv.ReadLink(inum)
	require.NoError(t, err)
	require.Equal(t, "/target", target)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	drv := mustMount(t, "small")
	_, err := drv.Create(ext2.RootInodeNum, "dup.txt", 0644)
	require.NoError(t, err)
	_, err = drv.Create(ext2.RootInodeNum, "dup.txt", 0644)
	require.Error(t, err)
}

func TestDirectoryGrowsPastFirstBlock(t *testing.T) {
	drv := mustMount(t, "small")

	// Each name is long enough that only a handful fit in root's first
	// 1024-byte block, forcing Insert to allocate a second block. Every
	// Create call re-reads the directory inode from disk, so this only
	// passes if Create persists the directory's growth back to disk
	// instead of leaving it in a stale in-memory copy.
	const count = 8
	longPrefix := make([]byte, 200)
	for i := range longPrefix {
		longPrefix[i] = 'x'
	}

	names := make([]string, count)
	for i := 0; i < count; i++ {
		names[i] = string(longPrefix) + string(rune('a'+i))
		_, err := drv.Create(ext2.RootInodeNum, names[i], 0644)
		require.NoError(t, err)
	}

	root, err := drv.Stat(ext2.RootInodeNum)
	require.NoError(t, err)
	require.Greater(t, root.Size, drv.SB.BlockSize())

	for _, name := range names {
		_, err := drv.Lookup(ext2.RootInodeNum, name)
		require.NoError(t, err)
	}

	require.NoError(t, ext2.CheckConsistency(drv))
}

func TestMultiGroupGeometryStaysConsistent(t *testing.T) {
	drv := mustMount(t, "default")
	require.Greater(t, drv.SB.NumGroups(), uint32(1))

	for i := 0; i < 5; i++ {
		_, err := drv.Create(ext2.RootInodeNum, string(rune('a'+i))+".txt", 0644)
		require.NoError(t, err)
	}
	require.NoError(t, ext2.CheckConsistency(drv))
}
