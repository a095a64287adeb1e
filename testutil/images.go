// Package testutil builds ext2 fixture images for use in tests across
// the rest of this module, the way the teacher's testing package does
// for its own disk images.
package testutil

import (
	"bytes"
	"testing"

	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/go-ext2/ext2fs/ext2"
	"github.com/go-ext2/ext2fs/imagezip"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// NewImage formats a fresh ext2 image using the named preset geometry
// and mounts it, returning the driver and the underlying device so the
// caller can also flush it out to a compressed fixture via DumpImage.
func NewImage(t *testing.T, geometrySlug string) (*ext2.Driver, blockdev.Device) {
	t.Helper()

	geom, err := ext2.GetGeometry(geometrySlug)
	require.NoError(t, err)

	dev := blockdev.NewMemDevice(geom.TotalSizeBytes())
	_, err = ext2.Format(dev, geom)
	require.NoError(t, err)

	drv, err := ext2.Mount(dev)
	require.NoError(t, err)
	return drv, dev
}

// LoadCompressedImage decompresses a gzip+RLE8 fixture image (see
// package imagezip) into a writable in-memory stream and mounts it.
// Writes to the returned driver never affect compressedImageBytes.
func LoadCompressedImage(t *testing.T, compressedImageBytes []byte) *ext2.Driver {
	t.Helper()
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	raw, err := imagezip.DecompressToBytes(bytes.NewReader(compressedImageBytes))
	require.NoError(t, err)

	stream := bytesextra.NewReadWriteSeeker(raw)
	dev := blockdev.NewSeekerDevice(stream, int64(len(raw)))

	drv, err := ext2.Mount(dev)
	require.NoError(t, err)
	return drv
}

// DumpImage compresses the full contents of dev for storage as a fixture.
func DumpImage(t *testing.T, dev blockdev.Device) []byte {
	t.Helper()

	raw := make([]byte, dev.Size())
	_, err := dev.ReadAt(raw, 0)
	require.NoError(t, err)

	var compressed bytes.Buffer
	_, err = imagezip.Compress(bytes.NewReader(raw), &compressed)
	require.NoError(t, err)
	return compressed.Bytes()
}
