package blockdev_test

import (
	"bytes"
	"testing"

	"github.com/go-ext2/ext2fs/blockdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDeviceReadWriteRoundTrip(t *testing.T) {
	dev := blockdev.NewMemDevice(1024)

	n, err := dev.WriteAt([]byte("hello"), 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	dst := make([]byte, 5)
	n, err = dev.ReadAt(dst, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(dst))
}

func TestMemDeviceWriteOutOfBounds(t *testing.T) {
	dev := blockdev.NewMemDevice(10)
	_, err := dev.WriteAt([]byte("0123456789A"), 0)
	assert.Error(t, err)
}

func TestFileDeviceReadOnly(t *testing.T) {
	reader := bytes.NewReader([]byte("abcdefghij"))
	dev := blockdev.NewFileDevice(reader, 10)

	dst := make([]byte, 4)
	n, err := dev.ReadAt(dst, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "cdef", string(dst))

	_, err = dev.WriteAt([]byte("x"), 0)
	assert.Error(t, err)
}
