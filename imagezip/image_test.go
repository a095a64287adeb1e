package imagezip_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/go-ext2/ext2fs/imagezip"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripCompression(t *testing.T) {
	randomData := make([]byte, 137)
	_, err := rand.Read(randomData)
	require.NoError(t, err)

	cases := map[string][]byte{
		"homogeneous": bytes.Repeat([]byte{0x42}, 4096),
		"empty":       {},
		"random":      randomData,
	}

	for name, data := range cases {
		data := data
		t.Run(name, func(t *testing.T) {
			compressedBuf := make([]byte, 8192)
			compressedWriter := bytewriter.New(compressedBuf)

			n, err := imagezip.Compress(bytes.NewReader(data), compressedWriter)
			require.NoError(t, err)

			decompressedBuf := make([]byte, len(data))
			decompressedWriter := bytewriter.New(decompressedBuf)

			written, err := imagezip.Decompress(bytes.NewReader(compressedBuf[:n]), decompressedWriter)
			require.NoError(t, err)
			assert.EqualValues(t, len(data), written)
			assert.Equal(t, data, decompressedBuf)
		})
	}
}

func TestDecompressToBytes(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3}, 500)
	var compressed bytes.Buffer
	_, err := imagezip.Compress(bytes.NewReader(data), &compressed)
	require.NoError(t, err)

	out, err := imagezip.DecompressToBytes(bytes.NewReader(compressed.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
