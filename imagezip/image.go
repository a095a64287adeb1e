package imagezip

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// countingWriter tracks how many bytes have been written to an
// underlying io.Writer, since io.Writer alone doesn't expose that.
type countingWriter struct {
	w       io.Writer
	written int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	if err == nil {
		c.written += int64(n)
	}
	return n, err
}

// Compress run-length-encodes then gzips input, writing the result to
// output. The returned count is the number of compressed bytes written.
func Compress(input io.Reader, output io.Writer) (int64, error) {
	counter := &countingWriter{w: output}

	gz, err := gzip.NewWriterLevel(counter, gzip.BestCompression)
	if err != nil {
		return 0, fmt.Errorf("imagezip: creating gzip writer: %w", err)
	}

	_, rleErr := compressRLE8(input, gz)
	closeErr := gz.Close()
	if rleErr != nil {
		return counter.written, fmt.Errorf("imagezip: rle8 compression: %w", rleErr)
	}
	if closeErr != nil {
		return counter.written, fmt.Errorf("imagezip: gzip compression: %w", closeErr)
	}
	return counter.written, nil
}

// Decompress reverses Compress, writing the original bytes to output.
// The returned count is the number of decompressed bytes written.
func Decompress(input io.Reader, output io.Writer) (int64, error) {
	gz, err := gzip.NewReader(input)
	if err != nil {
		return 0, fmt.Errorf("imagezip: creating gzip reader: %w", err)
	}
	defer gz.Close()
	return decompressRLE8(gz, output)
}

// DecompressToBytes is a convenience wrapper around Decompress for
// embedded or in-memory test fixture images.
func DecompressToBytes(input io.Reader) ([]byte, error) {
	var buffer bytes.Buffer
	writer := bufio.NewWriter(&buffer)

	if _, err := Decompress(input, writer); err != nil {
		return nil, err
	}
	if err := writer.Flush(); err != nil {
		return nil, err
	}

	out := make([]byte, buffer.Len())
	copy(out, buffer.Bytes())
	return out, nil
}
