package imagezip

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// compressRLE8 writes a run-length-encoded form of input to output: any
// run of 2 or more identical bytes becomes [byte, byte, count-2]
// (capped at 255 repeats per triplet), and every other byte passes
// through unchanged. Returns the number of bytes written.
func compressRLE8(input io.Reader, output io.Writer) (int64, error) {
	grouper := newRunGrouper(input)

	var total int64
	for {
		run, runErr := grouper.next()
		if runErr != nil && !errors.Is(runErr, io.EOF) {
			return total, runErr
		}

		for run.count >= 2 {
			repeat := run.count - 2
			if repeat > 255 {
				repeat = 255
			}
			n, err := output.Write([]byte{run.value, run.value, byte(repeat)})
			if err != nil {
				return total, err
			}
			total += int64(n)
			run.count -= repeat + 2
		}
		if run.count == 1 {
			n, err := output.Write([]byte{run.value})
			if err != nil {
				return total, err
			}
			total += int64(n)
		}

		if runErr != nil {
			return total, nil
		}
	}
}

// decompressRLE8 reverses compressRLE8.
func decompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	lastByte := -1
	var total int64

	for {
		current, err := source.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, fmt.Errorf("imagezip: reading input: %w", err)
		}

		var chunk []byte
		if int(current) == lastByte {
			repeatByte, err := source.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf("%w: missing repeat count after two %#02x bytes", io.ErrUnexpectedEOF, current)
				}
				return total, fmt.Errorf("imagezip: decoding run: %w", err)
			}
			chunk = bytes.Repeat([]byte{current}, int(repeatByte)+1)
			lastByte = -1
		} else {
			lastByte = int(current)
			chunk = []byte{current}
		}

		n, err := output.Write(chunk)
		if err != nil {
			return total, fmt.Errorf("imagezip: writing output: %w", err)
		}
		total += int64(n)
	}
}
