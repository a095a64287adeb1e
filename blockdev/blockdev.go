// Package blockdev provides the positional byte-addressable storage
// abstraction that the ext2 driver is layered over. It corresponds to
// the "BlockDevice" collaborator in the driver design: something that
// can read and write at an absolute byte offset and knows its own
// length, with no notion of blocks, groups, or file systems at all.
package blockdev

import (
	"io"

	"github.com/go-ext2/ext2fs/errors"
)

// Device is a positional byte store. Offsets are absolute byte offsets
// from the start of the image. The driver never reads or writes past
// Size().
type Device interface {
	// ReadAt fills dst with len(dst) bytes starting at off. It returns
	// the number of bytes actually transferred; a short read is not an
	// error by itself, callers decide whether it matters.
	ReadAt(dst []byte, off int64) (int, error)
	// WriteAt writes all of src starting at off.
	WriteAt(src []byte, off int64) (int, error)
	// Size returns the total addressable length of the device in bytes.
	Size() int64
}

// FileDevice adapts any io.ReaderAt + io.WriterAt (most commonly
// *os.File) with a known size into a Device. This is the collaborator
// spec.md calls "the byte-addressable image provider" and treats as
// external: the driver packages never open files themselves.
type FileDevice struct {
	backing io.ReaderAt
	writer  io.WriterAt
	size    int64
}

// NewFileDevice wraps backing, which must also implement io.WriterAt if
// the caller intends to perform any writes.
func NewFileDevice(backing io.ReaderAt, size int64) *FileDevice {
	dev := &FileDevice{backing: backing, size: size}
	if w, ok := backing.(io.WriterAt); ok {
		dev.writer = w
	}
	return dev
}

func (dev *FileDevice) Size() int64 {
	return dev.size
}

func (dev *FileDevice) ReadAt(dst []byte, off int64) (int, error) {
	if off < 0 || off > dev.size {
		return 0, errors.FSRange.WithMessage("read offset out of bounds")
	}
	n, err := dev.backing.ReadAt(dst, off)
	if err == io.EOF && n > 0 {
		// A short read at the very end of the image is not a driver
		// error; the caller already knows how many bytes it asked for.
		return n, nil
	}
	return n, err
}

func (dev *FileDevice) WriteAt(src []byte, off int64) (int, error) {
	if dev.writer == nil {
		return 0, errors.FSIo.WithMessage("device is not writable")
	}
	if off < 0 || off+int64(len(src)) > dev.size {
		return 0, errors.FSRange.WithMessage("write range out of bounds")
	}
	return dev.writer.WriteAt(src, off)
}

// MemDevice is an in-memory Device over a plain byte slice, used by
// tests and by the image formatter. It never grows past its initial
// size, matching the "image is not required to be seekable beyond
// current length" contract in spec.md §4.1.
type MemDevice struct {
	data []byte
}

// NewMemDevice creates a MemDevice of exactly size bytes, all zeroed.
func NewMemDevice(size int64) *MemDevice {
	return &MemDevice{data: make([]byte, size)}
}

// WrapMemDevice creates a MemDevice over an existing byte slice without
// copying it; writes are visible to the caller's slice.
func WrapMemDevice(data []byte) *MemDevice {
	return &MemDevice{data: data}
}

func (dev *MemDevice) Size() int64 {
	return int64(len(dev.data))
}

func (dev *MemDevice) Bytes() []byte {
	return dev.data
}

func (dev *MemDevice) ReadAt(dst []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(dev.data)) {
		return 0, errors.FSRange.WithMessage("read offset out of bounds")
	}
	n := copy(dst, dev.data[off:])
	return n, nil
}

func (dev *MemDevice) WriteAt(src []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(src)) > int64(len(dev.data)) {
		return 0, errors.FSRange.WithMessage("write range out of bounds")
	}
	n := copy(dev.data[off:], src)
	return n, nil
}

// SeekerDevice adapts an io.ReadWriteSeeker of known, fixed size into a
// Device. This is the shape bytesextra.NewReadWriteSeeker returns when
// testutil builds an in-memory image from a []byte, so fixture images
// built that way can be mounted exactly like a real file.
type SeekerDevice struct {
	stream io.ReadWriteSeeker
	size   int64
}

func NewSeekerDevice(stream io.ReadWriteSeeker, size int64) *SeekerDevice {
	return &SeekerDevice{stream: stream, size: size}
}

func (dev *SeekerDevice) Size() int64 {
	return dev.size
}

func (dev *SeekerDevice) ReadAt(dst []byte, off int64) (int, error) {
	if off < 0 || off > dev.size {
		return 0, errors.FSRange.WithMessage("read offset out of bounds")
	}
	if _, err := dev.stream.Seek(off, io.SeekStart); err != nil {
		return 0, errors.FSIo.Wrap(err)
	}
	n, err := io.ReadFull(dev.stream, dst)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return n, nil
	}
	return n, err
}

func (dev *SeekerDevice) WriteAt(src []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(src)) > dev.size {
		return 0, errors.FSRange.WithMessage("write range out of bounds")
	}
	if _, err := dev.stream.Seek(off, io.SeekStart); err != nil {
		return 0, errors.FSIo.Wrap(err)
	}
	return dev.stream.Write(src)
}
