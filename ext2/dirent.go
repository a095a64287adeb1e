package ext2

import (
	"encoding/binary"

	"github.com/go-ext2/ext2fs/errors"
)

// File type tags carried in a directory entry's FileType byte, mirroring
// the classic ext2 DT_* constants.
const (
	FileTypeUnknown  = 0
	FileTypeRegular  = 1
	FileTypeDirectory = 2
	FileTypeSymlink  = 7
)

// DirEntry is one decoded directory record. Index is the record's
// logical, non-tombstone ordinal within the directory (the Nth live
// entry encountered during a byte-indexed traversal) and is stable
// across calls as long as the directory isn't modified; it is what a
// readdir cursor resumes from, per spec.md §4.8.
type DirEntry struct {
	Inode    uint32
	RecLen   uint16
	NameLen  uint8
	FileType uint8
	Name     string
	Offset   int64
	Index    int
}

func (e DirEntry) isFree() bool { return e.Inode == 0 }

func align4(n int) int { return (n + 3) &^ 3 }

func decodeDirEntry(buf []byte, blockOffset int64) DirEntry {
	inode := binary.LittleEndian.Uint32(buf[0:4])
	recLen := binary.LittleEndian.Uint16(buf[4:6])
	nameLen := buf[6]
	fileType := buf[7]
	name := string(buf[directoryEntryHeaderSize : directoryEntryHeaderSize+int(nameLen)])
	return DirEntry{
		Inode:    inode,
		RecLen:   recLen,
		NameLen:  nameLen,
		FileType: fileType,
		Name:     name,
		Offset:   blockOffset,
	}
}

func encodeDirEntry(buf []byte, e DirEntry) {
	binary.LittleEndian.PutUint32(buf[0:4], e.Inode)
	binary.LittleEndian.PutUint16(buf[4:6], e.RecLen)
	buf[6] = e.NameLen
	buf[7] = e.FileType
	copy(buf[directoryEntryHeaderSize:], e.Name)
}

// DirectoryEngine manages the directory-record stream backing a
// directory inode, per spec.md §4.8. Records never span a block
// boundary: each block is scanned independently, and the last record
// in a block always carries enough RecLen to reach the block's end.
type DirectoryEngine struct {
	sb *Superblock
	io *FileIO
}

func NewDirectoryEngine(sb *Superblock, io *FileIO) *DirectoryEngine {
	return &DirectoryEngine{sb: sb, io: io}
}

// ReadDir returns every live (non-tombstone) entry in in, in on-disk
// order, with Index set to its logical ordinal.
func (d *DirectoryEngine) ReadDir(in *RawInode) ([]DirEntry, error) {
	var out []DirEntry
	logical := 0

	err := d.forEachBlock(in, func(blockStart int64, buf []byte) error {
		pos := 0
		for pos < len(buf) {
			e := decodeDirEntry(buf[pos:], blockStart+int64(pos))
			if e.RecLen == 0 {
				break
			}
			if !e.isFree() {
				e.Index = logical
				out = append(out, e)
				logical++
			}
			pos += int(e.RecLen)
		}
		return nil
	})
	return out, err
}

// Find looks up name among in's live entries.
func (d *DirectoryEngine) Find(in *RawInode, name string) (DirEntry, error) {
	entries, err := d.ReadDir(in)
	if err != nil {
		return DirEntry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return DirEntry{}, errors.FSNotFound.WithMessage("no directory entry named " + name)
}

// forEachBlock reads in's content one full block at a time and invokes
// fn with the block's byte offset within the directory and its content.
func (d *DirectoryEngine) forEachBlock(in *RawInode, fn func(blockStart int64, buf []byte) error) error {
	blockSize := int64(d.sb.BlockSize())
	for start := int64(0); start < int64(in.Size); start += blockSize {
		buf := make([]byte, blockSize)
		if _, err := d.io.Read(in, buf, start); err != nil {
			return err
		}
		if err := fn(start, buf); err != nil {
			return err
		}
	}
	return nil
}

// initBlock lays out a fresh directory block as a single free record
// spanning the whole block.
func initBlock(blockSize uint32) []byte {
	buf := make([]byte, blockSize)
	encodeDirEntry(buf, DirEntry{Inode: 0, RecLen: uint16(blockSize), NameLen: 0, FileType: FileTypeUnknown})
	return buf
}

// InitDirectory populates a brand new directory's first block with "."
// and "..", with ".." taking up the remainder of the block.
func (d *DirectoryEngine) InitDirectory(in *RawInode, selfInum, parentInum uint32) error {
	blockSize := d.sb.BlockSize()
	buf := make([]byte, blockSize)

	dot := DirEntry{Inode: selfInum, NameLen: 1, FileType: FileTypeDirectory, Name: "."}
	dot.RecLen = uint16(align4(directoryEntryHeaderSize + len(dot.Name)))
	encodeDirEntry(buf, dot)

	dotdot := DirEntry{Inode: parentInum, NameLen: 2, FileType: FileTypeDirectory, Name: ".."}
	dotdot.RecLen = uint16(blockSize) - dot.RecLen
	encodeDirEntry(buf[dot.RecLen:], dotdot)

	_, err := d.io.Write(in, buf, 0)
	return err
}

// Insert adds a new directory entry for name, reusing slack in an
// existing record when there's room and otherwise appending a new
// block.
func (d *DirectoryEngine) Insert(in *RawInode, name string, inum uint32, fileType uint8) error {
	if len(name) == 0 || len(name) > maxNameLength {
		return errors.FSNameTooLong.WithMessage("directory entry name too long")
	}
	if _, err := d.Find(in, name); err == nil {
		return errors.FSExists.WithMessage("directory entry already exists: " + name)
	}

	needed := align4(directoryEntryHeaderSize + len(name))
	blockSize := int64(d.sb.BlockSize())

	placed := false
	err := d.forEachBlock(in, func(blockStart int64, buf []byte) error {
		if placed {
			return nil
		}
		pos := 0
		for pos < len(buf) {
			e := decodeDirEntry(buf[pos:], blockStart+int64(pos))
			if e.RecLen == 0 {
				break
			}

			if e.isFree() {
				if int(e.RecLen) >= needed {
					d.writeRecord(buf, pos, DirEntry{Inode: inum, RecLen: e.RecLen, NameLen: uint8(len(name)), FileType: fileType, Name: name})
					placed = true
					if _, err := d.io.Write(in, buf, blockStart); err != nil {
						return err
					}
					return nil
				}
			} else {
				used := align4(directoryEntryHeaderSize + int(e.NameLen))
				slack := int(e.RecLen) - used
				if slack >= needed {
					e.RecLen = uint16(used)
					d.writeRecord(buf, pos, e)
					d.writeRecord(buf, pos+used, DirEntry{Inode: inum, RecLen: uint16(slack), NameLen: uint8(len(name)), FileType: fileType, Name: name})
					placed = true
					if _, err := d.io.Write(in, buf, blockStart); err != nil {
						return err
					}
					return nil
				}
			}
			pos += int(e.RecLen)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if placed {
		return nil
	}

	buf := initBlock(d.sb.BlockSize())
	d.writeRecord(buf, 0, DirEntry{Inode: inum, RecLen: uint16(blockSize), NameLen: uint8(len(name)), FileType: fileType, Name: name})
	_, err = d.io.Write(in, buf, int64(in.Size))
	return err
}

func (d *DirectoryEngine) writeRecord(block []byte, pos int, e DirEntry) {
	encodeDirEntry(block[pos:], e)
}

// Remove deletes the entry named name. "." and ".." can never be
// removed through this path; a directory removes itself via its
// parent's entry instead. When the entry being removed isn't the first
// record in its block, it is merged into the preceding record's
// RecLen; otherwise it is turned into a tombstone (Inode set to 0) that
// keeps its RecLen so the block's record chain stays intact.
func (d *DirectoryEngine) Remove(in *RawInode, name string) error {
	if name == "." || name == ".." {
		return errors.FSInvalid.WithMessage("cannot remove . or ..")
	}

	removed := false
	err := d.forEachBlock(in, func(blockStart int64, buf []byte) error {
		if removed {
			return nil
		}
		pos := 0
		prev := -1
		for pos < len(buf) {
			e := decodeDirEntry(buf[pos:], blockStart+int64(pos))
			if e.RecLen == 0 {
				break
			}
			if !e.isFree() && e.Name == name {
				if prev >= 0 {
					prevEntry := decodeDirEntry(buf[prev:], blockStart+int64(prev))
					prevEntry.RecLen += e.RecLen
					d.writeRecord(buf, prev, prevEntry)
				} else {
					e.Inode = 0
					e.NameLen = 0
					e.FileType = FileTypeUnknown
					e.Name = ""
					d.writeRecord(buf, pos, e)
				}
				removed = true
				return writeBack(d, in, buf, blockStart)
			}
			prev = pos
			pos += int(e.RecLen)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return errors.FSNotFound.WithMessage("no directory entry named " + name)
	}
	return nil
}

func writeBack(d *DirectoryEngine, in *RawInode, buf []byte, blockStart int64) error {
	_, err := d.io.Write(in, buf, blockStart)
	return err
}

// IsEmpty reports whether a directory has no entries besides "." and
// "..", the precondition for rmdir per spec.md §5.
func (d *DirectoryEngine) IsEmpty(in *RawInode) (bool, error) {
	entries, err := d.ReadDir(in)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			return false, nil
		}
	}
	return true, nil
}
