// Package segment implements one physical segment file (.E01, .E02, ...)
// and the ordered segment table that stitches N of them into one logical
// image, per spec §4.2 and §3 "Segment file".
package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"

	"github.com/go-ewf/ewf/internal/section"
)

// Signature is the 8-byte EWF magic, followed by fields_start(1),
// segment_number(2 LE), fields_end(2 LE, always 0).
var Signature = [8]byte{'E', 'V', 'F', 0x09, 0x0d, 0x0a, 0xff, 0x00}

// FileHeaderSize is the size of the signature + fields block.
const FileHeaderSize = 13

// Mode selects how a File was opened.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Descriptor is one walked section header plus the file offset at which
// its header begins, mirroring the teacher's SectionWithAddress.
type Descriptor struct {
	Header section.Header
	Offset uint64
}

// File is one physical segment file.
type File struct {
	Path  string
	Index int
	Mode  Mode

	f *os.File
	// pending is set in write mode: the segment is staged under a
	// sibling temp name and only linked onto its final .E0N path by
	// Close, so a crash mid-write never leaves a half-finalized segment
	// visible under its real name.
	pending *renameio.PendingFile

	// current is the file offset immediately past the last section
	// written (write mode) or the last section walked (read mode).
	current uint64
	// budget is the maximum file size a writer may grow this segment
	// to before rolling over (spec §4.5 "Segment-size budgeting"). Zero
	// means unbounded (read mode, or a write test with no cap).
	budget uint64

	Descriptors []Descriptor
}

// CheckSignature opens path read-only, reads the 13-byte file header, and
// reports whether it matches the EWF signature, per spec §6
// "check_signature(path)". It does not validate anything beyond the
// magic.
func CheckSignature(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("segment: open %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("segment: read signature of %s: %w", path, err)
	}
	return bytes.Equal(buf[:8], Signature[:]), nil
}

// Open opens an existing segment file for reading and validates its
// signature and segment number.
func Open(path string, index int) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}
	sf := &File{Path: path, Index: index, Mode: ModeRead, f: f}
	if err := sf.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return sf, nil
}

func (sf *File) readHeader() error {
	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(sf.f, buf); err != nil {
		return fmt.Errorf("segment: read header of %s: %w", sf.Path, err)
	}
	if !bytes.Equal(buf[:8], Signature[:]) {
		return &section.CorruptError{Reason: fmt.Sprintf("%s: bad EWF signature", sf.Path)}
	}
	segNum := binary.LittleEndian.Uint16(buf[9:11])
	if int(segNum) != sf.Index {
		return &section.CorruptError{Reason: fmt.Sprintf("%s: segment number %d, expected %d", sf.Path, segNum, sf.Index)}
	}
	sf.current = FileHeaderSize
	return nil
}

// Create creates a new segment file for writing, writes its signature,
// and reserves budget bytes as the maximum size this segment may grow to
// (0 = unbounded). The segment is written under a temporary name in the
// same directory and only atomically linked onto path by Close, per spec
// §5 "a crash mid-finalize must never leave a partially written segment
// visible under its final extension".
func Create(path string, index int, budget uint64) (*File, error) {
	pf, err := renameio.TempFile("", path)
	if err != nil {
		return nil, fmt.Errorf("segment: create %s: %w", path, err)
	}
	sf := &File{Path: path, Index: index, Mode: ModeWrite, f: pf.File, pending: pf, budget: budget}

	buf := make([]byte, FileHeaderSize)
	copy(buf[:8], Signature[:])
	buf[8] = 1
	binary.LittleEndian.PutUint16(buf[9:11], uint16(index))
	if _, err := pf.Write(buf); err != nil {
		pf.Cleanup()
		return nil, fmt.Errorf("segment: write header of %s: %w", path, err)
	}
	sf.current = FileHeaderSize
	return sf, nil
}

// Close closes the underlying file descriptor. In write mode this
// atomically renames the staged temp file onto the segment's final path;
// the segment never appears at that path half-written.
func (sf *File) Close() error {
	if sf.pending != nil {
		pending := sf.pending
		sf.pending = nil
		sf.f = nil
		return pending.CloseAtomicallyReplace()
	}
	if sf.f == nil {
		return nil
	}
	err := sf.f.Close()
	sf.f = nil
	return err
}

// Offset returns the current read/append position.
func (sf *File) Offset() uint64 { return sf.current }

// Remaining returns how many more bytes may be appended to this segment
// before its size budget is exhausted. Returns a very large number if
// the segment is unbounded.
func (sf *File) Remaining() uint64 {
	if sf.budget == 0 {
		return ^uint64(0)
	}
	if sf.current >= sf.budget {
		return 0
	}
	return sf.budget - sf.current
}

// Walk drives the section-header state machine starting at the current
// offset (normally right after the 13-byte file header), invoking visit
// for each section with the section's raw body. Walking stops after a
// "done" or "next" section, or when a section claims to be its own
// successor. visit may return io.EOF to stop walking early without
// error.
func (sf *File) Walk(visit func(Descriptor, []byte) error) error {
	offset := sf.current
	for {
		if _, err := sf.f.Seek(int64(offset), io.SeekStart); err != nil {
			return fmt.Errorf("segment: seek to section at %d: %w", offset, err)
		}
		h, err := section.ReadHeader(sf.f)
		if err != nil {
			return fmt.Errorf("segment: %s: %w", sf.Path, err)
		}
		desc := Descriptor{Header: h, Offset: offset}
		sf.Descriptors = append(sf.Descriptors, desc)

		bodyLen := int64(h.Size) - section.HeaderSize
		if bodyLen < 0 {
			return &section.CorruptError{Reason: fmt.Sprintf("%s: section at %d declares negative body size", sf.Path, offset)}
		}
		body := make([]byte, bodyLen)
		if bodyLen > 0 {
			if _, err := io.ReadFull(sf.f, body); err != nil {
				return fmt.Errorf("segment: read body of %s section at %d: %w", h.Kind(), offset, err)
			}
		}

		if err := visit(desc, body); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		kind := h.Kind()
		last := h.NextOffset == offset || h.NextOffset == 0
		sf.current = h.NextOffset
		if kind == section.KindDone || kind == section.KindNext || last {
			return nil
		}
		offset = h.NextOffset
	}
}

// Append writes one section (header + body) at the current append
// position, then returns the absolute offset its body starts at. The
// header's next_section_offset is set to the position immediately after
// this section, i.e. where the *next* Append call will begin — callers
// that need a "next" section's offset to equal its own header offset
// (self-referential terminator) pass that explicitly via AppendAt.
func (sf *File) Append(kind section.Kind, body []byte) (bodyOffset uint64, err error) {
	headerOffset := sf.current
	next := headerOffset + section.HeaderSize + uint64(len(body))
	return sf.AppendAt(kind, body, next)
}

// AppendAt is like Append but lets the caller control next_section_offset
// explicitly, needed for the terminal "done"/"next" section, which is
// conventionally its own next_section_offset.
func (sf *File) AppendAt(kind section.Kind, body []byte, nextOffset uint64) (bodyOffset uint64, err error) {
	headerOffset := sf.current
	if _, err := sf.f.Seek(int64(headerOffset), io.SeekStart); err != nil {
		return 0, fmt.Errorf("segment: seek to append position: %w", err)
	}
	size := section.HeaderSize + uint64(len(body))
	if err := section.WriteHeader(sf.f, kind, nextOffset, size); err != nil {
		return 0, fmt.Errorf("segment: write %s header: %w", kind, err)
	}
	if len(body) > 0 {
		if _, err := sf.f.Write(body); err != nil {
			return 0, fmt.Errorf("segment: write %s body: %w", kind, err)
		}
	}
	sf.current = nextOffset
	sf.Descriptors = append(sf.Descriptors, Descriptor{
		Header: section.Header{NextOffset: nextOffset, Size: size},
		Offset: headerOffset,
	})
	return headerOffset + section.HeaderSize, nil
}

// AppendRaw appends len(data) bytes at the current position without any
// section framing, used for the body of an open "sectors" section that
// is filled one chunk at a time. Returns the absolute offset the bytes
// were written at.
func (sf *File) AppendRaw(data []byte) (uint64, error) {
	offset := sf.current
	if _, err := sf.f.Seek(int64(offset), io.SeekStart); err != nil {
		return 0, fmt.Errorf("segment: seek to append position: %w", err)
	}
	if _, err := sf.f.Write(data); err != nil {
		return 0, fmt.Errorf("segment: append %d bytes: %w", len(data), err)
	}
	sf.current = offset + uint64(len(data))
	return offset, nil
}

// RewriteHeader overwrites the section header already written at
// headerOffset, used to patch a sectors section's declared size once its
// body has been filled one chunk at a time (spec §4.5). It does not
// affect the file's current append position.
func (sf *File) RewriteHeader(headerOffset uint64, kind section.Kind, nextOffset, size uint64) error {
	if _, err := sf.f.Seek(int64(headerOffset), io.SeekStart); err != nil {
		return fmt.Errorf("segment: seek to rewrite header at %d: %w", headerOffset, err)
	}
	if err := section.WriteHeader(sf.f, kind, nextOffset, size); err != nil {
		return fmt.Errorf("segment: rewrite %s header: %w", kind, err)
	}
	return nil
}

// ReadAt reads n bytes at an absolute file offset, used by the read path
// to fetch a stored chunk located by the offset table.
func (sf *File) ReadAt(offset uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := sf.f.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("segment: read %d bytes at %d in %s: %w", n, offset, sf.Path, err)
	}
	return buf, nil
}

// Size returns the current size of the underlying file on disk.
func (sf *File) Size() (int64, error) {
	fi, err := sf.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("segment: stat %s: %w", sf.Path, err)
	}
	return fi.Size(), nil
}
