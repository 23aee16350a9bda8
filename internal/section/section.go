// Package section implements the EWF section codec: the typed,
// length-prefixed, CRC-checked records that make up a segment file.
package section

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// HeaderSize is the fixed size of a section header: type tag, next-section
// offset, section size, padding, and trailing CRC32.
const HeaderSize = 76

// Kind identifies a section's type tag. The tag is stored on disk as 16
// NUL-padded ASCII bytes.
type Kind string

const (
	KindHeader  Kind = "header"
	KindHeader2 Kind = "header2"
	KindVolume  Kind = "volume"
	KindDisk    Kind = "disk"
	KindData    Kind = "data"
	KindSectors Kind = "sectors"
	KindTable   Kind = "table"
	KindTable2  Kind = "table2"
	KindNext    Kind = "next"
	KindLtypes  Kind = "ltypes"
	KindLtree   Kind = "ltree"
	KindSession Kind = "session"
	KindError2  Kind = "error2"
	KindHash    Kind = "hash"
	KindDigest  Kind = "digest"
	KindXHeader Kind = "xheader"
	KindXHash   Kind = "xhash"
	KindDone    Kind = "done"
)

// Header is the 76-byte record that precedes every section body.
type Header struct {
	TypeTag    [16]byte
	NextOffset uint64
	Size       uint64
	_          [40]byte
	CRC        uint32
}

// Kind returns the section's type tag with trailing NULs trimmed.
func (h Header) Kind() Kind {
	return Kind(bytes.TrimRight(h.TypeTag[:], "\x00"))
}

// ReadHeader reads and CRC-validates a section header at the reader's
// current position, consuming exactly HeaderSize bytes from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("section: read header: %w", err)
	}
	var h Header
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &h); err != nil {
		return Header{}, fmt.Errorf("section: decode header: %w", err)
	}
	want := crc32.ChecksumIEEE(buf[:HeaderSize-4])
	if h.CRC != want {
		return h, &CorruptError{Reason: fmt.Sprintf("header crc mismatch: got %08x want %08x", h.CRC, want)}
	}
	return h, nil
}

// WriteHeader serializes a section header with a freshly computed CRC.
func WriteHeader(w io.Writer, kind Kind, nextOffset, size uint64) error {
	h := Header{NextOffset: nextOffset, Size: size}
	copy(h.TypeTag[:], kind)
	buf := &bytes.Buffer{}
	buf.Grow(HeaderSize)
	binary.Write(buf, binary.LittleEndian, h.TypeTag)
	binary.Write(buf, binary.LittleEndian, h.NextOffset)
	binary.Write(buf, binary.LittleEndian, h.Size)
	buf.Write(make([]byte, 40))
	h.CRC = crc32.ChecksumIEEE(buf.Bytes())
	binary.Write(buf, binary.LittleEndian, h.CRC)
	_, err := w.Write(buf.Bytes())
	return err
}

// CorruptError indicates a structural inconsistency in the container:
// a bad signature, a section-header CRC mismatch, or an offset/size that
// does not line up with the file. It is fatal for the section it names.
type CorruptError struct {
	Reason string
}

func (e *CorruptError) Error() string { return "corrupt container: " + e.Reason }
