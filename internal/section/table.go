package section

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// TableHeaderSize is the size of the table/table2 header that precedes the
// offset array: amount_of_offsets, padding, base_offset, padding, crc32.
const TableHeaderSize = 24

// compressedFlag marks the high bit of a stored table offset as "this
// chunk is deflate-compressed".
const compressedFlag = 0x80000000

// Offset is one raw entry of a table/table2 section: a file offset
// relative to the section's base_offset, with the compressed flag folded
// into the high bit exactly as stored on disk.
type Offset struct {
	RelativeOffset uint32 // low 31 bits
	Compressed     bool   // high bit
}

// Table is the decoded body of a table/table2 section.
type Table struct {
	BaseOffset uint64
	Offsets    []Offset
}

// DecodeTable parses a table/table2 section body: header, offset array,
// and the trailing CRC32 over the offset array. CRC mismatches are
// reported but the offsets are still returned so a caller can fall back
// from table to table2 without re-parsing.
func DecodeTable(body []byte) (Table, error) {
	if len(body) < TableHeaderSize {
		return Table{}, fmt.Errorf("section: table body too short: %d bytes", len(body))
	}
	r := bytes.NewReader(body)
	var amount uint32
	var pad [4]byte
	var base uint64
	var pad2 [4]byte
	var headerCRC uint32
	binary.Read(r, binary.LittleEndian, &amount)
	binary.Read(r, binary.LittleEndian, &pad)
	binary.Read(r, binary.LittleEndian, &base)
	binary.Read(r, binary.LittleEndian, &pad2)
	if err := binary.Read(r, binary.LittleEndian, &headerCRC); err != nil {
		return Table{}, fmt.Errorf("section: decode table header: %w", err)
	}
	if headerCRC != 0 {
		got := crc32.ChecksumIEEE(body[:TableHeaderSize-4])
		if got != headerCRC {
			return Table{}, &CorruptError{Reason: fmt.Sprintf("table header crc mismatch: got %08x want %08x", got, headerCRC)}
		}
	}

	entriesStart := TableHeaderSize
	entriesLen := int(amount) * 4
	if entriesStart+entriesLen+4 > len(body) {
		return Table{}, fmt.Errorf("section: table declares %d offsets, body too short", amount)
	}
	raw := body[entriesStart : entriesStart+entriesLen]
	offsets := make([]Offset, amount)
	for i := range offsets {
		v := binary.LittleEndian.Uint32(raw[i*4:])
		offsets[i] = Offset{
			RelativeOffset: v &^ compressedFlag,
			Compressed:     v&compressedFlag != 0,
		}
	}

	trailerCRC := binary.LittleEndian.Uint32(body[entriesStart+entriesLen:])
	if trailerCRC != 0 {
		got := crc32.ChecksumIEEE(raw)
		if got != trailerCRC {
			return Table{BaseOffset: base, Offsets: offsets}, &CorruptError{Reason: fmt.Sprintf("table offsets crc mismatch: got %08x want %08x", got, trailerCRC)}
		}
	}

	return Table{BaseOffset: base, Offsets: offsets}, nil
}

// EncodeTable serializes a table/table2 body: header with its own CRC,
// the offset array, and a trailing CRC over the offset array.
func EncodeTable(t Table) []byte {
	buf := &bytes.Buffer{}
	buf.Grow(TableHeaderSize + len(t.Offsets)*4 + 4)
	binary.Write(buf, binary.LittleEndian, uint32(len(t.Offsets)))
	buf.Write(make([]byte, 4))
	binary.Write(buf, binary.LittleEndian, t.BaseOffset)
	buf.Write(make([]byte, 4))
	headerCRC := crc32.ChecksumIEEE(buf.Bytes())
	binary.Write(buf, binary.LittleEndian, headerCRC)

	entries := &bytes.Buffer{}
	entries.Grow(len(t.Offsets) * 4)
	for _, o := range t.Offsets {
		v := o.RelativeOffset &^ compressedFlag
		if o.Compressed {
			v |= compressedFlag
		}
		binary.Write(entries, binary.LittleEndian, v)
	}
	buf.Write(entries.Bytes())
	trailerCRC := crc32.ChecksumIEEE(entries.Bytes())
	binary.Write(buf, binary.LittleEndian, trailerCRC)
	return buf.Bytes()
}

// MaxOffsetsPerTable returns the largest number of offsets a single
// table/table2 section may hold for the given format, per spec §4.3(b).
// EnCase5 and later cap at 16384; older/SMART variants cap at 65534.
func MaxOffsetsPerTable(encase5OrLater bool) int {
	if encase5OrLater {
		return 16384
	}
	return 65534
}
