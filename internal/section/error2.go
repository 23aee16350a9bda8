package section

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// SectorError is one entry of an error2 section or an in-memory CRC-error
// list: a contiguous run of bad sectors.
type SectorError struct {
	StartSector     uint64
	AmountOfSectors uint32
}

const error2HeaderSize = 8 // amount_of_errors(4) + padding(4)

// DecodeError2 parses an error2 section body: header+CRC, N sector-error
// entries, trailing CRC.
func DecodeError2(body []byte) ([]SectorError, error) {
	if len(body) < error2HeaderSize+4 {
		return nil, fmt.Errorf("section: error2 body too short: %d bytes", len(body))
	}
	r := bytes.NewReader(body)
	var amount uint32
	var pad [4]byte
	binary.Read(r, binary.LittleEndian, &amount)
	binary.Read(r, binary.LittleEndian, &pad)
	var headerCRC uint32
	if err := binary.Read(r, binary.LittleEndian, &headerCRC); err != nil {
		return nil, fmt.Errorf("section: decode error2 header: %w", err)
	}
	if headerCRC != 0 {
		got := crc32.ChecksumIEEE(body[:error2HeaderSize])
		if got != headerCRC {
			return nil, &CorruptError{Reason: fmt.Sprintf("error2 header crc mismatch: got %08x want %08x", got, headerCRC)}
		}
	}

	entriesStart := error2HeaderSize + 4
	entriesLen := int(amount) * 12
	if entriesStart+entriesLen+4 > len(body) {
		return nil, fmt.Errorf("section: error2 declares %d entries, body too short", amount)
	}
	raw := body[entriesStart : entriesStart+entriesLen]
	errs := make([]SectorError, amount)
	er := bytes.NewReader(raw)
	for i := range errs {
		binary.Read(er, binary.LittleEndian, &errs[i].StartSector)
		binary.Read(er, binary.LittleEndian, &errs[i].AmountOfSectors)
	}

	trailerCRC := binary.LittleEndian.Uint32(body[entriesStart+entriesLen:])
	if trailerCRC != 0 {
		got := crc32.ChecksumIEEE(raw)
		if got != trailerCRC {
			return errs, &CorruptError{Reason: fmt.Sprintf("error2 entries crc mismatch: got %08x want %08x", got, trailerCRC)}
		}
	}
	return errs, nil
}

// EncodeError2 serializes an error2 section body from a sector-error list.
func EncodeError2(errs []SectorError) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(len(errs)))
	buf.Write(make([]byte, 4))
	headerCRC := crc32.ChecksumIEEE(buf.Bytes())
	binary.Write(buf, binary.LittleEndian, headerCRC)

	entries := &bytes.Buffer{}
	for _, e := range errs {
		binary.Write(entries, binary.LittleEndian, e.StartSector)
		binary.Write(entries, binary.LittleEndian, e.AmountOfSectors)
	}
	buf.Write(entries.Bytes())
	trailerCRC := crc32.ChecksumIEEE(entries.Bytes())
	binary.Write(buf, binary.LittleEndian, trailerCRC)
	return buf.Bytes()
}
