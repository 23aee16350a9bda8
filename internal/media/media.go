// Package media holds the EWF media geometry, format selection, and the
// acquisition/CRC error bookkeeping that travels with an open image, per
// spec §3 "Media geometry" and "Sector-error list".
package media

import "fmt"

// Type is the media_type field of a volume/disk section.
type Type uint8

const (
	TypeRemovable Type = 0x00
	TypeFixed     Type = 0x01
	TypeOptical   Type = 0x03
	TypeLogical   Type = 0x0e
	TypeRAM       Type = 0x10
)

// Flags is the media_flags bitset. Bit 0 marks media present (an image
// rather than a bare device descriptor); bit 1 marks a physical volume.
// DESIGN.md records why this bit assignment was chosen.
type Flags uint8

const (
	FlagImagePresent Flags = 0x01
	FlagPhysical     Flags = 0x02
	FlagFastbloc     Flags = 0x04
	FlagTableau      Flags = 0x08
)

// CompressionLevel selects the write-path deflate effort, or none.
type CompressionLevel uint8

const (
	CompressionNone CompressionLevel = 0x00
	CompressionGood CompressionLevel = 0x01
	CompressionBest CompressionLevel = 0x02
)

// Format selects which sections and header encodings a writer emits.
type Format int

const (
	FormatEnCase1 Format = iota
	FormatEnCase2
	FormatEnCase3
	FormatEnCase4
	FormatEnCase5
	FormatEnCase6
	FormatSMART
	FormatFTK
	FormatLinEn
	FormatEWFX
)

// HasHeader2 reports whether the format emits a header2 section in
// addition to header.
func (f Format) HasHeader2() bool {
	switch f {
	case FormatEnCase3, FormatEnCase4, FormatEnCase5, FormatEnCase6, FormatEWFX:
		return true
	default:
		return false
	}
}

// HasXHeader reports whether the format emits an xheader/xhash pair.
func (f Format) HasXHeader() bool {
	return f == FormatEnCase6 || f == FormatEWFX
}

// HasDigest reports whether the format emits a digest (SHA1) section
// alongside hash (MD5).
func (f Format) HasDigest() bool {
	switch f {
	case FormatEnCase6, FormatEWFX:
		return true
	default:
		return false
	}
}

// MaxOffsetsPerTable returns the table/table2 offsets-per-section cap for
// this format, per spec §4.3(b).
func (f Format) MaxOffsetsPerTable() int {
	switch f {
	case FormatEnCase5, FormatEnCase6, FormatEWFX:
		return 16384
	default:
		return 65534
	}
}

// Geometry is the immutable-after-first-volume-section media shape.
type Geometry struct {
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	AmountOfSectors  uint64
	MediaType        Type
	MediaFlags       Flags
	ErrorGranularity uint32
}

// ChunkSize returns sectors_per_chunk * bytes_per_sector.
func (g Geometry) ChunkSize() uint64 {
	return uint64(g.SectorsPerChunk) * uint64(g.BytesPerSector)
}

// MediaSize returns amount_of_sectors * bytes_per_sector.
func (g Geometry) MediaSize() uint64 {
	return g.AmountOfSectors * uint64(g.BytesPerSector)
}

// AmountOfChunks returns ceil(media_size / chunk_size).
func (g Geometry) AmountOfChunks() uint64 {
	cs := g.ChunkSize()
	if cs == 0 {
		return 0
	}
	ms := g.MediaSize()
	return (ms + cs - 1) / cs
}

// Validate checks that bytes_per_sector and sectors_per_chunk are both
// non-zero, per spec §4.5 "Initialization". chunk_size is always derived
// from their product (ChunkSize), so it is not checked separately.
func (g Geometry) Validate() error {
	if g.BytesPerSector == 0 {
		return fmt.Errorf("media: bytes_per_sector must be non-zero")
	}
	if g.SectorsPerChunk == 0 {
		return fmt.Errorf("media: sectors_per_chunk must be non-zero")
	}
	return nil
}

// SectorError is a contiguous run of sectors, used for both the
// acquisition-error list (written to error2) and the CRC-error list
// (read-side, in-memory only).
type SectorError struct {
	StartSector     uint64
	AmountOfSectors uint32
}

// ErrorList is an insertion-ordered, dedup-by-start-sector list of
// sector error ranges.
type ErrorList struct {
	entries []SectorError
	seen    map[uint64]int
}

// NewErrorList returns an empty error list.
func NewErrorList() *ErrorList {
	return &ErrorList{seen: make(map[uint64]int)}
}

// Add records a sector range. Per spec §6 "add_acquiry_error" /
// "add_crc_error", a second Add for a start sector already present
// overwrites that entry's length rather than appending a duplicate.
func (l *ErrorList) Add(start uint64, amount uint32) {
	if idx, ok := l.seen[start]; ok {
		l.entries[idx].AmountOfSectors = amount
		return
	}
	l.seen[start] = len(l.entries)
	l.entries = append(l.entries, SectorError{StartSector: start, AmountOfSectors: amount})
}

// Len reports the number of distinct ranges.
func (l *ErrorList) Len() int { return len(l.entries) }

// Entries returns the ranges in insertion order. The returned slice must
// not be mutated.
func (l *ErrorList) Entries() []SectorError { return l.entries }
