// Package offsettable maps a logical chunk index to the physical
// location (segment, file offset, compressed flag, stored size) that
// holds it, per spec §4.3. It is an arena of plain entries — no
// back-pointers — built fresh from table/table2 sections on read and
// grown in chunk-index order on write.
package offsettable

import "fmt"

// Entry is one resolved offset-table slot.
type Entry struct {
	SegmentIndex int
	FileOffset   uint64
	Compressed   bool
	// StoredSize is derived from the next entry's offset (or the
	// section/segment tail for the last entry in a table), since only
	// the start offset is stored on disk.
	StoredSize uint32
	// Unavailable marks a chunk whose table and table2 both failed CRC;
	// reads of it must fail with ChunkUnavailable.
	Unavailable bool
}

// Table is the dense, arena-style chunk index -> Entry map for one open
// image (primary or delta segment set).
type Table struct {
	entries []Entry
}

// New returns an empty table sized to hold n chunks.
func New(n int) *Table {
	return &Table{entries: make([]Entry, 0, n)}
}

// Len reports the number of resolved chunks.
func (t *Table) Len() int { return len(t.entries) }

// Append adds the next entry in chunk-index order. Per spec §4.3, write
// entries must be monotonic in file offset within one segment; this is
// enforced by the writer, not here, since a read-path table legitimately
// restarts file offsets at the start of each new segment.
func (t *Table) Append(e Entry) {
	t.entries = append(t.entries, e)
}

// MarkUnavailable appends a run of n unresolved entries, e.g. when a
// segment's table and table2 both fail CRC (spec §4.3).
func (t *Table) MarkUnavailable(n int) {
	for i := 0; i < n; i++ {
		t.entries = append(t.entries, Entry{Unavailable: true})
	}
}

// At resolves chunk index i. Returns an error if i is out of range or
// the chunk was never resolved to a valid table/table2 entry.
func (t *Table) At(i uint64) (Entry, error) {
	if i >= uint64(len(t.entries)) {
		return Entry{}, fmt.Errorf("offsettable: chunk %d out of range (have %d)", i, len(t.entries))
	}
	e := t.entries[i]
	if e.Unavailable {
		return e, &UnavailableError{Chunk: i}
	}
	return e, nil
}

// All returns the entries in chunk-index order. The returned slice must
// not be mutated by the caller.
func (t *Table) All() []Entry { return t.entries }

// UnavailableError is returned by At when no valid table/table2 entry
// resolves the requested chunk (spec §4.3, §7 kind ChunkUnavailable).
type UnavailableError struct {
	Chunk uint64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("offsettable: chunk %d unavailable: no valid table or table2 entry", e.Chunk)
}
