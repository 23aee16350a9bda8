package segment

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// NameFunc generates the filename for segment index n (1-based) of an
// image whose first segment lives at basePath, per spec §6 "Filenames":
// E01..E99, then EAA..EZZ, and so on.
type NameFunc func(basePath string, index int) string

// DefaultNameFunc implements the conventional EnCase extension sequence.
func DefaultNameFunc(basePath string, index int) string {
	ext := extensionFor(index)
	return trimKnownExt(basePath) + "." + ext
}

func trimKnownExt(basePath string) string {
	// basePath is expected to end in ".E01"-shaped or bare form; strip a
	// trailing 3-character extension introduced by a prior call so
	// repeated rollovers don't stack extensions.
	if len(basePath) > 4 && basePath[len(basePath)-4] == '.' {
		return basePath[:len(basePath)-4]
	}
	return basePath
}

func extensionFor(index int) string {
	if index < 1 {
		index = 1
	}
	if index <= 99 {
		return fmt.Sprintf("E%02d", index)
	}
	// EAA..EZZ, then FAA.. and so on, matching libewf's rollover scheme.
	n := index - 100
	letter := byte('A' + n/(26*26))
	rest := n % (26 * 26)
	a := byte('A' + rest/26)
	b := byte('A' + rest%26)
	return string([]byte{'E' + (letter - 'A'), a, b})
}

// Table is the ordered list of segment files making up one logical
// image, plus the on-disk paths used to create new segments on
// rollover. Per spec §3 "delta segment table", a read-write handle owns
// two independent Tables that share no files.
type Table struct {
	Files    []*File
	BasePath string
	NameFunc NameFunc
}

// NewTable returns an empty segment table rooted at basePath (the path
// the caller passed to Open for segment 1).
func NewTable(basePath string, nameFunc NameFunc) *Table {
	if nameFunc == nil {
		nameFunc = DefaultNameFunc
	}
	return &Table{BasePath: basePath, NameFunc: nameFunc}
}

// OpenAll opens every path in order as segments 1..N and validates each
// one's signature and segment number concurrently, per SPEC_FULL.md
// §2.1's errgroup-bounded pre-scan: each File is independently opened and
// header-checked, and only after every open succeeds does the table
// expose them in order for sequential walking.
func OpenAll(paths []string) (*Table, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("segment: no paths given")
	}
	files := make([]*File, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			f, err := Open(p, i+1)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
		return nil, err
	}
	t := NewTable(paths[0], nil)
	t.Files = files
	return t, nil
}

// Last returns the most recently added segment, or nil if the table is
// empty.
func (t *Table) Last() *File {
	if len(t.Files) == 0 {
		return nil
	}
	return t.Files[len(t.Files)-1]
}

// CreateNext creates and appends the next segment file in sequence with
// the given size budget.
func (t *Table) CreateNext(budget uint64) (*File, error) {
	index := len(t.Files) + 1
	path := t.NameFunc(t.BasePath, index)
	f, err := Create(path, index, budget)
	if err != nil {
		return nil, err
	}
	t.Files = append(t.Files, f)
	return f, nil
}

// CloseAll closes every segment file in the table.
func (t *Table) CloseAll() error {
	var first error
	for _, f := range t.Files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
