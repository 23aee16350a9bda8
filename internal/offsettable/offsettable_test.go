package offsettable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndAt(t *testing.T) {
	tbl := New(4)
	tbl.Append(Entry{SegmentIndex: 1, FileOffset: 100, StoredSize: 50})
	tbl.Append(Entry{SegmentIndex: 1, FileOffset: 150, StoredSize: 50, Compressed: true})

	assert.Equal(t, 2, tbl.Len())
	e, err := tbl.At(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), e.FileOffset)

	e, err = tbl.At(1)
	require.NoError(t, err)
	assert.True(t, e.Compressed)
}

func TestAtOutOfRange(t *testing.T) {
	tbl := New(1)
	_, err := tbl.At(5)
	assert.Error(t, err)
}

func TestMarkUnavailable(t *testing.T) {
	tbl := New(2)
	tbl.MarkUnavailable(2)
	assert.Equal(t, 2, tbl.Len())

	_, err := tbl.At(0)
	require.Error(t, err)
	var ue *UnavailableError
	assert.ErrorAs(t, err, &ue)
	assert.Equal(t, uint64(0), ue.Chunk)
}

func TestAll(t *testing.T) {
	tbl := New(2)
	tbl.Append(Entry{FileOffset: 1})
	tbl.Append(Entry{FileOffset: 2})
	assert.Len(t, tbl.All(), 2)
}
