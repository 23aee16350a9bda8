package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometryDerivedSizes(t *testing.T) {
	g := Geometry{SectorsPerChunk: 64, BytesPerSector: 512, AmountOfSectors: 200}
	assert.Equal(t, uint64(64*512), g.ChunkSize())
	assert.Equal(t, uint64(200*512), g.MediaSize())
	// 200 sectors at 64 sectors/chunk needs 4 chunks (ceil(200/64)).
	assert.Equal(t, uint64(4), g.AmountOfChunks())
}

func TestGeometryValidate(t *testing.T) {
	require.Error(t, Geometry{}.Validate())
	require.Error(t, Geometry{BytesPerSector: 512}.Validate())
	require.NoError(t, Geometry{BytesPerSector: 512, SectorsPerChunk: 64}.Validate())
}

func TestFormatCapabilities(t *testing.T) {
	assert.True(t, FormatEnCase6.HasHeader2())
	assert.True(t, FormatEnCase6.HasXHeader())
	assert.True(t, FormatEnCase6.HasDigest())
	assert.False(t, FormatEnCase1.HasHeader2())
	assert.Equal(t, 16384, FormatEnCase5.MaxOffsetsPerTable())
	assert.Equal(t, 65534, FormatSMART.MaxOffsetsPerTable())
}

func TestErrorListDedupByStart(t *testing.T) {
	l := NewErrorList()
	l.Add(10, 5)
	l.Add(20, 2)
	l.Add(10, 8) // overwrites the first entry's length, not a new entry.

	require.Equal(t, 2, l.Len())
	entries := l.Entries()
	assert.Equal(t, uint32(8), entries[0].AmountOfSectors)
	assert.Equal(t, uint64(20), entries[1].StartSector)
}
