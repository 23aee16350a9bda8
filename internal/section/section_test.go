package section

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, KindTable, 4096, 512))

	h, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindTable, h.Kind())
	assert.Equal(t, uint64(4096), h.NextOffset)
	assert.Equal(t, uint64(512), h.Size)
}

func TestHeaderCRCMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, KindSectors, 100, 76))
	corrupt := buf.Bytes()
	corrupt[0] ^= 0xff

	_, err := ReadHeader(bytes.NewReader(corrupt))
	require.Error(t, err)
	var ce *CorruptError
	assert.ErrorAs(t, err, &ce)
}

func TestVolumeRoundTrip(t *testing.T) {
	v := Volume{
		MediaType:        1,
		SectorsPerChunk:  64,
		BytesPerSector:   512,
		AmountOfSectors:  2048,
		MediaFlags:       1,
		CompressionLevel: 1,
		ErrorGranularity: 64,
		GUID:             [16]byte{1, 2, 3, 4},
	}
	body := EncodeVolume(v)
	decoded, err := DecodeVolume(body)
	require.NoError(t, err)
	assert.Equal(t, v.SectorsPerChunk, decoded.SectorsPerChunk)
	assert.Equal(t, v.BytesPerSector, decoded.BytesPerSector)
	assert.Equal(t, v.AmountOfSectors, decoded.AmountOfSectors)
	assert.Equal(t, v.GUID, decoded.GUID)
}

func TestTableRoundTrip(t *testing.T) {
	tbl := Table{
		BaseOffset: 1000,
		Offsets: []Offset{
			{RelativeOffset: 0, Compressed: false},
			{RelativeOffset: 600, Compressed: true},
			{RelativeOffset: 1200, Compressed: false},
		},
	}
	body := EncodeTable(tbl)
	decoded, err := DecodeTable(body)
	require.NoError(t, err)
	assert.Equal(t, tbl.BaseOffset, decoded.BaseOffset)
	assert.Equal(t, tbl.Offsets, decoded.Offsets)
}

func TestTableCRCMismatchStillReturnsOffsets(t *testing.T) {
	tbl := Table{BaseOffset: 0, Offsets: []Offset{{RelativeOffset: 10}}}
	body := EncodeTable(tbl)
	body[len(body)-1] ^= 0xff

	decoded, err := DecodeTable(body)
	require.Error(t, err)
	assert.Equal(t, tbl.Offsets, decoded.Offsets)
}

func TestHashRoundTrip(t *testing.T) {
	h := Hash{MD5: [16]byte{1, 2, 3}}
	body := EncodeHash(h)
	decoded, err := DecodeHash(body)
	require.NoError(t, err)
	assert.Equal(t, h.MD5, decoded.MD5)
}

func TestDigestRoundTrip(t *testing.T) {
	d := Digest{MD5: [16]byte{1}, SHA1: [20]byte{2}}
	body := EncodeDigest(d)
	decoded, err := DecodeDigest(body)
	require.NoError(t, err)
	assert.Equal(t, d, decoded)
}

func TestError2RoundTrip(t *testing.T) {
	errs := []SectorError{{StartSector: 10, AmountOfSectors: 5}, {StartSector: 100, AmountOfSectors: 1}}
	body := EncodeError2(errs)
	decoded, err := DecodeError2(body)
	require.NoError(t, err)
	assert.Equal(t, errs, decoded)
}
