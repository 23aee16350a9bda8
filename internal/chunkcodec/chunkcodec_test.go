package chunkcodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("forensic image chunk payload "), 200)
	compressed, ok, err := Compress(data, len(data))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Less(t, len(compressed), len(data))

	decoded, err := Decompress(compressed, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
	PutBuf(decoded)
}

func TestCompressRejectsWhenNotSmaller(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	_, ok, err := Compress(data, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChecksumIsDeterministic(t *testing.T) {
	data := []byte("some sector data")
	assert.Equal(t, Checksum(data), Checksum(data))
	assert.NotEqual(t, Checksum(data), Checksum([]byte("other sector data")))
}

func TestIsAllIdentical(t *testing.T) {
	assert.True(t, IsAllIdentical(bytes.Repeat([]byte{0x00}, 512)))
	assert.True(t, IsAllIdentical(nil))
	assert.False(t, IsAllIdentical([]byte{0x00, 0x01}))
}

func TestBufPoolAllocFree(t *testing.T) {
	buf := GetBuf(4096)
	assert.Len(t, buf, 4096)
	PutBuf(buf)
}
