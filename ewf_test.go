package ewf

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ewf/ewf/internal/media"
	"github.com/go-ewf/ewf/internal/section"
	"github.com/go-ewf/ewf/internal/segment"
)

func writeAndReadBack(t *testing.T, data []byte, opts ...WriteOption) (written, read []byte, h2 *Handle) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.E01")

	h, err := Create(path, opts...)
	require.NoError(t, err)
	n, err := h.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	_, err = h.WriteFinalize()
	require.NoError(t, err)

	var paths []string
	for _, f := range h.primary.Files {
		paths = append(paths, f.Path)
	}
	require.NoError(t, h.Close())

	h2, err = Open(paths, FlagRead)
	require.NoError(t, err)
	out, err := h2.ReadAll()
	require.NoError(t, err)
	return data, out, h2
}

func TestWriteReadRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 2000)
	written, read, h := writeAndReadBack(t, data, WithChunkGeometry(8, 512))
	defer h.Close()

	// The media size is a whole number of 512-byte sectors, so the stream
	// read back is the written data rounded up to the next sector.
	assert.Equal(t, (len(written)+511)/512*512, len(read))
	assert.True(t, bytes.Equal(written, read[:len(written)]))

	sum := md5.Sum(written)
	got, ok := h.GetMD5Hash()
	require.True(t, ok)
	assert.Equal(t, sum, got)
}

func TestWriteReadEmptyIdenticalChunk(t *testing.T) {
	data := make([]byte, 64*512*3) // all-zero, sparse-media shaped input.
	_, read, h := writeAndReadBack(t, data, WithCompressEmptyBlock(true))
	defer h.Close()

	assert.Equal(t, len(data), len(read))
	assert.True(t, bytes.Equal(data, read))
}

func TestWriteReadAcrossSegmentRollover(t *testing.T) {
	data := bytes.Repeat([]byte("segment rollover payload bytes "), 4000)
	_, read, h := writeAndReadBack(t, data, WithChunkGeometry(4, 512), WithSegmentFileSize(16*1024))
	defer h.Close()

	assert.Equal(t, data, read[:len(data)])
	assert.GreaterOrEqual(t, len(h.primary.Files), 2)
}

func TestReadCRCMismatchIsRecoverable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.E01")
	data := bytes.Repeat([]byte("A"), 512*8)

	h, err := Create(path, WithChunkGeometry(8, 512), WithCompressionLevel(media.CompressionNone), WithCompressEmptyBlock(false))
	require.NoError(t, err)
	_, err = h.Write(data)
	require.NoError(t, err)
	_, err = h.WriteFinalize()
	require.NoError(t, err)
	require.NoError(t, h.Close())

	// Locate the sectors section's body start by walking the raw segment,
	// then flip a byte well inside the first chunk's stored payload so
	// only its trailing CRC breaks, not any section framing.
	probe, err := segment.Open(path, 1)
	require.NoError(t, err)
	var sectorsBodyStart uint64
	err = probe.Walk(func(d segment.Descriptor, body []byte) error {
		if d.Header.Kind() == section.KindSectors {
			sectorsBodyStart = d.Offset + section.HeaderSize
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, probe.Close())
	require.NotZero(t, sectorsBodyStart)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[sectorsBodyStart+10] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0644))

	h2, err := Open([]string{path}, FlagRead)
	require.NoError(t, err)
	defer h2.Close()

	_, err = h2.ReadAll()
	require.NoError(t, err)
	assert.Greater(t, h2.GetAmountOfCRCErrors(), 0)
}

func TestAcquiryErrorRecordedOnShortInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.E01")
	h, err := Create(path, WithChunkGeometry(8, 512))
	require.NoError(t, err)
	require.NoError(t, h.SetWriteInputSize(8*512*3))

	_, err = h.Write(bytes.Repeat([]byte{0x41}, 8*512)) // only 1 of 3 chunks written.
	require.NoError(t, err)
	_, err = h.WriteFinalize()
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h2, err := Open([]string{path}, FlagRead)
	require.NoError(t, err)
	defer h2.Close()
	assert.Greater(t, h2.GetAmountOfAcquiryErrors(), 0)
}

func TestCheckSignatureRejectsNonEWF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-ewf.bin")
	require.NoError(t, os.WriteFile(path, []byte("not an ewf file at all"), 0644))

	ok, err := CheckSignature(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetGUIDWriteOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.E01")
	h, err := Create(path)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetGUID([16]byte{1, 2, 3}))
	err = h.SetGUID([16]byte{4, 5, 6})
	assert.Error(t, err)
}

func TestCopyHeaderValuesBetweenHandles(t *testing.T) {
	src, err := Create(filepath.Join(t.TempDir(), "src.E01"))
	require.NoError(t, err)
	defer src.Close()
	dst, err := Create(filepath.Join(t.TempDir(), "dst.E01"))
	require.NoError(t, err)
	defer dst.Close()

	require.NoError(t, src.SetHeaderValue("c", "case-0001"))
	require.NoError(t, src.SetHeaderValue("e", "jdoe"))

	require.NoError(t, CopyHeaderValues(dst, src))

	v, ok := dst.GetHeaderValue("c")
	require.True(t, ok)
	assert.Equal(t, "case-0001", v)
	v, ok = dst.GetHeaderValue("e")
	require.True(t, ok)
	assert.Equal(t, "jdoe", v)
	assert.ElementsMatch(t, src.HeaderValues(), dst.HeaderValues())
}

func TestDigestSectionCarriesComputedSHA1(t *testing.T) {
	data := bytes.Repeat([]byte("digest coverage payload"), 500)
	_, _, h := writeAndReadBack(t, data, WithFormat(media.FormatEnCase6), WithChunkGeometry(8, 512))
	defer h.Close()

	want := sha1.Sum(data)
	got, ok := h.GetSHA1Hash()
	require.True(t, ok)
	assert.Equal(t, want, got)
}
