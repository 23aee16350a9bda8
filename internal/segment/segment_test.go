package segment

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ewf/ewf/internal/section"
)

func TestCreateOpenSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.E01")
	sf, err := Create(path, 1, 0)
	require.NoError(t, err)
	require.NoError(t, sf.Close())

	ok, err := CheckSignature(path)
	require.NoError(t, err)
	assert.True(t, ok)

	reopened, err := Open(path, 1)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(FileHeaderSize), reopened.Offset())
}

func TestAppendAndWalk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.E01")
	sf, err := Create(path, 1, 0)
	require.NoError(t, err)

	_, err = sf.Append(section.KindVolume, []byte("volume-body-bytes"))
	require.NoError(t, err)
	doneOffset := sf.Offset()
	_, err = sf.AppendAt(section.KindDone, nil, doneOffset)
	require.NoError(t, err)
	require.NoError(t, sf.Close())

	reopened, err := Open(path, 1)
	require.NoError(t, err)
	defer reopened.Close()

	var seen []section.Kind
	err = reopened.Walk(func(d Descriptor, body []byte) error {
		seen = append(seen, d.Header.Kind())
		if d.Header.Kind() == section.KindVolume {
			assert.Equal(t, "volume-body-bytes", string(body))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []section.Kind{section.KindVolume, section.KindDone}, seen)
}

func TestRemainingBudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.E01")
	sf, err := Create(path, 1, FileHeaderSize+100)
	require.NoError(t, err)
	defer sf.Close()

	assert.Equal(t, uint64(100), sf.Remaining())
	_, err = sf.AppendRaw(make([]byte, 40))
	require.NoError(t, err)
	assert.Equal(t, uint64(60), sf.Remaining())
}

func TestRewriteHeaderPatchesSizeInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.E01")
	sf, err := Create(path, 1, 0)
	require.NoError(t, err)

	headerOffset := sf.Offset()
	_, err = sf.AppendAt(section.KindSectors, nil, headerOffset+section.HeaderSize)
	require.NoError(t, err)
	_, err = sf.AppendRaw([]byte("chunk-bytes"))
	require.NoError(t, err)

	require.NoError(t, sf.RewriteHeader(headerOffset, section.KindSectors, sf.Offset(), sf.Offset()-headerOffset))
	require.NoError(t, sf.Close())

	reopened, err := Open(path, 1)
	require.NoError(t, err)
	defer reopened.Close()

	err = reopened.Walk(func(d Descriptor, body []byte) error {
		assert.Equal(t, section.KindSectors, d.Header.Kind())
		assert.Equal(t, "chunk-bytes", string(body))
		// No done/next section follows; stop instead of reading past EOF.
		return io.EOF
	})
	require.NoError(t, err)
}

func TestTableCreateNextNaming(t *testing.T) {
	base := filepath.Join(t.TempDir(), "image.E01")
	tbl := NewTable(base, nil)

	f1, err := tbl.CreateNext(0)
	require.NoError(t, err)
	assert.Equal(t, base, f1.Path)

	f2, err := tbl.CreateNext(0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(base), "image.E02"), f2.Path)

	require.NoError(t, tbl.CloseAll())
}
