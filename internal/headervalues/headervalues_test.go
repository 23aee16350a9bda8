package headervalues

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRoundTrip(t *testing.T) {
	v := New()
	v.Set("c", "case-001")
	v.Set("e", "jdoe")
	v.Set("a", "")

	text := EncodeText(v)
	decoded, err := DecodeText(text)
	require.NoError(t, err)

	got, ok := decoded.Get("c")
	require.True(t, ok)
	assert.Equal(t, "case-001", got)

	got, ok = decoded.Get("e")
	require.True(t, ok)
	assert.Equal(t, "jdoe", got)
}

func TestSectionRoundTrip(t *testing.T) {
	v := New()
	v.Set("c", "case-002")
	v.Set("n", "notes here")

	body, err := EncodeSection(v)
	require.NoError(t, err)

	decoded, err := DecodeSection(body)
	require.NoError(t, err)
	got, ok := decoded.Get("n")
	require.True(t, ok)
	assert.Equal(t, "notes here", got)
}

func TestCopyPreservesOrderAndOverwrites(t *testing.T) {
	dst := New()
	dst.Set("c", "old-case")
	dst.Set("z", "kept")

	src := New()
	src.Set("c", "new-case")
	src.Set("e", "examiner")

	Copy(dst, src)

	got, _ := dst.Get("c")
	assert.Equal(t, "new-case", got)
	got, _ = dst.Get("e")
	assert.Equal(t, "examiner", got)
	got, _ = dst.Get("z")
	assert.Equal(t, "kept", got)

	// Original order ("c", "z") is preserved; "e" is appended.
	assert.Equal(t, []string{"c", "z", "e"}, dst.Idents())
}
