// Package chunkcodec implements the EWF chunk pipeline: deflate
// compression and Adler-32 chunk checksums, with pooled staging buffers
// so the read and write hot paths avoid per-chunk allocation.
package chunkcodec

import (
	"bytes"
	"fmt"
	"hash/adler32"
	"io"

	"github.com/klauspost/compress/zlib"
	sp "github.com/ongniud/slice-pool"
)

// bufPool hands out chunk-sized byte slices for compression staging and
// decompression output, generalizing spec §9's "one compress buffer, one
// decompress buffer per handle" to a pool shared across a process's
// handles, per the domain-stack wiring in SPEC_FULL.md §2.1.
var bufPool = sp.NewSlicePoolDefault[byte]()

// GetBuf borrows a buffer of at least size n from the pool.
func GetBuf(n int) []byte {
	return bufPool.Alloc(n)[0:n]
}

// PutBuf returns a buffer borrowed from GetBuf.
func PutBuf(buf []byte) {
	bufPool.Free(buf)
}

// Checksum computes the Adler-32 checksum (seed 1, per zlib/adler32
// convention) stored as the trailing 4 bytes of an uncompressed chunk.
func Checksum(data []byte) uint32 {
	return adler32.Checksum(data)
}

// Compress deflates data into dst (grown as needed) and returns the
// compressed slice. Returns ok=false if the compressed form is not
// strictly smaller than threshold, per spec §4.5(2): the caller should
// then store the data uncompressed and append a CRC instead.
func Compress(data []byte, threshold int) (out []byte, ok bool, err error) {
	buf := &bytes.Buffer{}
	w := zlib.NewWriter(buf)
	if _, err = w.Write(data); err != nil {
		return nil, false, fmt.Errorf("chunkcodec: compress: %w", err)
	}
	if err = w.Close(); err != nil {
		return nil, false, fmt.Errorf("chunkcodec: compress: %w", err)
	}
	if buf.Len() >= threshold {
		return nil, false, nil
	}
	return buf.Bytes(), true, nil
}

// Decompress inflates a stored compressed chunk into a buffer of exactly
// chunkSize bytes. Per spec §4.4(3), the trailing 4 bytes of a compressed
// stream are not a checksum — deflate already self-checks — so any
// inflate failure is reported as ChunkCorrupt by the caller.
func Decompress(compressed []byte, chunkSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: open deflate stream: %w", err)
	}
	defer r.Close()
	out := GetBuf(chunkSize)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		PutBuf(out)
		return nil, fmt.Errorf("chunkcodec: inflate: %w", err)
	}
	return out[:n], nil
}

// IsAllIdentical reports whether every byte of data equals the first,
// the condition spec §4.5(3)'s compress_empty_block policy checks before
// compressing an otherwise-uncompressed chunk of sparse media.
func IsAllIdentical(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	first := data[0]
	for _, b := range data[1:] {
		if b != first {
			return false
		}
	}
	return true
}
