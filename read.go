package ewf

import (
	"github.com/go-ewf/ewf/internal/chunkcodec"
	"github.com/go-ewf/ewf/internal/offsettable"
	"github.com/go-ewf/ewf/internal/segment"
)

// Seek repositions the read cursor to a byte offset within the media
// stream, per spec §6 "seek(handle, off)". It resolves chunk and
// intra-chunk offset but does not itself touch the chunk cache.
func (h *Handle) Seek(off uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireOpenForRead(); err != nil {
		return 0, err
	}
	mediaSize := h.geometry.MediaSize()
	if off > mediaSize {
		return 0, newErr(KindInvalidArgument, "read", "seek offset beyond media size", nil)
	}
	chunkSize := h.geometry.ChunkSize()
	if chunkSize == 0 {
		return 0, newErr(KindInvalidArgument, "read", "media geometry has zero chunk size", nil)
	}
	h.posChunk = off / chunkSize
	h.posIntra = off % chunkSize
	return off, nil
}

// Read fills buf with up to len(buf) bytes starting at the current
// cursor, per spec §4.4 and §6 "read(handle, buf, n)". It may return
// fewer bytes than requested at end of media.
func (h *Handle) Read(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireOpenForRead(); err != nil {
		return 0, err
	}
	chunkSize := h.geometry.ChunkSize()
	amountOfChunks := h.geometry.AmountOfChunks()
	mediaSize := h.geometry.MediaSize()
	total := 0
	for total < len(buf) {
		pos := h.posChunk*chunkSize + h.posIntra
		if h.posChunk >= amountOfChunks || pos >= mediaSize {
			break
		}
		chunk, err := h.loadChunkLocked(h.posChunk)
		if err != nil {
			return total, err
		}
		if h.posIntra >= uint64(len(chunk)) {
			// Last chunk was padded short; nothing more to give.
			break
		}
		avail := chunk[h.posIntra:]
		if left := mediaSize - pos; uint64(len(avail)) > left {
			// Zero padding past the end of the media is not returned.
			avail = avail[:left]
		}
		n := copy(buf[total:], avail)
		total += n
		h.posIntra += uint64(n)
		if h.posIntra >= chunkSize {
			h.posChunk++
			h.posIntra = 0
		}
	}
	return total, nil
}

// ReadAll is a convenience wrapper reading the whole media stream from
// its current cursor to the end.
func (h *Handle) ReadAll() ([]byte, error) {
	mediaSize := h.geometry.MediaSize()
	out := make([]byte, 0, mediaSize)
	buf := make([]byte, 1<<20)
	for {
		n, err := h.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if n == 0 || err != nil {
			return out, err
		}
	}
}

// loadChunkLocked returns the decoded (decompressed, CRC-checked) bytes
// of chunk index, from the single-chunk cache if possible, per spec §4.4
// "Only one chunk is cached". The caller must hold h.mu.
func (h *Handle) loadChunkLocked(index uint64) ([]byte, error) {
	if h.cache.valid && h.cache.index == index {
		return h.cache.data, nil
	}

	table := h.offsets
	segTable := h.primary
	if h.deltaOffsets != nil {
		if e, err := h.deltaOffsets.At(index); err == nil {
			_ = e
			table = h.deltaOffsets
			segTable = h.delta
		}
	}

	entry, err := table.At(index)
	if err != nil {
		if _, ok := err.(*offsettable.UnavailableError); ok {
			return nil, newErr(KindChunkUnavailable, "read", "chunk unavailable", err)
		}
		return nil, newErr(KindInvalidArgument, "read", "resolve chunk", err)
	}

	sf := h.segmentByIndex(segTable, entry.SegmentIndex)
	if sf == nil {
		return nil, newErr(KindIO, "read", "segment not open for chunk", nil)
	}
	stored, err := sf.ReadAt(entry.FileOffset, int(entry.StoredSize))
	if err != nil {
		return nil, newErr(KindIO, "read", "read stored chunk", err)
	}

	chunkSize := int(h.geometry.ChunkSize())
	var decoded []byte
	if entry.Compressed {
		decoded, err = chunkcodec.Decompress(stored, chunkSize)
		if err != nil {
			return nil, newErr(KindChunkCorrupt, "read", "inflate chunk", err)
		}
	} else {
		if len(stored) < 4 {
			return nil, newErr(KindChunkCorrupt, "read", "uncompressed chunk shorter than its own CRC", nil)
		}
		payload := stored[:len(stored)-4]
		wantCRC := uint32(stored[len(stored)-4]) | uint32(stored[len(stored)-3])<<8 |
			uint32(stored[len(stored)-2])<<16 | uint32(stored[len(stored)-1])<<24
		gotCRC := chunkcodec.Checksum(payload)
		decoded = append([]byte(nil), payload...)
		if gotCRC != wantCRC {
			h.recordChunkCRCMismatchLocked(index, len(payload))
			if h.wipeOnError {
				for i := range decoded {
					decoded[i] = 0
				}
			}
		}
	}

	h.cache = chunkCache{index: index, data: decoded, valid: true}
	return decoded, nil
}

// recordChunkCRCMismatchLocked records the sector range covered by a
// chunk whose CRC did not verify, per spec §4.4(4) and §8 scenario S4.
func (h *Handle) recordChunkCRCMismatchLocked(chunkIndex uint64, _ int) {
	spc := uint64(h.geometry.SectorsPerChunk)
	h.crcErrors.Add(chunkIndex*spc, uint32(spc))
}

func (h *Handle) segmentByIndex(tbl *segment.Table, index int) *segment.File {
	if tbl == nil {
		return nil
	}
	for _, f := range tbl.Files {
		if f.Index == index {
			return f
		}
	}
	return nil
}
