package ewf

import (
	"crypto/md5"
	"crypto/sha1"

	"github.com/go-ewf/ewf/internal/chunkcodec"
	"github.com/go-ewf/ewf/internal/headervalues"
	"github.com/go-ewf/ewf/internal/media"
	"github.com/go-ewf/ewf/internal/offsettable"
	"github.com/go-ewf/ewf/internal/section"
	"github.com/go-ewf/ewf/internal/segment"
)

// segmentOverhead is the bytes a rollover needs for the table, table2, and
// next section headers. flushChunkLocked adds the table and table2 bodies
// sized for one more offset on top of it, and the sum decides whether the
// current segment has room before a chunk is staged, per spec §4.5
// "Segment-size budgeting".
const segmentOverhead = 3 * section.HeaderSize

// Write appends len(buf) bytes of media data to the image, per spec §4.5
// and §6 "write(handle, buf, n)". The first call triggers write
// initialization (spec §4.6): geometry is validated and frozen, and the
// first segment's header/header2/volume sections and opening sectors
// section are written.
func (h *Handle) Write(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateOpenedWrite {
		if err := h.writeInitLocked(); err != nil {
			return 0, err
		}
	}
	if h.state != stateWriteInitialized {
		return 0, newErr(KindInvalidArgument, "write", "handle is not open for write", nil)
	}

	h.md5ctx.Write(buf)
	h.sha1ctx.Write(buf)
	chunkSize := int(h.geometry.ChunkSize())
	total := 0
	for total < len(buf) {
		n := copy(h.pending[h.pendingLen:chunkSize], buf[total:])
		h.pendingLen += n
		total += n
		if h.pendingLen == chunkSize {
			if err := h.flushChunkLocked(); err != nil {
				return total, err
			}
		}
	}
	h.writtenBytes += uint64(total)
	return total, nil
}

// WriteFinalize flushes any partial chunk, closes the current sectors
// section with its table/table2 pair, and appends the hash/digest/done
// sections, per spec §4.5 "Finalization" and §6 "write_finalize".
func (h *Handle) WriteFinalize() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finalizeLocked()
}

func (h *Handle) finalizeLocked() (int, error) {
	if h.state != stateWriteInitialized {
		if h.state == stateOpenedWrite {
			// No byte was ever written: still run initialization so an
			// empty image gets a valid, closed segment set.
			if err := h.writeInitLocked(); err != nil {
				return 0, err
			}
		} else {
			return 0, newErr(KindInvalidArgument, "write", "handle is not open for write", nil)
		}
	}

	if h.pendingLen > 0 {
		if h.padShortInput {
			start := h.chunkIndex*uint64(h.geometry.SectorsPerChunk) + uint64(h.pendingLen)/uint64(h.geometry.BytesPerSector)
			missing := (uint64(len(h.pending)) - uint64(h.pendingLen)) / uint64(h.geometry.BytesPerSector)
			if missing > 0 {
				h.acquiryErrors.Add(start, uint32(missing))
			}
			for i := h.pendingLen; i < len(h.pending); i++ {
				h.pending[i] = 0
			}
			h.pendingLen = len(h.pending)
		}
		if err := h.flushChunkLocked(); err != nil {
			return 0, err
		}
	}

	// If the caller declared a media size up front (SetWriteInputSize) and
	// stopped writing before reaching it, pad the rest with zero chunks
	// and mark them as acquisition errors; padShortInput=false instead
	// shrinks amount_of_sectors to what was actually written, below.
	if h.padShortInput {
		amountOfChunks := h.geometry.AmountOfChunks()
		for h.chunkIndex < amountOfChunks {
			for i := range h.pending {
				h.pending[i] = 0
			}
			h.pendingLen = len(h.pending)
			h.acquiryErrors.Add(h.chunkIndex*uint64(h.geometry.SectorsPerChunk), h.geometry.SectorsPerChunk)
			if err := h.flushChunkLocked(); err != nil {
				return 0, err
			}
		}
	}

	if err := h.closeSectorsSectionLocked(); err != nil {
		return 0, err
	}

	if !h.padShortInput && h.writtenBytes < h.geometry.MediaSize() && h.geometry.BytesPerSector > 0 {
		h.geometry.AmountOfSectors = h.writtenBytes / uint64(h.geometry.BytesPerSector)
	}

	if !h.md5Set {
		copy(h.md5Sum[:], h.md5ctx.Sum(nil))
		h.md5Set = true
	}
	if !h.sha1Set && h.format.HasDigest() {
		copy(h.sha1Sum[:], h.sha1ctx.Sum(nil))
		h.sha1Set = true
	}

	cur := h.primary.Last()
	if h.acquiryErrors.Len() > 0 {
		errs := make([]section.SectorError, h.acquiryErrors.Len())
		for i, e := range h.acquiryErrors.Entries() {
			errs[i] = section.SectorError{StartSector: e.StartSector, AmountOfSectors: e.AmountOfSectors}
		}
		if _, err := cur.Append(section.KindError2, section.EncodeError2(errs)); err != nil {
			return 0, newErr(KindIO, "write", "append error2 section", err)
		}
	}
	hashBody := section.EncodeHash(section.Hash{MD5: h.md5Sum})
	if _, err := cur.Append(section.KindHash, hashBody); err != nil {
		return 0, newErr(KindIO, "write", "append hash section", err)
	}
	if h.format.HasDigest() {
		digestBody := section.EncodeDigest(section.Digest{MD5: h.md5Sum, SHA1: h.sha1Sum})
		if _, err := cur.Append(section.KindDigest, digestBody); err != nil {
			return 0, newErr(KindIO, "write", "append digest section", err)
		}
	}
	if h.format.HasXHeader() {
		xhashBody, err := headervalues.EncodeSection(h.headerValues)
		if err != nil {
			return 0, newErr(KindIO, "write", "encode xhash", err)
		}
		if _, err := cur.Append(section.KindXHash, xhashBody); err != nil {
			return 0, newErr(KindIO, "write", "append xhash section", err)
		}
	}
	doneOffset := cur.Offset()
	if _, err := cur.AppendAt(section.KindDone, nil, doneOffset); err != nil {
		return 0, newErr(KindIO, "write", "append done section", err)
	}

	h.state = stateFinalized
	return int(h.writtenBytes), nil
}

// writeInitLocked validates geometry, creates the first segment, and
// writes its header/header2/volume sections plus an open sectors section,
// per spec §4.6 "first write triggers write initialization".
func (h *Handle) writeInitLocked() error {
	if err := h.geometry.Validate(); err != nil {
		return newErr(KindInvalidArgument, "write", "invalid geometry", err)
	}
	if h.geometry.BytesPerSector == 0 {
		h.geometry.BytesPerSector = 512
	}
	if h.geometry.SectorsPerChunk == 0 {
		h.geometry.SectorsPerChunk = 64
	}
	if h.inputSize > 0 {
		h.geometry.AmountOfSectors = (h.inputSize + uint64(h.geometry.BytesPerSector) - 1) / uint64(h.geometry.BytesPerSector)
	}

	h.md5ctx = md5.New()
	h.sha1ctx = sha1.New()
	h.pending = make([]byte, h.geometry.ChunkSize())
	h.offsets = offsettable.New(int(h.geometry.AmountOfChunks()))

	sf, err := h.primary.CreateNext(h.segmentFileSize)
	if err != nil {
		return newErr(KindIO, "write", "create first segment", err)
	}

	headerBody, err := headervalues.EncodeSection(h.headerValues)
	if err != nil {
		return newErr(KindIO, "write", "encode header", err)
	}
	if _, err := sf.Append(section.KindHeader, headerBody); err != nil {
		return newErr(KindIO, "write", "append header section", err)
	}
	if h.format.HasHeader2() {
		if _, err := sf.Append(section.KindHeader2, headerBody); err != nil {
			return newErr(KindIO, "write", "append header2 section", err)
		}
	}
	if h.format.HasXHeader() {
		if _, err := sf.Append(section.KindXHeader, headerBody); err != nil {
			return newErr(KindIO, "write", "append xheader section", err)
		}
	}

	vol := section.Volume{
		MediaType:        uint8(h.geometry.MediaType),
		SectorsPerChunk:  h.geometry.SectorsPerChunk,
		BytesPerSector:   h.geometry.BytesPerSector,
		AmountOfSectors:  uint32(h.geometry.AmountOfSectors),
		MediaFlags:       uint8(h.geometry.MediaFlags),
		CompressionLevel: uint8(h.compressionLevel),
		ErrorGranularity: h.geometry.ErrorGranularity,
		GUID:             h.guid,
		Signature:        [5]byte{'\x0d', '\x0a', '\xff', '\x00', '\x00'},
	}
	volKind := section.KindVolume
	if h.format == media.FormatSMART || h.format == media.FormatFTK {
		volKind = section.KindDisk
	}
	if _, err := sf.Append(volKind, section.EncodeVolume(vol)); err != nil {
		return newErr(KindIO, "write", "append volume section", err)
	}

	if err := h.openSectorsSectionLocked(); err != nil {
		return err
	}

	h.cur = sf
	h.chunkIndex = 0
	h.state = stateWriteInitialized
	return nil
}

// openSectorsSectionLocked begins a new sectors section on the current
// segment. Its header is written with a placeholder next_section_offset
// that closeSectorsSectionLocked patches once the section's final size is
// known, since chunks are appended to its body one at a time.
func (h *Handle) openSectorsSectionLocked() error {
	sf := h.primary.Last()
	h.tableBase = sf.Offset() + section.HeaderSize
	if _, err := sf.AppendAt(section.KindSectors, nil, sf.Offset()+section.HeaderSize); err != nil {
		return newErr(KindIO, "write", "open sectors section", err)
	}
	h.tableOffsets = h.tableOffsets[:0]
	return nil
}

// closeSectorsSectionLocked patches the open sectors section's declared
// size to its actual body length, then emits the table and table2
// sections that describe it, per spec §4.3 and §4.5. An image with no
// chunks at all still gets an empty table pair. The next section that
// ends a non-final segment is appended by flushChunkLocked on rollover.
func (h *Handle) closeSectorsSectionLocked() error {
	sf := h.primary.Last()
	if len(h.tableOffsets) == 0 && h.chunkIndex > 0 {
		return nil
	}
	if err := h.rewriteSectorsHeaderLocked(sf); err != nil {
		return err
	}
	return h.emitTablesLocked(sf)
}

// rewriteSectorsHeaderLocked rewrites the sectors section header now that
// its body length (sf.Offset() - tableBase) is known.
func (h *Handle) rewriteSectorsHeaderLocked(sf *segment.File) error {
	headerOffset := h.tableBase - section.HeaderSize
	size := sf.Offset() - headerOffset
	return sf.RewriteHeader(headerOffset, section.KindSectors, sf.Offset(), size)
}

func (h *Handle) emitTablesLocked(sf *segment.File) error {
	offsets := make([]section.Offset, len(h.tableOffsets))
	for i, to := range h.tableOffsets {
		offsets[i] = section.Offset{RelativeOffset: to.relOffset, Compressed: to.compressed}
	}
	tbl := section.Table{BaseOffset: h.tableBase, Offsets: offsets}
	body := section.EncodeTable(tbl)

	if _, err := sf.Append(section.KindTable, body); err != nil {
		return newErr(KindIO, "write", "append table section", err)
	}
	if _, err := sf.Append(section.KindTable2, body); err != nil {
		return newErr(KindIO, "write", "append table2 section", err)
	}
	return nil
}

// flushChunkLocked compresses or CRCs the staged chunk, appends it to the
// current segment, rolling over to a new one first if it would not fit,
// and records its offset-table entry, per spec §4.5.
func (h *Handle) flushChunkLocked() error {
	data := h.pending[:h.pendingLen]

	var stored []byte
	compressed := false
	if h.compressionLevel != media.CompressionNone || (h.compressEmptyBlock && chunkcodec.IsAllIdentical(data)) {
		threshold := int(h.geometry.ChunkSize()) - 4
		if out, ok, err := chunkcodec.Compress(data, threshold); err == nil && ok {
			stored = out
			compressed = true
		}
	}
	if stored == nil {
		crc := chunkcodec.Checksum(data)
		stored = make([]byte, len(data)+4)
		copy(stored, data)
		stored[len(data)] = byte(crc)
		stored[len(data)+1] = byte(crc >> 8)
		stored[len(data)+2] = byte(crc >> 16)
		stored[len(data)+3] = byte(crc >> 24)
	}

	tableBody := uint64(section.TableHeaderSize + 4*(len(h.tableOffsets)+1) + 4)
	needed := uint64(len(stored)) + segmentOverhead + 2*tableBody
	if h.primary.Last().Remaining() < needed {
		if len(h.tableOffsets) == 0 {
			return newErr(KindInvalidArgument, "write", "segment file size too small to hold even one chunk", nil)
		}
		if err := h.closeSectorsSectionLocked(); err != nil {
			return err
		}
		last := h.primary.Last()
		if _, err := last.AppendAt(section.KindNext, nil, last.Offset()); err != nil {
			return newErr(KindIO, "write", "append next section", err)
		}
		sf, err := h.primary.CreateNext(h.segmentFileSize)
		if err != nil {
			return newErr(KindIO, "write", "create next segment", err)
		}
		h.cur = sf
		if err := h.openSectorsSectionLocked(); err != nil {
			return err
		}
		if sf.Remaining() < needed {
			return newErr(KindInvalidArgument, "write", "segment file size too small to hold even one chunk", nil)
		}
	}

	sf := h.primary.Last()
	chunkOffset, err := sf.AppendRaw(stored)
	if err != nil {
		return newErr(KindIO, "write", "append chunk", err)
	}

	h.offsets.Append(offsettable.Entry{
		SegmentIndex: sf.Index,
		FileOffset:   chunkOffset,
		Compressed:   compressed,
		StoredSize:   uint32(len(stored)),
	})
	h.tableOffsets = append(h.tableOffsets, tableOffset{
		relOffset:  uint32(chunkOffset - h.tableBase),
		compressed: compressed,
	})

	h.chunkIndex++
	h.pendingLen = 0

	if len(h.tableOffsets) >= h.format.MaxOffsetsPerTable() {
		if err := h.closeSectorsSectionLocked(); err != nil {
			return err
		}
		if err := h.openSectorsSectionLocked(); err != nil {
			return err
		}
	}
	return nil
}
