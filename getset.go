package ewf

import (
	"github.com/go-ewf/ewf/internal/headervalues"
	"github.com/go-ewf/ewf/internal/media"
	"github.com/go-ewf/ewf/internal/segment"
)

// Create opens a fresh segment set for writing, rooted at basePath (the
// first segment's filename; later segments are named from it). It is the
// write-only convenience entry point; Open(paths, FlagWrite, ...) does
// the same thing with library defaults only.
func Create(basePath string, opts ...WriteOption) (*Handle, error) {
	h, err := Open([]string{basePath}, FlagWrite)
	if err != nil {
		return nil, err
	}
	cfg := defaultWriteConfig()
	for _, o := range opts {
		o(&cfg)
	}
	h.applyWriteDefaults(cfg)
	return h, nil
}

func (h *Handle) applyWriteDefaults(cfg writeConfig) {
	h.format = cfg.format
	h.compressionLevel = cfg.compressionLevel
	h.compressEmptyBlock = cfg.compressEmptyBlock
	h.segmentFileSize = cfg.segmentFileSize
	h.padShortInput = cfg.padShortInputToSize
	h.geometry.SectorsPerChunk = cfg.sectorsPerChunk
	h.geometry.BytesPerSector = cfg.bytesPerSector
	h.geometry.ErrorGranularity = cfg.errorGranularity
}

// --- setters, valid only in Opened(Write) before WriteInitialized, per spec §4.6 ---

func (h *Handle) SetSectorsPerChunk(n uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	h.geometry.SectorsPerChunk = n
	return nil
}

func (h *Handle) SetBytesPerSector(n uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	h.geometry.BytesPerSector = n
	return nil
}

func (h *Handle) SetWriteSegmentFileSize(n uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	h.segmentFileSize = n
	return nil
}

// SetGUID sets the acquisition GUID. Write-once: a second call fails.
func (h *Handle) SetGUID(guid [16]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	if h.guidSet {
		return newErr(KindInvalidArgument, "handle", "GUID is write-once", nil)
	}
	h.guid = guid
	h.guidSet = true
	return nil
}

// SetMD5Hash sets a pre-known MD5 (e.g. copied from a clone source)
// instead of letting Close compute it from the written stream.
// Write-once: a second call fails.
func (h *Handle) SetMD5Hash(sum [16]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	if h.md5Set {
		return newErr(KindInvalidArgument, "handle", "MD5 is write-once", nil)
	}
	h.md5Sum = sum
	h.md5Set = true
	return nil
}

// SetSHA1Hash sets a pre-known SHA1 (e.g. copied from a clone source)
// instead of letting WriteFinalize compute it from the written stream.
// Write-once: a second call fails.
func (h *Handle) SetSHA1Hash(sum [20]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	if h.sha1Set {
		return newErr(KindInvalidArgument, "handle", "SHA1 is write-once", nil)
	}
	h.sha1Sum = sum
	h.sha1Set = true
	return nil
}

func (h *Handle) SetWriteCompressionValues(level media.CompressionLevel, compressEmptyBlock bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	h.compressionLevel = level
	h.compressEmptyBlock = compressEmptyBlock
	return nil
}

func (h *Handle) SetWriteMediaType(t media.Type, flags media.Flags) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	h.geometry.MediaType = t
	h.geometry.MediaFlags = flags
	return nil
}

func (h *Handle) SetWriteFormat(f media.Format) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	h.format = f
	return nil
}

// SetWriteInputSize sets the expected media size in bytes. amount_of_
// sectors is derived from it and the configured bytes_per_sector.
func (h *Handle) SetWriteInputSize(sizeBytes uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	if h.geometry.BytesPerSector == 0 {
		return newErr(KindInvalidArgument, "handle", "set bytes_per_sector before input size", nil)
	}
	h.inputSize = sizeBytes
	h.geometry.AmountOfSectors = (sizeBytes + uint64(h.geometry.BytesPerSector) - 1) / uint64(h.geometry.BytesPerSector)
	return nil
}

func (h *Handle) SetWriteErrorGranularity(n uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	h.geometry.ErrorGranularity = n
	return nil
}

func (h *Handle) SetWriteSegmentNameFunc(fn segment.NameFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	if h.primary != nil {
		h.primary.NameFunc = fn
	}
	return nil
}

// --- getters, valid in any open state once geometry is known ---

func (h *Handle) GetSectorsPerChunk() uint32 { h.mu.Lock(); defer h.mu.Unlock(); return h.geometry.SectorsPerChunk }
func (h *Handle) GetBytesPerSector() uint32  { h.mu.Lock(); defer h.mu.Unlock(); return h.geometry.BytesPerSector }
func (h *Handle) GetAmountOfSectors() uint64 { h.mu.Lock(); defer h.mu.Unlock(); return h.geometry.AmountOfSectors }
func (h *Handle) GetMediaSize() uint64       { h.mu.Lock(); defer h.mu.Unlock(); return h.geometry.MediaSize() }
func (h *Handle) GetChunkSize() uint64       { h.mu.Lock(); defer h.mu.Unlock(); return h.geometry.ChunkSize() }
func (h *Handle) GetFormat() media.Format    { h.mu.Lock(); defer h.mu.Unlock(); return h.format }

func (h *Handle) GetGUID() ([16]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.guid, h.guidSet
}

func (h *Handle) GetMD5Hash() ([16]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.md5Sum, h.md5Set
}

func (h *Handle) GetSHA1Hash() ([20]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sha1Sum, h.sha1Set
}

// GetAmountOfAcquiryErrors and GetAmountOfCRCErrors report the size of
// the two independent sector-error lists, per spec §3.
func (h *Handle) GetAmountOfAcquiryErrors() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.acquiryErrors.Len()
}

func (h *Handle) GetAmountOfCRCErrors() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.crcErrors.Len()
}

func (h *Handle) GetAcquiryError(i int) (start uint64, amount uint32, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.acquiryErrors.Entries()
	if i < 0 || i >= len(entries) {
		return 0, 0, false
	}
	return entries[i].StartSector, entries[i].AmountOfSectors, true
}

func (h *Handle) GetCRCError(i int) (start uint64, amount uint32, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.crcErrors.Entries()
	if i < 0 || i >= len(entries) {
		return 0, 0, false
	}
	return entries[i].StartSector, entries[i].AmountOfSectors, true
}

// AddAcquiryError records a sector range as an acquisition error, per
// spec §6 "add_acquiry_error(sector, n)". Deduplicated by start sector.
func (h *Handle) AddAcquiryError(sector uint64, amount uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acquiryErrors.Add(sector, amount)
	return nil
}

// AddCRCError records a sector range as a read-side CRC error, per spec
// §6 "add_crc_error(sector, n)".
func (h *Handle) AddCRCError(sector uint64, amount uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.crcErrors.Add(sector, amount)
	return nil
}

// SetHeaderValue assigns an identifier/value pair (e.g. "c" for case
// number, "e" for examiner) in the header/header2/xheader text this
// handle will write, per spec §6 "parse_header_values" / the values
// table it populates. Valid only before write initialization.
func (h *Handle) SetHeaderValue(ident, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireBeforeWriteInit(); err != nil {
		return err
	}
	h.headerValues.Set(ident, value)
	return nil
}

// GetHeaderValue returns the value for ident, and whether it was set,
// per spec §6 "parse_header_values". Valid once header sections have
// been read (open for read) or set (open for write).
func (h *Handle) GetHeaderValue(ident string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headerValues.Get(ident)
}

// HeaderValues returns the identifiers carried by this handle's header
// values table, in insertion order.
func (h *Handle) HeaderValues() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headerValues.Idents()
}

// CopyHeaderValues copies every identifier/value pair from src to dst,
// per spec §6 "copy_header_values(dst, src)". dst must be before write
// initialization; src may be any open handle.
func CopyHeaderValues(dst, src *Handle) error {
	if dst == src {
		return nil
	}
	dst.mu.Lock()
	defer dst.mu.Unlock()
	if err := dst.requireBeforeWriteInit(); err != nil {
		return err
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	headervalues.Copy(dst.headerValues, src.headerValues)
	return nil
}
