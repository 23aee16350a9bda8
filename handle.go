// Package ewf reads and writes EWF (Expert Witness Format) forensic disk
// images: EnCase 1-6, FTK SMART, and EWFX segment-file sets. A Handle
// exposes the media captured across a segment set as a seekable byte
// stream, per spec §1.
package ewf

import (
	"crypto/md5"
	"fmt"
	"hash"
	"sync"

	"github.com/go-ewf/ewf/internal/headervalues"
	"github.com/go-ewf/ewf/internal/logging"
	"github.com/go-ewf/ewf/internal/media"
	"github.com/go-ewf/ewf/internal/offsettable"
	"github.com/go-ewf/ewf/internal/segment"
)

// OpenFlag selects which operations a Handle supports, per spec §4.6 and
// §6 "open(paths[], count, flags)".
type OpenFlag int

const (
	FlagRead OpenFlag = 1 << iota
	FlagWrite
)

// FlagReadWrite opens existing segments for read. Reads consult a delta
// offset table (see SetDeltaSegmentFilename) before the primary one; Write
// on a read-write handle fails with KindInvalidArgument, so no chunk is
// ever written to the delta segment set.
const FlagReadWrite = FlagRead | FlagWrite

// state is the handle lifecycle from spec §4.6.
type state int

const (
	stateUninit state = iota
	stateOpenedRead
	stateOpenedWrite
	stateWriteInitialized
	stateFinalized
	stateOpenedReadWrite
	stateClosed
)

// Handle owns all mutable state of one open image exclusively from Open
// to Close: geometry, the offset table(s), segment table(s), and the
// chunk cache, per spec §3 "Handle state" and §9 "pointer graphs" (a
// single owning context, no cross-references between sub-objects).
type Handle struct {
	mu     sync.Mutex
	state  state
	logger logging.Logger

	geometry media.Geometry
	format   media.Format

	guid    [16]byte
	guidSet bool
	md5Sum  [16]byte
	md5Set  bool
	sha1Sum [20]byte
	sha1Set bool

	compressionLevel   media.CompressionLevel
	compressEmptyBlock bool
	segmentFileSize    uint64
	wipeOnError        bool
	padShortInput      bool
	inputSize          uint64

	primary *segment.Table
	delta   *segment.Table

	offsets      *offsettable.Table
	deltaOffsets *offsettable.Table

	acquiryErrors *media.ErrorList
	crcErrors     *media.ErrorList

	headerValues *headervalues.Values
	xheaderUsed  bool

	// read-side position, resolved by Seek/Read (spec §4.4).
	posChunk uint64
	posIntra uint64
	cache    chunkCache

	// write-side staging (spec §4.5).
	pending       []byte // chunk_size staging buffer, reused across chunks
	pendingLen    int
	chunkIndex    uint64
	cur           *segment.File
	tableOffsets  []tableOffset
	tableBase     uint64
	writtenBytes  uint64
	md5ctx        hash.Hash
	sha1ctx       hash.Hash
}

type chunkCache struct {
	index uint64
	data  []byte
	valid bool
}

type tableOffset struct {
	relOffset  uint32
	compressed bool
}

// Open opens a set of segment files (read), creates a fresh one (write),
// or opens existing segments with FlagReadWrite (read only in practice;
// see FlagReadWrite), per spec §6 "open". For FlagWrite without FlagRead, paths must contain
// exactly one path: the first segment's filename; later segments are
// named from it via the configured NameFunc.
func Open(paths []string, flags OpenFlag, opts ...OpenOption) (*Handle, error) {
	if flags&(FlagRead|FlagWrite) == 0 {
		return nil, newErr(KindInvalidArgument, "handle", "flags must include READ and/or WRITE", nil)
	}
	if len(paths) == 0 {
		return nil, newErr(KindInvalidArgument, "handle", "at least one path is required", nil)
	}
	cfg := defaultOpenConfig()
	for _, o := range opts {
		o(&cfg)
	}

	h := &Handle{
		logger:             cfg.logger,
		wipeOnError:        cfg.wipeOnError,
		compressEmptyBlock: true,
		acquiryErrors:      media.NewErrorList(),
		crcErrors:          media.NewErrorList(),
		headerValues:       headervalues.New(),
	}

	switch {
	case flags == FlagRead:
		if err := h.openRead(paths); err != nil {
			return nil, err
		}
		h.state = stateOpenedRead
	case flags == FlagWrite:
		if len(paths) != 1 {
			return nil, newErr(KindInvalidArgument, "handle", "write-only open takes exactly one base path", nil)
		}
		h.primary = segment.NewTable(paths[0], cfg.nameFunc)
		h.applyWriteDefaults(defaultWriteConfig())
		h.state = stateOpenedWrite
	case flags == FlagReadWrite:
		if err := h.openRead(paths); err != nil {
			return nil, err
		}
		h.state = stateOpenedReadWrite
	}
	return h, nil
}

// CheckSignature opens path read-only and reports whether it carries a
// valid EWF segment signature, per spec §6.
func CheckSignature(path string) (bool, error) {
	ok, err := segment.CheckSignature(path)
	if err != nil {
		return false, newErr(KindIO, "handle", "check signature", err)
	}
	return ok, nil
}

// SetDeltaSegmentFilename assigns the base path for the delta segment
// set of a read-write handle and gives it an empty delta offset table.
// No operation writes chunks to that set. Valid only on a handle opened
// with FlagReadWrite.
func (h *Handle) SetDeltaSegmentFilename(path string, nameFunc ...func(string, int) string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != stateOpenedReadWrite {
		return newErr(KindInvalidArgument, "handle", "delta segment filename requires a read-write open", nil)
	}
	var nf func(string, int) string
	if len(nameFunc) > 0 {
		nf = nameFunc[0]
	}
	h.delta = segment.NewTable(path, nf)
	h.deltaOffsets = offsettable.New(int(h.geometry.AmountOfChunks()))
	return nil
}

// Close flushes any pending write, finalizes the image if it was opened
// for write and never explicitly finalized, and frees every owned
// resource, per spec §4.6 "close".
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateClosed:
		return nil
	case stateOpenedWrite, stateWriteInitialized:
		if _, err := h.finalizeLocked(); err != nil {
			return err
		}
	}

	var firstErr error
	if h.primary != nil {
		if err := h.primary.CloseAll(); err != nil && firstErr == nil {
			firstErr = newErr(KindIO, "handle", "close primary segments", err)
		}
	}
	if h.delta != nil {
		if err := h.delta.CloseAll(); err != nil && firstErr == nil {
			firstErr = newErr(KindIO, "handle", "close delta segments", err)
		}
	}
	h.state = stateClosed
	return firstErr
}

func (h *Handle) requireOpenForRead() error {
	if h.state != stateOpenedRead && h.state != stateOpenedReadWrite {
		return newErr(KindInvalidArgument, "handle", fmt.Sprintf("not open for read (state=%d)", h.state), nil)
	}
	return nil
}

func (h *Handle) requireBeforeWriteInit() error {
	if h.state != stateOpenedWrite {
		return newErr(KindInvalidArgument, "handle", "geometry/metadata setters are only valid before the first write", nil)
	}
	return nil
}
