package ewf

import (
	"github.com/go-ewf/ewf/internal/logging"
	"github.com/go-ewf/ewf/internal/media"
	"github.com/go-ewf/ewf/internal/segment"
)

// OpenOption configures Open, in the functional-options idiom
// ongniud-wal's Options struct inspired (see SPEC_FULL.md §1.1).
type OpenOption func(*openConfig)

type openConfig struct {
	logger      logging.Logger
	wipeOnError bool
	nameFunc    segment.NameFunc
}

func defaultOpenConfig() openConfig {
	return openConfig{logger: logging.Nop{}}
}

// WithLogger attaches a Logger to the handle; the default is a no-op.
func WithLogger(l logging.Logger) OpenOption {
	return func(c *openConfig) { c.logger = l }
}

// WithWipeOnError sets the read-path policy of zeroing the sectors of a
// chunk whose CRC failed to verify, per spec §4.4(4) and §4.7.
func WithWipeOnError(wipe bool) OpenOption {
	return func(c *openConfig) { c.wipeOnError = wipe }
}

// WithSegmentNameFunc overrides the filename-generation callback used
// when rolling over to a new segment on write, per spec §6 "Filenames".
func WithSegmentNameFunc(fn segment.NameFunc) OpenOption {
	return func(c *openConfig) { c.nameFunc = fn }
}

// WriteOption configures the write side of a handle at Open time, for
// settings that are otherwise only reachable through a setter before the
// first Write (spec §4.6).
type WriteOption func(*writeConfig)

type writeConfig struct {
	format               media.Format
	compressionLevel     media.CompressionLevel
	compressEmptyBlock   bool
	segmentFileSize      uint64
	sectorsPerChunk      uint32
	bytesPerSector       uint32
	errorGranularity     uint32
	padShortInputToSize  bool
}

func defaultWriteConfig() writeConfig {
	return writeConfig{
		format:              media.FormatEnCase5,
		compressionLevel:    media.CompressionNone,
		compressEmptyBlock:  true,
		segmentFileSize:     1500 * 1024 * 1024,
		sectorsPerChunk:     64,
		bytesPerSector:      512,
		errorGranularity:    64,
		padShortInputToSize: true,
	}
}

// WithFormat selects the output format/variant (spec §6).
func WithFormat(f media.Format) WriteOption { return func(c *writeConfig) { c.format = f } }

// WithCompressionLevel selects the write-path deflate effort.
func WithCompressionLevel(l media.CompressionLevel) WriteOption {
	return func(c *writeConfig) { c.compressionLevel = l }
}

// WithCompressEmptyBlock enables the spec §4.5(3) policy of compressing
// all-identical-byte chunks even when the compression level is none.
func WithCompressEmptyBlock(enabled bool) WriteOption {
	return func(c *writeConfig) { c.compressEmptyBlock = enabled }
}

// WithSegmentFileSize sets the maximum size of one segment file.
func WithSegmentFileSize(n uint64) WriteOption {
	return func(c *writeConfig) { c.segmentFileSize = n }
}

// WithChunkGeometry sets sectors-per-chunk and bytes-per-sector.
func WithChunkGeometry(sectorsPerChunk, bytesPerSector uint32) WriteOption {
	return func(c *writeConfig) {
		c.sectorsPerChunk = sectorsPerChunk
		c.bytesPerSector = bytesPerSector
	}
}

// WithErrorGranularity sets the sector-error reporting granularity.
func WithErrorGranularity(n uint32) WriteOption {
	return func(c *writeConfig) { c.errorGranularity = n }
}

// WithPadShortInput selects the spec §4.5 finalize policy for input
// shorter than the advertised media size: true pads with zeros and
// records acquisition errors for the missing range (the default); false
// instead reduces amount_of_sectors to what was actually written.
func WithPadShortInput(pad bool) WriteOption {
	return func(c *writeConfig) { c.padShortInputToSize = pad }
}
