package section

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// VolumeBodySize is the payload size of a volume/disk section (EnCase5+
// "disk" layout), not counting the 76-byte section header: 76 bytes of
// geometry fields and GUID, 963 bytes of padding, the 5-byte signature,
// and the CRC32.
const VolumeBodySize = 76 + 963 + 5 + 4

// Volume is the decoded body of a volume/disk section: media geometry,
// the acquisition GUID, and the trailing CRC over the body's non-CRC bytes.
type Volume struct {
	MediaType        uint8
	Reserved1        [3]byte
	ChunkCount       uint32
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	AmountOfSectors  uint32
	CHSCylinders     uint32
	CHSHeads         uint32
	CHSSectors       uint32
	MediaFlags       uint8
	_2               [3]byte
	PalmVolumeStart  uint32
	_3               uint32
	SmartLogsStart   uint32
	CompressionLevel uint8
	_4               [3]byte
	ErrorGranularity uint32
	_5               uint32
	GUID             [16]byte
	_6               [963]byte
	Signature        [5]byte
	CRC              uint32
}

// DecodeVolume parses a volume/disk section body and verifies its CRC.
func DecodeVolume(body []byte) (Volume, error) {
	if len(body) < VolumeBodySize {
		return Volume{}, fmt.Errorf("section: volume body too short: %d bytes", len(body))
	}
	var v Volume
	if err := binary.Read(bytes.NewReader(body[:VolumeBodySize]), binary.LittleEndian, &v); err != nil {
		return Volume{}, fmt.Errorf("section: decode volume: %w", err)
	}
	if v.CRC != 0 {
		got := crc32.ChecksumIEEE(body[:VolumeBodySize-4])
		if got != v.CRC {
			return v, &CorruptError{Reason: fmt.Sprintf("volume crc mismatch: got %08x want %08x", got, v.CRC)}
		}
	}
	return v, nil
}

// EncodeVolume serializes a volume/disk body, computing its CRC.
func EncodeVolume(v Volume) []byte {
	buf := &bytes.Buffer{}
	buf.Grow(VolumeBodySize)
	binary.Write(buf, binary.LittleEndian, v.MediaType)
	buf.Write(v.Reserved1[:])
	binary.Write(buf, binary.LittleEndian, v.ChunkCount)
	binary.Write(buf, binary.LittleEndian, v.SectorsPerChunk)
	binary.Write(buf, binary.LittleEndian, v.BytesPerSector)
	binary.Write(buf, binary.LittleEndian, v.AmountOfSectors)
	binary.Write(buf, binary.LittleEndian, v.CHSCylinders)
	binary.Write(buf, binary.LittleEndian, v.CHSHeads)
	binary.Write(buf, binary.LittleEndian, v.CHSSectors)
	binary.Write(buf, binary.LittleEndian, v.MediaFlags)
	buf.Write(v._2[:])
	binary.Write(buf, binary.LittleEndian, v.PalmVolumeStart)
	binary.Write(buf, binary.LittleEndian, v._3)
	binary.Write(buf, binary.LittleEndian, v.SmartLogsStart)
	binary.Write(buf, binary.LittleEndian, v.CompressionLevel)
	buf.Write(v._4[:])
	binary.Write(buf, binary.LittleEndian, v.ErrorGranularity)
	binary.Write(buf, binary.LittleEndian, v._5)
	buf.Write(v.GUID[:])
	buf.Write(v._6[:])
	buf.Write(v.Signature[:])
	crc := crc32.ChecksumIEEE(buf.Bytes())
	binary.Write(buf, binary.LittleEndian, crc)
	return buf.Bytes()
}
