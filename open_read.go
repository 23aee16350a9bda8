package ewf

import (
	"io"

	"github.com/go-ewf/ewf/internal/headervalues"
	"github.com/go-ewf/ewf/internal/media"
	"github.com/go-ewf/ewf/internal/offsettable"
	"github.com/go-ewf/ewf/internal/section"
	"github.com/go-ewf/ewf/internal/segment"
)

// openRead opens and walks every segment file, populating geometry, the
// offset table, header values, and error lists, per spec §3 "open(read)
// populates media geometry and offset table from segments".
func (h *Handle) openRead(paths []string) error {
	tbl, err := segment.OpenAll(paths)
	if err != nil {
		return newErr(KindIO, "handle", "open segments", err)
	}
	h.primary = tbl

	var (
		haveGeometry bool
		headerTexts  []*headervalues.Values
		header2Texts []*headervalues.Values
		xheaderTexts []*headervalues.Values
		xhashTexts   []*headervalues.Values
		sawVolume    bool
		sawTable     bool
	)

	for _, sf := range tbl.Files {
		var (
			lastSectorsEnd uint64
			pendingTable   *section.Table
			pendingTable2  *section.Table
			tableErr       error
			table2Err      error
		)

		flush := func() error {
			if pendingTable == nil && pendingTable2 == nil {
				return nil
			}
			chosen := pendingTable
			chosenErr := tableErr
			if chosenErr != nil {
				chosen = pendingTable2
				chosenErr = table2Err
			}
			n := 0
			if pendingTable != nil {
				n = len(pendingTable.Offsets)
			} else if pendingTable2 != nil {
				n = len(pendingTable2.Offsets)
			}
			if chosen == nil || chosenErr != nil {
				if h.offsets == nil {
					return &section.CorruptError{Reason: "table section seen before volume/disk section"}
				}
				h.offsets.MarkUnavailable(n)
				h.logger.Warnf("segment %d: table and table2 both invalid, marking %d chunks unavailable", sf.Index, n)
				pendingTable, pendingTable2, tableErr, table2Err = nil, nil, nil, nil
				return nil
			}
			if h.offsets == nil {
				return &section.CorruptError{Reason: "table section seen before volume/disk section"}
			}
			end, sizeErr := sf.Size()
			if sizeErr != nil {
				end = int64(lastSectorsEnd)
			}
			segEnd := uint64(end)
			if lastSectorsEnd > 0 {
				segEnd = lastSectorsEnd
			}
			for i, off := range chosen.Offsets {
				fileOffset := chosen.BaseOffset + uint64(off.RelativeOffset)
				var size uint64
				if i+1 < len(chosen.Offsets) {
					size = (chosen.BaseOffset + uint64(chosen.Offsets[i+1].RelativeOffset)) - fileOffset
				} else {
					size = segEnd - fileOffset
				}
				h.offsets.Append(offsettable.Entry{
					SegmentIndex: sf.Index,
					FileOffset:   fileOffset,
					Compressed:   off.Compressed,
					StoredSize:   uint32(size),
				})
			}
			pendingTable, pendingTable2, tableErr, table2Err = nil, nil, nil, nil
			return nil
		}

		walkErr := sf.Walk(func(desc segment.Descriptor, body []byte) error {
			switch desc.Header.Kind() {
			case section.KindHeader:
				if v, err := headervalues.DecodeSection(body); err == nil {
					headerTexts = append(headerTexts, v)
				}
			case section.KindHeader2:
				if v, err := headervalues.DecodeSection(body); err == nil {
					header2Texts = append(header2Texts, v)
				}
			case section.KindXHeader:
				if v, err := headervalues.DecodeSection(body); err == nil {
					xheaderTexts = append(xheaderTexts, v)
				}
			case section.KindVolume, section.KindDisk:
				vol, err := section.DecodeVolume(body)
				if err != nil {
					return err
				}
				if !haveGeometry {
					h.geometry = media.Geometry{
						SectorsPerChunk:  vol.SectorsPerChunk,
						BytesPerSector:   vol.BytesPerSector,
						AmountOfSectors:  uint64(vol.AmountOfSectors),
						MediaType:        media.Type(vol.MediaType),
						MediaFlags:       media.Flags(vol.MediaFlags),
						ErrorGranularity: vol.ErrorGranularity,
					}
					h.guid = vol.GUID
					h.guidSet = true
					haveGeometry = true
					h.offsets = offsettable.New(int(h.geometry.AmountOfChunks()))
				}
				sawVolume = true
			case section.KindSectors:
				lastSectorsEnd = desc.Offset + desc.Header.Size
			case section.KindTable:
				if err := flush(); err != nil {
					return err
				}
				t, err := section.DecodeTable(body)
				pendingTable = &t
				tableErr = err
				sawTable = true
			case section.KindTable2:
				t, err := section.DecodeTable(body)
				pendingTable2 = &t
				table2Err = err
				if ferr := flush(); ferr != nil {
					return ferr
				}
			case section.KindError2:
				errs, err := section.DecodeError2(body)
				if err != nil {
					h.logger.Warnf("segment %d: error2 section corrupt: %v", sf.Index, err)
					return nil
				}
				for _, e := range errs {
					h.acquiryErrors.Add(e.StartSector, e.AmountOfSectors)
				}
			case section.KindHash:
				hs, err := section.DecodeHash(body)
				if err != nil {
					h.logger.Warnf("segment %d: hash section corrupt: %v", sf.Index, err)
					return nil
				}
				h.md5Sum = hs.MD5
				h.md5Set = true
			case section.KindDigest:
				d, err := section.DecodeDigest(body)
				if err != nil {
					h.logger.Warnf("segment %d: digest section corrupt: %v", sf.Index, err)
					return nil
				}
				h.sha1Sum = d.SHA1
				h.sha1Set = true
			case section.KindXHash:
				if v, err := headervalues.DecodeSection(body); err == nil {
					xhashTexts = append(xhashTexts, v)
				} else {
					h.logger.Warnf("segment %d: xhash section corrupt: %v", sf.Index, err)
				}
			}
			return nil
		})
		if walkErr != nil && walkErr != io.EOF {
			return newErr(KindCorruptContainer, "handle", "walk segment "+sf.Path, walkErr)
		}
		if err := flush(); err != nil {
			return newErr(KindCorruptContainer, "handle", "flush table in segment "+sf.Path, err)
		}
	}

	if !sawVolume {
		return newErr(KindCorruptContainer, "handle", "no volume/disk section found in any segment", nil)
	}
	if !sawTable {
		return newErr(KindCorruptContainer, "handle", "no table section found in any segment", nil)
	}

	for _, v := range headerTexts {
		headervalues.Copy(h.headerValues, v)
	}
	for _, v := range header2Texts {
		headervalues.Copy(h.headerValues, v)
	}
	for _, v := range xheaderTexts {
		headervalues.Copy(h.headerValues, v)
		h.xheaderUsed = true
	}
	for _, v := range xhashTexts {
		headervalues.Copy(h.headerValues, v)
	}

	return nil
}
