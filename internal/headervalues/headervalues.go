// Package headervalues decodes and encodes the textual identifier/value
// tables carried in header, header2, and xheader sections (case number,
// examiner, acquisition date, ...), per spec §3 "Values table" and §6
// "parse_header_values" / "copy_header_values".
package headervalues

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DateFormat selects how acquisition/system timestamps round-trip to and
// from the textual header representation (spec §6 "parse_header_values").
type DateFormat int

const (
	DateFormatDMY DateFormat = iota
	DateFormatMDY
	DateFormatISO8601
)

// Values is an insertion-ordered mapping from header identifier (the
// single- and double-letter codes in the teacher's HeaderSectionString,
// e.g. "c" case number, "e" examiner) to string value. Insertion order is
// preserved so header sections round-trip byte-identically where the
// format requires it.
type Values struct {
	order []string
	m     map[string]string
}

// New returns an empty values table.
func New() *Values {
	return &Values{m: make(map[string]string)}
}

// Set assigns ident -> value, appending ident to the insertion order the
// first time it is seen.
func (v *Values) Set(ident, value string) {
	if _, ok := v.m[ident]; !ok {
		v.order = append(v.order, ident)
	}
	v.m[ident] = value
}

// Get returns the value for ident and whether it was present.
func (v *Values) Get(ident string) (string, bool) {
	s, ok := v.m[ident]
	return s, ok
}

// Idents returns the identifiers in insertion order.
func (v *Values) Idents() []string { return append([]string(nil), v.order...) }

// Copy appends a deep copy of every identifier/value pair from src to dst
// in src's insertion order, per spec §6 "copy_header_values". Identifiers
// already present in dst are overwritten in place, preserving dst's own
// order for those and appending the rest.
func Copy(dst, src *Values) {
	for _, ident := range src.order {
		dst.Set(ident, src.m[ident])
	}
}

// knownFields lists the identifier codes the teacher's HeaderSectionString
// recognized for the "line 3" record of a header/header2 body, preserved
// here as the canonical field order for a freshly written header.
var knownFields = []string{"a", "c", "n", "e", "t", "av", "ov", "m", "u", "p", "r", "md", "sn", "l", "pid", "dc", "ext"}

// DecodeText parses a decompressed header/header2/xheader body: a
// tab-separated "category\nmain\nfields\nvalues" block, optionally
// preceded by a UTF-16 byte-order mark.
func DecodeText(body []byte) (*Values, error) {
	text, err := decodeBOM(body)
	if err != nil {
		return nil, fmt.Errorf("headervalues: decode text: %w", err)
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("headervalues: expected at least 4 header lines, got %d", len(lines))
	}
	fields := strings.Split(strings.TrimRight(lines[2], "\r"), "\t")
	values := strings.Split(strings.TrimRight(lines[3], "\r"), "\t")
	if len(fields) != len(values) {
		return nil, fmt.Errorf("headervalues: field/value count mismatch: %d vs %d", len(fields), len(values))
	}
	out := New()
	for i, f := range fields {
		out.Set(f, values[i])
	}
	return out, nil
}

// decodeBOM strips and interprets a UTF-16 byte-order mark, falling back
// to UTF-8, mirroring the teacher's ParseHeader BOM sniff.
func decodeBOM(body []byte) (string, error) {
	if len(body) >= 2 && body[0] == 0xff && body[1] == 0xfe {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, body)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	if len(body) >= 2 && body[0] == 0xfe && body[1] == 0xff {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, body)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return string(body), nil
}

// EncodeText serializes a values table back to the
// "1\nmain\nfields\nvalues\n\n" text block used by header/header2,
// UTF-16LE-encoded with a leading BOM.
func EncodeText(v *Values) []byte {
	idents := v.order
	if len(idents) == 0 {
		idents = knownFields
	}
	values := make([]string, len(idents))
	for i, id := range idents {
		values[i], _ = v.Get(id)
	}
	text := "1\nmain\n" + strings.Join(idents, "\t") + "\n" + strings.Join(values, "\t") + "\n\n"

	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	out, _, err := transform.Bytes(enc, []byte(text))
	if err != nil {
		// UTF-16 encoding of a UTF-8 string built from our own ASCII
		// idents/values cannot fail; fall back to raw UTF-8 bytes.
		return []byte(text)
	}
	return out
}

// DecodeSection inflates a zlib-compressed header/header2/xheader section
// body and parses its text, per spec §4.1 "header"/"header2" payloads.
func DecodeSection(compressed []byte) (*Values, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("headervalues: open deflate stream: %w", err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("headervalues: inflate: %w", err)
	}
	return DecodeText(buf.Bytes())
}

// EncodeSection deflates a values table's text encoding for storage as a
// header/header2/xheader section body.
func EncodeSection(v *Values) ([]byte, error) {
	text := EncodeText(v)
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(text); err != nil {
		return nil, fmt.Errorf("headervalues: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("headervalues: compress: %w", err)
	}
	return buf.Bytes(), nil
}
