// Package codec decodes and encodes single schema fields against a
// record buffer or a live process. Bit-packed fields use shift+mask
// extraction and read-modify-write updates that preserve neighboring
// bits; category-level transforms map raw values onto display scales.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"rosterscope/internal/procmem"
	"rosterscope/internal/schema"
)

// ErrSpanTooWide rejects bit spans the codec cannot represent.
var ErrSpanTooWide = errors.New("codec: field bit span too wide")

// ErrNilStructPointer is returned when a dereferenced field's struct
// pointer reads as zero.
var ErrNilStructPointer = errors.New("codec: dereferenced struct pointer is nil")

const defaultNameChars = 20

// Kind tags a Decoded result.
type Kind int

const (
	KindUnavailable Kind = iota
	KindInt
	KindFloat
	KindText
)

// Decoded is a tagged decode result. Unavailable means the field
// could not be decoded; it is distinct from a real zero or empty
// value and is never reported through an error.
type Decoded struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
}

// Unavailable is the zero Decoded.
var Unavailable = Decoded{}

func IntValue(v int64) Decoded     { return Decoded{Kind: KindInt, Int: v} }
func FloatValue(v float64) Decoded { return Decoded{Kind: KindFloat, Float: v} }
func TextValue(s string) Decoded   { return Decoded{Kind: KindText, Text: s} }

// IsValue reports whether the result carries a usable value.
func (d Decoded) IsValue() bool { return d.Kind != KindUnavailable }

// String renders the result for display. Enum results prefer their
// label when one was resolved.
func (d Decoded) String() string {
	switch d.Kind {
	case KindInt:
		if d.Text != "" {
			return d.Text
		}
		return strconv.FormatInt(d.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(d.Float, 'g', -1, 64)
	case KindText:
		return d.Text
	}
	return "<unavailable>"
}

// Codec holds the pluggable hooks for team-pointer fields. Both may
// be nil; team pointers then render and parse as plain hex.
type Codec struct {
	// TeamNameForPointer maps a raw team record pointer to a
	// display name.
	TeamNameForPointer func(ptr uint64) (string, bool)
	// PointerForTeamName maps a team display name back to a record
	// pointer.
	PointerForTeamName func(label string) (uint64, bool)
}

// Decode extracts one field from a pre-read record buffer. Fields
// that require a dereference cannot be served from a flat buffer and
// come back Unavailable; use DecodeLive for those.
func (c *Codec) Decode(entity string, spec *schema.FieldSpec, record []byte) Decoded {
	if spec.RequiresDeref && spec.DerefOffset != 0 {
		return Unavailable
	}
	fetch := func(n int) ([]byte, error) {
		end := spec.Offset + uint64(n)
		if end > uint64(len(record)) {
			return nil, fmt.Errorf("codec: field span [0x%X,0x%X) outside record of %d bytes", spec.Offset, end, len(record))
		}
		return record[spec.Offset:end], nil
	}
	d, _ := c.decode(entity, spec, fetch)
	return d
}

// DecodeLive extracts one field from the attached process, following
// the struct dereference when the spec declares one.
func (c *Codec) DecodeLive(mem procmem.Accessor, entity string, spec *schema.FieldSpec, recordAddr uint64) (Decoded, error) {
	addr, err := fieldAddress(mem, recordAddr, spec, nil)
	if err != nil {
		return Unavailable, err
	}
	fetch := func(n int) ([]byte, error) { return mem.ReadBytes(addr, n) }
	return c.decode(entity, spec, fetch)
}

func (c *Codec) decode(entity string, spec *schema.FieldSpec, fetch func(n int) ([]byte, error)) (Decoded, error) {
	entity = strings.ToLower(strings.TrimSpace(entity))
	nameLower := strings.ToLower(strings.TrimSpace(spec.Name))
	categoryLower := strings.ToLower(strings.TrimSpace(spec.Category))

	if spec.IsString() {
		enc := stringEncoding(spec)
		raw, err := fetch(stringChars(spec) * enc.ByteWidth())
		if err != nil {
			return Unavailable, err
		}
		return TextValue(procmem.DecodeFixedString(raw, enc)), nil
	}

	if entity == "player" && nameLower == "weight" {
		raw, err := fetch(4)
		if err != nil {
			return Unavailable, err
		}
		pounds := math.Float32frombits(binary.LittleEndian.Uint32(raw))
		return IntValue(int64(math.Round(float64(pounds)))), nil
	}

	if spec.Type == schema.TypeFloat {
		n := effectiveByteLength(spec.ByteLength, spec.Length, 4)
		if n >= 8 {
			raw, err := fetch(8)
			if err != nil {
				return Unavailable, err
			}
			return FloatValue(math.Float64frombits(binary.LittleEndian.Uint64(raw))), nil
		}
		raw, err := fetch(4)
		if err != nil {
			return Unavailable, err
		}
		return FloatValue(float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))), nil
	}

	lengthBits := spec.Length
	if lengthBits <= 0 && spec.ByteLength > 0 {
		lengthBits = spec.ByteLength * 8
	}
	if lengthBits <= 0 || lengthBits > 64 {
		return Unavailable, ErrSpanTooWide
	}
	span, err := fetch(coveringBytes(spec.StartBit, lengthBits))
	if err != nil {
		return Unavailable, err
	}
	raw := extractBits(span, spec.StartBit, lengthBits)

	if len(spec.Values) > 0 {
		idx := clampEnumIndex(int64(raw), len(spec.Values), lengthBits)
		d := IntValue(idx)
		d.Text = spec.Values[idx]
		return d, nil
	}
	if isPointerLike(spec) {
		if c.isTeamPointerField(entity, spec) && c.TeamNameForPointer != nil {
			if name, ok := c.TeamNameForPointer(raw); ok {
				return TextValue(name), nil
			}
		}
		return TextValue(formatHex(raw, lengthBits, spec.ByteLength)), nil
	}
	if entity == "player" && nameLower == "height" {
		inches := HeightInchesFromRaw(raw)
		if inches < HeightMinInches {
			inches = HeightMinInches
		} else if inches > HeightMaxInches {
			inches = HeightMaxInches
		}
		return IntValue(int64(inches)), nil
	}
	switch categoryLower {
	case "attributes", "durability":
		return IntValue(int64(RatingFromRaw(raw, lengthBits))), nil
	case "potential":
		if strings.Contains(nameLower, "min") || strings.Contains(nameLower, "max") {
			return IntValue(int64(MinMaxPotentialFromRaw(raw))), nil
		}
		return IntValue(int64(RatingFromRaw(raw, lengthBits))), nil
	case "tendencies":
		return IntValue(int64(TendencyFromRaw(raw))), nil
	case "badges":
		return IntValue(int64(BadgeFromRaw(raw))), nil
	}
	if IsYearOffsetField(spec.Name) {
		return IntValue(int64(YearFromRaw(int64(raw)))), nil
	}
	return IntValue(int64(raw)), nil
}

// Encode writes one field into the attached process. The first
// return is false with a nil error when the value cannot be coerced
// into the field's type: the field is skipped and left unchanged.
// derefCache, when non-nil, is shared across fields of one record to
// avoid re-reading the same struct pointer.
func (c *Codec) Encode(mem procmem.Accessor, entity string, spec *schema.FieldSpec, recordAddr uint64, value any, derefCache map[uint64]uint64) (bool, error) {
	plan, ok := c.coerce(entity, spec, value)
	if !ok {
		return false, nil
	}
	addr, err := fieldAddress(mem, recordAddr, spec, derefCache)
	if err != nil {
		return false, err
	}

	switch plan.kind {
	case planString:
		if err := procmem.WriteFixedString(mem, addr, plan.text, plan.chars, plan.enc); err != nil {
			return false, err
		}
		return true, nil
	case planFloat:
		var raw []byte
		if plan.wide {
			raw = binary.LittleEndian.AppendUint64(nil, math.Float64bits(plan.f))
		} else {
			raw = binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(plan.f)))
		}
		if err := mem.WriteBytes(addr, raw); err != nil {
			return false, err
		}
		return true, nil
	}

	lengthBits := spec.Length
	if lengthBits <= 0 && spec.ByteLength > 0 {
		lengthBits = spec.ByteLength * 8
	}
	if lengthBits <= 0 || lengthBits > 64 {
		return false, ErrSpanTooWide
	}
	n := coveringBytes(spec.StartBit, lengthBits)
	span, err := mem.ReadBytes(addr, n)
	if err != nil {
		return false, err
	}
	updated := make([]byte, n)
	copy(updated, span)
	injectBits(updated, spec.StartBit, lengthBits, plan.raw)
	if bytes.Equal(updated, span) {
		return true, nil
	}
	if err := mem.WriteBytes(addr, updated); err != nil {
		return false, err
	}
	return true, nil
}

type planKind int

const (
	planInt planKind = iota
	planString
	planFloat
)

type writePlan struct {
	kind  planKind
	raw   uint64
	f     float64
	wide  bool
	text  string
	chars int
	enc   procmem.Encoding
}

func (c *Codec) coerce(entity string, spec *schema.FieldSpec, value any) (writePlan, bool) {
	entity = strings.ToLower(strings.TrimSpace(entity))
	nameLower := strings.ToLower(strings.TrimSpace(spec.Name))
	categoryLower := strings.ToLower(strings.TrimSpace(spec.Category))
	lengthBits := spec.Length
	if lengthBits <= 0 && spec.ByteLength > 0 {
		lengthBits = spec.ByteLength * 8
	}

	if spec.IsString() {
		text := valueText(value)
		chars := stringChars(spec)
		if chars <= 0 {
			chars = len(text) + 1
		}
		return writePlan{kind: planString, text: text, chars: chars, enc: stringEncoding(spec)}, true
	}
	if entity == "player" && nameLower == "weight" {
		f, ok := parseFloat(value)
		if !ok {
			return writePlan{}, false
		}
		return writePlan{kind: planFloat, f: f}, true
	}
	if spec.Type == schema.TypeFloat {
		f, ok := parseFloat(value)
		if !ok {
			return writePlan{}, false
		}
		wide := effectiveByteLength(spec.ByteLength, spec.Length, 4) >= 8
		return writePlan{kind: planFloat, f: f, wide: wide}, true
	}
	if len(spec.Values) > 0 {
		idx := int64(0)
		if label, isText := value.(string); isText {
			found := false
			for i, v := range spec.Values {
				if v == label {
					idx, found = int64(i), true
					break
				}
			}
			if !found {
				if n, ok := parseInt(value); ok {
					idx = n
				}
			}
		} else if n, ok := parseInt(value); ok {
			idx = n
		}
		return writePlan{raw: uint64(clampEnumIndex(idx, len(spec.Values), lengthBits))}, true
	}
	if isPointerLike(spec) {
		var ptr uint64
		parsed := false
		if c.isTeamPointerField(entity, spec) && c.PointerForTeamName != nil {
			if p, ok := c.PointerForTeamName(valueText(value)); ok {
				ptr, parsed = p, true
			}
		}
		if !parsed {
			p, ok := parseHex(value)
			if !ok {
				return writePlan{}, false
			}
			ptr = p
		}
		if lengthBits > 0 && lengthBits < 64 {
			ptr &= (1 << uint(lengthBits)) - 1
		}
		return writePlan{raw: ptr}, true
	}
	if entity == "player" && nameLower == "height" {
		inches, ok := parseInt(value)
		if !ok {
			return writePlan{}, false
		}
		if inches < HeightMinInches {
			inches = HeightMinInches
		} else if inches > HeightMaxInches {
			inches = HeightMaxInches
		}
		return writePlan{raw: HeightInchesToRaw(int(inches))}, true
	}
	switch categoryLower {
	case "attributes", "durability":
		f, ok := parseFloat(value)
		if !ok {
			return writePlan{}, false
		}
		return writePlan{raw: RatingToRaw(f, lengthBits)}, true
	case "potential":
		f, ok := parseFloat(value)
		if !ok {
			return writePlan{}, false
		}
		if strings.Contains(nameLower, "min") || strings.Contains(nameLower, "max") {
			return writePlan{raw: MinMaxPotentialToRaw(f, lengthBits)}, true
		}
		return writePlan{raw: RatingToRaw(f, lengthBits)}, true
	case "tendencies":
		f, ok := parseFloat(value)
		if !ok {
			return writePlan{}, false
		}
		return writePlan{raw: TendencyToRaw(f)}, true
	case "badges":
		lvl, ok := parseInt(value)
		if !ok {
			lvl = 0
		}
		if lvl < 0 {
			lvl = 0
		}
		if max := int64(maxRawFor(lengthBits)); lvl > max {
			lvl = max
		}
		if max := int64(len(BadgeLevels) - 1); lvl > max {
			lvl = max
		}
		return writePlan{raw: uint64(lvl)}, true
	}
	if IsYearOffsetField(spec.Name) {
		year, ok := parseInt(value)
		if !ok {
			return writePlan{}, false
		}
		return writePlan{raw: YearToRaw(year)}, true
	}
	n, ok := parseInt(value)
	if !ok {
		return writePlan{}, false
	}
	return writePlan{raw: uint64(n)}, true
}

// fieldAddress resolves where a field lives: record + offset, or
// through the record's struct pointer when the spec requires it.
func fieldAddress(mem procmem.Accessor, recordAddr uint64, spec *schema.FieldSpec, derefCache map[uint64]uint64) (uint64, error) {
	if !spec.RequiresDeref || spec.DerefOffset == 0 {
		return recordAddr + spec.Offset, nil
	}
	if derefCache != nil {
		if ptr, ok := derefCache[spec.DerefOffset]; ok {
			if ptr == 0 {
				return 0, ErrNilStructPointer
			}
			return ptr + spec.Offset, nil
		}
	}
	ptr, err := procmem.ReadPointer(mem, recordAddr+spec.DerefOffset)
	if err != nil {
		return 0, err
	}
	if derefCache != nil {
		derefCache[spec.DerefOffset] = ptr
	}
	if ptr == 0 {
		return 0, ErrNilStructPointer
	}
	return ptr + spec.Offset, nil
}

func coveringBytes(startBit, lengthBits int) int {
	return (startBit + lengthBits + 7) / 8
}

// extractBits reads lengthBits starting at startBit from a
// little-endian byte span.
func extractBits(span []byte, startBit, lengthBits int) uint64 {
	var v uint64
	for i := 0; i < lengthBits; i++ {
		bit := startBit + i
		if span[bit/8]>>(uint(bit%8))&1 == 1 {
			v |= 1 << uint(i)
		}
	}
	return v
}

// injectBits writes lengthBits of value at startBit, leaving every
// other bit of the span untouched.
func injectBits(span []byte, startBit, lengthBits int, value uint64) {
	for i := 0; i < lengthBits; i++ {
		bit := startBit + i
		if value>>uint(i)&1 == 1 {
			span[bit/8] |= 1 << uint(bit%8)
		} else {
			span[bit/8] &^= 1 << uint(bit%8)
		}
	}
}

func clampEnumIndex(value int64, count, lengthBits int) int64 {
	if count <= 0 {
		return 0
	}
	max := int64(count - 1)
	if lengthBits > 0 && lengthBits < 63 {
		if rawMax := int64(1)<<uint(lengthBits) - 1; rawMax < max {
			max = rawMax
		}
	}
	if value < 0 {
		return 0
	}
	if value > max {
		return max
	}
	return value
}

func formatHex(value uint64, lengthBits, byteLength int) string {
	width := 1
	if lengthBits > 0 {
		width = (lengthBits + 3) / 4
		if lengthBits < 64 {
			value &= (1 << uint(lengthBits)) - 1
		}
	} else {
		n := effectiveByteLength(byteLength, lengthBits, 4)
		width = n * 2
		if n < 8 {
			value &= (1 << uint(n*8)) - 1
		}
	}
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("0x%0*X", width, value)
}

// effectiveByteLength derives a byte width from schema hints that
// may carry either bits or bytes.
func effectiveByteLength(byteLengthHint, lengthBits, def int) int {
	if byteLengthHint > 0 {
		if byteLengthHint > 8 && byteLengthHint%8 == 0 {
			return byteLengthHint / 8
		}
		return byteLengthHint
	}
	if lengthBits > 0 {
		return (lengthBits + 7) / 8
	}
	return def
}

func stringEncoding(spec *schema.FieldSpec) procmem.Encoding {
	if spec.Type == schema.TypeString {
		return procmem.EncodingASCII
	}
	return procmem.EncodingUTF16
}

// stringChars resolves the character capacity of a string field.
func stringChars(spec *schema.FieldSpec) int {
	if spec.Length > 0 {
		return spec.Length
	}
	if spec.ByteLength > 0 {
		return spec.ByteLength
	}
	if strings.Contains(strings.ToLower(spec.Name), "name") {
		return defaultNameChars
	}
	return 64
}

func isPointerLike(spec *schema.FieldSpec) bool {
	if spec.Type == schema.TypePointer {
		return true
	}
	t := strings.ToLower(spec.TypeRaw)
	return strings.Contains(t, "ptr") || strings.Contains(t, "color")
}

// isTeamPointerField gates the reverse team-name lookup: player
// pointer fields whose category or name mentions a team address.
func (c *Codec) isTeamPointerField(entity string, spec *schema.FieldSpec) bool {
	if entity != "player" || !isPointerLike(spec) {
		return false
	}
	text := strings.ToLower(spec.Category + " " + spec.Name)
	if !strings.Contains(text, "team") {
		return false
	}
	return strings.Contains(text, "address") || strings.Contains(text, "pointer")
}

func valueText(value any) string {
	switch t := value.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func parseInt(value any) (int64, bool) {
	switch t := value.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		return int64(t), true
	case float64:
		return int64(math.Round(t)), true
	case float32:
		return int64(math.Round(float64(t))), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(math.Round(f)), true
		}
		return 0, false
	}
	return 0, false
}

func parseFloat(value any) (float64, bool) {
	switch t := value.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

var hexRe = regexp.MustCompile(`0[xX][0-9a-fA-F]+`)

// parseHex accepts 0x strings, plain integers, and mixed labels such
// as "Lakers (0x1234)".
func parseHex(value any) (uint64, bool) {
	switch t := value.(type) {
	case int:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case uint64:
		return t, true
	case float64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if m := hexRe.FindString(s); m != "" {
			n, err := strconv.ParseUint(m[2:], 16, 64)
			if err != nil {
				return 0, false
			}
			return n, true
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n, true
		}
		return 0, false
	}
	return 0, false
}
