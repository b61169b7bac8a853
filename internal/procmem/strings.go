package procmem

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// Encoding selects the wire format of a fixed-width string field.
type Encoding string

const (
	EncodingASCII Encoding = "ascii"
	EncodingUTF16 Encoding = "utf16"
)

// ByteWidth returns the number of bytes one character occupies.
func (e Encoding) ByteWidth() int {
	if e == EncodingUTF16 {
		return 2
	}
	return 1
}

// DecodeFixedString cuts raw at the first NUL and decodes it.
func DecodeFixedString(raw []byte, enc Encoding) string {
	if enc == EncodingUTF16 {
		return decodeUTF16Z(raw)
	}
	s := string(raw)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}

// EncodeFixedString encodes s null-terminated and zero-padded to maxChars
// characters. Values longer than maxChars-1 are truncated so the terminator
// always fits; for the wide encoding the limit counts UTF-16 code units.
func EncodeFixedString(s string, maxChars int, enc Encoding) []byte {
	if maxChars <= 0 {
		return nil
	}
	if enc == EncodingUTF16 {
		units := utf16.Encode([]rune(s))
		if len(units) > maxChars-1 {
			units = units[:maxChars-1]
			// never store half a surrogate pair
			if n := len(units); n > 0 && units[n-1] >= 0xD800 && units[n-1] < 0xDC00 {
				units = units[:n-1]
			}
		}
		out := make([]byte, maxChars*2)
		for i, u := range units {
			binary.LittleEndian.PutUint16(out[i*2:], u)
		}
		return out
	}
	runes := []rune(s)
	if len(runes) > maxChars-1 {
		runes = runes[:maxChars-1]
	}
	out := make([]byte, maxChars)
	for i, r := range runes {
		if r > 0x7F {
			r = '?'
		}
		out[i] = byte(r)
	}
	return out
}

// ReadFixedString reads a fixed-width null-terminated string from addr.
func ReadFixedString(m Accessor, addr uint64, maxChars int, enc Encoding) (string, error) {
	raw, err := m.ReadBytes(addr, maxChars*enc.ByteWidth())
	if err != nil {
		return "", err
	}
	return DecodeFixedString(raw, enc), nil
}

// WriteFixedString writes s null-terminated and zero-padded to maxChars.
func WriteFixedString(m Accessor, addr uint64, s string, maxChars int, enc Encoding) error {
	return m.WriteBytes(addr, EncodeFixedString(s, maxChars, enc))
}

func decodeUTF16Z(raw []byte) string {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		u := binary.LittleEndian.Uint16(raw[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}
