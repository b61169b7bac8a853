// Package schema loads, caches, and normalizes versioned field layout
// bundles for a target game build. A bundle maps logical fields (player
// attributes, team names, statistics) to byte/bit locations inside the
// target process, plus the base pointers and record sizes needed to
// address whole tables.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Error is a fatal schema defect. Key names the exact offending
// schema key so operators can fix the file; lookups are strictly
// case-sensitive and a differently cased key is treated as absent.
type Error struct {
	Key string
	Msg string
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("schema: %s %q", e.Msg, e.Key)
	}
	return "schema: " + e.Msg
}

func missingBasePointer(key string) *Error {
	return &Error{Key: key, Msg: "missing required base pointer"}
}

func missingSize(key string) *Error {
	return &Error{Key: key, Msg: "missing required size"}
}

// RequiredBasePointers are the table labels every live bundle must
// declare, paired with the game_info size key that carries the
// record stride for that table.
var RequiredBasePointers = []string{"Player", "Team", "Staff", "Stadium"}

// SizeKeyFor maps a base pointer label to its required size key.
var SizeKeyFor = map[string]string{
	"Player":  "playerSize",
	"Team":    "teamSize",
	"Staff":   "staffSize",
	"Stadium": "stadiumSize",
}

// Field data types after normalization.
const (
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypePointer = "pointer"
	TypeBinary  = "binary"
	TypeWString = "wstring"
	TypeString  = "string"
)

// NormalizeType folds the raw type tags seen across schema dialects
// into the canonical set. Unknown tags pass through lower-cased.
func NormalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch t {
	case "":
		return ""
	case "integer", "int", "uint", "number", "slider", "byte", "short":
		return TypeInteger
	case "float", "single", "double":
		return TypeFloat
	case "ptr", "address":
		return TypePointer
	case "binary", "bool", "boolean", "bit", "bitfield", "combo":
		return TypeBinary
	case "wstring", "utf16", "utf-16", "wchar", "wide":
		return TypeWString
	case "string", "text", "ascii", "char", "cstring":
		return TypeString
	}
	if strings.Contains(t, "pointer") {
		return TypePointer
	}
	return t
}

// InferLengthBits supplies a bit length for entries that omit one,
// based on the declared type. Returns 0 when nothing can be inferred.
func InferLengthBits(rawType string) int {
	switch NormalizeType(rawType) {
	case TypeInteger, TypeFloat:
		return 32
	case TypePointer:
		return 64
	case TypeBinary:
		return 1
	}
	return 0
}

// FieldSpec is one fully resolved field definition. Length carries
// bits for numeric/bit-packed fields and character count for string
// fields; ByteLength, when nonzero, bounds the covering span.
type FieldSpec struct {
	Name              string
	Category          string
	CanonicalCategory string
	NormalizedName    string
	SuperType         string
	Offset            uint64
	StartBit          int
	Length            int
	Type              string
	TypeRaw           string
	ByteLength        int
	RequiresDeref     bool
	DerefOffset       uint64
	Values            []string
	LengthInferred    bool
	StartBitInferred  bool
	SourceFile        string
	EntryID           int
}

// Validate checks the bit-span invariant for bit-packed fields.
func (f *FieldSpec) Validate() error {
	if f.ByteLength > 0 && f.StartBit+f.Length > f.ByteLength*8 {
		return &Error{Key: f.Name, Msg: "field bit span exceeds byte length for"}
	}
	if f.StartBit < 0 || f.Length <= 0 {
		return &Error{Key: f.Name, Msg: "field has empty bit span for"}
	}
	return nil
}

// IsString reports whether the field decodes as text.
func (f *FieldSpec) IsString() bool {
	return f.Type == TypeString || f.Type == TypeWString
}

// Step is one link of a pointer chain: advance by Offset, optionally
// replace the cursor with the pointer stored there, then advance by
// PostAdd.
type Step struct {
	Offset      int64 `json:"offset"`
	Dereference bool  `json:"dereference"`
	PostAdd     int64 `json:"post_add"`
}

// Chain addresses the first record of a table. Address is an RVA
// unless Absolute is set. DirectTable marks an address that already
// points at the table, skipping the steps entirely.
type Chain struct {
	Address     uint64 `json:"address"`
	Absolute    bool   `json:"absolute"`
	DirectTable bool   `json:"direct_table"`
	Steps       []Step `json:"steps"`
	FinalOffset int64  `json:"final_offset"`
}

// Bundle is one normalized, version-resolved schema.
type Bundle struct {
	Target       string
	Version      string
	Categories   map[string][]FieldSpec
	BasePointers map[string]Chain
	Sizes        map[string]int
	GameInfo     map[string]string
	Report       *ParseReport
}

// Find returns the field with the exact category and name, or nil.
// Matching is case-sensitive.
func (b *Bundle) Find(category, name string) *FieldSpec {
	for i := range b.Categories[category] {
		if b.Categories[category][i].Name == name {
			return &b.Categories[category][i]
		}
	}
	return nil
}

// FindNormalized returns the field with the exact canonical category
// and normalized name, or nil.
func (b *Bundle) FindNormalized(canonicalCategory, normalizedName string) *FieldSpec {
	for cat := range b.Categories {
		for i := range b.Categories[cat] {
			f := &b.Categories[cat][i]
			if f.CanonicalCategory == canonicalCategory && f.NormalizedName == normalizedName {
				return f
			}
		}
	}
	return nil
}

// ValidateRequired enforces the strict required-key invariant: every
// label in RequiredBasePointers must be present in BasePointers, and
// its size key in Sizes, by exact case.
func (b *Bundle) ValidateRequired() error {
	for _, label := range RequiredBasePointers {
		if _, ok := b.BasePointers[label]; !ok {
			return missingBasePointer(label)
		}
		sizeKey := SizeKeyFor[label]
		if v, ok := b.Sizes[sizeKey]; !ok || v <= 0 {
			return missingSize(sizeKey)
		}
	}
	return nil
}

var versionRe = regexp.MustCompile(`2k(\d{2})`)

// VersionLabel derives the schema version label from a target
// executable name: "nba2k26.exe" yields "2K26". Empty when the name
// carries no recognizable build number.
func VersionLabel(executable string) string {
	m := versionRe.FindStringSubmatch(strings.ToLower(executable))
	if m == nil {
		return ""
	}
	return "2K" + m[1]
}

// splitVersionTokens splits a version key like "2K25, 2K26" into
// upper-cased tokens, preserving order and dropping duplicates.
func splitVersionTokens(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, chunk := range strings.Split(raw, ",") {
		tok := strings.ToUpper(strings.TrimSpace(chunk))
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// versionKeyMatches reports whether a version key (single label or a
// comma-separated token list) names the target label exactly.
func versionKeyMatches(rawKey, target string) bool {
	want := strings.ToUpper(strings.TrimSpace(target))
	if want == "" {
		return false
	}
	toks := splitVersionTokens(rawKey)
	if len(toks) > 0 {
		for _, tok := range toks {
			if tok == want {
				return true
			}
		}
		return false
	}
	return strings.ToUpper(strings.TrimSpace(rawKey)) == want
}

// toInt coerces schema JSON values to int: numbers, decimal strings,
// and 0x-prefixed hex strings. Anything else yields 0.
func toInt(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		base := 10
		if strings.HasPrefix(strings.ToLower(s), "0x") {
			base = 16
			s = s[2:]
		}
		n, err := strconv.ParseInt(s, base, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	}
	return ""
}

func firstString(vs ...any) string {
	for _, v := range vs {
		if s := strings.TrimSpace(asString(v)); s != "" {
			return s
		}
	}
	return ""
}
