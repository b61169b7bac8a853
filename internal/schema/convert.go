package schema

import (
	"sort"
	"strings"
)

// ParseReport accounts for every leaf field discovered while
// normalizing a payload. Invariant: UntrackedLoss == 0; a discovered
// field is either emitted or listed in Skipped with a reason.
type ParseReport struct {
	TargetVersion   string         `json:"target_version"`
	SelectedVersion string         `json:"selected_version_key"`
	DiscoveredLeaf  int            `json:"discovered_leaf_fields"`
	Emitted         int            `json:"emitted_fields"`
	SkippedCount    int            `json:"skipped_fields"`
	Accounted       int            `json:"accounted_fields"`
	UntrackedLoss   int            `json:"untracked_loss"`
	SkipsByReason   map[string]int `json:"skips_by_reason"`
	Skipped         []SkipRecord   `json:"skipped"`
}

// SkipRecord explains why one discovered field was not emitted.
type SkipRecord struct {
	Reason            string   `json:"reason"`
	Category          string   `json:"category"`
	CanonicalCategory string   `json:"canonical_category"`
	NormalizedName    string   `json:"normalized_name"`
	SourceFile        string   `json:"source_offsets_file"`
	EntryID           int      `json:"parse_report_entry_id"`
	AvailableVersions []string `json:"available_versions,omitempty"`
}

// ConvertFunc normalizes one schema dialect into a bundle. A nil
// return means the payload is not in this dialect, not an error.
type ConvertFunc func(raw map[string]any, target string) *Bundle

// SelectFunc picks the sub-document matching the target out of a
// multi-entry payload. A nil return means no entry matched.
type SelectFunc func(raw any, target string) map[string]any

// Resolver normalizes raw schema payloads through pluggable dialect
// strategies: Convert first, then Select followed by Convert on the
// selection, then the plain unified dialect as a last resort.
type Resolver struct {
	Convert ConvertFunc
	Select  SelectFunc
}

// NewResolver returns a resolver wired with the standard dialect
// strategies.
func NewResolver() *Resolver {
	return &Resolver{Convert: ConvertMerged, Select: SelectVersioned}
}

// Resolve normalizes raw into a bundle, or returns nil when no
// strategy accepts the payload.
func (r *Resolver) Resolve(raw any, target string) *Bundle {
	if m := asMap(raw); m != nil && r.Convert != nil {
		if b := r.Convert(m, target); b != nil {
			return b
		}
	}
	if r.Select != nil {
		if sel := r.Select(raw, target); sel != nil {
			if r.Convert != nil {
				if b := r.Convert(sel, target); b != nil {
					return b
				}
			}
			return buildUnified(sel, target)
		}
	}
	if m := asMap(raw); m != nil {
		return buildUnified(m, target)
	}
	return nil
}

// RequireBundle is Resolve with a hard failure when no strategy
// yields a bundle.
func (r *Resolver) RequireBundle(raw any, target string) (*Bundle, error) {
	b := r.Resolve(raw, target)
	if b == nil {
		key := target
		if key == "" {
			key = "unknown target"
		}
		return nil, &Error{Key: key, Msg: "could not resolve schema payload for"}
	}
	return b, nil
}

// SelectVersioned picks the best entry from a payload keyed by
// version: only entries whose game_info executable (or a 2kNN build
// hint in the key) matches the target are considered; an exact
// executable match outranks a hint match.
func SelectVersioned(raw any, target string) map[string]any {
	if m := asMap(raw); m != nil {
		if _, ok := m["offsets"].([]any); ok {
			return m
		}
		hint := ""
		if lbl := VersionLabel(target); lbl != "" {
			hint = strings.ToLower(strings.TrimPrefix(lbl, "2K"))
		}
		var best map[string]any
		bestScore := -1
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := asMap(m[key])
			if value == nil {
				continue
			}
			if _, ok := value["offsets"].([]any); !ok {
				continue
			}
			keyLower := strings.ToLower(key)
			gameInfo := asMap(value["game_info"])
			execName := strings.ToLower(asString(gameInfo["executable"]))
			if target != "" && execName != "" && execName != strings.ToLower(target) {
				continue
			}
			if hint != "" && !strings.Contains(keyLower, hint) && !strings.Contains(execName, hint) {
				continue
			}
			score := 0
			if hint != "" && strings.Contains(keyLower, hint) {
				score += 3
			}
			if target != "" && execName == strings.ToLower(target) {
				score += 4
			} else if hint != "" && strings.Contains(execName, hint) {
				score += 2
			}
			if hint != "" && strings.Contains(strings.ToLower(asString(gameInfo["version"])), hint) {
				score++
			}
			if score > bestScore {
				bestScore = score
				best = value
			}
		}
		if best != nil {
			return best
		}
		for _, key := range keys {
			if value := asMap(m[key]); value != nil {
				if _, ok := value["offsets"].([]any); ok {
					return value
				}
			}
		}
	}
	for _, item := range asList(raw) {
		if value := asMap(item); value != nil {
			if _, ok := value["offsets"].([]any); ok {
				return value
			}
		}
	}
	return nil
}

// ConvertMerged normalizes the merged dialect, where every entry in
// `offsets` carries a per-version map and the document-level
// `versions` map holds base pointers and game info per build.
func ConvertMerged(raw map[string]any, target string) *Bundle {
	offsets := asList(raw["offsets"])
	versions := asMap(raw["versions"])
	if offsets == nil || versions == nil {
		return nil
	}
	hint := VersionLabel(target)
	if hint == "" {
		return nil
	}

	versionKey := ""
	for key := range versions {
		if versionKeyMatches(key, hint) {
			versionKey = key
			break
		}
	}
	if versionKey == "" {
		return nil
	}
	versionInfo := asMap(versions[versionKey])
	if versionInfo == nil {
		return nil
	}

	report := &ParseReport{
		TargetVersion:   hint,
		SelectedVersion: versionKey,
		SkipsByReason:   map[string]int{},
	}
	skip := func(entry map[string]any, reason string, available []string) {
		report.SkipsByReason[reason]++
		report.Skipped = append(report.Skipped, SkipRecord{
			Reason:            reason,
			Category:          asString(entry["category"]),
			CanonicalCategory: asString(entry["canonical_category"]),
			NormalizedName:    asString(entry["normalized_name"]),
			SourceFile:        asString(entry["source_offsets_file"]),
			EntryID:           int(toInt(entry["parse_report_entry_id"])),
			AvailableVersions: available,
		})
	}

	categories := map[string][]FieldSpec{}
	for _, item := range offsets {
		entry := asMap(item)
		if entry == nil {
			continue
		}
		report.DiscoveredLeaf++

		perVersion := asMap(entry["versions"])
		if perVersion == nil {
			skip(entry, "missing_versions", nil)
			continue
		}
		var vEntry map[string]any
		for key, payload := range perVersion {
			if versionKeyMatches(key, hint) {
				vEntry = asMap(payload)
				if vEntry != nil {
					break
				}
			}
		}
		if vEntry == nil {
			available := make([]string, 0, len(perVersion))
			for key := range perVersion {
				available = append(available, key)
			}
			sort.Strings(available)
			skip(entry, "missing_target_version", available)
			continue
		}

		addrRaw := firstString(vEntry["address"], vEntry["offset"], vEntry["hex"])
		if addrRaw == "" {
			skip(entry, "missing_address", nil)
			continue
		}
		addr := toInt(addrRaw)
		if addr < 0 {
			skip(entry, "invalid_address", nil)
			continue
		}

		typeRaw := firstString(vEntry["type"], entry["type"])
		typ := NormalizeType(typeRaw)
		length := int(toInt(vEntry["length"]))
		lengthInferred := false
		if length <= 0 {
			if typ == TypeString || typ == TypeWString {
				skip(entry, "missing_required_string_length", nil)
				continue
			}
			length = InferLengthBits(typeRaw)
			if length <= 0 {
				skip(entry, "missing_length", nil)
				continue
			}
			lengthInferred = true
		}

		startBitInferred := false
		startRaw := firstString(vEntry["startBit"], vEntry["start_bit"])
		startBit := int(toInt(startRaw))
		if startRaw == "" || startBit < 0 {
			startBit = 0
			startBitInferred = true
		}

		normalized := firstString(
			vEntry["normalized_name"], entry["normalized_name"],
			entry["canonical_name"], entry["name"],
		)
		if normalized == "" {
			skip(entry, "missing_normalized_name", nil)
			continue
		}
		category := firstString(
			vEntry["category"], entry["category"],
			entry["canonical_category"], entry["super_type"],
		)
		if category == "" {
			category = "Misc"
		}
		canonical := firstString(vEntry["canonical_category"], entry["canonical_category"])
		if canonical == "" {
			canonical = category
		}
		display := firstString(vEntry["name"], entry["display_name"], entry["name"])
		if display == "" {
			display = normalized
		}

		spec := FieldSpec{
			Name:              display,
			Category:          category,
			CanonicalCategory: canonical,
			NormalizedName:    normalized,
			SuperType:         firstString(vEntry["super_type"], entry["super_type"]),
			Offset:            uint64(addr),
			StartBit:          startBit,
			Length:            length,
			Type:              typ,
			TypeRaw:           typeRaw,
			LengthInferred:    lengthInferred,
			StartBitInferred:  startBitInferred,
			SourceFile:        asString(entry["source_offsets_file"]),
			EntryID:           int(toInt(entry["parse_report_entry_id"])),
		}
		if vEntry["requiresDereference"] == true || vEntry["requires_deref"] == true {
			spec.RequiresDeref = true
		}
		if deref := firstString(vEntry["dereferenceAddress"], vEntry["deref_offset"], vEntry["dereference_address"]); deref != "" {
			spec.RequiresDeref = true
			spec.DerefOffset = uint64(toInt(deref))
		}
		for _, v := range asList(vEntry["values"]) {
			spec.Values = append(spec.Values, asString(v))
		}
		categories[spec.Category] = append(categories[spec.Category], spec)
		report.Emitted++
	}

	if report.Emitted == 0 {
		return nil
	}
	report.SkippedCount = len(report.Skipped)
	report.Accounted = report.Emitted + report.SkippedCount
	if loss := report.DiscoveredLeaf - report.Accounted; loss > 0 {
		report.UntrackedLoss = loss
	}

	b := &Bundle{
		Target:       target,
		Version:      hint,
		Categories:   categories,
		BasePointers: parseBasePointers(versionInfo["base_pointers"]),
		Sizes:        map[string]int{},
		GameInfo:     map[string]string{},
		Report:       report,
	}
	fillGameInfo(b, versionInfo["game_info"])
	return b
}

// buildUnified normalizes the flat dialect: one `offsets` list of
// entries already carrying version-resolved addresses, plus top-level
// base_pointers and game_info acting as defaults that a matched
// `versions` entry overrides.
func buildUnified(raw map[string]any, target string) *Bundle {
	offsets := asList(raw["offsets"])
	if offsets == nil {
		return nil
	}
	b := &Bundle{
		Target:       target,
		Version:      VersionLabel(target),
		Categories:   map[string][]FieldSpec{},
		BasePointers: parseBasePointers(raw["base_pointers"]),
		Sizes:        map[string]int{},
		GameInfo:     map[string]string{},
	}
	fillGameInfo(b, raw["game_info"])

	type seenKey struct{ cat, name string }
	seen := map[seenKey]bool{}
	for _, item := range offsets {
		entry := asMap(item)
		if entry == nil {
			continue
		}
		name := firstString(entry["name"], entry["display_name"])
		if name == "" {
			continue
		}
		category := firstString(entry["category"])
		if category == "" {
			category = "Misc"
		}
		key := seenKey{strings.ToLower(category), strings.ToLower(name)}
		if seen[key] {
			continue
		}
		seen[key] = true

		addr := toInt(firstString(entry["address"], entry["offset"], entry["hex"]))
		if addr < 0 {
			continue
		}
		typeRaw := asString(entry["type"])
		length := int(toInt(entry["length"]))
		if length <= 0 {
			size := int(toInt(entry["size"]))
			switch NormalizeType(typeRaw) {
			case TypeBinary:
				length = size
			case TypeInteger, TypeFloat, TypePointer:
				length = size * 8
			}
		}
		if length <= 0 {
			continue
		}
		spec := FieldSpec{
			Name:              name,
			Category:          category,
			CanonicalCategory: firstString(entry["canonical_category"], entry["category"]),
			NormalizedName:    firstString(entry["normalized_name"], entry["name"]),
			SuperType:         asString(entry["super_type"]),
			Offset:            uint64(addr),
			StartBit:          int(toInt(firstString(entry["startBit"], entry["start_bit"]))),
			Length:            length,
			Type:              NormalizeType(typeRaw),
			TypeRaw:           typeRaw,
		}
		if entry["requiresDereference"] == true {
			spec.RequiresDeref = true
			spec.DerefOffset = uint64(toInt(entry["dereferenceAddress"]))
		}
		for _, v := range asList(entry["values"]) {
			spec.Values = append(spec.Values, asString(v))
		}
		b.Categories[category] = append(b.Categories[category], spec)
	}

	// A matched versions entry overrides the top-level defaults.
	if versions := asMap(raw["versions"]); versions != nil && b.Version != "" {
		for key, payload := range versions {
			if !versionKeyMatches(key, b.Version) {
				continue
			}
			info := asMap(payload)
			if info == nil {
				continue
			}
			for label, chain := range parseBasePointers(info["base_pointers"]) {
				b.BasePointers[label] = chain
			}
			fillGameInfo(b, info["game_info"])
			break
		}
	}
	if len(b.Categories) == 0 {
		return nil
	}
	return b
}

// parseBasePointers accepts either a bare address or a chain object
// per label.
func parseBasePointers(raw any) map[string]Chain {
	out := map[string]Chain{}
	m := asMap(raw)
	for label, v := range m {
		switch t := v.(type) {
		case map[string]any:
			c := Chain{
				Address:     uint64(toInt(firstString(t["address"], t["rva"], t["offset"]))),
				Absolute:    t["absolute"] == true,
				DirectTable: t["direct_table"] == true,
				FinalOffset: toInt(t["final_offset"]),
			}
			steps := asList(t["chain"])
			if steps == nil {
				steps = asList(t["steps"])
			}
			for _, s := range steps {
				sm := asMap(s)
				if sm == nil {
					continue
				}
				deref := true
				if d, ok := sm["dereference"]; ok {
					deref = d == true
				}
				c.Steps = append(c.Steps, Step{
					Offset:      toInt(sm["offset"]),
					Dereference: deref,
					PostAdd:     toInt(firstString(sm["post_add"], sm["postAdd"])),
				})
			}
			out[label] = c
		default:
			out[label] = Chain{Address: uint64(toInt(v))}
		}
	}
	return out
}

// fillGameInfo folds a game_info object into the bundle: integer
// values land in Sizes, everything lands in GameInfo as text.
func fillGameInfo(b *Bundle, raw any) {
	for key, v := range asMap(raw) {
		if s := asString(v); s != "" {
			b.GameInfo[key] = s
		}
		if n := toInt(v); n > 0 {
			b.Sizes[key] = int(n)
		}
	}
}
