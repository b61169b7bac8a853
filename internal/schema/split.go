package schema

import (
	"path/filepath"
	"strings"
)

// statsTableCategories maps the table group under a "Stats" root to
// the runtime category it is emitted under.
var statsTableCategories = map[string]string{
	"player stat id": "Stats - IDs",
	"season":         "Stats - Season",
	"career":         "Stats - Career",
	"awards":         "Stats - Awards",
}

// dropdownKey addresses one enum value list in the split dropdowns
// file: lower-cased category, upper-cased field, version token.
type dropdownKey struct {
	category string
	name     string
	version  string
}

// buildSplitPayload merges a split schema manifest found in dir into
// one payload in the merged dialect. Returns ok=false when the
// manifest is incomplete, leaving the caller to try plain candidate
// files instead.
func (r *Repository) buildSplitPayload(dir string) (string, map[string]any, bool) {
	leaguePath := filepath.Join(dir, SplitLeagueFile)
	league := r.readJSON(leaguePath)
	if league == nil {
		return "", nil, false
	}
	versions := asMap(league["versions"])
	if len(versions) == 0 {
		return "", nil, false
	}
	domains := make(map[string]map[string]any, len(SplitDomainFiles))
	for _, name := range SplitDomainFiles {
		doc := r.readJSON(filepath.Join(dir, name))
		if doc == nil {
			return "", nil, false
		}
		domains[name] = doc
	}

	superTypes := map[string]string{}
	for key, v := range asMap(league["super_type_map"]) {
		superTypes[strings.ToLower(key)] = asString(v)
	}
	dropdowns := buildDropdownIndex(r.readJSON(filepath.Join(dir, DropdownsFile)))

	var entries []any
	entryID := 0
	for _, name := range SplitDomainFiles {
		for domainKey, sections := range domains[name] {
			for _, section := range asList(sections) {
				sectionMap := asMap(section)
				for category, payload := range sectionMap {
					category = strings.TrimSpace(category)
					if category == "" {
						category = "Misc"
					}
					collectSplitLeaves(payload, []string{category}, func(leaf map[string]any, path []string) {
						entry := splitLeafEntry(leaf, path, domainKey, name, superTypes, dropdowns, &entryID)
						if entry != nil {
							entries = append(entries, entry)
						}
					})
				}
			}
		}
	}
	if len(entries) == 0 {
		return "", nil, false
	}

	merged := map[string]any{
		"offsets":  entries,
		"versions": versions,
		"_split_manifest": map[string]any{
			"required_files":         append([]string{SplitLeagueFile}, SplitDomainFiles...),
			"optional_files":         []string{DropdownsFile},
			"discovered_leaf_fields": len(entries),
		},
	}
	for _, key := range []string{"super_type_map", "category_normalization", "game_info", "base_pointers"} {
		if v := asMap(league[key]); v != nil {
			merged[key] = v
		}
	}
	return leaguePath, merged, true
}

// collectSplitLeaves walks an arbitrarily nested category tree and
// calls fn for each leaf field node: a dict carrying a per-version
// map and a usable name.
func collectSplitLeaves(node any, path []string, fn func(leaf map[string]any, path []string)) {
	if list := asList(node); list != nil {
		for _, item := range list {
			collectSplitLeaves(item, path, fn)
		}
		return
	}
	m := asMap(node)
	if m == nil {
		return
	}
	name := firstString(m["normalized_name"], m["canonical_name"], m["name"], m["display_name"])
	if asMap(m["versions"]) != nil && name != "" {
		fn(m, path)
		return
	}
	for key, child := range m {
		switch child.(type) {
		case map[string]any, []any:
			collectSplitLeaves(child, append(path[:len(path):len(path)], key), fn)
		}
	}
}

// splitCategory maps a leaf's path to the emitted category name.
// Stats tables fan out into per-table categories.
func splitCategory(root string, tableSegments []string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "Misc"
	}
	if !strings.EqualFold(root, "stats") {
		return root
	}
	if len(tableSegments) == 0 {
		return "Stats - Misc"
	}
	table := strings.TrimSpace(tableSegments[0])
	if mapped, ok := statsTableCategories[strings.ToLower(table)]; ok {
		return mapped
	}
	if table == "" {
		return "Stats - Misc"
	}
	return "Stats - " + table
}

func splitLeafEntry(
	leaf map[string]any,
	path []string,
	domainKey, fileName string,
	superTypes map[string]string,
	dropdowns map[dropdownKey][]string,
	entryID *int,
) map[string]any {
	normalized := strings.TrimSpace(firstString(
		leaf["normalized_name"], leaf["canonical_name"], leaf["name"], leaf["display_name"],
	))
	if normalized == "" {
		return nil
	}
	root := strings.TrimSpace(path[0])
	var tableSegments []string
	for _, seg := range path[1:] {
		if s := strings.TrimSpace(seg); s != "" {
			tableSegments = append(tableSegments, s)
		}
	}
	emitted := splitCategory(root, tableSegments)
	canonical := strings.TrimSpace(asString(leaf["canonical_category"]))
	if canonical == "" {
		canonical = emitted
	}
	// Stats tables have no flat alias; the table category is canonical.
	if strings.HasPrefix(emitted, "Stats - ") {
		canonical = emitted
	}
	display := strings.TrimSpace(firstString(leaf["display_name"], leaf["name"]))
	if display == "" {
		display = normalized
	}
	superType := firstString(
		leaf["super_type"], leaf["superType"],
		superTypes[strings.ToLower(canonical)],
		superTypes[strings.ToLower(emitted)],
		superTypes[strings.ToLower(root)],
	)

	versionMap := map[string]any{}
	for key, payload := range asMap(leaf["versions"]) {
		vp := asMap(payload)
		if vp == nil {
			continue
		}
		normalizedPayload := make(map[string]any, len(vp)+1)
		for k, v := range vp {
			normalizedPayload[k] = v
		}
		if asList(normalizedPayload["values"]) == nil {
			added := false
			for _, token := range splitVersionTokens(key) {
				for _, cat := range []string{canonical, emitted, root} {
					if cat == "" {
						continue
					}
					values := dropdowns[dropdownKey{strings.ToLower(cat), strings.ToUpper(normalized), token}]
					if len(values) > 0 {
						labels := make([]any, len(values))
						for i, v := range values {
							labels[i] = v
						}
						normalizedPayload["values"] = labels
						added = true
						break
					}
				}
				if added {
					break
				}
			}
		}
		versionMap[key] = normalizedPayload
	}
	if len(versionMap) == 0 {
		return nil
	}

	*entryID++
	entry := map[string]any{
		"category":              emitted,
		"name":                  display,
		"display_name":          display,
		"canonical_category":    canonical,
		"normalized_name":       normalized,
		"versions":              versionMap,
		"source_root_category":  root,
		"source_offsets_domain": strings.TrimSpace(domainKey),
		"source_offsets_file":   fileName,
		"parse_report_entry_id": float64(*entryID),
	}
	if superType != "" {
		entry["super_type"] = superType
	}
	if leaf["type"] != nil {
		entry["type"] = leaf["type"]
	}
	return entry
}

// buildDropdownIndex flattens the entry-style dropdowns document into
// a (category, name, version token) index.
func buildDropdownIndex(raw map[string]any) map[dropdownKey][]string {
	index := map[dropdownKey][]string{}
	if raw == nil {
		return index
	}
	for _, item := range asList(raw["dropdowns"]) {
		entry := asMap(item)
		if entry == nil {
			continue
		}
		category := strings.TrimSpace(asString(entry["canonical_category"]))
		name := strings.TrimSpace(asString(entry["normalized_name"]))
		versions := asMap(entry["versions"])
		if category == "" || name == "" || versions == nil {
			continue
		}
		for versionKey, v := range versions {
			vm := asMap(v)
			if vm == nil {
				continue
			}
			values := asList(vm["values"])
			if values == nil {
				values = asList(vm["dropdown"])
			}
			if len(values) == 0 {
				continue
			}
			labels := make([]string, 0, len(values))
			for _, value := range values {
				labels = append(labels, asString(value))
			}
			for _, token := range splitVersionTokens(versionKey) {
				index[dropdownKey{strings.ToLower(category), strings.ToUpper(name), token}] = labels
			}
		}
	}
	return index
}
