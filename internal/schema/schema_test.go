package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBasePointers() map[string]any {
	return map[string]any{
		"Player":  map[string]any{"address": float64(130990776)},
		"Team":    map[string]any{"address": float64(0x1000)},
		"Staff":   map[string]any{"address": float64(0x2000)},
		"Stadium": map[string]any{"address": float64(0x3000)},
	}
}

func validGameInfo() map[string]any {
	return map[string]any{
		"executable":  "nba2k26.exe",
		"playerSize":  float64(1176),
		"teamSize":    float64(64),
		"staffSize":   float64(128),
		"stadiumSize": float64(256),
	}
}

func mergedPayload() map[string]any {
	return map[string]any{
		"offsets": []any{
			map[string]any{
				"category":        "Attributes",
				"name":            "Three Point",
				"normalized_name": "THREEPOINT",
				"versions": map[string]any{
					"2K25, 2K26": map[string]any{
						"address":  "0x4A2",
						"startBit": float64(3),
						"length":   float64(8),
						"type":     "Bitfield",
					},
				},
			},
			map[string]any{
				"category":        "Vitals",
				"name":            "First Name",
				"normalized_name": "FIRSTNAME",
				"versions": map[string]any{
					"2K26": map[string]any{
						"address": float64(0),
						"length":  float64(20),
						"type":    "wstring",
					},
				},
			},
			map[string]any{
				"category":        "Vitals",
				"name":            "Old Field",
				"normalized_name": "OLDFIELD",
				"versions": map[string]any{
					"2K24": map[string]any{"address": float64(8), "length": float64(4)},
				},
			},
		},
		"versions": map[string]any{
			"2K26": map[string]any{
				"base_pointers": validBasePointers(),
				"game_info":     validGameInfo(),
			},
		},
	}
}

func TestConvertMergedSelectsVersionTokens(t *testing.T) {
	b := ConvertMerged(mergedPayload(), "NBA2K26.exe")
	require.NotNil(t, b)
	assert.Equal(t, "2K26", b.Version)

	three := b.Find("Attributes", "Three Point")
	require.NotNil(t, three)
	assert.Equal(t, uint64(0x4A2), three.Offset)
	assert.Equal(t, 3, three.StartBit)
	assert.Equal(t, 8, three.Length)
	assert.Equal(t, TypeBinary, three.Type)

	first := b.Find("Vitals", "First Name")
	require.NotNil(t, first)
	assert.Equal(t, TypeWString, first.Type)
	assert.Equal(t, 20, first.Length)
}

func TestConvertMergedParseReport(t *testing.T) {
	b := ConvertMerged(mergedPayload(), "nba2k26.exe")
	require.NotNil(t, b)
	require.NotNil(t, b.Report)

	r := b.Report
	assert.Equal(t, 3, r.DiscoveredLeaf)
	assert.Equal(t, 2, r.Emitted)
	assert.Equal(t, 1, r.SkippedCount)
	assert.Equal(t, r.DiscoveredLeaf, r.Accounted)
	assert.Zero(t, r.UntrackedLoss)
	assert.Equal(t, 1, r.SkipsByReason["missing_target_version"])
	require.Len(t, r.Skipped, 1)
	assert.Equal(t, "OLDFIELD", r.Skipped[0].NormalizedName)
	assert.Equal(t, []string{"2K24"}, r.Skipped[0].AvailableVersions)
}

func TestConvertMergedStringNeedsLength(t *testing.T) {
	payload := mergedPayload()
	entry := asMap(asList(payload["offsets"])[1])
	asMap(asMap(entry["versions"])["2K26"])["length"] = float64(0)

	b := ConvertMerged(payload, "nba2k26.exe")
	require.NotNil(t, b)
	assert.Nil(t, b.Find("Vitals", "First Name"))
	assert.Equal(t, 1, b.Report.SkipsByReason["missing_required_string_length"])
}

func TestValidateRequiredIsCaseSensitive(t *testing.T) {
	build := func(mutate func(bp, gi map[string]any)) error {
		bp := validBasePointers()
		gi := validGameInfo()
		mutate(bp, gi)
		b := &Bundle{BasePointers: parseBasePointers(bp), Sizes: map[string]int{}, GameInfo: map[string]string{}}
		fillGameInfo(b, gi)
		return b.ValidateRequired()
	}

	err := build(func(bp, gi map[string]any) {
		bp["player"] = bp["Player"]
		delete(bp, "Player")
	})
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Player", serr.Key)

	err = build(func(bp, gi map[string]any) {
		gi["TeamSize"] = gi["teamSize"]
		delete(gi, "teamSize")
	})
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "teamSize", serr.Key)

	err = build(func(bp, gi map[string]any) { delete(gi, "teamSize") })
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "teamSize", serr.Key)

	assert.NoError(t, build(func(bp, gi map[string]any) {}))
}

func TestVersionLabel(t *testing.T) {
	tests := []struct {
		exe  string
		want string
	}{
		{"nba2k26.exe", "2K26"},
		{"NBA2K25.exe", "2K25"},
		{"notepad.exe", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VersionLabel(tt.exe), tt.exe)
	}
}

func TestVersionKeyMatching(t *testing.T) {
	assert.True(t, versionKeyMatches("2K25, 2K26", "2K26"))
	assert.True(t, versionKeyMatches("2k26", "2K26"))
	assert.False(t, versionKeyMatches("2K25, 2K27", "2K26"))
	assert.False(t, versionKeyMatches("2K260", "2K26"))
	assert.False(t, versionKeyMatches("2K26", ""))
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, TypeBinary, NormalizeType("Bitfield"))
	assert.Equal(t, TypeBinary, NormalizeType("combo"))
	assert.Equal(t, TypeInteger, NormalizeType("Slider"))
	assert.Equal(t, TypeFloat, NormalizeType("Single"))
	assert.Equal(t, TypePointer, NormalizeType("TeamPointer"))
	assert.Equal(t, TypeWString, NormalizeType("UTF-16"))
	assert.Equal(t, "", NormalizeType("  "))
}

func TestFieldSpecValidate(t *testing.T) {
	ok := FieldSpec{Name: "X", StartBit: 3, Length: 13, ByteLength: 2}
	assert.NoError(t, ok.Validate())

	bad := FieldSpec{Name: "X", StartBit: 4, Length: 13, ByteLength: 2}
	var serr *Error
	require.ErrorAs(t, bad.Validate(), &serr)
	assert.Equal(t, "X", serr.Key)
}

func writeJSONFile(t *testing.T, path string, doc any) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func unifiedDoc(playerSize int) map[string]any {
	return map[string]any{
		"offsets": []any{
			map[string]any{
				"category": "Vitals",
				"name":     "Height",
				"address":  float64(0x134),
				"startBit": float64(0),
				"length":   float64(16),
				"type":     "integer",
			},
		},
		"base_pointers": validBasePointers(),
		"game_info": map[string]any{
			"playerSize":  float64(playerSize),
			"teamSize":    float64(64),
			"staffSize":   float64(128),
			"stadiumSize": float64(256),
		},
	}
}

func TestRepositoryCachesUntilInvalidated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offsets.json")
	writeJSONFile(t, path, unifiedDoc(1176))

	repo := NewRepository(NewCache(), nil)
	res := NewResolver()

	gotPath, b1, err := repo.LoadBundle("nba2k26.exe", []string{dir}, []string{"offsets.json"}, res)
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
	assert.Equal(t, 1176, b1.Sizes["playerSize"])

	// Disk changes are invisible until explicit invalidation.
	writeJSONFile(t, path, unifiedDoc(2048))
	_, b2, err := repo.LoadBundle("nba2k26.exe", []string{dir}, []string{"offsets.json"}, res)
	require.NoError(t, err)
	assert.Same(t, b1, b2)

	repo.Cache().InvalidateTarget("nba2k26.exe")
	repo.Cache().InvalidatePath(path)
	_, b3, err := repo.LoadBundle("nba2k26.exe", []string{dir}, []string{"offsets.json"}, res)
	require.NoError(t, err)
	assert.Equal(t, 2048, b3.Sizes["playerSize"])
}

func TestRepositorySkipsUnparsableCandidates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{nope"), 0o644))
	writeJSONFile(t, filepath.Join(dir, "good.json"), unifiedDoc(1176))

	repo := NewRepository(NewCache(), nil)
	gotPath, b, err := repo.LoadBundle("nba2k26.exe", []string{dir}, []string{"broken.json", "good.json"}, NewResolver())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "good.json"), gotPath)
	require.NotNil(t, b)
}

func TestRepositoryMissingRequiredKeyIsFatal(t *testing.T) {
	dir := t.TempDir()
	doc := unifiedDoc(1176)
	bp := asMap(doc["base_pointers"])
	delete(bp, "Team")
	writeJSONFile(t, filepath.Join(dir, "offsets.json"), doc)

	repo := NewRepository(NewCache(), nil)
	_, _, err := repo.LoadBundle("nba2k26.exe", []string{dir}, []string{"offsets.json"}, NewResolver())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Team", serr.Key)
}

func TestVersionOverridesTopLevelDefaults(t *testing.T) {
	doc := unifiedDoc(1176)
	doc["versions"] = map[string]any{
		"2K26": map[string]any{
			"base_pointers": map[string]any{
				"Player": map[string]any{"address": float64(999), "absolute": true},
			},
			"game_info": map[string]any{"playerSize": float64(4096)},
		},
	}
	b := buildUnified(doc, "nba2k26.exe")
	require.NotNil(t, b)
	assert.Equal(t, uint64(999), b.BasePointers["Player"].Address)
	assert.True(t, b.BasePointers["Player"].Absolute)
	assert.Equal(t, uint64(0x1000), b.BasePointers["Team"].Address)
	assert.Equal(t, 4096, b.Sizes["playerSize"])
	assert.Equal(t, 64, b.Sizes["teamSize"])
}

func TestSplitManifestMerge(t *testing.T) {
	dir := t.TempDir()
	writeJSONFile(t, filepath.Join(dir, SplitLeagueFile), map[string]any{
		"versions": map[string]any{
			"2K26": map[string]any{
				"base_pointers": validBasePointers(),
				"game_info":     validGameInfo(),
			},
		},
		"super_type_map": map[string]any{"attributes": "Players"},
	})
	writeJSONFile(t, filepath.Join(dir, "offsets_players.json"), map[string]any{
		"players": []any{
			map[string]any{
				"Attributes": []any{
					map[string]any{
						"normalized_name": "THREEPOINT",
						"display_name":    "Three Point",
						"versions": map[string]any{
							"2K26": map[string]any{"address": "0x4A2", "startBit": float64(3), "length": float64(8), "type": "bitfield"},
						},
					},
				},
				"Stats": map[string]any{
					"Season": []any{
						map[string]any{
							"normalized_name": "POINTS",
							"versions": map[string]any{
								"2K26": map[string]any{"address": float64(0x900), "length": float64(16), "type": "int"},
							},
						},
					},
				},
			},
		},
	})
	for _, name := range SplitDomainFiles[1:] {
		writeJSONFile(t, filepath.Join(dir, name), map[string]any{})
	}
	writeJSONFile(t, filepath.Join(dir, DropdownsFile), map[string]any{
		"dropdowns": []any{
			map[string]any{
				"canonical_category": "Attributes",
				"normalized_name":    "THREEPOINT",
				"versions": map[string]any{
					"2K25, 2K26": map[string]any{"values": []any{"Low", "High"}},
				},
			},
		},
	})

	repo := NewRepository(NewCache(), nil)
	path, b, err := repo.LoadBundle("nba2k26.exe", []string{dir}, nil, NewResolver())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, SplitLeagueFile), path)

	three := b.Find("Attributes", "Three Point")
	require.NotNil(t, three)
	assert.Equal(t, "Players", three.SuperType)
	assert.Equal(t, []string{"Low", "High"}, three.Values)

	points := b.Find("Stats - Season", "POINTS")
	require.NotNil(t, points)
	assert.Equal(t, "Stats - Season", points.CanonicalCategory)
	assert.Zero(t, b.Report.UntrackedLoss)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			c.SetJSON("p", map[string]any{})
			c.InvalidatePath("p")
		}
	}()
	for i := 0; i < 1000; i++ {
		c.SetTarget(CachedPayload{TargetKey: "t"})
		c.Target("t")
		c.JSON("p")
	}
	<-done
}
