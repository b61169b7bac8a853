package roster

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterscope/internal/chain"
	"rosterscope/internal/locate"
	"rosterscope/internal/procmem"
)

const (
	testPlayerBase  = 130990776
	testTeamBase    = 0x90000000
	testStaffBase   = 0xA0000000
	testStadiumBase = 0xB0000000

	testPlayerStride  = 1176
	testTeamStride    = 5672
	testStaffStride   = 1000
	testStadiumStride = 1024

	firstNameOff   = 0x10
	lastNameOff    = 0x40
	numberOff      = 0x70
	teamPtrOff     = 0x80
	threePointOff  = 0x200
	teamNameOff    = 0x100
	staffFirstOff  = 0x20
	arenaNameOff   = 0x90
	arenaNameChars = 32
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rosterDoc() map[string]any {
	entry := func(category, name, normalized string, addr uint64, length int, typ string) map[string]any {
		return map[string]any{
			"category":           category,
			"canonical_category": category,
			"name":               name,
			"normalized_name":    normalized,
			"address":            addr,
			"length":             length,
			"type":               typ,
		}
	}
	return map[string]any{
		"offsets": []any{
			entry("Vitals", "First Name", "FIRSTNAME", firstNameOff, 20, "WString"),
			entry("Vitals", "Last Name", "LASTNAME", lastNameOff, 20, "WString"),
			entry("Vitals", "Number", "NUMBER", numberOff, 8, "Integer"),
			entry("Vitals", "Team Address", "TEAMADDRESS", teamPtrOff, 64, "Pointer"),
			entry("Attributes", "Three Point Shot", "THREEPOINTSHOT", threePointOff, 8, "Integer"),
			entry("Team Vitals", "Team Name", "TEAMNAME", teamNameOff, 24, "WString"),
			entry("Staff Vitals", "First Name", "FIRSTNAME", staffFirstOff, 20, "WString"),
			entry("Stadium", "Arena Name", "ARENANAME", arenaNameOff, arenaNameChars, "WString"),
		},
		"base_pointers": map[string]any{
			"Player":  map[string]any{"address": testPlayerBase, "absolute": true, "chain": []any{}},
			"Team":    map[string]any{"address": testTeamBase, "absolute": true, "chain": []any{}},
			"Staff":   map[string]any{"address": testStaffBase, "absolute": true, "chain": []any{}},
			"Stadium": map[string]any{"address": testStadiumBase, "absolute": true, "chain": []any{}},
		},
		"game_info": map[string]any{
			"playerSize":  testPlayerStride,
			"teamSize":    testTeamStride,
			"staffSize":   testStaffStride,
			"stadiumSize": testStadiumStride,
		},
	}
}

func writeSchemaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	data, err := json.Marshal(rosterDoc())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "offsets.json"), data, 0o644))
	return dir
}

func putWide(seg []byte, off uint64, s string, chars int) {
	copy(seg[off:], procmem.EncodeFixedString(s, chars, procmem.EncodingUTF16))
}

// fixtureBuffer maps one populated segment per record family. Player
// record 0 carries Tyrese Maxey with a team pointer at the second
// team record; record 5 carries Victor Wembanyama.
func fixtureBuffer() *procmem.Buffer {
	buf := procmem.NewBuffer(0)

	players := make([]byte, 6*testPlayerStride)
	putWide(players, firstNameOff, "Tyrese", 20)
	putWide(players, lastNameOff, "Maxey", 20)
	players[numberOff] = 0
	binary.LittleEndian.PutUint64(players[teamPtrOff:], testTeamBase+testTeamStride)
	rec5 := uint64(5 * testPlayerStride)
	putWide(players, rec5+firstNameOff, "Victor", 20)
	putWide(players, rec5+lastNameOff, "Wembanyama", 20)
	buf.Map(testPlayerBase, players)

	teams := make([]byte, 2*testTeamStride)
	putWide(teams, teamNameOff, "Celtics", 24)
	putWide(teams, testTeamStride+teamNameOff, "Lakers", 24)
	buf.Map(testTeamBase, teams)

	staff := make([]byte, testStaffStride)
	putWide(staff, staffFirstOff, "Gregg", 20)
	buf.Map(testStaffBase, staff)

	stadium := make([]byte, testStadiumStride)
	putWide(stadium, arenaNameOff, "TD Garden", arenaNameChars)
	buf.Map(testStadiumBase, stadium)

	return buf
}

func newTestContext(t *testing.T, buf *procmem.Buffer) *Context {
	t.Helper()
	ctx := NewContext(buf, nil, Config{SearchDirs: []string{writeSchemaDir(t)}}, quietLogger())
	require.NoError(t, ctx.Load("NBA2K26.exe"))
	return ctx
}

func TestLoadRejectsUnknownTarget(t *testing.T) {
	ctx := NewContext(fixtureBuffer(), nil, Config{SearchDirs: []string{writeSchemaDir(t)}}, quietLogger())

	err := ctx.Load("hl2.exe")
	require.ErrorIs(t, err, ErrUnknownTarget)
	assert.Nil(t, ctx.Bundle())

	require.NoError(t, ctx.Load("nba2k26.exe"))
	assert.NotNil(t, ctx.Bundle())
}

func TestRecordAddressUsesBaseAndStride(t *testing.T) {
	ctx := newTestContext(t, fixtureBuffer())

	addr, err := ctx.RecordAddress(Player, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(testPlayerBase+5*testPlayerStride), addr)

	addr, err = ctx.RecordAddress(Team, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(testTeamBase+testTeamStride), addr)

	_, err = ctx.RecordAddress(Player, -1)
	require.ErrorIs(t, err, ErrBadIndex)

	_, err = ctx.RecordAddress(Kind("coach"), 0)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestFieldLookupIsCaseSensitive(t *testing.T) {
	ctx := newTestContext(t, fixtureBuffer())

	spec, err := ctx.Field("Vitals", "First Name")
	require.NoError(t, err)
	assert.Equal(t, uint64(firstNameOff), spec.Offset)

	_, err = ctx.Field("Vitals", "first name")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestDecodeLiveNames(t *testing.T) {
	ctx := newTestContext(t, fixtureBuffer())

	got, err := ctx.DecodeField(Player, 0, "Vitals", "First Name", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Tyrese", got.Text)

	got, err = ctx.DecodeField(Player, 5, "Vitals", "Last Name", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Wembanyama", got.Text)

	got, err = ctx.DecodeField(Stadium, 0, "Stadium", "Arena Name", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "TD Garden", got.Text)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ctx := newTestContext(t, fixtureBuffer())

	ok, err := ctx.EncodeField(Player, 0, "Vitals", "Number", nil, 0, 23, nil)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := ctx.DecodeField(Player, 0, "Vitals", "Number", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(23), got.Int)

	// Rating endpoints survive the display-range mapping exactly.
	ok, err = ctx.EncodeField(Player, 0, "Attributes", "Three Point Shot", nil, 0, 99, nil)
	require.NoError(t, err)
	require.True(t, ok)
	got, err = ctx.DecodeField(Player, 0, "Attributes", "Three Point Shot", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.Int)

	ok, err = ctx.EncodeField(Player, 0, "Vitals", "First Name", nil, 0, "Jalen", nil)
	require.NoError(t, err)
	require.True(t, ok)
	got, err = ctx.DecodeField(Player, 0, "Vitals", "First Name", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Jalen", got.Text)
}

func TestTeamPointerFieldRoundTrip(t *testing.T) {
	buf := fixtureBuffer()
	ctx := newTestContext(t, buf)

	got, err := ctx.DecodeField(Player, 0, "Vitals", "Team Address", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Lakers", got.Text)

	ok, err := ctx.EncodeField(Player, 0, "Vitals", "Team Address", nil, 0, "Celtics", nil)
	require.NoError(t, err)
	require.True(t, ok)

	raw, err := buf.ReadBytes(testPlayerBase+teamPtrOff, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(testTeamBase), binary.LittleEndian.Uint64(raw))

	got, err = ctx.DecodeField(Player, 0, "Vitals", "Team Address", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Celtics", got.Text)
}

func TestBaseValidatorRejectsEmptyNames(t *testing.T) {
	buf := fixtureBuffer()
	require.NoError(t, buf.WriteBytes(testStadiumBase+arenaNameOff, make([]byte, arenaNameChars*2)))
	ctx := newTestContext(t, buf)

	_, err := ctx.DecodeField(Stadium, 0, "Stadium", "Arena Name", nil, 0)
	require.ErrorIs(t, err, chain.ErrUnresolved)
}

func TestApplyOverridesRedirectsBase(t *testing.T) {
	buf := fixtureBuffer()
	const altBase = 0x70000000
	alt := make([]byte, testPlayerStride)
	putWide(alt, firstNameOff, "Allen", 20)
	putWide(alt, lastNameOff, "Iverson", 20)
	buf.Map(altBase, alt)
	ctx := newTestContext(t, buf)

	// Warm the cache so the override provably drops it.
	addr, err := ctx.RecordAddress(Player, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(testPlayerBase), addr)

	ctx.ApplyOverrides(map[string]uint64{
		"Player": altBase,
		"Coach":  0x1234, // unknown label, ignored
		"Team":   0,      // zero, ignored
	})

	addr, err = ctx.RecordAddress(Player, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(altBase), addr)

	got, err := ctx.DecodeField(Player, 0, "Vitals", "First Name", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Allen", got.Text)

	addr, err = ctx.RecordAddress(Team, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(testTeamBase), addr)
}

func TestSnapshotDecodesFromOneRead(t *testing.T) {
	ctx := newTestContext(t, fixtureBuffer())

	snap, err := ctx.Snapshot(Player, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(testPlayerBase), snap.BaseAddress)
	assert.Len(t, snap.Buffer, 6*testPlayerStride)

	first, err := ctx.Field("Vitals", "First Name")
	require.NoError(t, err)
	got, err := snap.Decode(0, first)
	require.NoError(t, err)
	assert.Equal(t, "Tyrese", got.Text)
	got, err = snap.Decode(5, first)
	require.NoError(t, err)
	assert.Equal(t, "Victor", got.Text)

	teamPtr, err := ctx.Field("Vitals", "Team Address")
	require.NoError(t, err)
	got, err = snap.Decode(0, teamPtr)
	require.NoError(t, err)
	assert.Equal(t, "Lakers", got.Text)

	_, err = snap.Decode(6, first)
	require.ErrorIs(t, err, ErrBadIndex)

	_, err = ctx.Snapshot(Player, 0, 0)
	require.ErrorIs(t, err, ErrBadIndex)
}

func TestFindDynamicBasesAppliesOverride(t *testing.T) {
	buf := fixtureBuffer()

	// A relocated player table, far from the schema's static base:
	// scan-shaped names per record plus the schema's own name fields
	// so the rebased pointer still validates.
	const scanBase = 0x150000000
	const records = 160
	table := make([]byte, records*testPlayerStride)
	for i := 0; i < records; i++ {
		rec := uint64(i * testPlayerStride)
		copy(table[rec:], locate.EncodeWideString("Maxey"))
		copy(table[rec+0x28:], locate.EncodeWideString("Tyrese"))
		copy(table[rec+firstNameOff:], locate.EncodeWideString("Tyrese"))
		copy(table[rec+lastNameOff:], locate.EncodeWideString("Maxey"))
	}
	buf.Map(scanBase, table)
	ctx := newTestContext(t, buf)

	overrides, report, err := ctx.FindDynamicBases(locate.Params{})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, uint64(scanBase), overrides["Player"])
	assert.Len(t, report.PlayerHits, records)

	addr, err := ctx.RecordAddress(Player, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(scanBase), addr)

	got, err := ctx.DecodeField(Player, 0, "Vitals", "First Name", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Tyrese", got.Text)
}

func TestInvalidateDropsBundle(t *testing.T) {
	ctx := newTestContext(t, fixtureBuffer())
	require.NotNil(t, ctx.Bundle())
	assert.NotEmpty(t, ctx.SchemaPath())

	ctx.Invalidate()
	assert.Nil(t, ctx.Bundle())
	assert.Empty(t, ctx.SchemaPath())

	_, err := ctx.RecordAddress(Player, 0)
	require.ErrorIs(t, err, ErrNoSchema)
}

func TestRefreshSchemaPinsExplicitFile(t *testing.T) {
	ctx := newTestContext(t, fixtureBuffer())
	first := ctx.SchemaPath()

	doc := rosterDoc()
	doc["game_info"].(map[string]any)["playerSize"] = 9999
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	pinned := filepath.Join(t.TempDir(), "patched.json")
	require.NoError(t, os.WriteFile(pinned, data, 0o644))

	// A pinned load replaces the cached bundle even without force.
	require.NoError(t, ctx.RefreshSchema("NBA2K26.exe", false, pinned))
	assert.NotEqual(t, first, ctx.SchemaPath())
	assert.Equal(t, pinned, ctx.SchemaPath())

	stride, err := ctx.Stride(Player)
	require.NoError(t, err)
	assert.Equal(t, 9999, stride)

	// Re-pinning the active file is served from cache and stays pinned.
	require.NoError(t, ctx.RefreshSchema("NBA2K26.exe", false, pinned))
	assert.Equal(t, pinned, ctx.SchemaPath())
}
