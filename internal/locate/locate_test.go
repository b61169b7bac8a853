package locate

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterscope/internal/procmem"
)

const (
	testModuleBase  = 0x140000000
	testStride      = DefaultPlayerStride
	testTeamStride  = DefaultTeamStride
	testFirstOffset = DefaultFirstNameOffset
)

func quietScanner(mem procmem.Accessor) *Scanner {
	return NewScanner(mem, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// playerTable fills count stride-sized records, each carrying the same
// first/last name at the record name offsets.
func playerTable(count int, first, last string) []byte {
	buf := make([]byte, count*testStride)
	firstBytes := EncodeWideString(first)
	lastBytes := EncodeWideString(last)
	for i := 0; i < count; i++ {
		copy(buf[i*testStride:], lastBytes)
		copy(buf[i*testStride+testFirstOffset:], firstBytes)
	}
	return buf
}

func teamTable(names []string) []byte {
	buf := make([]byte, len(names)*testTeamStride)
	for i, name := range names {
		copy(buf[i*testTeamStride+DefaultTeamNameOffset:], EncodeWideString(name))
	}
	return buf
}

func TestEncodeWideString(t *testing.T) {
	got := EncodeWideString("Ab")
	assert.Equal(t, []byte{'A', 0, 'b', 0, 0, 0}, got)
}

func TestFindAllAdvancesByStep(t *testing.T) {
	data := []byte{0, 7, 7, 7, 0, 7, 7}
	// step 2 skips the overlapping match at 2; the next hit is at 5
	assert.Equal(t, []int{1, 5}, findAll(data, []byte{7, 7}, 2))
	assert.Equal(t, []int{1, 2, 5}, findAll(data, []byte{7, 7}, 1))
	assert.Empty(t, findAll(data, []byte{9}, 2))
}

func TestBackProjectStopsBeforeUnderflow(t *testing.T) {
	votes := backProject(2*testStride+100, testStride)
	require.Len(t, votes, 3)
	assert.Equal(t, uint64(100), votes[2])
}

func TestSummarizeOrdersByVotesThenAddress(t *testing.T) {
	votes := []uint64{10, 20, 20, 30, 30, 40, 50, 60, 70}
	got := summarize(votes, nil)
	require.Len(t, got, 5)
	assert.Equal(t, Candidate{Address: 30, Votes: 2}, got[0])
	assert.Equal(t, Candidate{Address: 20, Votes: 2}, got[1])
	assert.Equal(t, Candidate{Address: 70, Votes: 1}, got[2])

	filtered := summarize(votes, map[uint64]bool{30: true})
	assert.Equal(t, Candidate{Address: 20, Votes: 2}, filtered[0])
}

func TestScanFindsPlayerTable(t *testing.T) {
	buf := procmem.NewBuffer(testModuleBase)
	tableBase := uint64(testModuleBase + 0x5000)
	buf.Map(tableBase, playerTable(160, "Tyrese", "Maxey"))

	bases, report, err := quietScanner(buf).Scan(Params{})
	require.NoError(t, err)
	assert.Equal(t, tableBase, bases["Player"])
	assert.NotContains(t, bases, "Team")
	assert.Len(t, report.PlayerHits, 160)
	require.NotEmpty(t, report.PlayerCandidates)
	assert.Equal(t, tableBase, report.PlayerCandidates[0].Address)
	assert.Equal(t, 160, report.PlayerCandidates[0].Votes)
}

func TestScanRejectsBelowVoteThreshold(t *testing.T) {
	buf := procmem.NewBuffer(testModuleBase)
	buf.Map(testModuleBase+0x5000, playerTable(3, "Victor", "Wembanyama"))

	bases, report, err := quietScanner(buf).Scan(Params{})
	require.NoError(t, err)
	assert.NotContains(t, bases, "Player")
	assert.Equal(t, 3, report.PlayerRejectedVotes)
}

func TestScanFindsTeamTable(t *testing.T) {
	names := []string{
		"76ers", "Bucks", "Bulls", "Cavaliers", "Celtics",
		"Clippers", "Grizzlies", "Hawks", "Heat", "Hornets",
	}
	buf := procmem.NewBuffer(testModuleBase)
	tableBase := uint64(testModuleBase + 0x80000)
	buf.Map(tableBase, teamTable(names))

	bases, _, err := quietScanner(buf).Scan(Params{})
	require.NoError(t, err)
	assert.Equal(t, tableBase, bases["Team"])
}

func TestScanRejectsBrokenTeamRun(t *testing.T) {
	names := []string{
		"76ers", "Bucks", "Bulls", "Cavaliers", "Celtics",
		"Clippers", "Grizzlies", "Hawks", "Heat", "Hornets",
	}
	broken := teamTable(names)
	// Corrupt the run: record 4 carries the wrong name.
	copy(broken[4*testTeamStride+DefaultTeamNameOffset:], EncodeWideString("Knicks"))
	buf := procmem.NewBuffer(testModuleBase)
	buf.Map(testModuleBase+0x80000, broken)

	bases, _, err := quietScanner(buf).Scan(Params{})
	require.NoError(t, err)
	assert.NotContains(t, bases, "Team")
}

func TestScanSkipsUnreadableRegions(t *testing.T) {
	buf := procmem.NewBuffer(testModuleBase)
	buf.MapUnreadable(testModuleBase+0x1000, 0x2000)
	tableBase := uint64(testModuleBase + 0x5000)
	buf.Map(tableBase, playerTable(160, "Tyrese", "Maxey"))

	bases, report, err := quietScanner(buf).Scan(Params{})
	require.NoError(t, err)
	assert.Equal(t, tableBase, bases["Player"])
	assert.Greater(t, report.SkippedRegions, 0)
}

func TestScanFallsBackToHints(t *testing.T) {
	buf := procmem.NewBuffer(testModuleBase)

	bases, report, err := quietScanner(buf).Scan(Params{
		PlayerBaseHint: 0x7CEB038,
		TeamBaseHint:   0x7D00000,
	})
	require.NoError(t, err)
	assert.True(t, report.FallbackHints)
	assert.Equal(t, uint64(0x7CEB038), bases["Player"])
	assert.Equal(t, uint64(0x7D00000), bases["Team"])
}

func TestScanHintCannotWinItsOwnReelection(t *testing.T) {
	buf := procmem.NewBuffer(testModuleBase)
	tableBase := uint64(testModuleBase + 0x5000)
	buf.Map(tableBase, playerTable(160, "Tyrese", "Maxey"))

	bases, _, err := quietScanner(buf).Scan(Params{PlayerBaseHint: tableBase})
	require.NoError(t, err)
	require.Contains(t, bases, "Player")
	assert.NotEqual(t, tableBase, bases["Player"])
}

func TestScanParallelMatchesSequential(t *testing.T) {
	buf := procmem.NewBuffer(testModuleBase)
	tableBase := uint64(testModuleBase + 0x5000)
	buf.Map(tableBase, playerTable(160, "Tyrese", "Maxey"))

	seq, _, err := quietScanner(buf).Scan(Params{})
	require.NoError(t, err)
	par, _, err := quietScanner(buf).Scan(Params{Parallel: true, Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, seq["Player"], par["Player"])
}
