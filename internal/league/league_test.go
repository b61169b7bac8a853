package league

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterscope/internal/codec"
	"rosterscope/internal/roster"
	"rosterscope/internal/schema"
)

func mockState(t *testing.T, seed int64) (*MockAdapter, *State) {
	t.Helper()
	m := NewMockAdapter(seed)
	state, err := m.LoadState(0)
	require.NoError(t, err)
	return m, state
}

func TestMockIsDeterministic(t *testing.T) {
	_, a := mockState(t, 7)
	_, b := mockState(t, 7)
	assert.Equal(t, a, b)

	_, c := mockState(t, 8)
	assert.NotEqual(t, a, c)
}

func TestDraftRespectsRosterCap(t *testing.T) {
	m, state := mockState(t, 1)
	require.Equal(t, mockPlayersPerTeam, state.Teams[0].RosterSize())

	res, err := m.ApplyAction(Action{Head: HeadDraft, TeamID: 0, DraftSlot: 3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["accepted"])
	assert.Equal(t, mockPlayersPerTeam+1, res.State.Teams[0].RosterSize())

	res, err = m.ApplyAction(Action{Head: HeadDraft, TeamID: 0, DraftSlot: 4})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["rejected_roster_full"])
	assert.Equal(t, mockPlayersPerTeam+1, res.State.Teams[0].RosterSize())
}

func TestTradeSwapsRosters(t *testing.T) {
	m, state := mockState(t, 1)
	pa := state.Teams[0].Roster[0]
	pb := state.Teams[1].Roster[0]

	res, err := m.ApplyAction(Action{Head: HeadTrade, TargetPlayerID: pa, SecondaryPlayerID: pb})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["trade_invalid_player"], "unaccepted trade must not execute")
	assert.Equal(t, 0, state.Players[pa].TeamID)

	res, err = m.ApplyAction(Action{Head: HeadTrade, TargetPlayerID: pa, SecondaryPlayerID: pb, Accept: true})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["trade_executed"])
	assert.Equal(t, 1, res.State.Players[pa].TeamID)
	assert.Equal(t, 0, res.State.Players[pb].TeamID)
	assert.Contains(t, res.State.Teams[1].Roster, pa)
	assert.Contains(t, res.State.Teams[0].Roster, pb)
	assert.NotContains(t, res.State.Teams[0].Roster, pa)
}

func TestRotationMinutesCap(t *testing.T) {
	m, state := mockState(t, 1)
	pid := state.Teams[0].Roster[0]

	res, err := m.ApplyAction(Action{Head: HeadRotation, TeamID: 0, Minutes: map[int]float64{pid: 1e6}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["rotation_rejected_minutes_cap"])

	res, err = m.ApplyAction(Action{Head: HeadRotation, TeamID: 0, Minutes: map[int]float64{pid: 36}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["rotation_applied"])
	assert.Equal(t, 36.0, res.State.Teams[0].Rotation[pid])

	// Minutes for players outside the rotation are dropped.
	res, err = m.ApplyAction(Action{Head: HeadRotation, TeamID: 0, Minutes: map[int]float64{99999: 10}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["rotation_applied"])
	_, ok := res.State.Teams[0].Rotation[99999]
	assert.False(t, ok)
}

func TestContractExtension(t *testing.T) {
	m, state := mockState(t, 1)
	pid := state.Teams[0].Roster[0]

	res, err := m.ApplyAction(Action{Head: HeadContract, TargetPlayerID: pid, ContractValue: 31_000_000, ContractYears: 3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["extension_signed"])
	assert.Equal(t, 31_000_000.0, res.State.Players[pid].Salary)
	assert.Equal(t, 3, res.State.Players[pid].YearsLeft)
	assert.True(t, res.State.Players[pid].Extension)

	res, err = m.ApplyAction(Action{Head: HeadContract, TargetPlayerID: 99999})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["contract_rejected_missing_player"])
}

func TestRosterMoveWaiveAndSign(t *testing.T) {
	m, state := mockState(t, 1)
	pid := state.Teams[0].Roster[0]

	res, err := m.ApplyAction(Action{Head: HeadRosterMove, TeamID: 0, WaivePlayerID: pid})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["waived"])
	assert.Equal(t, -1, res.State.Players[pid].TeamID)
	assert.NotContains(t, res.State.Teams[0].Roster, pid)

	res, err = m.ApplyAction(Action{Head: HeadRosterMove, TeamID: 1, SignPlayerID: pid})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["signed"])
	assert.Equal(t, 1, res.State.Players[pid].TeamID)
	assert.Contains(t, res.State.Teams[1].Roster, pid)
}

func TestPayrollTracksRosterMoves(t *testing.T) {
	m, state := mockState(t, 1)
	pid := state.Teams[0].Roster[0]
	salary := state.Players[pid].Salary
	before := state.Teams[0].Payroll

	res, err := m.ApplyAction(Action{Head: HeadRosterMove, TeamID: 0, WaivePlayerID: pid})
	require.NoError(t, err)
	assert.InDelta(t, before-salary, res.State.Teams[0].Payroll, 0.01)
}

func TestCapInfo(t *testing.T) {
	m, state := mockState(t, 1)

	info, err := m.CapInfo(0)
	require.NoError(t, err)
	assert.Equal(t, state.Teams[0].SalaryCap, info.SalaryCap)
	assert.InDelta(t, state.Teams[0].SalaryCap-state.Teams[0].Payroll, info.Room, 0.01)

	_, err = m.CapInfo(99)
	require.ErrorIs(t, err, ErrUnknownTeam)
}

var errStubUnmapped = errors.New("unmapped record")

// stubEditor serves canned names for a prefix of each table and fails
// past it, the way a live process stops being readable at the end of
// a mapped region.
type stubEditor struct {
	teams   []string
	players [][2]string
}

func (s *stubEditor) DecodeField(kind roster.Kind, index int, category, name string, _ *schema.FieldSpec, _ uint64) (codec.Decoded, error) {
	switch kind {
	case roster.Team:
		if index < len(s.teams) {
			return codec.TextValue(s.teams[index]), nil
		}
	case roster.Player:
		if index < len(s.players) {
			if name == "First Name" {
				return codec.TextValue(s.players[index][0]), nil
			}
			return codec.TextValue(s.players[index][1]), nil
		}
	}
	return codec.Unavailable, errStubUnmapped
}

func TestLiveAdapterFallsBackToMock(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	live := NewLiveAdapter(nil, 3, quiet)
	state, err := live.LoadState(0)
	require.NoError(t, err)

	_, want := mockState(t, 3)
	assert.Equal(t, want.Teams[0].Name, state.Teams[0].Name)
	assert.Len(t, state.Players, len(want.Players))
}

func TestLiveAdapterOverlaysNames(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	ed := &stubEditor{
		teams:   []string{"Thunder", "Pacers"},
		players: [][2]string{{"Shai", "Gilgeous-Alexander"}, {"Tyrese", "Haliburton"}},
	}
	live := NewLiveAdapter(ed, 3, quiet)
	state, err := live.LoadState(0)
	require.NoError(t, err)

	assert.Equal(t, "Thunder", state.Teams[0].Name)
	assert.Equal(t, "Pacers", state.Teams[1].Name)
	assert.Equal(t, "Shai Gilgeous-Alexander", state.Players[1].Name)
	assert.Equal(t, "Tyrese Haliburton", state.Players[2].Name)

	// Past the readable prefix the generated names stand.
	_, want := mockState(t, 3)
	assert.Equal(t, want.Teams[2].Name, state.Teams[2].Name)
	assert.Equal(t, want.Players[3].Name, state.Players[3].Name)

	res, err := live.ApplyAction(Action{Head: HeadContract, TargetPlayerID: 1, ContractValue: 60_000_000})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metadata["extension_signed"])
	info, err := live.CapInfo(0)
	require.NoError(t, err)
	assert.Equal(t, 0, info.TeamID)
}
