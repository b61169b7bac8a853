package league

import (
	"fmt"
	"math/rand"
	"sync"
)

var mockTeamNames = []string{
	"76ers", "Bucks", "Cavaliers", "Celtics", "Hawks",
	"Heat", "Knicks", "Magic", "Nets", "Hornets",
}

var mockPositions = []string{"PG", "SG", "SF", "PF", "C"}

const mockPlayersPerTeam = 14

// MockAdapter fabricates a full league from a seed. The same seed
// always yields the same state, which makes it the fixture source for
// everything downstream of the Adapter interface.
type MockAdapter struct {
	seed int64

	mu    sync.Mutex
	state *State
}

func NewMockAdapter(seed int64) *MockAdapter {
	if seed == 0 {
		seed = 11
	}
	return &MockAdapter{seed: seed}
}

// LoadState regenerates the league. A zero seed reuses the adapter's
// construction seed.
func (m *MockAdapter) LoadState(seed int64) (*State, error) {
	if seed == 0 {
		seed = m.seed
	}
	state := generateLeague(seed)
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	return state, nil
}

func (m *MockAdapter) ApplyAction(action Action) (*Result, error) {
	state, err := m.current()
	if err != nil {
		return nil, err
	}
	meta := apply(state, action)
	return &Result{State: state, Metadata: meta}, nil
}

func (m *MockAdapter) CapInfo(teamID int) (CapInfo, error) {
	state, err := m.current()
	if err != nil {
		return CapInfo{}, err
	}
	return capInfoFor(state, teamID)
}

func (m *MockAdapter) current() (*State, error) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != nil {
		return state, nil
	}
	return m.LoadState(0)
}

func generateLeague(seed int64) *State {
	rng := rand.New(rand.NewSource(seed))
	ctx := Context{
		SeasonYear:        2025,
		TotalWeeks:        26,
		CurrentWeek:       1,
		GamesPerSeason:    82,
		TradeDeadlineWeek: 18,
		SoftCap:           140_000_000,
		HardCap:           190_000_000,
		LuxuryTaxLine:     170_000_000,
		MinimumRoster:     14,
		MaximumRoster:     15,
		MaxMinutesPerGame: 48,
	}
	state := &State{
		Teams:   map[int]*Team{},
		Players: map[int]*Player{},
		Context: ctx,
	}
	playerID := 1
	for ti, name := range mockTeamNames {
		team := &Team{
			ID:            ti,
			Name:          name,
			Wins:          rng.Intn(60),
			SalaryCap:     ctx.SoftCap,
			LuxuryTaxLine: ctx.LuxuryTaxLine,
			Rotation:      map[int]float64{},
		}
		team.Losses = ctx.GamesPerSeason/2 - team.Wins/2
		if team.Losses < 0 {
			team.Losses = 0
		}
		for pi := 0; pi < mockPlayersPerTeam; pi++ {
			p := &Player{
				ID:             playerID,
				Name:           fmt.Sprintf("%s Player %d", name, pi+1),
				Position:       mockPositions[pi%len(mockPositions)],
				Age:            19 + rng.Intn(18),
				Overall:        65 + rng.Intn(34),
				TeamID:         ti,
				Salary:         2_000_000 + rng.Float64()*38_000_000,
				YearsLeft:      1 + rng.Intn(4),
				MinutesPerGame: 10 + rng.Float64()*26,
			}
			state.Players[p.ID] = p
			team.Roster = append(team.Roster, p.ID)
			team.Rotation[p.ID] = p.MinutesPerGame
			playerID++
		}
		state.Teams[ti] = team
	}
	refreshPayrolls(state)
	return state
}
