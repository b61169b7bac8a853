package league

import (
	"log/slog"
	"strings"
	"sync"

	"rosterscope/internal/codec"
	"rosterscope/internal/roster"
	"rosterscope/internal/schema"
)

// Editor is the slice of the roster surface the live adapter reads.
// *roster.Context satisfies it.
type Editor interface {
	DecodeField(kind roster.Kind, index int, category, name string, spec *schema.FieldSpec, recordPtr uint64) (codec.Decoded, error)
}

// LiveAdapter sources league state from an attached process, decoding
// names record by record over the mock baseline. When the process is
// not readable the overlay stops and the baseline stands, so callers
// always get a usable state.
type LiveAdapter struct {
	ed       Editor
	fallback *MockAdapter
	log      *slog.Logger

	mu    sync.Mutex
	state *State
}

func NewLiveAdapter(ed Editor, seed int64, log *slog.Logger) *LiveAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &LiveAdapter{
		ed:       ed,
		fallback: NewMockAdapter(seed),
		log:      log,
	}
}

func (l *LiveAdapter) LoadState(seed int64) (*State, error) {
	state, err := l.fallback.LoadState(seed)
	if err != nil {
		return nil, err
	}
	l.overlay(state)
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
	return state, nil
}

func (l *LiveAdapter) ApplyAction(action Action) (*Result, error) {
	state, err := l.current()
	if err != nil {
		return nil, err
	}
	meta := apply(state, action)
	return &Result{State: state, Metadata: meta}, nil
}

func (l *LiveAdapter) CapInfo(teamID int) (CapInfo, error) {
	state, err := l.current()
	if err != nil {
		return CapInfo{}, err
	}
	return capInfoFor(state, teamID)
}

func (l *LiveAdapter) current() (*State, error) {
	l.mu.Lock()
	state := l.state
	l.mu.Unlock()
	if state != nil {
		return state, nil
	}
	return l.LoadState(0)
}

// overlay replaces generated names with live ones, walking records in
// table order until the first unreadable one.
func (l *LiveAdapter) overlay(state *State) {
	if l.ed == nil {
		return
	}
	teams := 0
	for i, id := range sortedIDs(state.Teams) {
		got, err := l.ed.DecodeField(roster.Team, i, "Team Vitals", "Team Name", nil, 0)
		if err != nil {
			break
		}
		if name := strings.TrimSpace(got.Text); name != "" {
			state.Teams[id].Name = name
			teams++
		}
	}
	players := 0
	for i, id := range sortedIDs(state.Players) {
		first, err := l.ed.DecodeField(roster.Player, i, "Vitals", "First Name", nil, 0)
		if err != nil {
			break
		}
		last, err := l.ed.DecodeField(roster.Player, i, "Vitals", "Last Name", nil, 0)
		if err != nil {
			break
		}
		name := strings.TrimSpace(first.Text + " " + last.Text)
		if name != "" {
			state.Players[id].Name = name
			players++
		}
	}
	if teams > 0 || players > 0 {
		l.log.Info("live roster overlay", "teams", teams, "players", players)
	} else {
		l.log.Debug("live roster overlay empty, using generated state")
	}
}
