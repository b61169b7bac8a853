// Package league is the pluggable source of roster and league data:
// one capability interface with a live adapter reading an attached
// process and a deterministic in-memory mock, both sharing the same
// transaction semantics.
package league

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownTeam   = errors.New("league: unknown team")
	ErrUnknownPlayer = errors.New("league: unknown player")
)

// Player is one roster entry with the contract fields the transaction
// engine needs.
type Player struct {
	ID             int
	Name           string
	Position       string
	Age            int
	Overall        int
	TeamID         int
	Salary         float64
	YearsLeft      int
	Extension      bool
	MinutesPerGame float64
}

// Team is one franchise with its cap sheet and rotation.
type Team struct {
	ID            int
	Name          string
	Wins          int
	Losses        int
	SalaryCap     float64
	Payroll       float64
	LuxuryTaxLine float64
	Roster        []int
	Rotation      map[int]float64
}

// RosterSize returns the number of rostered players.
func (t *Team) RosterSize() int { return len(t.Roster) }

// Context carries league-level rules that gate transactions.
type Context struct {
	SeasonYear        int
	TotalWeeks        int
	CurrentWeek       int
	GamesPerSeason    int
	TradeDeadlineWeek int
	SoftCap           float64
	HardCap           float64
	LuxuryTaxLine     float64
	MinimumRoster     int
	MaximumRoster     int
	MaxMinutesPerGame float64
}

// State is one full league snapshot.
type State struct {
	Teams   map[int]*Team
	Players map[int]*Player
	Context Context
}

// Team returns the team or ErrUnknownTeam.
func (s *State) Team(id int) (*Team, error) {
	t, ok := s.Teams[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTeam, id)
	}
	return t, nil
}

// Player returns the player or ErrUnknownPlayer.
func (s *State) Player(id int) (*Player, error) {
	p, ok := s.Players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}
	return p, nil
}

// Action heads understood by the transaction engine.
const (
	HeadDraft      = "draft"
	HeadTrade      = "trade"
	HeadRotation   = "rotation"
	HeadContract   = "contract"
	HeadRosterMove = "roster_move"
)

// Action is one GM transaction against the league state.
type Action struct {
	Head              string
	TeamID            int
	TargetPlayerID    int
	SecondaryPlayerID int
	DraftSlot         int
	Minutes           map[int]float64
	ContractValue     float64
	ContractYears     int
	WaivePlayerID     int
	SignPlayerID      int
	Accept            bool
}

// Result pairs the post-transaction state with outcome markers, one
// 1.0-valued key per accepted or rejected path.
type Result struct {
	State    *State
	Metadata map[string]float64
}

// CapInfo summarizes one team's cap sheet.
type CapInfo struct {
	TeamID        int
	SalaryCap     float64
	Payroll       float64
	LuxuryTaxLine float64
	Room          float64
}

// Adapter is the capability surface consumers program against.
// Implementations are swappable: LiveAdapter reads an attached
// process, MockAdapter fabricates a deterministic league.
type Adapter interface {
	LoadState(seed int64) (*State, error)
	ApplyAction(action Action) (*Result, error)
	CapInfo(teamID int) (CapInfo, error)
}

// apply mutates state per the action and returns the outcome markers.
// Rejected transactions leave the state untouched apart from payroll
// recomputation.
func apply(state *State, a Action) map[string]float64 {
	meta := map[string]float64{}
	ctx := state.Context

	switch a.Head {
	case HeadDraft:
		newID := 1
		for id := range state.Players {
			if id >= newID {
				newID = id + 1
			}
		}
		player := makeProspect(newID, a.DraftSlot, a.TeamID)
		team := state.Teams[a.TeamID]
		if team != nil && len(team.Roster) < ctx.MaximumRoster {
			state.Players[newID] = player
			team.Roster = append(team.Roster, newID)
			team.Rotation[newID] = player.MinutesPerGame
			meta["accepted"] = 1.0
		} else {
			meta["rejected_roster_full"] = 1.0
		}

	case HeadTrade:
		target, okT := state.Players[a.TargetPlayerID]
		secondary, okS := state.Players[a.SecondaryPlayerID]
		if a.Accept && okT && okS {
			teamA := state.Teams[target.TeamID]
			teamB := state.Teams[secondary.TeamID]
			if teamA != nil && teamB != nil && swapPlayers(teamA, teamB, target, secondary) {
				meta["trade_executed"] = 1.0
			} else {
				meta["trade_invalid_player"] = 1.0
			}
		} else {
			meta["trade_invalid_player"] = 1.0
		}

	case HeadRotation:
		team := state.Teams[a.TeamID]
		if team != nil {
			total := 0.0
			for _, mins := range a.Minutes {
				total += mins
			}
			size := team.RosterSize()
			if size < 1 {
				size = 1
			}
			if total <= ctx.MaxMinutesPerGame*float64(size) {
				for pid, mins := range a.Minutes {
					if _, ok := team.Rotation[pid]; ok {
						team.Rotation[pid] = mins
					}
				}
				meta["rotation_applied"] = 1.0
			} else {
				meta["rotation_rejected_minutes_cap"] = 1.0
			}
		}

	case HeadContract:
		if player, ok := state.Players[a.TargetPlayerID]; ok {
			if a.ContractValue > 0 {
				player.Salary = a.ContractValue
			}
			if a.ContractYears > 0 {
				player.YearsLeft = a.ContractYears
			}
			player.Extension = true
			meta["extension_signed"] = 1.0
		} else {
			meta["contract_rejected_missing_player"] = 1.0
		}

	case HeadRosterMove:
		team := state.Teams[a.TeamID]
		if team != nil {
			if a.WaivePlayerID != 0 && removeFromRoster(team, a.WaivePlayerID) {
				if p, ok := state.Players[a.WaivePlayerID]; ok {
					p.TeamID = -1
				}
				meta["waived"] = 1.0
			}
			if p, ok := state.Players[a.SignPlayerID]; a.SignPlayerID != 0 && ok && !onRoster(team, a.SignPlayerID) {
				if len(team.Roster) < ctx.MaximumRoster {
					team.Roster = append(team.Roster, a.SignPlayerID)
					team.Rotation[a.SignPlayerID] = 12.0
					p.TeamID = a.TeamID
					meta["signed"] = 1.0
				} else {
					meta["sign_rejected_roster_full"] = 1.0
				}
			}
		}
	}

	refreshPayrolls(state)
	return meta
}

func makeProspect(id, draftSlot, teamID int) *Player {
	bump := 0
	if draftSlot < 10 {
		bump = 4
	}
	return &Player{
		ID:             id,
		Name:           fmt.Sprintf("Prospect %d", draftSlot),
		Position:       "G",
		Age:            20,
		Overall:        68 + bump,
		TeamID:         teamID,
		Salary:         7_500_000,
		YearsLeft:      4,
		MinutesPerGame: 22,
	}
}

func swapPlayers(teamA, teamB *Team, a, b *Player) bool {
	ia := rosterIndex(teamA, a.ID)
	ib := rosterIndex(teamB, b.ID)
	if ia < 0 || ib < 0 {
		return false
	}
	teamA.Roster[ia] = b.ID
	teamB.Roster[ib] = a.ID
	teamA.Rotation[b.ID] = takeMinutes(teamA, a)
	teamB.Rotation[a.ID] = takeMinutes(teamB, b)
	a.TeamID, b.TeamID = teamB.ID, teamA.ID
	return true
}

func takeMinutes(team *Team, p *Player) float64 {
	mins, ok := team.Rotation[p.ID]
	if !ok {
		mins = p.MinutesPerGame
	}
	delete(team.Rotation, p.ID)
	return mins
}

func rosterIndex(team *Team, id int) int {
	for i, pid := range team.Roster {
		if pid == id {
			return i
		}
	}
	return -1
}

func onRoster(team *Team, id int) bool { return rosterIndex(team, id) >= 0 }

func removeFromRoster(team *Team, id int) bool {
	i := rosterIndex(team, id)
	if i < 0 {
		return false
	}
	team.Roster = append(team.Roster[:i], team.Roster[i+1:]...)
	delete(team.Rotation, id)
	return true
}

func refreshPayrolls(state *State) {
	for _, team := range state.Teams {
		total := 0.0
		for _, pid := range team.Roster {
			if p, ok := state.Players[pid]; ok {
				total += p.Salary
			}
		}
		team.Payroll = total
	}
}

func capInfoFor(state *State, teamID int) (CapInfo, error) {
	team, err := state.Team(teamID)
	if err != nil {
		return CapInfo{}, err
	}
	return CapInfo{
		TeamID:        teamID,
		SalaryCap:     team.SalaryCap,
		Payroll:       team.Payroll,
		LuxuryTaxLine: team.LuxuryTaxLine,
		Room:          team.SalaryCap - team.Payroll,
	}, nil
}

func sortedIDs[M ~map[int]V, V any](m M) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
