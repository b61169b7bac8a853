// Package locate rediscovers table base addresses at runtime by
// scanning the attached process for known record signatures. It is
// the fallback when statically declared base pointers fail to
// validate against the running build.
package locate

import (
	"bytes"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"rosterscope/internal/procmem"
)

// Scan geometry defaults for current builds.
const (
	DefaultPlayerStride    = 1176
	DefaultTeamStride      = 5672
	DefaultFirstNameOffset = 0x28
	DefaultLastNameOffset  = 0x0
	DefaultTeamNameOffset  = 0x2E2
	DefaultTeamNameChars   = 24
	DefaultSearchWindow    = 0x8000000
	DefaultVoteThreshold   = 151

	// Player records sit in one contiguous table, so every name hit
	// back-projects onto candidate table starts at fixed strides.
	backProjectStrides = 600

	// Wide scans start above 4 GiB. Low-address sweeps are slow and
	// the tables never live there.
	wideScanLow  = 0x100000000
	wideScanHigh = 0x7FFFFFFFFFFF

	topCandidates = 5
)

// PlayerTarget is a first/last name pair expected to exist somewhere
// in the player table of any shipped roster.
type PlayerTarget struct {
	First string
	Last  string
}

// Params tunes a scan. Zero values take defaults.
type Params struct {
	PlayerStride    int
	TeamStride      int
	FirstNameOffset uint64
	LastNameOffset  uint64
	TeamNameOffset  uint64
	TeamNameChars   int

	PlayerTargets []PlayerTarget
	ExpectedTeams []string

	// Hints are previously known bases. Hinted windows are scanned
	// first; the hint addresses themselves are excluded from voting so
	// a stale base cannot win its own re-election.
	PlayerBaseHint uint64
	TeamBaseHint   uint64
	SearchWindow   uint64

	VoteThreshold int
	Parallel      bool
	Workers       int
}

func (p Params) withDefaults() Params {
	if p.PlayerStride <= 0 {
		p.PlayerStride = DefaultPlayerStride
	}
	if p.TeamStride <= 0 {
		p.TeamStride = DefaultTeamStride
	}
	if p.FirstNameOffset == 0 {
		p.FirstNameOffset = DefaultFirstNameOffset
	}
	if p.TeamNameOffset == 0 {
		p.TeamNameOffset = DefaultTeamNameOffset
	}
	if p.TeamNameChars <= 0 {
		p.TeamNameChars = DefaultTeamNameChars
	}
	if len(p.PlayerTargets) == 0 {
		p.PlayerTargets = []PlayerTarget{
			{First: "Tyrese", Last: "Maxey"},
			{First: "Victor", Last: "Wembanyama"},
		}
	}
	if len(p.ExpectedTeams) == 0 {
		p.ExpectedTeams = []string{
			"76ers", "Bucks", "Bulls", "Cavaliers", "Celtics",
			"Clippers", "Grizzlies", "Hawks", "Heat", "Hornets",
		}
	}
	if p.SearchWindow == 0 {
		p.SearchWindow = DefaultSearchWindow
	}
	if p.VoteThreshold <= 0 {
		p.VoteThreshold = DefaultVoteThreshold
	}
	if p.Workers <= 0 {
		p.Workers = 4
	}
	return p
}

// Hit records one name-pattern match during a player scan.
type Hit struct {
	Target  string
	Address uint64
}

// Candidate is a voted base address.
type Candidate struct {
	Address uint64
	Votes   int
}

// Report carries scan diagnostics. It is produced per scan and never
// persisted.
type Report struct {
	PID                 int
	Elapsed             time.Duration
	PlayerHits          []Hit
	PlayerCandidates    []Candidate
	TeamCandidates      []Candidate
	PlayerRejectedVotes int
	FallbackHints       bool
	SkippedRegions      int
}

type addrRange struct {
	low  uint64
	high uint64
}

// Scanner runs signature scans against one attached process.
type Scanner struct {
	mem procmem.Accessor
	log *slog.Logger

	// guards report counters when ranges fan out
	mu sync.Mutex
}

func NewScanner(mem procmem.Accessor, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{mem: mem, log: log}
}

// EncodeWideString encodes text as UTF-16LE with a trailing NUL, the
// shape name fields take in record memory.
func EncodeWideString(text string) []byte {
	units := utf16.Encode([]rune(text))
	out := make([]byte, 0, (len(units)+1)*2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return append(out, 0, 0)
}

// findAll yields every index of pattern in data, advancing by step so
// UTF-16 matches stay aligned.
func findAll(data, pattern []byte, step int) []int {
	if step < 1 {
		step = 1
	}
	var out []int
	start := 0
	for start < len(data) {
		idx := bytes.Index(data[start:], pattern)
		if idx < 0 {
			return out
		}
		out = append(out, start+idx)
		start += idx + step
	}
	return out
}

// Scan sweeps the process for the player and team tables and returns
// base-pointer overrides keyed by label. A label with no confirmed
// match is simply absent from the result; the report says why.
func (s *Scanner) Scan(p Params) (map[string]uint64, *Report, error) {
	p = p.withDefaults()
	report := &Report{PID: s.mem.PID()}
	if s.mem.PID() == 0 {
		return nil, report, procmem.ErrNotAttached
	}
	start := time.Now()

	skipPlayer := hintSet(p.PlayerBaseHint)
	skipTeam := hintSet(p.TeamBaseHint)
	pRanges := s.scanRanges(p.PlayerBaseHint, p.SearchWindow)
	tRanges := s.scanRanges(p.TeamBaseHint, p.SearchWindow)

	var (
		playerHits  []Hit
		playerVotes []uint64
		teamBases   []uint64
	)
	if p.Parallel {
		done := make(chan struct{})
		go func() {
			defer close(done)
			teamBases = s.scanTeamRanges(p, tRanges, skipTeam, report)
		}()
		playerHits, playerVotes = s.scanPlayerRanges(p, pRanges, skipPlayer, report)
		<-done
	} else {
		teamBases = s.scanTeamRanges(p, tRanges, skipTeam, report)
		playerHits, playerVotes = s.scanPlayerRanges(p, pRanges, skipPlayer, report)
	}

	report.Elapsed = time.Since(start)
	report.PlayerHits = playerHits
	allPlayer := summarize(playerVotes, nil)
	filteredPlayer := allPlayer
	if len(skipPlayer) > 0 {
		filteredPlayer = summarize(playerVotes, skipPlayer)
	}
	report.PlayerCandidates = allPlayer
	allTeam := summarize(teamBases, nil)
	filteredTeam := allTeam
	if len(skipTeam) > 0 {
		filteredTeam = summarize(teamBases, skipTeam)
	}
	report.TeamCandidates = allTeam

	bases := map[string]uint64{}
	switch {
	case len(filteredPlayer) > 0 && filteredPlayer[0].Votes >= p.VoteThreshold:
		bases["Player"] = filteredPlayer[0].Address
	case len(allPlayer) > 0 && allPlayer[0].Votes >= p.VoteThreshold:
		bases["Player"] = allPlayer[0].Address
	case len(allPlayer) > 0:
		report.PlayerRejectedVotes = allPlayer[0].Votes
	}
	if len(filteredTeam) > 0 {
		bases["Team"] = filteredTeam[0].Address
	} else if len(allTeam) > 0 {
		bases["Team"] = allTeam[0].Address
	}

	// Empty-handed with both hints on file means the static offsets
	// were probably fine all along.
	if len(bases) == 0 && p.PlayerBaseHint != 0 && p.TeamBaseHint != 0 {
		bases["Player"] = p.PlayerBaseHint
		bases["Team"] = p.TeamBaseHint
		report.FallbackHints = true
	}

	s.log.Info("dynamic base scan finished",
		"pid", report.PID,
		"elapsed", report.Elapsed,
		"player_hits", len(playerHits),
		"labels", len(bases),
		"skipped_regions", report.SkippedRegions,
	)
	return bases, report, nil
}

// scanRanges orders the sweep: around the module first, then around
// the hint, then the wide high range.
func (s *Scanner) scanRanges(hint, window uint64) []addrRange {
	back := maxU64(0x10000, window)
	fwd := maxU64(0x20000, window)
	var out []addrRange
	if base := s.mem.ModuleBase(); base != 0 {
		out = append(out,
			addrRange{low: subFloor(base, back), high: base},
			addrRange{low: base, high: base + fwd},
		)
	}
	if hint != 0 {
		out = append(out,
			addrRange{low: subFloor(hint, back), high: hint},
			addrRange{low: hint, high: hint + fwd},
		)
	}
	return append(out, addrRange{low: wideScanLow, high: wideScanHigh})
}

func (s *Scanner) scanPlayerRanges(p Params, ranges []addrRange, skip map[uint64]bool, report *Report) ([]Hit, []uint64) {
	if p.Parallel && p.Workers > 1 && len(ranges) > 1 {
		var (
			mu    sync.Mutex
			wg    sync.WaitGroup
			hits  []Hit
			votes []uint64
		)
		sem := make(chan struct{}, p.Workers)
		for _, r := range ranges {
			wg.Add(1)
			sem <- struct{}{}
			go func(r addrRange) {
				defer wg.Done()
				defer func() { <-sem }()
				rangeHits, rangeVotes, _ := s.scanPlayerNames(p, r, skip, report)
				mu.Lock()
				hits = append(hits, rangeHits...)
				votes = append(votes, rangeVotes...)
				mu.Unlock()
			}(r)
		}
		wg.Wait()
		return hits, votes
	}

	var hits []Hit
	var votes []uint64
	for _, r := range ranges {
		rangeHits, rangeVotes, early := s.scanPlayerNames(p, r, skip, report)
		hits = append(hits, rangeHits...)
		votes = append(votes, rangeVotes...)
		if early {
			break
		}
		if len(skip) == 0 && len(rangeHits) > 0 {
			break
		}
	}
	return hits, votes
}

// scanPlayerNames walks readable regions in [r.low, r.high) looking
// for a target's last name with the matching first name one record
// field over. Every hit votes for the table starts it back-projects
// onto; the scan ends early once a candidate clears the threshold.
func (s *Scanner) scanPlayerNames(p Params, r addrRange, skip map[uint64]bool, report *Report) ([]Hit, []uint64, bool) {
	type pattern struct {
		last  []byte
		first []byte
		label string
	}
	patterns := make([]pattern, 0, len(p.PlayerTargets))
	for _, t := range p.PlayerTargets {
		patterns = append(patterns, pattern{
			last:  EncodeWideString(t.Last),
			first: EncodeWideString(t.First),
			label: t.First + " " + t.Last,
		})
	}

	var hits []Hit
	var votes []uint64
	regions, err := s.mem.Regions(r.low, r.high)
	if err != nil {
		s.log.Warn("region enumeration failed", "low", r.low, "high", r.high, "err", err)
		return hits, votes, false
	}
	for _, region := range regions {
		buf := s.regionBytes(region, report)
		if buf == nil {
			continue
		}
		before := len(hits)
		for _, pat := range patterns {
			for _, idx := range findAll(buf, pat.last, 2) {
				hit := region.Base + uint64(idx)
				if hit < p.LastNameOffset {
					continue
				}
				candidate := hit - p.LastNameOffset
				block, err := s.mem.ReadBytes(candidate+p.FirstNameOffset, len(pat.first))
				if err != nil || !bytes.HasPrefix(block, pat.first) {
					continue
				}
				hits = append(hits, Hit{Target: pat.label, Address: candidate})
			}
		}
		if len(hits) == before {
			continue
		}
		for _, h := range hits[before:] {
			votes = append(votes, backProject(h.Address, uint64(p.PlayerStride))...)
		}
		if len(skip) == 0 {
			return hits, votes, true
		}
		counts := summarize(votes, skip)
		if len(counts) > 0 && counts[0].Votes >= p.VoteThreshold {
			return hits, votes, true
		}
	}
	return hits, votes, false
}

func (s *Scanner) scanTeamRanges(p Params, ranges []addrRange, skip map[uint64]bool, report *Report) []uint64 {
	for _, r := range ranges {
		candidates := s.findTeamTable(p, r, report)
		if len(candidates) == 0 {
			continue
		}
		if len(skip) > 0 && allIn(candidates, skip) {
			continue
		}
		return candidates
	}
	return nil
}

// findTeamTable locates the team table by its run of expected names
// at a fixed per-record offset. The first expected name anchors a
// candidate; the rest must line up at successive strides.
func (s *Scanner) findTeamTable(p Params, r addrRange, report *Report) []uint64 {
	if len(p.ExpectedTeams) == 0 {
		return nil
	}
	anchor := EncodeWideString(p.ExpectedTeams[0])
	var candidates []uint64
	regions, err := s.mem.Regions(r.low, r.high)
	if err != nil {
		s.log.Warn("region enumeration failed", "low", r.low, "high", r.high, "err", err)
		return nil
	}
	for _, region := range regions {
		buf := s.regionBytes(region, report)
		if buf == nil {
			continue
		}
		for _, idx := range findAll(buf, anchor, 2) {
			hit := region.Base + uint64(idx)
			if hit < p.TeamNameOffset {
				continue
			}
			tableBase := hit - p.TeamNameOffset
			if s.verifyTeamRun(p, tableBase) {
				candidates = append(candidates, tableBase)
			}
		}
	}
	return candidates
}

func (s *Scanner) verifyTeamRun(p Params, tableBase uint64) bool {
	for i := 1; i < len(p.ExpectedTeams); i++ {
		addr := tableBase + uint64(i*p.TeamStride) + p.TeamNameOffset
		got, err := procmem.ReadFixedString(s.mem, addr, p.TeamNameChars, procmem.EncodingUTF16)
		if err != nil {
			return false
		}
		got = strings.TrimSpace(got)
		if got == "" || !strings.EqualFold(got, p.ExpectedTeams[i]) {
			return false
		}
	}
	return true
}

func (s *Scanner) regionBytes(region procmem.Region, report *Report) []byte {
	buf, err := s.mem.ReadBytes(region.Base, int(region.Size))
	if err != nil {
		s.mu.Lock()
		report.SkippedRegions++
		s.mu.Unlock()
		s.log.Debug("skipping unreadable region", "base", region.Base, "size", region.Size, "err", err)
		return nil
	}
	return buf
}

// backProject lists the table starts a record address could belong
// to, walking backwards one stride at a time.
func backProject(addr, stride uint64) []uint64 {
	out := make([]uint64, 0, backProjectStrides)
	for i := uint64(0); i < backProjectStrides; i++ {
		delta := i * stride
		if delta > addr {
			break
		}
		out = append(out, addr-delta)
	}
	return out
}

// summarize tallies votes and returns the top candidates, skip bases
// removed. Ties break toward the highest address: back-projection
// only walks downward, so the table start is the largest candidate
// consistent with every hit.
func summarize(values []uint64, skip map[uint64]bool) []Candidate {
	counts := make(map[uint64]int, len(values))
	for _, v := range values {
		if skip[v] {
			continue
		}
		counts[v]++
	}
	out := make([]Candidate, 0, len(counts))
	for addr, votes := range counts {
		out = append(out, Candidate{Address: addr, Votes: votes})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].Address > out[j].Address
	})
	if len(out) > topCandidates {
		out = out[:topCandidates]
	}
	return out
}

func allIn(values []uint64, set map[uint64]bool) bool {
	for _, v := range values {
		if !set[v] {
			return false
		}
	}
	return true
}

func hintSet(hint uint64) map[uint64]bool {
	if hint == 0 {
		return nil
	}
	return map[uint64]bool{hint: true}
}

func subFloor(base, delta uint64) uint64 {
	if delta > base {
		return 0
	}
	return base - delta
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
