package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Snapshot is a timestamped capture of pointer payloads at fixed
// logical addresses, one entry per (record index, offset) slot.
type Snapshot struct {
	Label   string  `json:"label,omitempty"`
	Entries []Entry `json:"entries"`
}

// Entry is one captured slot. Payload carries the bytes behind a
// pointer slot; PayloadSHA256 may be precomputed by the capture tool
// and is derived from Payload when absent.
type Entry struct {
	RecordIndex   int    `json:"record_index"`
	Offset        int    `json:"offset"`
	RawValue      string `json:"raw_value,omitempty"`
	PointerTarget string `json:"pointer_target,omitempty"`
	PayloadSHA256 string `json:"payload_sha256,omitempty"`
	Payload       []byte `json:"payload_bytes,omitempty"`
	TeamLow32     uint32 `json:"team_low32,omitempty"`
	HasTeamLow32  bool   `json:"has_team_low32,omitempty"`
}

func (e Entry) hash() string {
	if e.PayloadSHA256 != "" {
		return e.PayloadSHA256
	}
	if len(e.Payload) == 0 {
		return ""
	}
	sum := sha256.Sum256(e.Payload)
	return hex.EncodeToString(sum[:])
}

func (e Entry) hint() *Hint {
	if !e.HasTeamLow32 {
		return nil
	}
	return &Hint{TeamLow32: e.TeamLow32}
}

// LoadSnapshot reads a snapshot JSON file produced by the capture
// tooling.
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layout: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("layout: parse snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// Change describes one slot whose value, pointer or payload moved
// between two snapshots.
type Change struct {
	RecordIndex    int    `json:"record_index"`
	Offset         int    `json:"offset"`
	RawBefore      string `json:"raw_before,omitempty"`
	RawAfter       string `json:"raw_after,omitempty"`
	PointerBefore  string `json:"pointer_before,omitempty"`
	PointerAfter   string `json:"pointer_after,omitempty"`
	PayloadChanged bool   `json:"payload_changed"`
	ClassBefore    Kind   `json:"class_before"`
	ClassAfter     Kind   `json:"class_after"`

	// Flagged marks a change for manual review: the classification
	// flipped, or an unknown-layout payload changed contents.
	Flagged bool `json:"flagged"`
}

// OffsetSummary aggregates the layouts seen at one offset across all
// changed slots.
type OffsetSummary struct {
	Offset       int          `json:"offset"`
	LayoutCounts map[Kind]int `json:"layout_counts"`
	Dominant     Kind         `json:"dominant_layout"`
	UnknownRatio float64      `json:"unknown_layout_ratio"`
}

// DiffReport is the deterministic comparison of two snapshots over
// the slots both captured.
type DiffReport struct {
	Compared      int             `json:"entries_compared"`
	Changes       []Change        `json:"changes"`
	Flagged       []Change        `json:"flagged"`
	OffsetSummary []OffsetSummary `json:"offset_summary"`
}

type slotKey struct {
	index  int
	offset int
}

// Diff compares two snapshots slot by slot. Slots present in only one
// snapshot are skipped; output order is fixed by (index, offset) so
// repeated runs produce identical reports.
func Diff(a, b *Snapshot) *DiffReport {
	idxA := indexEntries(a)
	idxB := indexEntries(b)
	keys := make([]slotKey, 0, len(idxA))
	for k := range idxA {
		if _, ok := idxB[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].index != keys[j].index {
			return keys[i].index < keys[j].index
		}
		return keys[i].offset < keys[j].offset
	})

	report := &DiffReport{Compared: len(keys)}
	perOffset := map[int]map[Kind]int{}
	for _, k := range keys {
		ea, eb := idxA[k], idxB[k]
		hashA, hashB := ea.hash(), eb.hash()
		if hashA == hashB && ea.RawValue == eb.RawValue && ea.PointerTarget == eb.PointerTarget {
			continue
		}
		classA := Classify(ea.Payload, ea.hint())
		classB := Classify(eb.Payload, eb.hint())
		change := Change{
			RecordIndex:    k.index,
			Offset:         k.offset,
			RawBefore:      ea.RawValue,
			RawAfter:       eb.RawValue,
			PointerBefore:  ea.PointerTarget,
			PointerAfter:   eb.PointerTarget,
			PayloadChanged: hashA != hashB,
			ClassBefore:    classA,
			ClassAfter:     classB,
		}
		change.Flagged = classA != classB ||
			(classA == UnknownLayout && change.PayloadChanged)
		report.Changes = append(report.Changes, change)
		if change.Flagged {
			report.Flagged = append(report.Flagged, change)
		}
		counts := perOffset[k.offset]
		if counts == nil {
			counts = map[Kind]int{}
			perOffset[k.offset] = counts
		}
		counts[classA]++
		counts[classB]++
	}

	offsets := make([]int, 0, len(perOffset))
	for off := range perOffset {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	for _, off := range offsets {
		counts := perOffset[off]
		total := 0
		for _, n := range counts {
			total += n
		}
		report.OffsetSummary = append(report.OffsetSummary, OffsetSummary{
			Offset:       off,
			LayoutCounts: counts,
			Dominant:     dominantKind(counts),
			UnknownRatio: float64(counts[UnknownLayout]) / float64(total),
		})
	}
	return report
}

func indexEntries(s *Snapshot) map[slotKey]Entry {
	out := make(map[slotKey]Entry, len(s.Entries))
	for _, e := range s.Entries {
		out[slotKey{index: e.RecordIndex, offset: e.Offset}] = e
	}
	return out
}

// dominantKind picks the most common layout, breaking ties by name so
// the report is stable.
func dominantKind(counts map[Kind]int) Kind {
	best := Kind("")
	bestN := -1
	kinds := make([]Kind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}
