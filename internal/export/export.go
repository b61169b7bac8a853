// Package export writes capture results to files for offline diffing.
package export

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"rosterscope/internal/layout"
)

// CaptureSnapshot builds a labeled snapshot from raw records: one
// entry per (record, offset) slot, each carrying the window of bytes
// starting at the offset. Offsets past a record's end are skipped.
// A window of 8 or more bytes also records the little-endian word at
// the slot as the pointer target.
func CaptureSnapshot(label string, records [][]byte, offsets []int, window int) *layout.Snapshot {
	if window <= 0 {
		window = 64
	}
	snap := &layout.Snapshot{Label: label}
	for i, record := range records {
		for _, off := range offsets {
			if off < 0 || off >= len(record) {
				continue
			}
			end := off + window
			if end > len(record) {
				end = len(record)
			}
			payload := make([]byte, end-off)
			copy(payload, record[off:end])
			entry := layout.Entry{
				RecordIndex: i,
				Offset:      off,
				Payload:     payload,
			}
			if len(payload) >= 8 {
				word := binary.LittleEndian.Uint64(payload)
				entry.RawValue = fmt.Sprintf("0x%X", word)
				entry.PointerTarget = entry.RawValue
			}
			snap.Entries = append(snap.Entries, entry)
		}
	}
	return snap
}

// WriteSnapshotJSON writes the snapshot as indented JSON.
func WriteSnapshotJSON(path string, snap *layout.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("export: encode %s: %w", path, err)
	}
	return nil
}
