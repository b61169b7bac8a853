// Package layout classifies raw byte blocks as known record-table
// shapes. Classification is strict and threshold-based with no
// probabilistic scoring, so the same payload always classifies the
// same way. The scanner uses it to validate candidates and the
// snapshot differ uses it to spot structural churn.
package layout

import (
	"encoding/binary"
	"strings"
	"unicode"

	"rosterscope/internal/procmem"
)

// Kind is a classification outcome. UnknownLayout is a valid result,
// not an error.
type Kind string

const (
	PlayerTable     Kind = "player_table"
	TeamRecordTable Kind = "team_record_table"
	UnknownLayout   Kind = "unknown_layout"
	NoPayload       Kind = "no_payload"
)

// Player-table shape: fixed-stride records with UTF-16 last/first
// names at the head of each record.
const (
	playerStride     = 1176
	playerNameRows   = 3
	playerNameAgree  = 2
	firstNameOffset  = 0x28
	nameProbeBytes   = 40
	nameMinChars     = 2
	nameMaxChars     = 24
)

// Team-record-table shape: 64-byte rows with constant markers.
const (
	teamRowSize      = 64
	teamMinRows      = 8
	teamSampleRows   = 64
	teamConstRatio   = 0.85
	teamLow32Ratio   = 0.70
	teamConstOffset  = 4
	teamZeroOffset   = 60
)

// Hint narrows team-record-table matching to rows tagged with a known
// identifier in their first word.
type Hint struct {
	TeamLow32 uint32
}

// Classify maps payload onto a known record layout. An empty payload
// is NoPayload; anything that fails every strict shape test is
// UnknownLayout.
func Classify(payload []byte, hint *Hint) Kind {
	if len(payload) == 0 {
		return NoPayload
	}
	if IsPlayerTable(payload) {
		return PlayerTable
	}
	if IsTeamRecordTable(payload, hint) {
		return TeamRecordTable
	}
	return UnknownLayout
}

// LooksLikeName reports whether text is a plausible human name:
// 2 to 24 characters, letters plus space, period, apostrophe and
// hyphen, tolerating at most one stray character.
func LooksLikeName(text string) bool {
	runes := []rune(text)
	if len(runes) < nameMinChars || len(runes) > nameMaxChars {
		return false
	}
	ok := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || strings.ContainsRune(" .'-", r) {
			ok++
		}
	}
	need := nameMinChars
	if len(runes)-1 > need {
		need = len(runes) - 1
	}
	return ok >= need
}

// IsPlayerTable requires at least two full records and plausible
// names in both name slots for 2 of the first 3 rows.
func IsPlayerTable(payload []byte) bool {
	if len(payload) < playerStride*2 {
		return false
	}
	good := 0
	for row := 0; row < playerNameRows; row++ {
		base := row * playerStride
		last := probeName(payload, base)
		first := probeName(payload, base+firstNameOffset)
		if LooksLikeName(first) && LooksLikeName(last) {
			good++
		}
	}
	return good >= playerNameAgree
}

// IsTeamRecordTable samples up to 64 rows and requires the constant
// markers in at least 85% of them; with a hint, 70% of rows must also
// carry the hinted identifier in their first word.
func IsTeamRecordTable(payload []byte, hint *Hint) bool {
	if len(payload) < teamRowSize*teamMinRows {
		return false
	}
	rows := len(payload) / teamRowSize
	if rows > teamSampleRows {
		rows = teamSampleRows
	}
	constHits := 0
	low32Hits := 0
	for i := 0; i < rows; i++ {
		row := payload[i*teamRowSize : (i+1)*teamRowSize]
		if binary.LittleEndian.Uint32(row[teamConstOffset:]) == 1 &&
			binary.LittleEndian.Uint32(row[teamZeroOffset:]) == 0 {
			constHits++
		}
		if hint != nil && binary.LittleEndian.Uint32(row) == hint.TeamLow32 {
			low32Hits++
		}
	}
	if float64(constHits) < teamConstRatio*float64(rows) {
		return false
	}
	if hint != nil && float64(low32Hits) < teamLow32Ratio*float64(rows) {
		return false
	}
	return true
}

func probeName(payload []byte, off int) string {
	if off >= len(payload) {
		return ""
	}
	end := off + nameProbeBytes
	if end > len(payload) {
		end = len(payload)
	}
	return strings.TrimSpace(procmem.DecodeFixedString(payload[off:end], procmem.EncodingUTF16))
}
