package codec

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Display scale constants for rating-style bitfields.
const (
	RatingMin        = 25
	RatingMaxDisplay = 99
	RatingMaxTrue    = 110

	PotentialMin = 40
	PotentialMax = 99

	YearBase = 1900

	// Player records store height as total inches times this scale.
	HeightUnitScale = 254
	HeightMinInches = 48
	HeightMaxInches = 120
)

// BadgeLevels are the valid badge values in raw order.
var BadgeLevels = []string{"None", "Bronze", "Silver", "Gold", "Hall of Fame"}

// RatingFromRaw maps a raw bitfield value onto the 25-99 display
// scale proportionally against a 25-110 true range.
func RatingFromRaw(raw uint64, lengthBits int) int {
	maxRaw := maxRawFor(lengthBits)
	if maxRaw == 0 {
		return RatingMin
	}
	scaled := RatingMin + float64(raw)/float64(maxRaw)*(RatingMaxTrue-RatingMin)
	if scaled < RatingMin {
		scaled = RatingMin
	} else if scaled > RatingMaxDisplay {
		scaled = RatingMaxDisplay
	}
	return int(math.Round(scaled))
}

// RatingToRaw is the inverse of RatingFromRaw, clamped to the
// display range before mapping.
func RatingToRaw(rating float64, lengthBits int) uint64 {
	maxRaw := maxRawFor(lengthBits)
	if maxRaw == 0 {
		return 0
	}
	if rating < RatingMin {
		rating = RatingMin
	} else if rating > RatingMaxDisplay {
		rating = RatingMaxDisplay
	}
	fraction := (rating - RatingMin) / (RatingMaxTrue - RatingMin)
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	raw := uint64(math.Round(fraction * float64(maxRaw)))
	if raw > maxRaw {
		raw = maxRaw
	}
	return raw
}

// MinMaxPotentialFromRaw clamps a stored potential bound into the
// 40-99 display range. These fields store the rating directly.
func MinMaxPotentialFromRaw(raw uint64) int {
	v := int(raw)
	if v < PotentialMin {
		return PotentialMin
	}
	if v > PotentialMax {
		return PotentialMax
	}
	return v
}

// MinMaxPotentialToRaw clamps a display rating into 40-99 and the
// field's raw capacity.
func MinMaxPotentialToRaw(rating float64, lengthBits int) uint64 {
	if rating < PotentialMin {
		rating = PotentialMin
	} else if rating > PotentialMax {
		rating = PotentialMax
	}
	raw := uint64(math.Round(rating))
	if maxRaw := maxRawFor(lengthBits); maxRaw > 0 && raw > maxRaw {
		raw = maxRaw
	}
	return raw
}

// TendencyFromRaw clamps a raw tendency into 0-100; tendencies are
// stored on the display scale already.
func TendencyFromRaw(raw uint64) int {
	if raw > 100 {
		return 100
	}
	return int(raw)
}

// TendencyToRaw clamps a display tendency into 0-100.
func TendencyToRaw(rating float64) uint64 {
	if rating < 0 {
		rating = 0
	} else if rating > 100 {
		rating = 100
	}
	return uint64(math.Round(rating))
}

// BadgeFromRaw clamps a raw badge value into the valid level range.
func BadgeFromRaw(raw uint64) int {
	max := len(BadgeLevels) - 1
	if int(raw) > max {
		return max
	}
	return int(raw)
}

var yearKeyStrip = regexp.MustCompile(`[^A-Za-z0-9]+`)

var yearOffsetFields = map[string]bool{
	"DRAFTEDYEAR":  true,
	"HISTORICYEAR": true,
	"BIRTHYEAR":    true,
}

// IsYearOffsetField reports whether a field stores its value as an
// offset from YearBase. The allow-list deliberately excludes counters
// like "years pro" and award labels like "of the year".
func IsYearOffsetField(name string) bool {
	key := strings.ToUpper(yearKeyStrip.ReplaceAllString(name, ""))
	return yearOffsetFields[key]
}

// YearFromRaw converts a stored year offset into a calendar year.
// Values at or above the base are treated as absolute years already.
func YearFromRaw(raw int64) int {
	if raw >= YearBase {
		return int(raw)
	}
	if raw < 0 {
		raw = 0
	}
	return YearBase + int(raw)
}

// YearToRaw converts a calendar year into its stored offset. Small
// values are kept as-is, assumed to be offsets already.
func YearToRaw(year int64) uint64 {
	if year >= 0 && year < YearBase {
		return uint64(year)
	}
	if year < YearBase {
		return 0
	}
	return uint64(year - YearBase)
}

// HeightInchesFromRaw converts stored height to inches.
func HeightInchesFromRaw(raw uint64) int {
	return int(math.Round(float64(raw) / HeightUnitScale))
}

// HeightInchesToRaw converts inches to the stored height unit.
func HeightInchesToRaw(inches int) uint64 {
	if inches < 0 {
		return 0
	}
	return uint64(inches * HeightUnitScale)
}

// FormatHeight renders inches as feet and inches, e.g. 6'7".
func FormatHeight(inches int) string {
	return fmt.Sprintf("%d'%d\"", inches/12, inches%12)
}

func maxRawFor(lengthBits int) uint64 {
	if lengthBits <= 0 {
		lengthBits = 8
	}
	if lengthBits >= 64 {
		return math.MaxUint64
	}
	return (1 << uint(lengthBits)) - 1
}
