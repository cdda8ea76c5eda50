// Package brand describes the product lines that can take bookings and the
// stay-length rule each one enforces.
package brand

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

type Brand string

const (
	// COBNB is the short-stay product line.
	COBNB Brand = "COBNB"
	// COLIVE is the long-stay product line.
	COLIVE Brand = "COLIVE"
)

var ErrUnknownBrand = errors.New("invalid_brand")

func All() []Brand {
	return []Brand{COBNB, COLIVE}
}

func Parse(raw string) (Brand, error) {
	value := Brand(strings.ToUpper(strings.TrimSpace(raw)))
	for _, b := range All() {
		if b == value {
			return b, nil
		}
	}
	return "", ErrUnknownBrand
}

func (b Brand) String() string { return string(b) }

// StayRule is an inclusive [MinNights, MaxNights] range.
type StayRule struct {
	MinNights int `json:"minNights"`
	MaxNights int `json:"maxNights"`
}

func (r StayRule) Allows(nights int) bool {
	return nights >= r.MinNights && nights <= r.MaxNights
}

func DefaultRules() map[Brand]StayRule {
	return map[Brand]StayRule{
		COBNB:  {MinNights: 1, MaxNights: 27},
		COLIVE: {MinNights: 28, MaxNights: 365},
	}
}

// Nights rounds a partial day up: a 25h stay is two nights.
func Nights(checkIn, checkOut time.Time) int {
	d := checkOut.Sub(checkIn)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// ValidatePartition requires every brand to have a rule and the rules to tile
// the range starting at one night with no gap and no overlap.
func ValidatePartition(rules map[Brand]StayRule) error {
	type entry struct {
		brand Brand
		rule  StayRule
	}
	entries := make([]entry, 0, len(rules))
	for _, b := range All() {
		rule, ok := rules[b]
		if !ok {
			return fmt.Errorf("missing stay rule for brand %s", b)
		}
		if rule.MinNights < 1 || rule.MaxNights < rule.MinNights {
			return fmt.Errorf("brand %s: invalid stay range [%d, %d]", b, rule.MinNights, rule.MaxNights)
		}
		entries = append(entries, entry{brand: b, rule: rule})
	}
	for b := range rules {
		if _, err := Parse(string(b)); err != nil {
			return fmt.Errorf("stay rule for unknown brand %q", b)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].rule.MinNights < entries[j].rule.MinNights
	})
	if entries[0].rule.MinNights != 1 {
		return fmt.Errorf("brand %s: stay ranges must start at 1 night", entries[0].brand)
	}
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		switch {
		case cur.rule.MinNights <= prev.rule.MaxNights:
			return fmt.Errorf("brands %s and %s overlap", prev.brand, cur.brand)
		case cur.rule.MinNights != prev.rule.MaxNights+1:
			return fmt.Errorf("gap between brands %s and %s", prev.brand, cur.brand)
		}
	}
	return nil
}

// ForNights returns the brand whose rule covers the given stay length.
func ForNights(rules map[Brand]StayRule, nights int) (Brand, bool) {
	for _, b := range All() {
		if rule, ok := rules[b]; ok && rule.Allows(nights) {
			return b, true
		}
	}
	return "", false
}
