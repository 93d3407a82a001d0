package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var seatListRegex = regexp.MustCompile(`^[0-9,]+$`)

// ValidateNonNegativeAmount checks that a ledger amount is not negative.
func ValidateNonNegativeAmount(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("amount must not be negative, got %d", amount)
	}
	return nil
}

// SplitList splits a comma list, trimming entries, dropping blanks and
// excluded values, and keeping the first occurrence of each entry.
func SplitList(raw string, exclude ...string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		if e = strings.TrimSpace(e); e != "" {
			skip[e] = true
		}
	}
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || skip[part] || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

// SeatCount counts party seats in a stored seat list, ignoring lists with
// anything other than digits and commas.
func SeatCount(raw, roomID string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" || !seatListRegex.MatchString(raw) {
		return 0
	}
	return len(SplitList(raw, roomID))
}

// RoomProfileID strips the room prefix used by third-party games.
func RoomProfileID(roomID string) string {
	switch {
	case strings.HasPrefix(roomID, "Zeeplive"):
		return strings.TrimPrefix(roomID, "Zeeplive")
	case strings.HasPrefix(roomID, "party_"):
		return strings.TrimPrefix(roomID, "party_")
	}
	return ""
}
