// Package timeline builds the per-zone day index used for scrubbing and playback.
package timeline

import (
	"fmt"
	"slices"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

// Build returns the distinct days_to_event values of the zone's records,
// sorted descending. Index 0 is the day furthest from the event.
func Build(records []domain.EquilibriumRecord, zone domain.ZoneID) []int {
	seen := make(map[int]struct{})
	days := make([]int, 0)
	for _, r := range records {
		if r.Zone != zone {
			continue
		}
		if _, ok := seen[r.DaysToEvent]; ok {
			continue
		}
		seen[r.DaysToEvent] = struct{}{}
		days = append(days, r.DaysToEvent)
	}
	slices.SortFunc(days, func(a, b int) int { return b - a })
	return days
}

// IndexOf returns the position of day in the index, or -1 when absent.
func IndexOf(index []int, day int) int {
	for i, d := range index {
		if d == day {
			return i
		}
	}
	return -1
}

// Nearest returns the day in the index closest to day. Ties go to the
// larger day. It reports false for an empty index.
func Nearest(index []int, day int) (int, bool) {
	if len(index) == 0 {
		return 0, false
	}
	best := index[0]
	for _, d := range index[1:] {
		if abs(d-day) < abs(best-day) {
			best = d
		}
	}
	return best, true
}

// Label renders a days_to_event value for display.
func Label(day int) string {
	switch day {
	case 0:
		return "Event Day"
	case 1:
		return "1 Day Before"
	default:
		return fmt.Sprintf("%d Days Before Event", day)
	}
}

// Contains reports whether day is part of the index.
func Contains(index []int, day int) bool {
	return IndexOf(index, day) >= 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
