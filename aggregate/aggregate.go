package aggregate

import (
	"slices"

	"github.com/dnldd/scanner/shared"
)

// Aggregate counts pattern events by the local clock time of their anchor.
// Entries are ordered by count descending, ties by time ascending. A nil filter
// counts every event.
func Aggregate(events []shared.PatternEvent, filter TimeFilter) []shared.FrequencyEntry {
	counts := make(map[shared.TimeOfDay]int)
	for idx := range events {
		tod := events[idx].ClockTime()
		if filter != nil && !filter(tod) {
			continue
		}
		counts[tod]++
	}

	entries := make([]shared.FrequencyEntry, 0, len(counts))
	for tod, count := range counts {
		entries = append(entries, shared.FrequencyEntry{Time: tod, Count: count})
	}

	slices.SortFunc(entries, func(a, b shared.FrequencyEntry) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return a.Time.Minutes() - b.Time.Minutes()
	})

	return entries
}

// Total returns the sum of counts across the provided entries.
func Total(entries []shared.FrequencyEntry) int {
	var total int
	for idx := range entries {
		total += entries[idx].Count
	}

	return total
}

// Top returns up to n of the most frequent entries.
func Top(entries []shared.FrequencyEntry, n int) []shared.FrequencyEntry {
	if n <= 0 {
		return []shared.FrequencyEntry{}
	}

	return slices.Clone(entries[:min(n, len(entries))])
}
