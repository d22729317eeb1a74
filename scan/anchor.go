package scan

import (
	"github.com/dnldd/scanner/shared"
)

// AnchorFilter restricts which anchors are evaluated. Filters must only read the
// candle's local time.
type AnchorFilter func(candle *shared.NormalizedCandle) bool

// AnyAnchor accepts every anchor.
func AnyAnchor(*shared.NormalizedCandle) bool {
	return true
}

// MinuteMultipleOf accepts anchors whose local minute is a multiple of n.
func MinuteMultipleOf(n int) AnchorFilter {
	return func(candle *shared.NormalizedCandle) bool {
		if n <= 0 {
			return false
		}
		return candle.LocalTime.Minute()%n == 0
	}
}

// ClockTimeEquals accepts anchors whose local clock time equals the provided time of day.
func ClockTimeEquals(tod shared.TimeOfDay) AnchorFilter {
	return func(candle *shared.NormalizedCandle) bool {
		return candle.ClockTime() == tod
	}
}

// AllAnchors accepts anchors passing every provided filter.
func AllAnchors(filters ...AnchorFilter) AnchorFilter {
	return func(candle *shared.NormalizedCandle) bool {
		for _, filter := range filters {
			if filter != nil && !filter(candle) {
				return false
			}
		}
		return true
	}
}
