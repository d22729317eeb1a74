package series

import (
	"fmt"
	"time"

	"github.com/dnldd/scanner/shared"
)

const (
	// minYear and maxYear bound the calendar years a normalized candle can carry.
	minYear = 1
	maxYear = 9999
)

// Normalize projects the provided candles into the target zone, annotating each
// with its local time and day of week. The input is left untouched.
func Normalize(candles []shared.Candlestick, loc *time.Location) ([]shared.NormalizedCandle, error) {
	if loc == nil {
		return nil, fmt.Errorf("target location cannot be nil")
	}

	normalized := make([]shared.NormalizedCandle, len(candles))
	for idx := range candles {
		nc, err := NormalizeCandle(candles[idx], loc)
		if err != nil {
			return nil, fmt.Errorf("normalizing candle %d: %w", idx, err)
		}

		normalized[idx] = nc
	}

	return normalized, nil
}

// NormalizeCandle projects a single candle into the target zone.
func NormalizeCandle(candle shared.Candlestick, loc *time.Location) (shared.NormalizedCandle, error) {
	instant := time.UnixMilli(candle.Timestamp)

	// The instant must be representable as a calendar date in both the source and target zones.
	local := instant.In(loc)
	if y := instant.UTC().Year(); y < minYear || y > maxYear {
		return shared.NormalizedCandle{}, fmt.Errorf("%w: timestamp %d resolves to year %d",
			shared.ErrTimeConversion, candle.Timestamp, y)
	}
	if y := local.Year(); y < minYear || y > maxYear {
		return shared.NormalizedCandle{}, fmt.Errorf("%w: timestamp %d resolves to local year %d",
			shared.ErrTimeConversion, candle.Timestamp, y)
	}

	return shared.NormalizedCandle{
		Candlestick: candle,
		LocalTime:   local,
		DayOfWeek:   local.Weekday(),
	}, nil
}
