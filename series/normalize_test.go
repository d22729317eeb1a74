package series

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dnldd/scanner/shared"
	"github.com/peterldowns/testy/assert"
)

func minuteCandles(start time.Time, n int) []shared.Candlestick {
	candles := make([]shared.Candlestick, n)
	for idx := range n {
		candles[idx] = shared.Candlestick{
			Timestamp: start.Add(time.Minute * time.Duration(idx)).UnixMilli(),
			Open:      float64(100 + idx),
			High:      float64(110 + idx),
			Low:       float64(90 + idx),
			Close:     float64(105 + idx),
			Volume:    float64(idx),
		}
	}

	return candles
}

func TestNormalize(t *testing.T) {
	loc, err := shared.LoadZone("Asia/Kolkata")
	assert.NoError(t, err)

	// 2024-06-01 was a saturday in utc, 18:40 utc is already sunday in india.
	start := time.Date(2024, 6, 1, 18, 25, 0, 0, time.UTC)
	candles := minuteCandles(start, 10)

	normalized, err := Normalize(candles, loc)
	assert.NoError(t, err)
	assert.Equal(t, len(normalized), len(candles))

	// Ensure ordering and prices are preserved.
	for idx := range normalized {
		assert.Equal(t, normalized[idx].Candlestick, candles[idx])
		assert.Equal(t, normalized[idx].LocalTime.Location().String(), "Asia/Kolkata")
	}

	// Ensure local times and days of week follow the target zone's calendar.
	assert.Equal(t, normalized[0].LocalTime.Format("2006-01-02 15:04"), "2024-06-01 23:55")
	assert.Equal(t, normalized[0].DayOfWeek, time.Saturday)
	assert.Equal(t, normalized[5].LocalTime.Format("2006-01-02 15:04"), "2024-06-02 00:00")
	assert.Equal(t, normalized[5].DayOfWeek, time.Sunday)
}

func TestNormalizeRoundTrip(t *testing.T) {
	zones := []string{"UTC", "Asia/Kolkata", "America/New_York", "+05:30", "-09:30"}
	timestamps := []int64{
		0,
		-86_400_000,
		time.Date(2024, 3, 10, 7, 1, 0, 0, time.UTC).UnixMilli(), // new york dst transition
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		time.Date(9999, 12, 30, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}

	for _, zone := range zones {
		loc, err := shared.LoadZone(zone)
		assert.NoError(t, err)

		for _, ts := range timestamps {
			// Ensure converting to the target zone and back recovers the utc instant.
			nc, err := NormalizeCandle(shared.Candlestick{Timestamp: ts}, loc)
			assert.NoError(t, err)
			assert.Equal(t, nc.LocalTime.UnixMilli(), ts)
			assert.Equal(t, nc.LocalTime.UTC().UnixMilli(), ts)
		}
	}
}

func TestNormalizeErrors(t *testing.T) {
	// Ensure a nil location errors.
	_, err := Normalize(minuteCandles(time.Unix(0, 0), 2), nil)
	assert.Error(t, err)

	// Ensure unrepresentable timestamps error and are not dropped.
	candles := minuteCandles(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 3)
	candles[1].Timestamp = math.MaxInt64
	normalized, err := Normalize(candles, time.UTC)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrTimeConversion))
	assert.Equal(t, len(normalized), 0)

	// Ensure instants that only overflow in the target zone error as well.
	edge := time.Date(9999, 12, 31, 23, 0, 0, 0, time.UTC).UnixMilli()
	_, err = NormalizeCandle(shared.Candlestick{Timestamp: edge}, time.FixedZone("UTC+05:30", 19800))
	assert.True(t, errors.Is(err, shared.ErrTimeConversion))

	// Ensure empty input normalizes to an empty series.
	normalized, err = Normalize(nil, time.UTC)
	assert.NoError(t, err)
	assert.Equal(t, len(normalized), 0)
}
