package shared

import (
	"fmt"
	"time"
)

// Candlestick represents a unit candlestick for a market.
type Candlestick struct {
	// Timestamp is the candle open time in milliseconds since the unix epoch (UTC).
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Time returns the candle open time as a UTC instant.
func (c *Candlestick) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Validate asserts the candlestick holds sane price and volume values.
func (c *Candlestick) Validate() error {
	switch {
	case c.Open < 0, c.High < 0, c.Low < 0, c.Close < 0:
		return fmt.Errorf("%w: negative price in candle at %d", ErrDataIntegrity, c.Timestamp)
	case c.Volume < 0:
		return fmt.Errorf("%w: negative volume in candle at %d", ErrDataIntegrity, c.Timestamp)
	}

	return nil
}

// NormalizedCandle represents a candlestick projected into a target civil time zone.
type NormalizedCandle struct {
	Candlestick

	// LocalTime is the candle open time in the target zone.
	LocalTime time.Time
	// DayOfWeek is derived from the local calendar date.
	DayOfWeek time.Weekday
}

// ClockTime returns the local hour and minute of the candle.
func (c *NormalizedCandle) ClockTime() TimeOfDay {
	return TimeOfDay{Hour: c.LocalTime.Hour(), Minute: c.LocalTime.Minute()}
}

// PatternEvent represents an anchor candle selected by a window scan.
type PatternEvent struct {
	NormalizedCandle

	// Pattern is the name of the pattern that matched.
	Pattern string
	// AnchorIndex is the position of the anchor in the scanned series.
	AnchorIndex int
}
