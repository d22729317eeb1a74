package shared

import (
	"fmt"
	"time"
)

// TimeOfDay represents a clock time (hour and minute) stripped of its date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a clock time in the HH:MM layout.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(ClockTimeLayout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parsing time of day %q: %w", s, err)
	}

	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String stringifies the time of day as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns the number of minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Before checks whether the time of day precedes the provided one.
func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Minutes() < o.Minutes()
}

// FrequencyEntry represents the number of events observed at a time of day.
type FrequencyEntry struct {
	Time  TimeOfDay
	Count int
}
