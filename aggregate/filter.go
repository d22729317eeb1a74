package aggregate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dnldd/scanner/shared"
)

// TimeFilter restricts which event clock times are counted.
type TimeFilter func(tod shared.TimeOfDay) bool

// MinuteEndsInZero accepts clock times whose minute ends in zero.
func MinuteEndsInZero(tod shared.TimeOfDay) bool {
	return tod.Minute%10 == 0
}

// MinuteMultipleOf accepts clock times whose minute is a multiple of n.
func MinuteMultipleOf(n int) TimeFilter {
	return func(tod shared.TimeOfDay) bool {
		if n <= 0 {
			return false
		}
		return tod.Minute%n == 0
	}
}

// Between accepts clock times in the inclusive range [from, to]. A range whose
// end precedes its start wraps past midnight.
func Between(from shared.TimeOfDay, to shared.TimeOfDay) TimeFilter {
	return func(tod shared.TimeOfDay) bool {
		if to.Before(from) {
			return !tod.Before(from) || !to.Before(tod)
		}
		return !tod.Before(from) && !to.Before(tod)
	}
}

// ParseTimeFilter parses a named time filter. Supported forms are "all" (or
// empty), "tens", "multiple:N" and "between:HH:MM-HH:MM". A nil filter counts
// every event.
func ParseTimeFilter(name string) (TimeFilter, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	switch {
	case name == "" || name == "all":
		return nil, nil
	case name == "tens":
		return MinuteEndsInZero, nil
	case strings.HasPrefix(name, "multiple:"):
		n, err := strconv.Atoi(strings.TrimPrefix(name, "multiple:"))
		if err != nil {
			return nil, fmt.Errorf("parsing minute multiple in %q: %w", name, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("minute multiple must be positive, got %d", n)
		}
		return MinuteMultipleOf(n), nil
	case strings.HasPrefix(name, "between:"):
		bounds := strings.Split(strings.TrimPrefix(name, "between:"), "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("expected between:HH:MM-HH:MM, got %q", name)
		}
		from, err := shared.ParseTimeOfDay(bounds[0])
		if err != nil {
			return nil, err
		}
		to, err := shared.ParseTimeOfDay(bounds[1])
		if err != nil {
			return nil, err
		}
		return Between(from, to), nil
	default:
		return nil, fmt.Errorf("unknown time filter %q", name)
	}
}
