package shared

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// ClockTimeLayout is the format layout for clock times in a day.
	ClockTimeLayout = "15:04"
	// DateLayout is the format layout for persisted local timestamps.
	DateLayout = "2006-01-02 15:04:05-07:00"
	// DefaultZone is the default target zone for normalized candles.
	DefaultZone = "Asia/Kolkata"
)

// Timeframe represents the market data time period.
type Timeframe int

const (
	OneMinute Timeframe = iota
	TenMinute
)

// String stringifies the provided timeframe.
func (t Timeframe) String() string {
	switch t {
	case OneMinute:
		return "1m"
	case TenMinute:
		return "10m"
	default:
		return "unknown"
	}
}

// Milliseconds returns the timeframe duration in milliseconds.
func (t Timeframe) Milliseconds() int64 {
	switch t {
	case OneMinute:
		return time.Minute.Milliseconds()
	case TenMinute:
		return (time.Minute * 10).Milliseconds()
	default:
		return 0
	}
}

// offsetRe matches fixed zone offsets like +05:30 or -04:00.
var offsetRe = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)

// LoadZone resolves the provided zone name to a location. Both IANA names
// (Asia/Kolkata) and fixed offsets (+05:30) are supported.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}

	if m := offsetRe.FindStringSubmatch(name); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes, _ := strconv.Atoi(m[3])
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("zone offset out of range: %s", name)
		}

		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}

		return time.FixedZone("UTC"+name, offset), nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading %s timezone: %w", name, err)
	}

	return loc, nil
}
