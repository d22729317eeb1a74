package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestTimeframeString(t *testing.T) {
	tests := []struct {
		name      string
		timeframe Timeframe
		want      string
		wantMs    int64
	}{
		{
			"One Minute",
			OneMinute,
			"1m",
			60000,
		},
		{
			"Ten Minute",
			TenMinute,
			"10m",
			600000,
		},
		{
			"Unknown",
			Timeframe(999),
			"unknown",
			0,
		},
	}

	for _, test := range tests {
		str := test.timeframe.String()
		if str != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, str)
		}
		ms := test.timeframe.Milliseconds()
		if ms != test.wantMs {
			t.Errorf("%s: expected %d ms, got %d", test.name, test.wantMs, ms)
		}
	}
}

func TestLoadZone(t *testing.T) {
	// Ensure iana zones can be loaded.
	loc, err := LoadZone("Asia/Kolkata")
	assert.NoError(t, err)
	assert.Equal(t, loc.String(), "Asia/Kolkata")

	// Ensure the default zone is used when no name is provided.
	loc, err = LoadZone("")
	assert.NoError(t, err)
	assert.Equal(t, loc.String(), DefaultZone)

	// Ensure fixed offsets can be loaded.
	loc, err = LoadZone("+05:30")
	assert.NoError(t, err)
	_, offset := time.Date(2024, 6, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, offset, 5*3600+30*60)

	loc, err = LoadZone("-04:00")
	assert.NoError(t, err)
	_, offset = time.Date(2024, 6, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, offset, -4*3600)

	// Ensure out of range offsets and unknown zones error.
	_, err = LoadZone("+15:00")
	assert.Error(t, err)

	_, err = LoadZone("Mars/Olympus_Mons")
	assert.Error(t, err)
}
