package database

import (
	"context"
	"time"

	"github.com/dnldd/scanner/shared"
	"github.com/google/uuid"
)

const (
	// SQL statements, shared by the rqlite and sqlite recorders.
	createRunTableSQL       = "CREATE TABLE IF NOT EXISTS run (id TEXT PRIMARY KEY, symbol TEXT NOT NULL, pattern TEXT NOT NULL, zone TEXT NOT NULL, startms INTEGER NOT NULL, endms INTEGER NOT NULL, candles INTEGER NOT NULL, events INTEGER NOT NULL, createdon INTEGER NOT NULL)"
	createEventTableSQL     = "CREATE TABLE IF NOT EXISTS event (runid TEXT NOT NULL, symbol TEXT NOT NULL, pattern TEXT NOT NULL, timestamp INTEGER NOT NULL, localtime TEXT NOT NULL, open REAL, high REAL, low REAL, close REAL, volume REAL, dayofweek TEXT, anchorindex INTEGER)"
	createEventIndexSQL     = "CREATE INDEX IF NOT EXISTS idx_event_symbol_pattern ON event(symbol, pattern)"
	createFrequencyTableSQL = "CREATE TABLE IF NOT EXISTS frequency (runid TEXT NOT NULL, symbol TEXT NOT NULL, pattern TEXT NOT NULL, time TEXT NOT NULL, count INTEGER NOT NULL)"
	createFrequencyIndexSQL = "CREATE INDEX IF NOT EXISTS idx_frequency_symbol_pattern ON frequency(symbol, pattern)"
	persistRunSQL           = "INSERT INTO run(id, symbol, pattern, zone, startms, endms, candles, events, createdon) VALUES(?,?,?,?,?,?,?,?,?)"
	deleteEventsSQL         = "DELETE FROM event WHERE symbol = ? AND pattern = ?"
	persistEventSQL         = "INSERT INTO event(runid, symbol, pattern, timestamp, localtime, open, high, low, close, volume, dayofweek, anchorindex) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)"
	deleteFrequenciesSQL    = "DELETE FROM frequency WHERE symbol = ? AND pattern = ?"
	persistFrequencySQL     = "INSERT INTO frequency(runid, symbol, pattern, time, count) VALUES(?,?,?,?,?)"
)

// schema lists the statements creating the recorder tables.
var schema = []string{
	createRunTableSQL,
	createEventTableSQL,
	createEventIndexSQL,
	createFrequencyTableSQL,
	createFrequencyIndexSQL,
}

// Run represents the outcome of a single pipeline run.
type Run struct {
	// ID uniquely identifies the run.
	ID      string
	Symbol  string
	Pattern string
	// Zone is the name of the zone local times are expressed in.
	Zone string
	// Start and End bound the fetched range in milliseconds since epoch.
	Start int64
	End   int64
	// Candles is the number of fetched candles.
	Candles     int
	Events      []shared.PatternEvent
	Frequencies []shared.FrequencyEntry
	CreatedOn   time.Time
}

// NewRun initializes a run record with a fresh id.
func NewRun(symbol string, pattern string, zone string, start int64, end int64) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Pattern:   pattern,
		Zone:      zone,
		Start:     start,
		End:       end,
		CreatedOn: time.Now().UTC(),
	}
}

// eventParams returns the positional parameters persisting the provided event.
func eventParams(runID string, symbol string, event *shared.PatternEvent) []any {
	return []any{runID, symbol, event.Pattern, event.Timestamp, event.LocalTime.Format(shared.DateLayout),
		event.Open, event.High, event.Low, event.Close, event.Volume, event.DayOfWeek.String(), event.AnchorIndex}
}

// Recorder defines the requirements for mirroring pipeline runs into a store.
type Recorder interface {
	// RecordRun stores the provided run, replacing the events and frequencies
	// previously stored for the same symbol and pattern.
	RecordRun(ctx context.Context, run *Run) error
	// Close releases the recorder's resources.
	Close() error
}

// NoopRecorder discards runs, used when no store is configured.
type NoopRecorder struct{}

// Ensure NoopRecorder implements the Recorder interface.
var _ Recorder = (*NoopRecorder)(nil)

// NewNoopRecorder initializes a recorder that stores nothing.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ context.Context, _ *Run) error { return nil }
func (n *NoopRecorder) Close() error                            { return nil }
