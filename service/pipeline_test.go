package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/scanner/aggregate"
	"github.com/dnldd/scanner/database"
	"github.com/dnldd/scanner/export"
	"github.com/dnldd/scanner/pattern"
	"github.com/dnldd/scanner/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

// memorySource serves one-minute candles from memory.
type memorySource struct {
	mtx     sync.Mutex
	candles []shared.Candlestick
	calls   int
}

func (s *memorySource) FetchPage(ctx context.Context, symbol string, since int64, limit int) ([]shared.Candlestick, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.calls++

	from := sort.Search(len(s.candles), func(i int) bool {
		return s.candles[i].Timestamp >= since
	})
	to := min(from+limit, len(s.candles))

	return s.candles[from:to], nil
}

// memoryRecorder keeps recorded runs in memory.
type memoryRecorder struct {
	mtx    sync.Mutex
	runs   []*database.Run
	notify chan struct{}
}

func (r *memoryRecorder) RecordRun(_ context.Context, run *database.Run) error {
	r.mtx.Lock()
	r.runs = append(r.runs, run)
	r.mtx.Unlock()

	if r.notify != nil {
		select {
		case r.notify <- struct{}{}:
		default:
		}
	}

	return nil
}

func (r *memoryRecorder) Close() error { return nil }

func (r *memoryRecorder) recorded() []*database.Run {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	return r.runs
}

// failingRecorder rejects every run.
type failingRecorder struct{}

func (failingRecorder) RecordRun(context.Context, *database.Run) error {
	return errors.New("store down")
}

func (failingRecorder) Close() error { return nil }

// dayOfCandles creates a day of one-minute candles from 00:00 utc where every
// candle opening on a ten minute boundary closes lower nine candles later, and
// the open of the 05:30 utc (11:00 in kolkata) boundary is flat.
func dayOfCandles(day time.Time) []shared.Candlestick {
	candles := make([]shared.Candlestick, 24*60)
	for idx := range candles {
		candles[idx] = shared.Candlestick{
			Timestamp: day.Add(time.Minute * time.Duration(idx)).UnixMilli(),
			Open:      100,
			High:      101,
			Low:       98,
			Close:     100,
			Volume:    1,
		}
		if idx%10 == 9 {
			candles[idx].Close = 99
		}
	}
	candles[5*60+39].Close = 100

	return candles
}

func compilePreset(t *testing.T, name string) *pattern.Compiled {
	t.Helper()

	def, err := pattern.Lookup(name, nil)
	assert.NoError(t, err)
	compiled, err := def.Compile()
	assert.NoError(t, err)

	return compiled
}

func testConfig(t *testing.T, source shared.CandleSource, rec database.Recorder) *PipelineConfig {
	t.Helper()

	loc, err := shared.LoadZone("Asia/Kolkata")
	assert.NoError(t, err)

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	compiled := compilePreset(t, pattern.Decrease)

	return &PipelineConfig{
		Symbol:       "BTC/USDT",
		Start:        day.UnixMilli(),
		End:          day.Add(time.Hour * 24).UnixMilli(),
		PageLimit:    500,
		Zone:         loc,
		Pattern:      compiled,
		TimeFilter:   compiled.TimeFilter,
		Source:       source,
		OutputDir:    t.TempDir(),
		ExportSeries: true,
		Recorder:     rec,
	}
}

func TestPipelineConfigValidate(t *testing.T) {
	valid := testConfig(t, &memorySource{}, nil)
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(cfg *PipelineConfig)
	}{
		{name: "missing symbol", mutate: func(cfg *PipelineConfig) { cfg.Symbol = "" }},
		{name: "inverted range", mutate: func(cfg *PipelineConfig) { cfg.Start, cfg.End = cfg.End, cfg.Start }},
		{name: "zero page limit", mutate: func(cfg *PipelineConfig) { cfg.PageLimit = 0 }},
		{name: "missing zone", mutate: func(cfg *PipelineConfig) { cfg.Zone = nil }},
		{name: "missing pattern", mutate: func(cfg *PipelineConfig) { cfg.Pattern = nil }},
		{name: "missing source", mutate: func(cfg *PipelineConfig) { cfg.Source = nil }},
		{name: "missing output dir", mutate: func(cfg *PipelineConfig) { cfg.OutputDir = "" }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig(t, &memorySource{}, nil)
			test.mutate(cfg)

			_, err := NewPipeline(cfg)
			assert.Error(t, err)
		})
	}
}

func TestPipelineRun(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	source := &memorySource{candles: dayOfCandles(day)}
	rec := &memoryRecorder{}
	cfg := testConfig(t, source, rec)

	p, err := NewPipeline(cfg)
	assert.NoError(t, err)
	defer p.Close()

	result, err := p.Run(context.Background())
	assert.NoError(t, err)

	// Ensure the whole day was fetched in pages of 500.
	assert.Equal(t, result.Candles, 1440)
	assert.Equal(t, source.calls, 3)

	// Ensure every ten minute anchor with a full window matched, except the
	// flattened 11:00 kolkata boundary.
	assert.Equal(t, len(result.Events), 143-1)
	for idx := range result.Events {
		event := result.Events[idx]
		assert.Equal(t, event.LocalTime.Minute()%10, 0)
		assert.Equal(t, event.Pattern, pattern.Decrease)
		assert.True(t, event.ClockTime().String() != "11:00")
	}

	// Ensure the frequency table counts each matched clock time once.
	assert.Equal(t, len(result.Frequencies), 142)
	assert.Equal(t, aggregate.Total(result.Frequencies), len(result.Events))
	assert.Equal(t, result.Frequencies[0].Count, 1)
	assert.Equal(t, result.Frequencies[0].Time.String(), "00:00")

	// Ensure the artifacts were persisted and agree with the result.
	events, err := export.ReadEvents(result.EventsPath, cfg.Zone)
	assert.NoError(t, err)
	assert.Equal(t, len(events), len(result.Events))
	assert.Equal(t, filepath.Base(result.EventsPath), "BTCUSDT_decrease_events.csv")

	frequencies := aggregate.Aggregate(events, cfg.TimeFilter)
	if diff := cmp.Diff(result.Frequencies, frequencies); diff != "" {
		t.Fatalf("persisted events aggregate differently (-want +got):\n%s", diff)
	}

	_, err = os.Stat(result.FrequenciesPath)
	assert.NoError(t, err)
	_, err = os.Stat(result.SeriesPath)
	assert.NoError(t, err)

	// Ensure the run was recorded.
	runs := rec.recorded()
	assert.Equal(t, len(runs), 1)
	assert.Equal(t, runs[0].ID, result.RunID)
	assert.Equal(t, runs[0].Candles, 1440)
	assert.Equal(t, len(runs[0].Events), len(result.Events))
	assert.Equal(t, runs[0].Zone, "Asia/Kolkata")

	// Ensure re-aggregating the persisted event set reproduces the table.
	entries, path, err := p.Reaggregate(result.EventsPath)
	assert.NoError(t, err)
	assert.Equal(t, path, result.FrequenciesPath)
	if diff := cmp.Diff(result.Frequencies, entries); diff != "" {
		t.Fatalf("re-aggregation differs (-want +got):\n%s", diff)
	}
}

func TestPipelineEmptySource(t *testing.T) {
	rec := &memoryRecorder{}
	cfg := testConfig(t, &memorySource{}, rec)

	p, err := NewPipeline(cfg)
	assert.NoError(t, err)

	// Ensure an empty source aborts the run before anything is written.
	_, err = p.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrEmptyResult))
	assert.Equal(t, shared.Classify(err), "empty_result")

	files, err := os.ReadDir(cfg.OutputDir)
	assert.NoError(t, err)
	assert.Equal(t, len(files), 0)
	assert.Equal(t, len(rec.recorded()), 0)
}

func TestPipelineNoEvents(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	candles := dayOfCandles(day)
	for idx := range candles {
		candles[idx].Close = 100
	}

	rec := &memoryRecorder{}
	cfg := testConfig(t, &memorySource{candles: candles}, rec)

	p, err := NewPipeline(cfg)
	assert.NoError(t, err)

	// Ensure a scan without matches still produces empty artifacts.
	result, err := p.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(result.Events), 0)
	assert.Equal(t, len(result.Frequencies), 0)

	events, err := export.ReadEvents(result.EventsPath, cfg.Zone)
	assert.NoError(t, err)
	assert.Equal(t, len(events), 0)

	data, err := os.ReadFile(result.FrequenciesPath)
	assert.NoError(t, err)
	assert.Equal(t, string(data), "time,count\n")
	assert.Equal(t, len(rec.recorded()), 1)

	// Ensure re-aggregating an empty event set yields an empty table.
	entries, _, err := p.Reaggregate(result.EventsPath)
	assert.NoError(t, err)
	assert.Equal(t, len(entries), 0)
}

func TestPipelineCancelled(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	cfg := testConfig(t, &memorySource{candles: dayOfCandles(day)}, nil)

	p, err := NewPipeline(cfg)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, shared.Classify(err), "aborted")
}

func TestPipelineSchedule(t *testing.T) {
	now := time.Now().UTC()
	start := now.Add(-time.Hour * 3).Truncate(time.Minute)
	source := &memorySource{candles: dayOfCandles(start)}
	rec := &memoryRecorder{notify: make(chan struct{}, 1)}

	cfg := testConfig(t, source, rec)
	cfg.Start = now.Add(-time.Hour * 2).UnixMilli()
	cfg.End = now.UnixMilli()

	p, err := NewPipeline(cfg)
	assert.NoError(t, err)

	// Ensure invalid cron expressions are rejected.
	err = p.Schedule(context.Background(), "every now and then")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.Schedule(ctx, "0 0 1 1 *")
	}()

	// Ensure the first run starts immediately and the scheduler stops on cancellation.
	select {
	case <-rec.notify:
	case <-time.After(time.Second * 10):
		t.Fatal("timed out waiting for the scheduled run")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second * 10):
		t.Fatal("timed out waiting for the scheduler to stop")
	}

	runs := rec.recorded()
	assert.GreaterThan(t, len(runs), 0)
	assert.Equal(t, runs[0].End-runs[0].Start, cfg.End-cfg.Start)
}

func TestPipelineRecordingFailure(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	cfg := testConfig(t, &memorySource{candles: dayOfCandles(day)}, failingRecorder{})
	p, err := NewPipeline(cfg)
	assert.NoError(t, err)

	// Ensure a run failing to record emits no artifacts.
	_, err = p.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrPersistence))
	assert.Equal(t, shared.Classify(err), "persistence")
	assert.Equal(t, len(dirContents(t, cfg.OutputDir)), 0)

	// Ensure a failing re-run keeps the previous run's artifacts intact.
	cfg.Recorder = &memoryRecorder{}
	p, err = NewPipeline(cfg)
	assert.NoError(t, err)
	_, err = p.Run(context.Background())
	assert.NoError(t, err)
	want := dirContents(t, cfg.OutputDir)
	assert.Equal(t, len(want), 3)

	flat := dayOfCandles(day)
	for idx := range flat {
		flat[idx].Close = 100
	}
	cfg.Source = &memorySource{candles: flat}
	cfg.Recorder = failingRecorder{}
	p, err = NewPipeline(cfg)
	assert.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.Error(t, err)
	if diff := cmp.Diff(want, dirContents(t, cfg.OutputDir)); diff != "" {
		t.Fatalf("failed run changed the output directory (-want +got):\n%s", diff)
	}
}

func TestPipelineUnwritableFrequencies(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	rec := &memoryRecorder{}
	cfg := testConfig(t, &memorySource{candles: dayOfCandles(day)}, rec)
	p, err := NewPipeline(cfg)
	assert.NoError(t, err)

	// Block the frequency table with a directory at its staging path.
	blocker := stagingPath(p.artifactPath("frequencies"))
	assert.NoError(t, os.Mkdir(blocker, 0o755))

	// Ensure a failed frequency write emits nothing and records nothing.
	_, err = p.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, shared.Classify(err), "persistence")
	assert.Equal(t, len(rec.recorded()), 0)

	want := map[string]string{filepath.Base(blocker): "<dir>"}
	if diff := cmp.Diff(want, dirContents(t, cfg.OutputDir)); diff != "" {
		t.Fatalf("failed run left artifacts behind (-want +got):\n%s", diff)
	}
}
