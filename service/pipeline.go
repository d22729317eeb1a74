package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dnldd/scanner/aggregate"
	"github.com/dnldd/scanner/database"
	"github.com/dnldd/scanner/export"
	"github.com/dnldd/scanner/fetch"
	"github.com/dnldd/scanner/pattern"
	"github.com/dnldd/scanner/scan"
	"github.com/dnldd/scanner/series"
	"github.com/dnldd/scanner/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	// summarySize is the number of frequency entries logged after a run.
	summarySize = 10
)

// PipelineConfig represents the configuration of the pattern scan pipeline.
type PipelineConfig struct {
	// Symbol is the scanned trading pair.
	Symbol string
	// Start and End bound the fetched range in milliseconds since epoch.
	Start int64
	End   int64
	// PageLimit is the maximum number of candles requested per page.
	PageLimit int
	// Zone is the target zone local times are expressed in.
	Zone *time.Location
	// Pattern is the compiled pattern to scan for.
	Pattern *pattern.Compiled
	// TimeFilter restricts the counted clock times, nil counts every event.
	TimeFilter aggregate.TimeFilter
	// Source is the candle source.
	Source shared.CandleSource
	// OutputDir is the directory run artifacts are written to.
	OutputDir string
	// ExportSeries toggles writing the full normalized series.
	ExportSeries bool
	// Recorder mirrors completed runs into a store, nil disables recording.
	Recorder database.Recorder
}

// Validate asserts the config sane inputs.
func (cfg *PipelineConfig) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.Start >= cfg.End {
		errs = errors.Join(errs, fmt.Errorf("start (%d) must precede end (%d)", cfg.Start, cfg.End))
	}
	if cfg.PageLimit <= 0 {
		errs = errors.Join(errs, fmt.Errorf("page limit must be positive, got %d", cfg.PageLimit))
	}
	if cfg.Zone == nil {
		errs = errors.Join(errs, fmt.Errorf("zone cannot be nil"))
	}
	if cfg.Pattern == nil {
		errs = errors.Join(errs, fmt.Errorf("pattern cannot be nil"))
	}
	if cfg.Source == nil {
		errs = errors.Join(errs, fmt.Errorf("candle source cannot be nil"))
	}
	if cfg.OutputDir == "" {
		errs = errors.Join(errs, fmt.Errorf("output directory cannot be an empty string"))
	}

	return errs
}

// RunResult represents the outcome of a pipeline run.
type RunResult struct {
	RunID           string
	Candles         int
	Events          []shared.PatternEvent
	Frequencies     []shared.FrequencyEntry
	EventsPath      string
	FrequenciesPath string
	SeriesPath      string
}

// Pipeline represents the fetch, normalize, scan and aggregate pipeline.
type Pipeline struct {
	cfg      *PipelineConfig
	fetcher  *fetch.Fetcher
	scanner  *scan.Scanner
	recorder database.Recorder
	logger   *zerolog.Logger
}

// NewPipeline initializes a new pattern scan pipeline.
func NewPipeline(cfg *PipelineConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating pipeline config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "scanner").Logger()

	fetcherLogger := logger.With().Str("component", "fetcher").Logger()
	fetcher, err := fetch.NewFetcher(&fetch.FetcherConfig{
		PageLimit: cfg.PageLimit,
		Logger:    &fetcherLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fetcher: %w", err)
	}

	scannerLogger := logger.With().Str("component", "scanner").Logger()
	scanner, err := scan.NewScanner(cfg.Pattern.ScannerConfig(&scannerLogger))
	if err != nil {
		return nil, fmt.Errorf("creating scanner: %w", err)
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = database.NewNoopRecorder()
	}

	return &Pipeline{
		cfg:      cfg,
		fetcher:  fetcher,
		scanner:  scanner,
		recorder: recorder,
		logger:   &logger,
	}, nil
}

// artifactPath returns the path of the named run artifact.
func (p *Pipeline) artifactPath(name string) string {
	file := fmt.Sprintf("%s_%s_%s.csv", fetch.NormalizeSymbol(p.cfg.Symbol), p.cfg.Pattern.Name, name)
	return filepath.Join(p.cfg.OutputDir, file)
}

// Run executes the pipeline over the configured range.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	return p.run(ctx, p.cfg.Start, p.cfg.End)
}

// run executes the pipeline over the provided range. Artifacts are staged and
// only replace the previous run's artifacts once every stage, recording
// included, has succeeded. A failed run leaves the output directory untouched.
func (p *Pipeline) run(ctx context.Context, start int64, end int64) (*RunResult, error) {
	record := database.NewRun(p.cfg.Symbol, p.cfg.Pattern.Name, p.cfg.Zone.String(), start, end)
	runLogger := p.logger.With().Str("run", record.ID).Logger()

	candles, err := p.fetcher.Fetch(ctx, p.cfg.Source, p.cfg.Symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", p.cfg.Symbol, err)
	}

	normalized, err := series.Normalize(candles, p.cfg.Zone)
	if err != nil {
		return nil, fmt.Errorf("normalizing %s: %w", p.cfg.Symbol, err)
	}

	result := &RunResult{
		RunID:           record.ID,
		Candles:         len(candles),
		EventsPath:      p.artifactPath("events"),
		FrequenciesPath: p.artifactPath("frequencies"),
	}

	staged := &artifacts{}
	committed := false
	defer func() {
		if !committed {
			staged.discard()
		}
	}()

	if p.cfg.ExportSeries {
		result.SeriesPath = p.artifactPath("minute_data")
		if err := export.WriteSeries(staged.stage(result.SeriesPath), normalized); err != nil {
			return nil, fmt.Errorf("%w: exporting series: %w", shared.ErrPersistence, err)
		}
	}

	events, err := p.scanner.Scan(normalized)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", p.cfg.Symbol, err)
	}
	if len(events) == 0 {
		runLogger.Warn().Msgf("empty result: no %s events in %d candles of %s",
			p.cfg.Pattern.Name, len(candles), p.cfg.Symbol)
	}

	eventsPath := staged.stage(result.EventsPath)
	if err := export.WriteEvents(eventsPath, events); err != nil {
		return nil, fmt.Errorf("%w: persisting events: %w", shared.ErrPersistence, err)
	}

	entries, err := p.aggregate(eventsPath, staged.stage(result.FrequenciesPath))
	if err != nil {
		return nil, err
	}

	result.Events = events
	result.Frequencies = entries

	record.Candles = len(candles)
	record.Events = events
	record.Frequencies = entries
	if err := p.recorder.RecordRun(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: recording run: %w", shared.ErrPersistence, err)
	}

	if err := staged.commit(); err != nil {
		return nil, fmt.Errorf("%w: committing artifacts: %w", shared.ErrPersistence, err)
	}
	committed = true

	runLogger.Info().Msgf("scanned %d candles of %s for %s: %d events over %d times of day",
		len(candles), p.cfg.Symbol, p.cfg.Pattern.Name, len(events), len(entries))
	p.logSummary(&runLogger, entries)

	return result, nil
}

// aggregate counts the persisted event set and persists the frequency table.
func (p *Pipeline) aggregate(eventsPath string, frequenciesPath string) ([]shared.FrequencyEntry, error) {
	events, err := export.ReadEvents(eventsPath, p.cfg.Zone)
	if err != nil {
		return nil, fmt.Errorf("reading persisted events: %w", err)
	}

	entries := aggregate.Aggregate(events, p.cfg.TimeFilter)
	if err := export.WriteFrequencies(frequenciesPath, entries); err != nil {
		return nil, fmt.Errorf("%w: persisting frequencies: %w", shared.ErrPersistence, err)
	}

	return entries, nil
}

// Reaggregate recounts a previously persisted event set without fetching,
// writing the frequency table to the output directory.
func (p *Pipeline) Reaggregate(eventsPath string) ([]shared.FrequencyEntry, string, error) {
	base := strings.TrimSuffix(filepath.Base(eventsPath), filepath.Ext(eventsPath))
	base = strings.TrimSuffix(base, "_events")
	frequenciesPath := filepath.Join(p.cfg.OutputDir, base+"_frequencies.csv")

	staged := &artifacts{}
	entries, err := p.aggregate(eventsPath, staged.stage(frequenciesPath))
	if err != nil {
		staged.discard()
		return nil, "", err
	}
	if err := staged.commit(); err != nil {
		staged.discard()
		return nil, "", fmt.Errorf("%w: committing frequencies: %w", shared.ErrPersistence, err)
	}

	p.logger.Info().Msgf("re-aggregated %s into %d times of day", eventsPath, len(entries))
	p.logSummary(p.logger, entries)

	return entries, frequenciesPath, nil
}

// logSummary logs the most frequent times of day.
func (p *Pipeline) logSummary(logger *zerolog.Logger, entries []shared.FrequencyEntry) {
	top := aggregate.Top(entries, summarySize)
	for idx := range top {
		logger.Info().Msgf("#%d %s: %d", idx+1, top[idx].Time.String(), top[idx].Count)
	}
}

// Schedule runs the pipeline on the provided cron expression until the context
// is cancelled. Each run covers a window of the configured length ending at the
// time it starts. Runs never overlap.
func (p *Pipeline) Schedule(ctx context.Context, expr string) error {
	scheduler := gocron.NewScheduler(p.cfg.Zone)
	scheduler.SingletonModeAll()

	window := p.cfg.End - p.cfg.Start
	_, err := scheduler.Cron(expr).StartImmediately().Do(func() {
		end := time.Now().UnixMilli()
		_, err := p.run(ctx, end-window, end)
		if err != nil {
			p.logger.Error().Str("class", shared.Classify(err)).Msgf("scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling pipeline with %q: %w", expr, err)
	}

	p.logger.Info().Msgf("scheduled %s scans of %s on %q", p.cfg.Pattern.Name, p.cfg.Symbol, expr)

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()

	return nil
}

// Close releases the pipeline's recorder.
func (p *Pipeline) Close() error {
	return p.recorder.Close()
}
