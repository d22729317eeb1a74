package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dnldd/scanner/aggregate"
	"github.com/dnldd/scanner/database"
	"github.com/dnldd/scanner/fetch"
	"github.com/dnldd/scanner/pattern"
	"github.com/dnldd/scanner/service"
	"github.com/dnldd/scanner/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// loadPattern resolves and compiles the configured pattern.
func loadPattern(cfg *Config) (*pattern.Compiled, error) {
	var defs []pattern.Definition
	if cfg.PatternFile != "" {
		var err error
		defs, err = pattern.LoadDefinitions(cfg.PatternFile)
		if err != nil {
			return nil, err
		}
	}

	def, err := pattern.Lookup(cfg.Pattern, defs)
	if err != nil {
		return nil, err
	}

	return def.Compile()
}

// buildSource creates the configured candle source and resolves the scanned
// range, defaulting to the range of a historic data file.
func buildSource(cfg *Config, logger *zerolog.Logger) (shared.CandleSource, int64, int64, error) {
	start, end, err := cfg.Range()
	if err != nil {
		return nil, 0, 0, err
	}

	var source shared.CandleSource
	switch cfg.SourceFile {
	case "":
		source = fetch.NewBinanceClient(&fetch.BinanceConfig{BaseURL: cfg.SourceURL})
	default:
		data, err := fetch.NewHistoricData(&fetch.HistoricDataConfig{
			FilePath: cfg.SourceFile,
			Logger:   logger,
		})
		if err != nil {
			return nil, 0, 0, err
		}

		first, last := data.Range()
		if start == 0 {
			start = first
		}
		if end == 0 {
			end = last
		}
		source = data
	}

	retry, err := fetch.NewRetrySource(&fetch.RetryConfig{
		Source:         source,
		MaxRetries:     cfg.PageRetries,
		PagesPerSecond: cfg.PagesPerSecond,
		Logger:         logger,
	})
	if err != nil {
		return nil, 0, 0, err
	}

	return retry, start, end, nil
}

// buildRecorder creates the configured run recorder, nil when none is configured.
func buildRecorder(ctx context.Context, cfg *Config, logger *zerolog.Logger) (database.Recorder, error) {
	switch {
	case cfg.RQLiteEndpoint != "":
		return database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.RQLiteEndpoint,
			User:     cfg.RQLiteUser,
			Pass:     cfg.RQLitePass,
			Logger:   logger,
		})
	case cfg.SQLitePath != "":
		return database.NewSQLite(ctx, &database.SQLiteConfig{
			Path:   cfg.SQLitePath,
			Logger: logger,
		})
	default:
		return nil, nil
	}
}

func run(ctx context.Context, cfg *Config) error {
	zone, err := shared.LoadZone(cfg.Zone)
	if err != nil {
		return err
	}

	compiled, err := loadPattern(cfg)
	if err != nil {
		return fmt.Errorf("loading pattern %s: %w", cfg.Pattern, err)
	}

	timeFilter := compiled.TimeFilter
	if cfg.TimeFilter != "" {
		timeFilter, err = aggregate.ParseTimeFilter(cfg.TimeFilter)
		if err != nil {
			return err
		}
	}

	sourceLogger := log.With().Str("component", "source").Logger()
	source, start, end, err := buildSource(cfg, &sourceLogger)
	if err != nil {
		return fmt.Errorf("creating candle source: %w", err)
	}

	recorderLogger := log.With().Str("component", "recorder").Logger()
	recorder, err := buildRecorder(ctx, cfg, &recorderLogger)
	if err != nil {
		return fmt.Errorf("creating run recorder: %w", err)
	}

	pipeline, err := service.NewPipeline(&service.PipelineConfig{
		Symbol:       cfg.Symbol,
		Start:        start,
		End:          end,
		PageLimit:    cfg.PageLimit,
		Zone:         zone,
		Pattern:      compiled,
		TimeFilter:   timeFilter,
		Source:       source,
		OutputDir:    cfg.OutputDir,
		ExportSeries: cfg.ExportSeries,
		Recorder:     recorder,
	})
	if err != nil {
		if recorder != nil {
			recorder.Close()
		}
		return fmt.Errorf("creating pipeline: %w", err)
	}
	defer pipeline.Close()

	switch {
	case cfg.EventsFile != "":
		_, _, err = pipeline.Reaggregate(cfg.EventsFile)
	case cfg.Schedule != "":
		err = pipeline.Schedule(ctx, cfg.Schedule)
	default:
		_, err = pipeline.Run(ctx)
	}

	return err
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Msgf("loading config: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleTermination(ctx, cancel)

	err = run(ctx, &cfg)
	if err != nil {
		log.Error().Str("class", shared.Classify(err)).Msgf("scanning %s: %v", cfg.Symbol, err)
		cancel()
		os.Exit(1)
	}
}
