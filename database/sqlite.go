package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteConfig is the configuration for the sqlite recorder.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// SQLite persists runs to a local sqlite database.
type SQLite struct {
	cfg *SQLiteConfig
	db  *sql.DB
	mtx sync.Mutex
}

// Ensure SQLite implements the Recorder interface.
var _ Recorder = (*SQLite)(nil)

// NewSQLite opens (or creates) the sqlite database and runs migrations.
func NewSQLite(ctx context.Context, cfg *SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path cannot be an empty string")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting wal mode: %w", err)
	}

	s := &SQLite{cfg: cfg, db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite: %w", err)
	}

	cfg.Logger.Info().Msgf("sqlite recorder opened: %s", cfg.Path)

	return s, nil
}

// migrate creates the recorder tables.
func (s *SQLite) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}

	return nil
}

// RecordRun stores the provided run, replacing the events and frequencies
// previously stored for the same symbol and pattern.
func (s *SQLite) RecordRun(ctx context.Context, run *Run) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, persistRunSQL, run.ID, run.Symbol, run.Pattern, run.Zone,
		run.Start, run.End, run.Candles, len(run.Events), run.CreatedOn.Unix())
	if err != nil {
		return fmt.Errorf("persisting run %s: %w", run.ID, err)
	}

	for _, stmt := range []string{deleteEventsSQL, deleteFrequenciesSQL} {
		if _, err := tx.ExecContext(ctx, stmt, run.Symbol, run.Pattern); err != nil {
			return fmt.Errorf("clearing previous run of %s/%s: %w", run.Symbol, run.Pattern, err)
		}
	}

	eventStmt, err := tx.PrepareContext(ctx, persistEventSQL)
	if err != nil {
		return fmt.Errorf("preparing event insert: %w", err)
	}
	defer eventStmt.Close()

	for idx := range run.Events {
		if _, err := eventStmt.ExecContext(ctx, eventParams(run.ID, run.Symbol, &run.Events[idx])...); err != nil {
			return fmt.Errorf("persisting event %d: %w", idx, err)
		}
	}

	frequencyStmt, err := tx.PrepareContext(ctx, persistFrequencySQL)
	if err != nil {
		return fmt.Errorf("preparing frequency insert: %w", err)
	}
	defer frequencyStmt.Close()

	for idx := range run.Frequencies {
		entry := run.Frequencies[idx]
		_, err := frequencyStmt.ExecContext(ctx, run.ID, run.Symbol, run.Pattern, entry.Time.String(), entry.Count)
		if err != nil {
			return fmt.Errorf("persisting frequency %s: %w", entry.Time.String(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", run.ID, err)
	}

	s.cfg.Logger.Info().Msgf("recorded run %s (%d events, %d frequencies) to sqlite",
		run.ID, len(run.Events), len(run.Frequencies))

	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
