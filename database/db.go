package database

import (
	"context"
	"fmt"
	"net/http"
	"time"

	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

// DatabaseConfig is the configuration for the rqlite database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// HTTPClient overrides the default http client.
	HTTPClient *http.Client
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Database represents the rqlite database connection.
type Database struct {
	cfg    *DatabaseConfig
	httpc  *http.Client
	client *rqlitehttp.Client
}

// Ensure the database implements the Recorder interface.
var _ Recorder = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: time.Second * 5}
	}

	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		httpc:  httpc,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a single transaction.
func (db *Database) execute(ctx context.Context, stmts rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("statement %d: %s", idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	stmts := make(rqlitehttp.SQLStatements, 0, len(schema))
	for _, sql := range schema {
		stmts = append(stmts, rqlitehttp.SQLStatements{{SQL: sql}}...)
	}

	return db.execute(ctx, stmts)
}

// RecordRun stores the provided run, replacing the events and frequencies
// previously stored for the same symbol and pattern.
func (db *Database) RecordRun(ctx context.Context, run *Run) error {
	stmts := rqlitehttp.SQLStatements{
		{
			SQL: persistRunSQL,
			PositionalParams: []any{run.ID, run.Symbol, run.Pattern, run.Zone, run.Start, run.End,
				run.Candles, len(run.Events), run.CreatedOn.Unix()},
		},
		{
			SQL:              deleteEventsSQL,
			PositionalParams: []any{run.Symbol, run.Pattern},
		},
		{
			SQL:              deleteFrequenciesSQL,
			PositionalParams: []any{run.Symbol, run.Pattern},
		},
	}

	for idx := range run.Events {
		stmts = append(stmts, rqlitehttp.SQLStatements{{
			SQL:              persistEventSQL,
			PositionalParams: eventParams(run.ID, run.Symbol, &run.Events[idx]),
		}}...)
	}

	for idx := range run.Frequencies {
		entry := run.Frequencies[idx]
		stmts = append(stmts, rqlitehttp.SQLStatements{{
			SQL:              persistFrequencySQL,
			PositionalParams: []any{run.ID, run.Symbol, run.Pattern, entry.Time.String(), entry.Count},
		}}...)
	}

	if err := db.execute(ctx, stmts); err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}

	db.cfg.Logger.Info().Msgf("recorded run %s (%d events, %d frequencies) to rqlite",
		run.ID, len(run.Events), len(run.Frequencies))

	return nil
}

// Close releases idle database connections.
func (db *Database) Close() error {
	db.httpc.CloseIdleConnections()
	return nil
}
