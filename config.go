package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/scanner/aggregate"
	"github.com/dnldd/scanner/shared"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	defaultSymbol    = "BTC/USDT"
	defaultPageLimit = 1000
	defaultZone      = "Asia/Kolkata"
	defaultPattern   = "decrease"
	defaultOutputDir = "."
)

// timeLayouts are the accepted layouts of the start and end flags.
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

// Config is the configuration struct for the scanner.
type Config struct {
	// Symbol is the scanned trading pair.
	Symbol string
	// Start and End bound the scanned range, as RFC3339 or UTC dates.
	Start string
	End   string
	// PageLimit is the maximum number of candles requested per page.
	PageLimit int
	// Zone is the IANA zone local times are expressed in.
	Zone string
	// Pattern is the name of the scanned pattern.
	Pattern string
	// PatternFile is an optional yaml file of pattern definitions.
	PatternFile string
	// TimeFilter overrides the pattern's time filter when set.
	TimeFilter string
	// OutputDir is the directory run artifacts are written to.
	OutputDir string
	// ExportSeries toggles writing the normalized minute series.
	ExportSeries bool
	// SourceFile is a historic data file used instead of the exchange.
	SourceFile string
	// SourceURL overrides the exchange api base url.
	SourceURL string
	// PageRetries is the number of retries per failed page request.
	PageRetries int
	// PagesPerSecond paces page requests, zero disables pacing.
	PagesPerSecond float64
	// RQLiteEndpoint, RQLiteUser and RQLitePass configure the rqlite run recorder.
	RQLiteEndpoint string
	RQLiteUser     string
	RQLitePass     string
	// SQLitePath configures the sqlite run recorder.
	SQLitePath string
	// Schedule is a cron expression for recurring runs.
	Schedule string
	// EventsFile re-aggregates a persisted event set without fetching.
	EventsFile string

	registeredFlags map[string]bool
}

// parseTime parses a start or end flag value. Values without a zone are UTC.
func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse %q, expected one of %s",
		value, strings.Join(timeLayouts, ", "))
}

// Range returns the configured range in milliseconds since epoch. Unset bounds
// are returned as zero.
func (cfg *Config) Range() (int64, int64, error) {
	var start, end int64

	if cfg.Start != "" {
		t, err := parseTime(cfg.Start)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing start: %w", err)
		}
		start = t.UnixMilli()
	}
	if cfg.End != "" {
		t, err := parseTime(cfg.End)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing end: %w", err)
		}
		end = t.UnixMilli()
	}

	return start, end, nil
}

// applyDefaults fills unset fields with their defaults.
func (cfg *Config) applyDefaults() {
	if cfg.Symbol == "" {
		cfg.Symbol = defaultSymbol
	}
	if cfg.PageLimit == 0 {
		cfg.PageLimit = defaultPageLimit
	}
	if cfg.Zone == "" {
		cfg.Zone = defaultZone
	}
	if cfg.Pattern == "" {
		cfg.Pattern = defaultPattern
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultOutputDir
	}
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.PageLimit <= 0 {
		errs = errors.Join(errs, fmt.Errorf("page limit must be positive, got %d", cfg.PageLimit))
	}
	if _, err := shared.LoadZone(cfg.Zone); err != nil {
		errs = errors.Join(errs, err)
	}
	if cfg.Pattern == "" {
		errs = errors.Join(errs, fmt.Errorf("pattern cannot be an empty string"))
	}
	if _, err := aggregate.ParseTimeFilter(cfg.TimeFilter); err != nil {
		errs = errors.Join(errs, err)
	}
	if cfg.OutputDir == "" {
		errs = errors.Join(errs, fmt.Errorf("output directory cannot be an empty string"))
	}
	if cfg.PageRetries < 0 {
		errs = errors.Join(errs, fmt.Errorf("page retries cannot be negative, got %d", cfg.PageRetries))
	}
	if cfg.PagesPerSecond < 0 {
		errs = errors.Join(errs, fmt.Errorf("pages per second cannot be negative, got %f", cfg.PagesPerSecond))
	}
	if cfg.RQLiteEndpoint != "" && cfg.SQLitePath != "" {
		errs = errors.Join(errs, fmt.Errorf("only one of rqlite endpoint and sqlite path can be set"))
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = errors.Join(errs, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err))
		}
		if cfg.EventsFile != "" {
			errs = errors.Join(errs, fmt.Errorf("schedule cannot be combined with an events file"))
		}
	}

	// Re-aggregation reads a persisted event set and needs no range.
	if cfg.EventsFile != "" {
		return errs
	}

	start, end, err := cfg.Range()
	switch {
	case err != nil:
		errs = errors.Join(errs, err)
	case cfg.SourceFile != "":
		// Historic data files default to their own range.
		if start != 0 && end != 0 && start >= end {
			errs = errors.Join(errs, fmt.Errorf("start (%s) must precede end (%s)", cfg.Start, cfg.End))
		}
	default:
		if cfg.Start == "" {
			errs = errors.Join(errs, fmt.Errorf("start cannot be an empty string"))
		}
		if cfg.End == "" {
			errs = errors.Join(errs, fmt.Errorf("end cannot be an empty string"))
		}
		if cfg.Start != "" && cfg.End != "" && start >= end {
			errs = errors.Join(errs, fmt.Errorf("start (%s) must precede end (%s)", cfg.Start, cfg.End))
		}
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"symbol", &cfg.Symbol, "the scanned trading pair"},
		{"start", &cfg.Start, "the range start, RFC3339 or a UTC date"},
		{"end", &cfg.End, "the range end, RFC3339 or a UTC date"},
		{"pagelimit", &cfg.PageLimit, "the maximum candles per page request"},
		{"zone", &cfg.Zone, "the IANA zone local times are expressed in"},
		{"pattern", &cfg.Pattern, "the scanned pattern"},
		{"patternfile", &cfg.PatternFile, "the yaml pattern definitions file"},
		{"timefilter", &cfg.TimeFilter, "the time filter overriding the pattern's (all, tens, multiple:N, between:HH:MM-HH:MM)"},
		{"outputdir", &cfg.OutputDir, "the run artifacts directory"},
		{"exportseries", &cfg.ExportSeries, "the normalized series export flag"},
		{"sourcefile", &cfg.SourceFile, "the historic data file used instead of the exchange"},
		{"sourceurl", &cfg.SourceURL, "the exchange api base url"},
		{"pageretries", &cfg.PageRetries, "the retries per failed page request"},
		{"pagespersecond", &cfg.PagesPerSecond, "the page request rate, zero disables pacing"},
		{"rqliteendpoint", &cfg.RQLiteEndpoint, "the rqlite run recorder endpoint"},
		{"rqliteuser", &cfg.RQLiteUser, "the rqlite user"},
		{"rqlitepass", &cfg.RQLitePass, "the rqlite user pass"},
		{"sqlitepath", &cfg.SQLitePath, "the sqlite run recorder path"},
		{"schedule", &cfg.Schedule, "the cron expression for recurring runs"},
		{"eventsfile", &cfg.EventsFile, "the persisted event set to re-aggregate"},
	}

	// Register command line arguments using loaded environment variables as defaults.
	for _, f := range flags {
		err = cfg.registerFlag(f.name, f.value, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.applyDefaults()

	return cfg.Validate()
}
