package main

import (
	"flag"
	"os"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Symbol:    "BTC/USDT",
			Start:     "2024-06-10",
			End:       "2024-06-11",
			PageLimit: 1000,
			Zone:      "Asia/Kolkata",
			Pattern:   "decrease",
			OutputDir: ".",
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr []string
	}{
		{
			name:    "valid config",
			mutate:  func(cfg *Config) {},
			wantErr: nil,
		},
		{
			name: "missing range",
			mutate: func(cfg *Config) {
				cfg.Start = ""
				cfg.End = ""
			},
			wantErr: []string{"start cannot be an empty string", "end cannot be an empty string"},
		},
		{
			name: "inverted range",
			mutate: func(cfg *Config) {
				cfg.Start, cfg.End = cfg.End, cfg.Start
			},
			wantErr: []string{"must precede end"},
		},
		{
			name: "unparseable start",
			mutate: func(cfg *Config) {
				cfg.Start = "yesterday"
			},
			wantErr: []string{"parsing start"},
		},
		{
			name: "historic data without range",
			mutate: func(cfg *Config) {
				cfg.Start = ""
				cfg.End = ""
				cfg.SourceFile = "testdata/historicdata.json"
			},
			wantErr: nil,
		},
		{
			name: "events file without range",
			mutate: func(cfg *Config) {
				cfg.Start = ""
				cfg.End = ""
				cfg.EventsFile = "BTCUSDT_decrease_events.csv"
			},
			wantErr: nil,
		},
		{
			name: "invalid zone and page limit",
			mutate: func(cfg *Config) {
				cfg.Zone = "Mars/Olympus"
				cfg.PageLimit = 0
			},
			wantErr: []string{"loading Mars/Olympus timezone", "page limit must be positive"},
		},
		{
			name: "invalid time filter",
			mutate: func(cfg *Config) {
				cfg.TimeFilter = "multiple:0"
			},
			wantErr: []string{"minute multiple must be positive"},
		},
		{
			name: "both recorders",
			mutate: func(cfg *Config) {
				cfg.RQLiteEndpoint = "http://localhost:4001"
				cfg.SQLitePath = "runs.db"
			},
			wantErr: []string{"only one of rqlite endpoint and sqlite path can be set"},
		},
		{
			name: "invalid schedule",
			mutate: func(cfg *Config) {
				cfg.Schedule = "every ten minutes"
			},
			wantErr: []string{"invalid schedule"},
		},
		{
			name: "negative pacing",
			mutate: func(cfg *Config) {
				cfg.PageRetries = -1
				cfg.PagesPerSecond = -2
			},
			wantErr: []string{"page retries cannot be negative", "pages per second cannot be negative"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("expected error(s) %v, got none", tt.wantErr)
					return
				}
				for _, want := range tt.wantErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			}
		})
	}
}

func TestConfigRange(t *testing.T) {
	cfg := Config{Start: "2024-06-10T05:30:00+05:30", End: "2024-06-10 01:00"}

	start, end, err := cfg.Range()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Ensure offsets are honoured and zoneless values are utc.
	if want := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC).UnixMilli(); start != want {
		t.Errorf("start: got %d, want %d", start, want)
	}
	if want := time.Date(2024, 6, 10, 1, 0, 0, 0, time.UTC).UnixMilli(); end != want {
		t.Errorf("end: got %d, want %d", end, want)
	}
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args and environment
	origArgs := os.Args
	origEnv := os.Environ()
	defer func() {
		os.Args = origArgs
		for _, kv := range origEnv {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				os.Setenv(parts[0], parts[1])
			}
		}
	}()

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		expectCfg   Config
	}{
		{
			name: "all from env",
			env: map[string]string{
				"symbol":         "ETH/USDT",
				"start":          "2024-06-10",
				"end":            "2024-06-11",
				"pagelimit":      "500",
				"pagespersecond": "2.5",
				"exportseries":   "true",
			},
			args:      []string{"cmd"},
			expectErr: false,
			expectCfg: Config{
				Symbol:         "ETH/USDT",
				PageLimit:      500,
				PagesPerSecond: 2.5,
				ExportSeries:   true,
				Zone:           defaultZone,
				Pattern:        defaultPattern,
			},
		},
		{
			name:      "all from flags",
			env:       map[string]string{},
			args:      []string{"cmd", "-start=2024-06-10", "-end=2024-06-11", "-pattern=eleven-forty", "-zone=+05:30", "-timefilter=tens"},
			expectErr: false,
			expectCfg: Config{
				Symbol:     defaultSymbol,
				PageLimit:  defaultPageLimit,
				Zone:       "+05:30",
				Pattern:    "eleven-forty",
				TimeFilter: "tens",
			},
		},
		{
			name:        "missing range",
			env:         map[string]string{},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"start cannot be an empty string", "end cannot be an empty string"},
		},
		{
			name: "flag overrides env",
			env: map[string]string{
				"symbol": "ETH/USDT",
			},
			args:      []string{"cmd", "-symbol=SOL/USDT", "-sourcefile=testdata/historicdata.json"},
			expectErr: false,
			expectCfg: Config{
				Symbol:    "SOL/USDT",
				PageLimit: defaultPageLimit,
				Zone:      defaultZone,
				Pattern:   defaultPattern,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			// Set environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Set command-line arguments
			os.Args = tt.args

			var cfg Config
			err := loadConfig(&cfg, "") // don't load .env file

			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			} else {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if cfg.Symbol != tt.expectCfg.Symbol {
					t.Errorf("Symbol: got %v, want %v", cfg.Symbol, tt.expectCfg.Symbol)
				}
				if cfg.PageLimit != tt.expectCfg.PageLimit {
					t.Errorf("PageLimit: got %v, want %v", cfg.PageLimit, tt.expectCfg.PageLimit)
				}
				if cfg.PagesPerSecond != tt.expectCfg.PagesPerSecond {
					t.Errorf("PagesPerSecond: got %v, want %v", cfg.PagesPerSecond, tt.expectCfg.PagesPerSecond)
				}
				if cfg.ExportSeries != tt.expectCfg.ExportSeries {
					t.Errorf("ExportSeries: got %v, want %v", cfg.ExportSeries, tt.expectCfg.ExportSeries)
				}
				if cfg.Zone != tt.expectCfg.Zone {
					t.Errorf("Zone: got %v, want %v", cfg.Zone, tt.expectCfg.Zone)
				}
				if cfg.Pattern != tt.expectCfg.Pattern {
					t.Errorf("Pattern: got %v, want %v", cfg.Pattern, tt.expectCfg.Pattern)
				}
				if cfg.TimeFilter != tt.expectCfg.TimeFilter {
					t.Errorf("TimeFilter: got %v, want %v", cfg.TimeFilter, tt.expectCfg.TimeFilter)
				}
				if cfg.OutputDir != defaultOutputDir {
					t.Errorf("OutputDir: got %v, want %v", cfg.OutputDir, defaultOutputDir)
				}
			}

			// Clean up env
			for k := range tt.env {
				os.Unsetenv(k)
			}
		})
	}
}

func TestRegisterFlag(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	var cfg Config

	// Ensure only the supported flag kinds can be registered.
	var markets []string
	if err := cfg.registerFlag("markets", &markets, "unsupported"); err == nil {
		t.Errorf("expected an error registering a slice flag")
	}
	if err := cfg.registerFlag("symbolvalue", cfg.Symbol, "not a pointer"); err == nil {
		t.Errorf("expected an error registering a non-pointer flag")
	}
	if err := cfg.registerFlag("pagespersecond", &cfg.PagesPerSecond, "pacing"); err != nil {
		t.Errorf("expected no error registering a float flag, got %v", err)
	}

	// Ensure re-registration is a no-op.
	if err := cfg.registerFlag("pagespersecond", &cfg.PagesPerSecond, "pacing"); err != nil {
		t.Errorf("expected no error re-registering a flag, got %v", err)
	}
}
