package scan

import (
	"errors"
	"fmt"

	"github.com/dnldd/scanner/shared"
	"github.com/rs/zerolog"
)

// ScannerConfig represents the window scanner configuration.
type ScannerConfig struct {
	// Pattern is the name tagged onto emitted events.
	Pattern string
	// Width is the number of candles following each anchor.
	Width int
	// Predicate is the pattern condition evaluated at each anchor.
	Predicate Predicate
	// AnchorFilter restricts the evaluated anchors, nil evaluates every anchor.
	AnchorFilter AnchorFilter
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ScannerConfig) Validate() error {
	var errs error

	if cfg.Pattern == "" {
		errs = errors.Join(errs, fmt.Errorf("pattern name cannot be an empty string"))
	}
	if cfg.Width < 1 {
		errs = errors.Join(errs, fmt.Errorf("window width must be positive, got %d", cfg.Width))
	}
	if cfg.Predicate == nil {
		errs = errors.Join(errs, fmt.Errorf("predicate cannot be nil"))
	} else {
		if v, ok := cfg.Predicate.(validator); ok {
			if err := v.Validate(); err != nil {
				errs = errors.Join(errs, fmt.Errorf("invalid predicate: %w", err))
			}
		}
		if offset := cfg.Predicate.MaxOffset(); offset > cfg.Width {
			errs = errors.Join(errs, fmt.Errorf("predicate reads offset %d beyond window width %d",
				offset, cfg.Width))
		}
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Scanner slides a fixed width window over a normalized series and emits the
// anchors matching its predicate.
type Scanner struct {
	cfg *ScannerConfig
}

// NewScanner initializes a new window scanner.
func NewScanner(cfg *ScannerConfig) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating scanner config: %w", err)
	}

	return &Scanner{cfg: cfg}, nil
}

// AnchorCount returns the number of anchors with a full window in a series of
// the provided length.
func AnchorCount(length int, width int) int {
	return max(length-width, 0)
}

// Scan evaluates the predicate at every eligible anchor of the series, in order.
// An anchor is eligible when a full window of Width candles follows it and it
// passes the anchor filter. The series must be strictly increasing by timestamp.
func (s *Scanner) Scan(series []shared.NormalizedCandle) ([]shared.PatternEvent, error) {
	for idx := 1; idx < len(series); idx++ {
		if series[idx].Timestamp <= series[idx-1].Timestamp {
			return nil, fmt.Errorf("%w: series not strictly increasing at index %d (%d after %d)",
				shared.ErrDataIntegrity, idx, series[idx].Timestamp, series[idx-1].Timestamp)
		}
	}

	width := s.cfg.Width
	anchors := AnchorCount(len(series), width)

	events := make([]shared.PatternEvent, 0)
	var evaluated int
	for idx := range anchors {
		anchor := &series[idx]
		if s.cfg.AnchorFilter != nil && !s.cfg.AnchorFilter(anchor) {
			continue
		}

		evaluated++
		end := idx + 1 + width
		window := Window(series[idx+1 : end : end])
		if !s.cfg.Predicate.Match(anchor, window) {
			continue
		}

		events = append(events, shared.PatternEvent{
			NormalizedCandle: *anchor,
			Pattern:          s.cfg.Pattern,
			AnchorIndex:      idx,
		})
	}

	s.cfg.Logger.Debug().Msgf("scanned %d candles for %s: %d anchors, %d evaluated, %d matched",
		len(series), s.cfg.Pattern, anchors, evaluated, len(events))

	return events, nil
}
