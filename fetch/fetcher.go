package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/scanner/shared"
	"github.com/rs/zerolog"
)

var (
	// minuteMs is the duration of a one-minute candle in milliseconds.
	minuteMs = shared.OneMinute.Milliseconds()
	// alignmentMs is the boundary fetch start times are floored to.
	alignmentMs = shared.TenMinute.Milliseconds()
)

// FetcherConfig represents the chunked fetcher configuration.
type FetcherConfig struct {
	// PageLimit is the maximum number of candles requested per page.
	PageLimit int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *FetcherConfig) Validate() error {
	var errs error

	if cfg.PageLimit <= 0 {
		errs = errors.Join(errs, fmt.Errorf("page limit must be positive, got %d", cfg.PageLimit))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Fetcher retrieves a candle series for a time range one page at a time.
type Fetcher struct {
	cfg *FetcherConfig
}

// NewFetcher initializes a new chunked fetcher.
func NewFetcher(cfg *FetcherConfig) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating fetcher config: %w", err)
	}

	return &Fetcher{cfg: cfg}, nil
}

// AlignStart floors the provided timestamp to its ten minute boundary.
func AlignStart(start int64) int64 {
	rem := start % alignmentMs
	if rem < 0 {
		rem += alignmentMs
	}

	return start - rem
}

// PageCount returns the upper bound of pages needed to cover [start, end) with
// pages of limit one-minute candles. At least one page is always requested.
func PageCount(start int64, end int64, limit int) int {
	span := int64(limit) * minuteMs
	if end <= start || span <= 0 {
		return 1
	}

	return int(max((end-start+span-1)/span, 1))
}

// Fetch retrieves the candles of the provided symbol between start and end
// (milliseconds since epoch). The start is aligned to its ten minute boundary
// and pages are requested in order until the page bound is reached or the
// source returns a short page.
func (f *Fetcher) Fetch(ctx context.Context, source shared.CandleSource, symbol string, start int64, end int64) ([]shared.Candlestick, error) {
	if source == nil {
		return nil, fmt.Errorf("candle source cannot be nil")
	}
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be an empty string")
	}
	if start >= end {
		return nil, fmt.Errorf("start (%d) must precede end (%d)", start, end)
	}

	limit := f.cfg.PageLimit
	span := int64(limit) * minuteMs
	aligned := AlignStart(start)
	pages := PageCount(aligned, end, limit)

	f.cfg.Logger.Info().Msgf("fetching %s from %d (aligned from %d) to %d in at most %d pages of %d",
		symbol, aligned, start, end, pages, limit)

	candles := make([]shared.Candlestick, 0)
	for page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		since := aligned + int64(page)*span
		bars, err := source.FetchPage(ctx, symbol, since, limit)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: fetching page %d of %s since %d: %w",
				shared.ErrSourceUnavailable, page, symbol, since, err)
		}

		if err := f.checkPage(page, bars); err != nil {
			return nil, err
		}

		var dropped int
		for idx := range bars {
			if len(candles) > 0 && bars[idx].Timestamp <= candles[len(candles)-1].Timestamp {
				dropped++
				continue
			}
			candles = append(candles, bars[idx])
		}
		if dropped > 0 {
			f.cfg.Logger.Debug().Msgf("dropped %d overlapping candles from page %d of %s",
				dropped, page, symbol)
		}

		if len(bars) < limit {
			f.cfg.Logger.Debug().Msgf("page %d of %s returned %d/%d candles, source exhausted",
				page, symbol, len(bars), limit)
			break
		}
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s between %d and %d",
			shared.ErrEmptyResult, symbol, aligned, end)
	}

	f.cfg.Logger.Info().Msgf("fetched %d candles for %s", len(candles), symbol)

	return candles, nil
}

// checkPage asserts the integrity of a fetched page.
func (f *Fetcher) checkPage(page int, bars []shared.Candlestick) error {
	if len(bars) > f.cfg.PageLimit {
		return fmt.Errorf("%w: page %d returned %d candles, limit is %d",
			shared.ErrDataIntegrity, page, len(bars), f.cfg.PageLimit)
	}

	for idx := range bars {
		if err := bars[idx].Validate(); err != nil {
			f.cfg.Logger.Error().Msgf("invalid candle on page %d:\n%s", page, spew.Sdump(bars[idx]))
			return fmt.Errorf("page %d: %w", page, err)
		}

		if idx > 0 && bars[idx].Timestamp <= bars[idx-1].Timestamp {
			f.cfg.Logger.Error().Msgf("out of order candles on page %d:\n%s", page,
				spew.Sdump(bars[idx-1], bars[idx]))
			return fmt.Errorf("%w: page %d candle %d at %d does not follow %d",
				shared.ErrDataIntegrity, page, idx, bars[idx].Timestamp, bars[idx-1].Timestamp)
		}
	}

	return nil
}
