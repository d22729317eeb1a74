package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dnldd/scanner/shared"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// defaultBaseBackoff is the default delay before the first retry.
	defaultBaseBackoff = time.Millisecond * 500
	// defaultMaxBackoff is the default delay cap between retries.
	defaultMaxBackoff = time.Second * 30
)

// RetryConfig represents the retrying candle source configuration.
type RetryConfig struct {
	// Source is the wrapped candle source.
	Source shared.CandleSource
	// MaxRetries is the number of retries per page, zero fails fast.
	MaxRetries int
	// BaseBackoff is the delay before the first retry, doubled on every retry.
	BaseBackoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// PagesPerSecond paces page requests, zero disables pacing.
	PagesPerSecond float64
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *RetryConfig) Validate() error {
	var errs error

	if cfg.Source == nil {
		errs = errors.Join(errs, fmt.Errorf("candle source cannot be nil"))
	}
	if cfg.MaxRetries < 0 {
		errs = errors.Join(errs, fmt.Errorf("max retries cannot be negative, got %d", cfg.MaxRetries))
	}
	if cfg.BaseBackoff < 0 || cfg.MaxBackoff < 0 {
		errs = errors.Join(errs, fmt.Errorf("backoff durations cannot be negative"))
	}
	if cfg.PagesPerSecond < 0 {
		errs = errors.Join(errs, fmt.Errorf("pages per second cannot be negative, got %f", cfg.PagesPerSecond))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// RetrySource wraps a candle source with paced requests and bounded
// exponential backoff on transient failures.
type RetrySource struct {
	cfg     *RetryConfig
	limiter *rate.Limiter
}

// Ensure RetrySource implements the CandleSource interface.
var _ shared.CandleSource = (*RetrySource)(nil)

// NewRetrySource initializes a new retrying candle source.
func NewRetrySource(cfg *RetryConfig) (*RetrySource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating retry config: %w", err)
	}

	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	src := &RetrySource{cfg: cfg}
	if cfg.PagesPerSecond > 0 {
		src.limiter = rate.NewLimiter(rate.Limit(cfg.PagesPerSecond), 1)
	}

	return src, nil
}

// Retryable checks whether a failed page request may succeed if repeated.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, shared.ErrDataIntegrity):
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// FetchPage fetches a page from the wrapped source, retrying transient failures.
func (s *RetrySource) FetchPage(ctx context.Context, symbol string, since int64, limit int) ([]shared.Candlestick, error) {
	backoff := s.cfg.BaseBackoff

	for attempt := 0; ; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("pacing page request: %w", err)
			}
		}

		candles, err := s.cfg.Source.FetchPage(ctx, symbol, since, limit)
		if err == nil {
			return candles, nil
		}

		if !Retryable(err) || attempt >= s.cfg.MaxRetries {
			return nil, err
		}

		s.cfg.Logger.Warn().Msgf("page request for %s since %d failed (attempt %d/%d), retrying in %s: %v",
			symbol, since, attempt+1, s.cfg.MaxRetries+1, backoff, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, s.cfg.MaxBackoff)
	}
}
