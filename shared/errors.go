package shared

import (
	"context"
	"errors"
)

var (
	// ErrSourceUnavailable is returned when the candle source fails to serve a page.
	ErrSourceUnavailable = errors.New("candle source unavailable")
	// ErrDataIntegrity is returned when fetched candles are malformed or out of order.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrTimeConversion is returned when a timestamp cannot be represented as a calendar time.
	ErrTimeConversion = errors.New("time conversion failed")
	// ErrEmptyResult is returned when a stage produced nothing to work with.
	ErrEmptyResult = errors.New("empty result")
	// ErrPersistence is returned when run artifacts or records cannot be stored.
	ErrPersistence = errors.New("persistence failed")
)

// Classify returns a short class name for the provided error.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, ErrTimeConversion):
		return "time_conversion"
	case errors.Is(err, ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "aborted"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "unclassified"
	}
}
