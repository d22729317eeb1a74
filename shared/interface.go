package shared

import (
	"context"
)

// CandleSource defines the requirements for fetching paged candle data.
type CandleSource interface {
	// FetchPage fetches at most limit one-minute candles for the provided symbol
	// starting at since (milliseconds since epoch), ordered by ascending timestamp.
	FetchPage(ctx context.Context, symbol string, since int64, limit int) ([]Candlestick, error)
}
