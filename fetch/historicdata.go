package fetch

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/dnldd/scanner/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// HistoricDataConfig represents the historic data source configuration.
type HistoricDataConfig struct {
	// FilePath is the filepath to the historic market data.
	FilePath string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// HistoricData represents historic market data served page by page from a file.
type HistoricData struct {
	cfg     *HistoricDataConfig
	market  string
	candles []shared.Candlestick
}

// Ensure HistoricData implements the CandleSource interface.
var _ shared.CandleSource = (*HistoricData)(nil)

// loadHistoricData loads the historic data from the provided file path.
func loadHistoricData(filepath string) (*gjson.Result, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading historic data from file with path '%s': %w", filepath, err)
	}

	if !gjson.ValidBytes(readb) {
		return nil, fmt.Errorf("%w: historic data file '%s' is not valid json", shared.ErrDataIntegrity, filepath)
	}

	b := gjson.ParseBytes(readb)

	return &b, nil
}

// NewHistoricData initializes a new historic data source.
func NewHistoricData(cfg *HistoricDataConfig) (*HistoricData, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	b, err := loadHistoricData(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading historic data: %w", err)
	}

	candles, err := ParseCandlesticks(b.Get("candles").Array())
	if err != nil {
		return nil, fmt.Errorf("parsing candlesticks: %w", err)
	}

	slices.SortFunc(candles, func(a, b shared.Candlestick) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})

	h := &HistoricData{
		cfg:     cfg,
		market:  b.Get("market").String(),
		candles: candles,
	}

	if len(candles) > 0 {
		first := time.UnixMilli(candles[0].Timestamp).UTC()
		last := time.UnixMilli(candles[len(candles)-1].Timestamp).UTC()
		cfg.Logger.Info().Msgf("loaded %d historic %s candles covering %.2f hours, from %s, to %s",
			len(candles), h.market, last.Sub(first).Hours(), first.Format(time.RFC1123), last.Format(time.RFC1123))
	}

	return h, nil
}

// Market returns the market of the loaded historic data.
func (h *HistoricData) Market() string {
	return h.market
}

// Range returns the timestamps of the first candle and one minute past the
// last candle of the loaded historic data.
func (h *HistoricData) Range() (int64, int64) {
	if len(h.candles) == 0 {
		return 0, 0
	}

	return h.candles[0].Timestamp, h.candles[len(h.candles)-1].Timestamp + minuteMs
}

// FetchPage serves at most limit candles at or after since.
func (h *HistoricData) FetchPage(ctx context.Context, symbol string, since int64, limit int) ([]shared.Candlestick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if h.market != "" && NormalizeSymbol(symbol) != NormalizeSymbol(h.market) {
		return nil, fmt.Errorf("historic data holds %s, not %s", h.market, symbol)
	}

	from := sort.Search(len(h.candles), func(i int) bool {
		return h.candles[i].Timestamp >= since
	})
	to := min(from+max(limit, 0), len(h.candles))

	return slices.Clone(h.candles[from:to]), nil
}
