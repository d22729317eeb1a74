package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/scanner/shared"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBinanceURL is the binance spot api base url.
	DefaultBinanceURL = "https://api.binance.com"
	// klinesPath is the binance candlestick endpoint.
	klinesPath = "/api/v3/klines"
	// defaultTimeout is the default http request timeout.
	defaultTimeout = time.Second * 10
)

// StatusError represents a non-success response from a candle api.
type StatusError struct {
	StatusCode int
	Message    string
}

// Error returns the error message.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// RateLimited checks whether the response signals a rate limit. Binance
// responds with 418 once an ip has been banned for ignoring 429s.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusTeapot
}

// Temporary checks whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.RateLimited() || e.StatusCode >= http.StatusInternalServerError
}

// BinanceConfig represents the configuration for the binance client.
type BinanceConfig struct {
	// BaseURL is the api base url, defaults to DefaultBinanceURL.
	BaseURL string
	// HTTPClient overrides the default http client.
	HTTPClient *http.Client
}

// BinanceClient represents a binance spot market candle source.
type BinanceClient struct {
	cfg   *BinanceConfig
	httpc *http.Client
	buf   *bytes.Buffer
}

// Ensure the BinanceClient implements the CandleSource interface.
var _ shared.CandleSource = (*BinanceClient)(nil)

// NewBinanceClient instantiates a new binance client.
func NewBinanceClient(cfg *BinanceConfig) *BinanceClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBinanceURL
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTimeout}
	}

	return &BinanceClient{
		cfg:   cfg,
		httpc: httpc,
		buf:   bytes.NewBuffer(make([]byte, 0, 256)),
	}
}

// formURL creates full urls including parameters for the api.
func (c *BinanceClient) formURL(path string, params string) string {
	c.buf.WriteString(strings.TrimSuffix(c.cfg.BaseURL, "/"))
	c.buf.WriteString(path)
	c.buf.WriteString("?")
	c.buf.WriteString(params)
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// NormalizeSymbol converts a pair like BTC/USDT into the exchange symbol BTCUSDT.
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol)
}

// FetchPage fetches at most limit one-minute candles for the provided symbol starting at since.
func (c *BinanceClient) FetchPage(ctx context.Context, symbol string, since int64, limit int) ([]shared.Candlestick, error) {
	timeframe := shared.OneMinute

	params := url.Values{}
	params.Add("symbol", NormalizeSymbol(symbol))
	params.Add("interval", timeframe.String())
	params.Add("startTime", strconv.FormatInt(since, 10))
	params.Add("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(klinesPath, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating klines request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("fetching klines (%s) for %s: %w", timeframe.String(), symbol, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "msg").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed klines response for %s", shared.ErrDataIntegrity, symbol)
	}

	return ParseCandlesticks(gjson.ParseBytes(body).Array())
}

// ParseCandlesticks parses candlesticks from kline rows of the form
// [openTime, open, high, low, close, volume, ...]. Prices may be numbers or
// numeric strings.
func ParseCandlesticks(data []gjson.Result) ([]shared.Candlestick, error) {
	candles := make([]shared.Candlestick, len(data))

	for idx := range data {
		row := data[idx].Array()
		if !data[idx].IsArray() || len(row) < 6 {
			return nil, fmt.Errorf("%w: kline %d is not a row of at least 6 values: %s",
				shared.ErrDataIntegrity, idx, data[idx].Raw)
		}

		values := make([]float64, 0, 5)
		for _, field := range row[1:6] {
			value, err := parseNumber(field)
			if err != nil {
				return nil, fmt.Errorf("%w: kline %d: %w", shared.ErrDataIntegrity, idx, err)
			}
			values = append(values, value)
		}

		candles[idx] = shared.Candlestick{
			Timestamp: row[0].Int(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		}
	}

	return candles, nil
}

// parseNumber parses a numeric json value or numeric string.
func parseNumber(field gjson.Result) (float64, error) {
	switch field.Type {
	case gjson.Number:
		return field.Float(), nil
	case gjson.String:
		value, err := strconv.ParseFloat(field.Str, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %q: %w", field.Str, err)
		}
		return value, nil
	default:
		return 0, fmt.Errorf("expected a number, got %s", field.Type.String())
	}
}
