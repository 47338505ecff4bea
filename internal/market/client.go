package market

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trade-ledger-go/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches quotes from a Yahoo-style quote endpoint.
// It implements the Oracle interface.
type Client struct {
	client  *resty.Client
	suffix  string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ Oracle = (*Client)(nil)

// NewClient creates a new market-data client.
func NewClient(cfg *config.Market, logger *zap.Logger) *Client {
	url := cfg.BaseURL
	if url == "" {
		url = defaultBaseURL
	}

	client := resty.New().SetBaseURL(url)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		suffix:  cfg.SymbolSuffix,
		logger:  logger,
		limiter: limiter,
	}
}

// quoteResult is one entry in the feed's quote response.
type quoteResult struct {
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	PreviousClose      float64 `json:"previousClose"`
}

// quoteResponse represents the full response from the /v7/finance/quote
// endpoint.
type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
	} `json:"quoteResponse"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
	}
	return nil, fmt.Errorf("request failed after %d attempts with status %s", maxRetries, resp.Status())
}

// feedSymbol appends the configured exchange suffix, e.g. "TCS" -> "TCS.NS".
func (c *Client) feedSymbol(symbol string) string {
	if c.suffix == "" {
		return symbol
	}
	return symbol + c.suffix
}

// fetchQuotes fetches raw quote results for a set of symbols in one request.
func (c *Client) fetchQuotes(ctx context.Context, symbols []string) ([]quoteResult, error) {
	feedSymbols := make([]string, len(symbols))
	for i, s := range symbols {
		feedSymbols[i] = c.feedSymbol(s)
	}

	var quotes quoteResponse
	req := c.client.R().
		SetQueryParam("symbols", strings.Join(feedSymbols, ",")).
		SetResult(&quotes).
		SetHeader("Accept", "application/json")

	resp, err := c.doRequest(ctx, "GET", "/v7/finance/quote", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	result := resp.Result().(*quoteResponse)
	return result.QuoteResponse.Result, nil
}

// Quote returns the current price for a single symbol, or ErrUnavailable.
// Every upstream failure is deliberately flattened to ErrUnavailable.
func (c *Client) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	results, err := c.fetchQuotes(ctx, []string{symbol})
	if err != nil {
		c.logger.Warn("Quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
		return decimal.Zero, ErrUnavailable
	}

	if len(results) == 0 || results[0].RegularMarketPrice <= 0 {
		return decimal.Zero, ErrUnavailable
	}

	return decimal.NewFromFloat(results[0].RegularMarketPrice).Round(2), nil
}

// LiveQuotes returns price, change and percent change for each symbol that
// has usable data. Symbols with missing or zero fields are skipped rather
// than failing the whole batch.
func (c *Client) LiveQuotes(ctx context.Context, symbols []string) (map[string]LiveQuote, error) {
	if len(symbols) == 0 {
		return map[string]LiveQuote{}, nil
	}

	results, err := c.fetchQuotes(ctx, symbols)
	if err != nil {
		return nil, ErrUnavailable
	}

	live := make(map[string]LiveQuote, len(results))
	for _, r := range results {
		if r.RegularMarketPrice <= 0 || r.PreviousClose <= 0 {
			continue
		}

		price := decimal.NewFromFloat(r.RegularMarketPrice)
		prevClose := decimal.NewFromFloat(r.PreviousClose)
		change := price.Sub(prevClose)
		percent := change.Div(prevClose).Mul(decimal.NewFromInt(100))

		symbol := strings.TrimSuffix(r.Symbol, c.suffix)
		live[symbol] = LiveQuote{
			Price:         price.Round(2),
			Change:        change.Round(2),
			PercentChange: percent.Round(2),
		}
	}

	return live, nil
}
