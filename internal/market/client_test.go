package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"trade-ledger-go/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler, suffix string) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:  resty.New().SetBaseURL(server.URL),
		suffix:  suffix,
		logger:  zap.NewNop(), // Use a no-op logger for tests
		limiter: rate.NewLimiter(rate.Inf, 1),
	}

	return c, server
}

func TestQuote(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v7/finance/quote", r.URL.Path)
			assert.Equal(t, "TCS.NS", r.URL.Query().Get("symbols"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
				{"symbol":"TCS.NS","regularMarketPrice":3501.256,"previousClose":3450.10}
			]}}`))
		})

		c, server := setupTestServer(handler, ".NS")
		defer server.Close()

		// Act
		price, err := c.Quote(context.Background(), "TCS")

		// Assert
		assert.NoError(t, err)
		assert.True(t, price.Equal(decimal.RequireFromString("3501.26")), "price %s", price)
	})

	t.Run("EmptyResultIsUnavailable", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"quoteResponse":{"result":[]}}`))
		})

		c, server := setupTestServer(handler, "")
		defer server.Close()

		_, err := c.Quote(context.Background(), "NOPE")

		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("ZeroPriceIsUnavailable", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"XYZ"}]}}`))
		})

		c, server := setupTestServer(handler, "")
		defer server.Close()

		_, err := c.Quote(context.Background(), "XYZ")

		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("ExhaustedRetriesReportLastStatus", func(t *testing.T) {
		// Persistent server errors exhaust the retry budget; the final error
		// must carry the last HTTP status, not a nil wrap.
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		c, server := setupTestServer(handler, "")
		defer server.Close()

		_, err := c.doRequest(context.Background(), "GET", "/v7/finance/quote", c.client.R())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Contains(t, err.Error(), "500")
		assert.NotContains(t, err.Error(), "%!w")
	})

	t.Run("BadStatusIsUnavailable", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		c, server := setupTestServer(handler, "")
		defer server.Close()

		_, err := c.Quote(context.Background(), "XYZ")

		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestLiveQuotes(t *testing.T) {
	t.Run("ComputesChangeAndStripsSuffix", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "TCS.NS,INFY.NS", r.URL.Query().Get("symbols"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
				{"symbol":"TCS.NS","regularMarketPrice":110.00,"previousClose":100.00},
				{"symbol":"INFY.NS","regularMarketPrice":95.00,"previousClose":100.00}
			]}}`))
		})

		c, server := setupTestServer(handler, ".NS")
		defer server.Close()

		live, err := c.LiveQuotes(context.Background(), []string{"TCS", "INFY"})

		assert.NoError(t, err)
		assert.Len(t, live, 2)

		tcs := live["TCS"]
		assert.True(t, tcs.Price.Equal(decimal.RequireFromString("110.00")), "price %s", tcs.Price)
		assert.True(t, tcs.Change.Equal(decimal.RequireFromString("10.00")), "change %s", tcs.Change)
		assert.True(t, tcs.PercentChange.Equal(decimal.RequireFromString("10.00")), "percent %s", tcs.PercentChange)

		infy := live["INFY"]
		assert.True(t, infy.Change.Equal(decimal.RequireFromString("-5.00")), "change %s", infy.Change)
		assert.True(t, infy.PercentChange.Equal(decimal.RequireFromString("-5.00")), "percent %s", infy.PercentChange)
	})

	t.Run("SkipsSymbolsWithoutData", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
				{"symbol":"AAA","regularMarketPrice":50.00,"previousClose":49.00},
				{"symbol":"BBB","regularMarketPrice":12.00}
			]}}`))
		})

		c, server := setupTestServer(handler, "")
		defer server.Close()

		live, err := c.LiveQuotes(context.Background(), []string{"AAA", "BBB"})

		assert.NoError(t, err)
		assert.Contains(t, live, "AAA")
		assert.NotContains(t, live, "BBB")
	})

	t.Run("NoSymbolsNoRequest", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		})

		c, server := setupTestServer(handler, "")
		defer server.Close()

		live, err := c.LiveQuotes(context.Background(), nil)

		assert.NoError(t, err)
		assert.Empty(t, live)
	})

	t.Run("FeedErrorIsUnavailable", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		c, server := setupTestServer(handler, "")
		defer server.Close()

		_, err := c.LiveQuotes(context.Background(), []string{"AAA"})

		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestNewClient(t *testing.T) {
	c := NewClient(&config.Market{SymbolSuffix: ".NS", RateLimit: 10, RateLimitBurst: 5}, zap.NewNop())
	assert.NotNil(t, c)
	assert.Equal(t, ".NS", c.suffix)
}
