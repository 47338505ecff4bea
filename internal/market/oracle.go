package market

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable signals that no usable quote could be obtained for a symbol.
// All upstream failure modes (transport errors, bad status, empty result,
// missing price field) collapse into this one error; callers must not depend
// on the specific upstream cause.
var ErrUnavailable = errors.New("market data unavailable")

// LiveQuote is a point-in-time market snapshot for one symbol.
type LiveQuote struct {
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	PercentChange decimal.Decimal `json:"percent_change"`
}

// Oracle provides current market prices. Quote returns the last trade price
// for a single symbol or ErrUnavailable. LiveQuotes returns a snapshot for
// each requested symbol, silently skipping symbols with no usable data.
type Oracle interface {
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
	LiveQuotes(ctx context.Context, symbols []string) (map[string]LiveQuote, error)
}
