// Package portfolio derives holdings from a user's trade ledger. The ledger
// is the single source of truth; nothing here is persisted or cached.
package portfolio

import (
	"github.com/shopspring/decimal"

	"trade-ledger-go/internal/models"
)

// Holding is the derived position for one symbol.
type Holding struct {
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	InvestedValue decimal.Decimal `json:"invested_value"`
}

// Summarize folds a user's trades, in ledger order, into current holdings.
// Per symbol: quantity is the signed sum of trade quantities, cost is the
// signed sum of quantity*price. Sells subtract at their execution price, not
// at the average cost of the remaining shares, so the average price drifts
// with trading activity. That matches the ledger's accounting as shipped;
// do not "correct" it here without a product decision.
//
// Only symbols with a positive quantity appear in the result.
func Summarize(trades []models.Trade) map[string]Holding {
	type position struct {
		quantity int64
		cost     decimal.Decimal
	}

	positions := make(map[string]*position)
	for _, t := range trades {
		p, ok := positions[t.Symbol]
		if !ok {
			p = &position{cost: decimal.Zero}
			positions[t.Symbol] = p
		}
		p.quantity += t.Quantity
		p.cost = p.cost.Add(t.Price.Mul(decimal.NewFromInt(t.Quantity)))
	}

	holdings := make(map[string]Holding)
	for symbol, p := range positions {
		if p.quantity <= 0 {
			continue
		}
		holdings[symbol] = Holding{
			Symbol:        symbol,
			Quantity:      p.quantity,
			AvgPrice:      p.cost.Div(decimal.NewFromInt(p.quantity)).Round(2),
			InvestedValue: p.cost.Round(2),
		}
	}

	return holdings
}
