package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TradeTypeBuy  = "buy"
	TradeTypeSell = "sell"
)

// Trade is one immutable entry in a user's trade ledger. Quantity is signed:
// positive for buys, negative for sells. Rows are only ever inserted; the
// auto-increment ID doubles as the ledger sequence.
type Trade struct {
	gorm.Model
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	Symbol    string          `gorm:"not null" json:"symbol"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	TradeType string          `gorm:"not null;default:buy" json:"trade_type"`
}
