package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is an account holder. Funds is the cash balance in 2-decimal fixed
// point; it is mutated only by the execution engine and never goes negative.
type User struct {
	gorm.Model
	Email        string          `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string          `gorm:"not null" json:"-"`
	PINHash      string          `gorm:"not null" json:"-"`
	Funds        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"funds"`
}
