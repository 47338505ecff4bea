package database

import (
	"path/filepath"
	"testing"

	"trade-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_MigratesAndPersists(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")

	db, err := NewDatabase(dsn)
	require.NoError(t, err)

	user := models.User{Email: "a@b.com", PasswordHash: "x", PINHash: "x", Funds: decimal.Zero}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.Trade{
		UserID:    user.ID,
		Symbol:    "AAA",
		Quantity:  3,
		Price:     decimal.RequireFromString("12.50"),
		TradeType: models.TradeTypeBuy,
	}).Error)

	// Reopening must not drop anything; the ledger survives restarts.
	db2, err := NewDatabase(dsn)
	require.NoError(t, err)

	var trades []models.Trade
	require.NoError(t, db2.Find(&trades).Error)
	assert.Len(t, trades, 1)
	assert.Equal(t, "AAA", trades[0].Symbol)
}
