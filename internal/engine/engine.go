// Package engine validates and executes orders against a user's funds and
// trade ledger. All mutations to one user's state are serialized behind a
// per-user lock and committed in a single database transaction, so a caller
// either sees the full effect of an order or none of it.
package engine

import (
	"context"
	"fmt"
	"strings"

	"trade-ledger-go/internal/market"
	"trade-ledger-go/internal/models"
	"trade-ledger-go/internal/portfolio"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine is the order execution engine.
type Engine struct {
	logger *zap.Logger
	oracle market.Oracle
	db     *gorm.DB
	locks  userLocks
}

// NewEngine creates a new execution engine.
func NewEngine(logger *zap.Logger, oracle market.Oracle, db *gorm.DB) *Engine {
	return &Engine{
		logger: logger,
		oracle: oracle,
		db:     db,
	}
}

// OrderResult reports a committed buy or sell: the appended ledger record and
// the balance after the trade.
type OrderResult struct {
	Trade   models.Trade    `json:"trade"`
	Balance decimal.Decimal `json:"balance"`
}

// NormalizeSymbol canonicalizes user-supplied symbols: trimmed, upper-case.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Deposit adds funds to a user's cash balance. The amount must be positive
// with at most two decimal places. No ledger entry is written.
func (e *Engine) Deposit(ctx context.Context, userID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return decimal.Zero, ErrInvalidAmount
	}

	mu := e.locks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()

	var balance decimal.Decimal
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		balance = user.Funds.Add(amount)
		return setFunds(tx, user, balance)
	})
	if err != nil {
		return decimal.Zero, err
	}

	e.logger.Info("Deposit committed",
		zap.Uint("user_id", userID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("balance", balance.StringFixed(2)))
	return balance, nil
}

// Buy executes a market buy: quote the symbol, check funds, then debit the
// balance and append the ledger record in one transaction.
func (e *Engine) Buy(ctx context.Context, userID uint, symbol string, quantity int64) (*OrderResult, error) {
	symbol = NormalizeSymbol(symbol)
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	mu := e.locks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()

	price, err := e.oracle.Quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	cost := price.Mul(decimal.NewFromInt(quantity))

	var result OrderResult
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		if cost.GreaterThan(user.Funds) {
			return ErrInsufficientFunds
		}

		if err := setFunds(tx, user, user.Funds.Sub(cost)); err != nil {
			return err
		}

		trade := models.Trade{
			UserID:    userID,
			Symbol:    symbol,
			Quantity:  quantity,
			Price:     price,
			TradeType: models.TradeTypeBuy,
		}
		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("failed to append trade record: %w", err)
		}

		result = OrderResult{Trade: trade, Balance: user.Funds}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Buy committed",
		zap.Uint("user_id", userID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", quantity),
		zap.String("price", price.StringFixed(2)))
	return &result, nil
}

// Sell executes a market sell. Holdings are recomputed from the ledger under
// the user's lock, never from a cache, so a stale snapshot cannot let two
// sells of the same shares both pass validation.
func (e *Engine) Sell(ctx context.Context, userID uint, symbol string, quantity int64) (*OrderResult, error) {
	symbol = NormalizeSymbol(symbol)
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	mu := e.locks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()

	trades, err := e.listTrades(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings := portfolio.Summarize(trades)

	held, ok := holdings[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOwned, symbol)
	}
	if quantity > held.Quantity {
		return nil, fmt.Errorf("%w: have %d of %s", ErrInsufficientHoldings, held.Quantity, symbol)
	}

	price, err := e.oracle.Quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	proceeds := price.Mul(decimal.NewFromInt(quantity))

	var result OrderResult
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}

		if err := setFunds(tx, user, user.Funds.Add(proceeds)); err != nil {
			return err
		}

		trade := models.Trade{
			UserID:    userID,
			Symbol:    symbol,
			Quantity:  -quantity,
			Price:     price,
			TradeType: models.TradeTypeSell,
		}
		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("failed to append trade record: %w", err)
		}

		result = OrderResult{Trade: trade, Balance: user.Funds}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Sell committed",
		zap.Uint("user_id", userID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", quantity),
		zap.String("price", price.StringFixed(2)))
	return &result, nil
}

// GetPortfolio derives the user's current holdings from the full ledger.
func (e *Engine) GetPortfolio(ctx context.Context, userID uint) (map[string]portfolio.Holding, error) {
	trades, err := e.listTrades(ctx, userID)
	if err != nil {
		return nil, err
	}
	return portfolio.Summarize(trades), nil
}

// Balance returns the user's current cash balance.
func (e *Engine) Balance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	user, err := loadUser(e.db.WithContext(ctx), userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Funds, nil
}

// ListTrades returns the user's full trade history in ledger order.
func (e *Engine) ListTrades(ctx context.Context, userID uint) ([]models.Trade, error) {
	return e.listTrades(ctx, userID)
}

// RefreshLiveValuation fetches a live snapshot for the given symbols. Pure
// read; nothing is mutated.
func (e *Engine) RefreshLiveValuation(ctx context.Context, symbols []string) (map[string]market.LiveQuote, error) {
	return e.oracle.LiveQuotes(ctx, symbols)
}

// HeldSymbols returns every symbol with a positive net quantity across all
// users, for the background valuation refresher.
func (e *Engine) HeldSymbols(ctx context.Context) ([]string, error) {
	type row struct {
		Symbol   string
		Quantity int64
	}

	var rows []row
	err := e.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("symbol, sum(quantity) as quantity").
		Group("symbol").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list held symbols: %w", err)
	}

	symbols := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Quantity > 0 {
			symbols = append(symbols, r.Symbol)
		}
	}
	return symbols, nil
}

func (e *Engine) listTrades(ctx context.Context, userID uint) ([]models.Trade, error) {
	var trades []models.Trade
	err := e.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for user %d: %w", userID, err)
	}
	return trades, nil
}

func loadUser(tx *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return &user, nil
}

func setFunds(tx *gorm.DB, user *models.User, funds decimal.Decimal) error {
	user.Funds = funds
	if err := tx.Model(user).Update("funds", funds).Error; err != nil {
		return fmt.Errorf("failed to update funds for user %d: %w", user.ID, err)
	}
	return nil
}
