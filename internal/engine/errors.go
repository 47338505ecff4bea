package engine

import "errors"

// Every rejected order reports exactly one of these. They are terminal for
// that attempt and imply no state was changed, so the caller may retry with
// corrected input. Persistence failures are the exception: they come back
// wrapped from the transaction and mean durability is unconfirmed.
var (
	// ErrInvalidAmount rejects a deposit that is not a positive value.
	ErrInvalidAmount = errors.New("amount must be a positive value with at most 2 decimal places")

	// ErrInvalidQuantity rejects an order quantity that is not a positive whole number.
	ErrInvalidQuantity = errors.New("quantity must be a positive whole number")

	// ErrSymbolNotFound means the price oracle had no usable quote for the symbol.
	ErrSymbolNotFound = errors.New("no market data found for symbol")

	// ErrInsufficientFunds rejects a buy whose cost exceeds the cash balance.
	ErrInsufficientFunds = errors.New("insufficient funds for this trade")

	// ErrNotOwned rejects a sell of a symbol with no current holding.
	ErrNotOwned = errors.New("no shares of this symbol are held")

	// ErrInsufficientHoldings rejects a sell of more shares than are held.
	ErrInsufficientHoldings = errors.New("cannot sell more shares than are held")
)
