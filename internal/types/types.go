// internal/types/types.go
package types

import (
	"github.com/shopspring/decimal"
)

// TradeAction is the direction of a swap.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// TradeStatus is the on-chain execution outcome of a transaction.
type TradeStatus string

const (
	StatusSuccess TradeStatus = "success"
	StatusFailed  TradeStatus = "failed"
)

// PositionStatus describes the position lifecycle. Opened -> Closed is
// terminal: a new trade for the same (wallet, mint) pair after closing
// starts a fresh position.
type PositionStatus string

const (
	PositionOpened PositionStatus = "opened"
	PositionClosed PositionStatus = "closed"
)

var oneHundred = decimal.NewFromInt(100)

// PredictPositionStatus decides whether a position counts as closed after a
// trade. A position closes when nothing was ever bought (amountTotal == 0) or
// when the remainder falls below closePercent percent of the total acquired
// amount, so dust left over from rounding is treated as a close.
func PredictPositionStatus(amountLeft, amountTotal, closePercent decimal.Decimal) PositionStatus {
	if amountTotal.IsZero() {
		return PositionClosed
	}

	lhs := decimal.Max(amountLeft, decimal.Zero).Mul(oneHundred)
	rhs := amountTotal.Mul(closePercent)

	if lhs.LessThan(rhs) {
		return PositionClosed
	}

	return PositionOpened
}
