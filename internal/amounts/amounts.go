// internal/amounts/amounts.go
package amounts

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/solmirror/copybot/internal/storage/models"
)

// WSOLDecimals is the native currency precision.
const WSOLDecimals = 9

var (
	ErrAmountOverflow = errors.New("amount does not fit into u64 lamports")
	ErrZeroTokens     = errors.New("token amount must be greater than zero")
)

// ToLamports converts a decimal token amount into integer base units,
// truncating anything below the mint's precision.
func ToLamports(amount decimal.Decimal, decimals uint32) (uint64, error) {
	scaled := amount.Shift(int32(decimals)).Floor()

	big := scaled.BigInt()
	if !big.IsUint64() {
		return 0, fmt.Errorf("%w: %s at %d decimals", ErrAmountOverflow, amount, decimals)
	}

	return big.Uint64(), nil
}

// ToDecimal converts integer base units back to a decimal token amount.
// Zero units map to exactly zero regardless of precision.
func ToDecimal(lamports uint64, decimals uint32) decimal.Decimal {
	if lamports == 0 {
		return decimal.Zero
	}

	return decimal.NewFromUint64(lamports).Shift(-int32(decimals))
}

// Price is the spot price in SOL per token.
func Price(tokenAmount, solAmount decimal.Decimal) (decimal.Decimal, error) {
	if tokenAmount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrZeroTokens
	}

	return solAmount.Div(tokenAmount), nil
}

// PositionSource exposes cached positions keyed by mint and tracked wallet.
type PositionSource interface {
	Get(mint, trackedWallet solana.PublicKey, isCopy bool) (*models.Position, bool)
}

// Calculator sizes orders: buys at a fixed SOL budget, sells proportionally
// to the tracked wallet's exit.
type Calculator struct {
	positions          PositionSource
	orderSol           decimal.Decimal
	slippageMultiplier decimal.Decimal
}

func NewCalculator(positions PositionSource, orderSol, slippagePercent decimal.Decimal) *Calculator {
	return &Calculator{
		positions:          positions,
		orderSol:           orderSol,
		slippageMultiplier: decimal.NewFromInt(1).Add(slippagePercent.Div(oneHundred)),
	}
}

var oneHundred = decimal.NewFromInt(100)

// TokenFromSol sizes a buy: the fixed SOL order converted to tokens at the
// observed price, plus the maximum SOL spend allowed by slippage.
func (c *Calculator) TokenFromSol(price decimal.Decimal, tokenDecimals uint32) (uint64, uint64, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return 0, 0, fmt.Errorf("buy sizing: price must be positive, got %s", price)
	}

	baseAmount, err := ToLamports(c.orderSol.Div(price), tokenDecimals)
	if err != nil {
		return 0, 0, fmt.Errorf("buy sizing: %w", err)
	}

	quoteAmount, err := ToLamports(c.orderSol.Mul(c.slippageMultiplier), WSOLDecimals)
	if err != nil {
		return 0, 0, fmt.Errorf("buy sizing: %w", err)
	}

	return baseAmount, quoteAmount, nil
}

// SolFromToken sizes a sell mirroring the tracked wallet's exit. The sold
// share of the target position is applied to the copy position, capped at
// 100% so the mirrored sell can never exceed what the bot actually holds.
func (c *Calculator) SolFromToken(
	mint, targetWallet solana.PublicKey,
	amount decimal.Decimal,
	tokenDecimals uint32,
) (uint64, uint64, error) {
	targetPosition, ok := c.positions.Get(mint, targetWallet, false)
	if !ok {
		return 0, 0, fmt.Errorf("sell sizing: target position not found: mint=%s wallet=%s", mint, targetWallet)
	}

	copyPosition, ok := c.positions.Get(mint, targetWallet, true)
	if !ok {
		return 0, 0, fmt.Errorf("sell sizing: copy position not found: mint=%s wallet=%s", mint, targetWallet)
	}

	if targetPosition.AmountLeft.LessThanOrEqual(decimal.Zero) {
		return 0, 0, fmt.Errorf("sell sizing: target position empty: mint=%s wallet=%s", mint, targetWallet)
	}

	percent := decimal.Min(decimal.NewFromInt(1), amount.Div(targetPosition.AmountLeft))

	baseAmount, err := ToLamports(copyPosition.AmountLeft.Mul(percent), tokenDecimals)
	if err != nil {
		return 0, 0, fmt.Errorf("sell sizing: %w", err)
	}

	return baseAmount, 0, nil
}
