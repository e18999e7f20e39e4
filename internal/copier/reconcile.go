// internal/copier/reconcile.go
package copier

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solmirror/copybot/internal/cache"
	"github.com/solmirror/copybot/internal/storage/models"
	"github.com/solmirror/copybot/internal/types"
)

// reconcile consumes both cached transactions exactly once and creates or
// updates the target- and copy-side position rows, writing the results
// through to the position cache.
func (c *Copier) reconcile(ctx context.Context, trackedWallet solana.PublicKey, targetSignature, copySignature []byte) error {
	targetData, err := c.transactions.Get(targetSignature, true)
	if err != nil {
		return err
	}

	copyData, err := c.transactions.Get(copySignature, true)
	if err != nil {
		return err
	}

	targetOpened, err := c.store.GetOpenedPosition(ctx, targetData.Mint.String(), targetData.Wallet.String())
	if err != nil {
		return fmt.Errorf("load target position: %w", err)
	}

	copyOpened, err := c.store.GetOpenedPosition(ctx, copyData.Mint.String(), copyData.Wallet.String())
	if err != nil {
		return fmt.Errorf("load copy position: %w", err)
	}

	// A failed copy of a trade we never tracked leaves nothing to record.
	if targetOpened == nil && copyData.Status == types.StatusFailed {
		return nil
	}

	if copyOpened == nil && copyData.Action == types.ActionSell {
		c.logger.Info("skip copy trade, no opened copy position",
			zap.String("signature", base58.Encode(copyData.Signature)),
			zap.Stringer("mint", copyData.Mint),
			zap.Stringer("wallet", copyData.Wallet))
		return nil
	}

	var (
		targetPosition *models.Position
		targetTrade    *models.Trade
	)

	if targetOpened == nil {
		targetPosition, targetTrade, err = c.createPositionAndTrade(ctx, trackedWallet, false, targetData, nil, nil)
	} else {
		targetPosition, targetTrade, err = c.updatePositionAndTrade(ctx, trackedWallet, false, targetData, targetOpened, nil)
	}
	if err != nil {
		return fmt.Errorf("reconcile target side: %w", err)
	}

	if copyOpened == nil {
		if copyData.Status == types.StatusSuccess {
			_, _, err = c.createPositionAndTrade(ctx, trackedWallet, true, copyData, &targetPosition.ID, &targetTrade.ID)
		}
	} else {
		_, _, err = c.updatePositionAndTrade(ctx, trackedWallet, true, copyData, copyOpened, &targetTrade.ID)
	}
	if err != nil {
		return fmt.Errorf("reconcile copy side: %w", err)
	}

	return nil
}

func (c *Copier) createPositionAndTrade(
	ctx context.Context,
	trackedWallet solana.PublicKey,
	isCopy bool,
	data *cache.TxValue,
	targetPositionID, targetTradeID *uint,
) (*models.Position, *models.Trade, error) {
	position := &models.Position{
		TargetPositionID: targetPositionID,
		Wallet:           data.Wallet.String(),
		Mint:             data.Mint.String(),
		AmountTotal:      data.TokenAmount,
		AmountLeft:       data.TokenAmount,
		AvgBuyPrice:      data.Price,
		TotalFee:         data.TxFee.Add(data.TradeFee),
		Amm:              data.Program.String(),
		Status:           types.PositionOpened,
	}

	trade := newTradeRow(data, targetTradeID)

	if err := c.store.CreatePositionWithTrade(ctx, position, trade); err != nil {
		return nil, nil, err
	}

	c.positions.Set(data.Mint, trackedWallet, position, isCopy)

	return position, trade, nil
}

func (c *Copier) updatePositionAndTrade(
	ctx context.Context,
	trackedWallet solana.PublicKey,
	isCopy bool,
	data *cache.TxValue,
	position *models.Position,
	targetTradeID *uint,
) (*models.Position, *models.Trade, error) {
	amountTotal := position.AmountTotal
	amountLeft := position.AmountLeft

	switch data.Action {
	case types.ActionBuy:
		amountTotal = amountTotal.Add(data.TokenAmount)
		amountLeft = amountLeft.Add(data.TokenAmount)
	case types.ActionSell:
		amountLeft = decimal.Max(decimal.Zero, amountLeft.Sub(data.TokenAmount))
	}

	status := types.PredictPositionStatus(amountLeft, amountTotal, c.closePercent)

	previous, err := c.store.ListTradesByPosition(ctx, position.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list trades: %w", err)
	}

	trade := newTradeRow(data, targetTradeID)
	trades := append(previous, trade)

	avgBuy, avgSell := averagePrices(trades)

	position.AmountTotal = amountTotal
	position.AmountLeft = amountLeft
	position.Status = status
	position.TotalFee = position.TotalFee.Add(data.TxFee).Add(data.TradeFee)
	if avgBuy.Valid {
		position.AvgBuyPrice = avgBuy.Decimal
	}
	position.AvgSellPrice = avgSell

	if status == types.PositionClosed {
		position.RealizedPnl = decimal.NewNullDecimal(realizedPnl(trades))
		closedAt := time.Now().UTC()
		position.ClosedAt = &closedAt
	}

	if err := c.store.UpdatePositionWithTrade(ctx, position, trade); err != nil {
		return nil, nil, err
	}

	c.positions.Update(data.Mint, trackedWallet, position, isCopy)

	return position, trade, nil
}

func newTradeRow(data *cache.TxValue, targetTradeID *uint) *models.Trade {
	return &models.Trade{
		TargetTradeID: targetTradeID,
		Wallet:        data.Wallet.String(),
		Signature:     base58.Encode(data.Signature),
		Action:        data.Action,
		Status:        data.Status,
		Mint:          data.Mint.String(),
		Amount:        data.TokenAmount,
		Price:         data.Price,
		TradeFee:      data.TradeFee,
		TxFee:         data.TxFee,
		Amm:           data.Program.String(),
		Slot:          data.Slot,
	}
}

// averagePrices computes volume-weighted buy and sell averages over the
// position's whole trade history.
func averagePrices(trades []*models.Trade) (decimal.NullDecimal, decimal.NullDecimal) {
	var sumBuy, sumBuyAmount, sumSell, sumSellAmount decimal.Decimal

	for _, trade := range trades {
		switch trade.Action {
		case types.ActionBuy:
			sumBuy = sumBuy.Add(trade.Price.Mul(trade.Amount))
			sumBuyAmount = sumBuyAmount.Add(trade.Amount)
		case types.ActionSell:
			sumSell = sumSell.Add(trade.Price.Mul(trade.Amount))
			sumSellAmount = sumSellAmount.Add(trade.Amount)
		}
	}

	var avgBuy, avgSell decimal.NullDecimal
	if sumBuyAmount.IsPositive() {
		avgBuy = decimal.NewNullDecimal(sumBuy.Div(sumBuyAmount))
	}
	if sumSellAmount.IsPositive() {
		avgSell = decimal.NewNullDecimal(sumSell.Div(sumSellAmount))
	}

	return avgBuy, avgSell
}

// realizedPnl is sell proceeds minus buy cost minus every fee paid, over the
// position's whole trade history.
func realizedPnl(trades []*models.Trade) decimal.Decimal {
	var buySum, sellSum, totalFee decimal.Decimal

	for _, trade := range trades {
		volume := trade.Price.Mul(trade.Amount)

		switch trade.Action {
		case types.ActionBuy:
			buySum = buySum.Add(volume)
		case types.ActionSell:
			sellSum = sellSum.Add(volume)
		}

		totalFee = totalFee.Add(trade.TradeFee).Add(trade.TxFee)
	}

	return sellSum.Sub(buySum).Sub(totalFee)
}
