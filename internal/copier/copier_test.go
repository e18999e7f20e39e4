// internal/copier/copier_test.go
package copier

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solmirror/copybot/internal/cache"
	"github.com/solmirror/copybot/internal/decoder"
	"github.com/solmirror/copybot/internal/storage/models"
	"github.com/solmirror/copybot/internal/types"
)

var (
	testProgram      = decoder.PumpFunProgramID
	testMint         = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testTargetWallet = solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	testOwnWallet    = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")

	targetSignature = []byte{1, 1, 1}
	copySignature   = []byte{9, 9, 9}
)

type fakeStore struct {
	positions []*models.Position
	trades    []*models.Trade
	nextID    uint
}

func (s *fakeStore) CreatePositionWithTrade(_ context.Context, position *models.Position, trade *models.Trade) error {
	s.nextID++
	position.ID = s.nextID
	s.positions = append(s.positions, position)

	s.nextID++
	trade.ID = s.nextID
	trade.PositionID = position.ID
	s.trades = append(s.trades, trade)
	return nil
}

func (s *fakeStore) UpdatePositionWithTrade(_ context.Context, position *models.Position, trade *models.Trade) error {
	s.nextID++
	trade.ID = s.nextID
	trade.PositionID = position.ID
	s.trades = append(s.trades, trade)

	for i, existing := range s.positions {
		if existing.ID == position.ID {
			s.positions[i] = position
		}
	}
	return nil
}

func (s *fakeStore) GetAllOpenedPositions(_ context.Context) ([]*models.Position, error) {
	var opened []*models.Position
	for _, position := range s.positions {
		if position.Status == types.PositionOpened {
			opened = append(opened, position)
		}
	}
	return opened, nil
}

func (s *fakeStore) GetOpenedPosition(_ context.Context, mint, w string) (*models.Position, error) {
	for i := len(s.positions) - 1; i >= 0; i-- {
		p := s.positions[i]
		if p.Mint == mint && p.Wallet == w && p.Status == types.PositionOpened {
			return p, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListTradesByPosition(_ context.Context, positionID uint) ([]*models.Trade, error) {
	var trades []*models.Trade
	for _, trade := range s.trades {
		if trade.PositionID == positionID {
			trades = append(trades, trade)
		}
	}
	return trades, nil
}

func (s *fakeStore) RunMigrations() error { return nil }

type fakeBuilder struct {
	calls int
	err   error
}

func (b *fakeBuilder) Build(*decoder.ParsedTransaction) (*solana.Transaction, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &solana.Transaction{}, nil
}

type fakeSender struct {
	calls     int
	signature string
}

func (s *fakeSender) SendTransaction(context.Context, *solana.Transaction) (string, error) {
	s.calls++
	return s.signature, nil
}

type fakeSimulator struct{ calls int }

func (s *fakeSimulator) Simulate(context.Context, *solana.Transaction) error {
	s.calls++
	return nil
}

type harness struct {
	copier       *Copier
	store        *fakeStore
	builder      *fakeBuilder
	sender       *fakeSender
	simulator    *fakeSimulator
	transactions *cache.TransactionCache
	positions    *cache.PositionCache
}

func newHarness(t *testing.T, simulate bool) *harness {
	t.Helper()

	h := &harness{
		store:        &fakeStore{},
		builder:      &fakeBuilder{},
		sender:       &fakeSender{signature: base58.Encode(copySignature)},
		simulator:    &fakeSimulator{},
		transactions: cache.NewTransactionCache(),
		positions:    cache.NewPositionCache(testOwnWallet),
	}

	h.copier = New(Config{
		Builder:      h.builder,
		Sender:       h.sender,
		Simulator:    h.simulator,
		Store:        h.store,
		Transactions: h.transactions,
		Positions:    h.positions,
		ClosePercent: decimal.NewFromInt(1),
		Simulate:     simulate,
		FilterActive: true,
	}, zap.NewNop())

	return h
}

func txValue(wallet solana.PublicKey, signature []byte, action types.TradeAction, amount, price string, slot uint64) *cache.TxValue {
	return &cache.TxValue{
		Time:        time.Now(),
		Program:     testProgram,
		Wallet:      wallet,
		Mint:        testMint,
		TokenAmount: decimal.RequireFromString(amount),
		Price:       decimal.RequireFromString(price),
		SolAmount:   decimal.RequireFromString(amount).Mul(decimal.RequireFromString(price)),
		TradeFee:    decimal.RequireFromString("0.0001"),
		TxFee:       decimal.RequireFromString("0.000005"),
		Status:      types.StatusSuccess,
		Action:      action,
		Signature:   signature,
		Slot:        slot,
	}
}

func targetTransaction(action types.TradeAction, amount, price string) *decoder.ParsedTransaction {
	return &decoder.ParsedTransaction{
		Status:    types.StatusSuccess,
		Signature: targetSignature,
		Instruction: decoder.ParsedInstruction{
			ProgramID:     testProgram,
			Wallet:        testTargetWallet,
			Mint:          testMint,
			Action:        action,
			TokenAmount:   decimal.RequireFromString(amount),
			TokenDecimals: 6,
			Price:         decimal.RequireFromString(price),
		},
		Slot: 100,
	}
}

func TestExecuteBuyCreatesBothSides(t *testing.T) {
	h := newHarness(t, false)

	h.transactions.Set(targetSignature, txValue(testTargetWallet, targetSignature, types.ActionBuy, "1000", "0.00002", 100))
	h.transactions.Set(copySignature, txValue(testOwnWallet, copySignature, types.ActionBuy, "500", "0.0000205", 102))

	err := h.copier.Execute(context.Background(), targetTransaction(types.ActionBuy, "1000", "0.00002"))
	require.NoError(t, err)

	assert.Equal(t, 1, h.builder.calls)
	assert.Equal(t, 1, h.sender.calls)
	assert.Equal(t, 0, h.simulator.calls)

	require.Len(t, h.store.positions, 2)
	require.Len(t, h.store.trades, 2)

	target := h.store.positions[0]
	assert.Nil(t, target.TargetPositionID)
	assert.Equal(t, testTargetWallet.String(), target.Wallet)
	assert.True(t, target.AmountLeft.Equal(decimal.RequireFromString("1000")))

	copyPos := h.store.positions[1]
	require.NotNil(t, copyPos.TargetPositionID)
	assert.Equal(t, target.ID, *copyPos.TargetPositionID)
	assert.Equal(t, testOwnWallet.String(), copyPos.Wallet)
	assert.True(t, copyPos.AmountLeft.Equal(decimal.RequireFromString("500")))

	copyTrade := h.store.trades[1]
	require.NotNil(t, copyTrade.TargetTradeID)
	assert.Equal(t, h.store.trades[0].ID, *copyTrade.TargetTradeID)

	// Write-through: both sides are now cached under their dual keys.
	_, ok := h.positions.Get(testMint, testTargetWallet, false)
	assert.True(t, ok)
	_, ok = h.positions.Get(testMint, testTargetWallet, true)
	assert.True(t, ok)

	// Reconciliation consumed both cache entries.
	_, err = h.transactions.Get(targetSignature, false)
	assert.Error(t, err)
	_, err = h.transactions.Get(copySignature, false)
	assert.Error(t, err)
}

func TestExecuteSellClosesPosition(t *testing.T) {
	h := newHarness(t, false)

	targetPosition := &models.Position{
		Wallet:      testTargetWallet.String(),
		Mint:        testMint.String(),
		AmountTotal: decimal.RequireFromString("1000"),
		AmountLeft:  decimal.RequireFromString("1000"),
		AvgBuyPrice: decimal.RequireFromString("0.00002"),
		Status:      types.PositionOpened,
	}
	copyPosition := &models.Position{
		Wallet:      testOwnWallet.String(),
		Mint:        testMint.String(),
		AmountTotal: decimal.RequireFromString("500"),
		AmountLeft:  decimal.RequireFromString("500"),
		AvgBuyPrice: decimal.RequireFromString("0.00002"),
		Status:      types.PositionOpened,
	}
	require.NoError(t, h.store.CreatePositionWithTrade(context.Background(), targetPosition,
		newTradeRow(txValue(testTargetWallet, []byte{2}, types.ActionBuy, "1000", "0.00002", 90), nil)))
	require.NoError(t, h.store.CreatePositionWithTrade(context.Background(), copyPosition,
		newTradeRow(txValue(testOwnWallet, []byte{3}, types.ActionBuy, "500", "0.00002", 91), nil)))

	h.positions.Set(testMint, testTargetWallet, targetPosition, false)
	h.positions.Set(testMint, testTargetWallet, copyPosition, true)

	h.transactions.Set(targetSignature, txValue(testTargetWallet, targetSignature, types.ActionSell, "1000", "0.00003", 100))
	h.transactions.Set(copySignature, txValue(testOwnWallet, copySignature, types.ActionSell, "500", "0.00003", 101))

	err := h.copier.Execute(context.Background(), targetTransaction(types.ActionSell, "1000", "0.00003"))
	require.NoError(t, err)

	assert.Equal(t, types.PositionClosed, copyPosition.Status)
	assert.True(t, copyPosition.AmountLeft.IsZero())
	require.True(t, copyPosition.RealizedPnl.Valid)
	require.NotNil(t, copyPosition.ClosedAt)
	require.True(t, copyPosition.AvgSellPrice.Valid)
	assert.True(t, copyPosition.AvgSellPrice.Decimal.Equal(decimal.RequireFromString("0.00003")))

	// Proceeds 0.015, cost 0.01, fees 2 trades x 0.000105.
	assert.True(t, copyPosition.RealizedPnl.Decimal.Equal(decimal.RequireFromString("0.00479")),
		copyPosition.RealizedPnl.Decimal.String())

	// Closed positions are evicted from the cache.
	_, ok := h.positions.Get(testMint, testTargetWallet, true)
	assert.False(t, ok)
	_, ok = h.positions.Get(testMint, testTargetWallet, false)
	assert.False(t, ok)
}

func TestExecuteSellWithoutCachedPositionsSkips(t *testing.T) {
	h := newHarness(t, false)

	err := h.copier.Execute(context.Background(), targetTransaction(types.ActionSell, "1000", "0.00003"))
	require.NoError(t, err)

	assert.Equal(t, 0, h.builder.calls)
	assert.Equal(t, 0, h.sender.calls)
	assert.Empty(t, h.store.positions)
}

func TestExecuteSimulateModeSkipsSendAndPersistence(t *testing.T) {
	h := newHarness(t, true)

	err := h.copier.Execute(context.Background(), targetTransaction(types.ActionBuy, "1000", "0.00002"))
	require.NoError(t, err)

	assert.Equal(t, 1, h.builder.calls)
	assert.Equal(t, 1, h.simulator.calls)
	assert.Equal(t, 0, h.sender.calls)
	assert.Empty(t, h.store.positions)
}

func TestReconcileFailedCopyWithoutTargetPosition(t *testing.T) {
	h := newHarness(t, false)

	failedCopy := txValue(testOwnWallet, copySignature, types.ActionBuy, "0", "0", 102)
	failedCopy.Status = types.StatusFailed

	h.transactions.Set(targetSignature, txValue(testTargetWallet, targetSignature, types.ActionBuy, "1000", "0.00002", 100))
	h.transactions.Set(copySignature, failedCopy)

	err := h.copier.reconcile(context.Background(), testTargetWallet, targetSignature, copySignature)
	require.NoError(t, err)

	assert.Empty(t, h.store.positions)
	assert.Empty(t, h.store.trades)
}

func TestAveragePricesAndPnl(t *testing.T) {
	trades := []*models.Trade{
		{Action: types.ActionBuy, Amount: decimal.RequireFromString("100"), Price: decimal.RequireFromString("2"), TradeFee: decimal.RequireFromString("1"), TxFee: decimal.Zero},
		{Action: types.ActionBuy, Amount: decimal.RequireFromString("100"), Price: decimal.RequireFromString("4"), TradeFee: decimal.Zero, TxFee: decimal.RequireFromString("1")},
		{Action: types.ActionSell, Amount: decimal.RequireFromString("200"), Price: decimal.RequireFromString("5"), TradeFee: decimal.Zero, TxFee: decimal.Zero},
	}

	avgBuy, avgSell := averagePrices(trades)
	require.True(t, avgBuy.Valid)
	require.True(t, avgSell.Valid)
	assert.True(t, avgBuy.Decimal.Equal(decimal.RequireFromString("3")))
	assert.True(t, avgSell.Decimal.Equal(decimal.RequireFromString("5")))

	// 1000 proceeds - 600 cost - 2 fees.
	assert.True(t, realizedPnl(trades).Equal(decimal.RequireFromString("398")))
}
