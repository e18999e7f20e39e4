// internal/copier/copier.go
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
	"github.com/solmirror/copybot/internal/decoder"
	"github.com/solmirror/copybot/internal/storage"
	"github.com/solmirror/copybot/internal/types"
)

const (
	confirmationTimeout = 60 * time.Second
	confirmationPoll    = 50 * time.Millisecond
)

// TransactionBuilder assembles the signed copy transaction for a decoded
// target trade.
type TransactionBuilder interface {
	Build(target *decoder.ParsedTransaction) (*solana.Transaction, error)
}

// TransactionSender submits a signed transaction and returns its base58
// signature.
type TransactionSender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error)
}

// Simulator dry-runs a transaction instead of sending it.
type Simulator interface {
	Simulate(ctx context.Context, tx *solana.Transaction) error
}

// Copier mirrors decoded target trades: build, send (or simulate), confirm
// against the transaction cache, persist both sides.
type Copier struct {
	builder      TransactionBuilder
	sender       TransactionSender
	simulator    Simulator
	store        storage.Store
	transactions *cache.TransactionCache
	positions    *cache.PositionCache
	closePercent decimal.Decimal
	simulate     bool
	filterActive bool
	logger       *zap.Logger
}

type Config struct {
	Builder      TransactionBuilder
	Sender       TransactionSender
	Simulator    Simulator
	Store        storage.Store
	Transactions *cache.TransactionCache
	Positions    *cache.PositionCache
	ClosePercent decimal.Decimal
	Simulate     bool

	// FilterActive is true when at least one wallet beyond our own is
	// tracked. Mirroring every trade on chain is never intended.
	FilterActive bool
}

func New(cfg Config, logger *zap.Logger) *Copier {
	return &Copier{
		builder:      cfg.Builder,
		sender:       cfg.Sender,
		simulator:    cfg.Simulator,
		store:        cfg.Store,
		transactions: cfg.Transactions,
		positions:    cfg.Positions,
		closePercent: cfg.ClosePercent,
		simulate:     cfg.Simulate,
		filterActive: cfg.FilterActive,
		logger:       logger.Named("copier"),
	}
}

// Execute runs one copy attempt for a decoded target trade. Errors abort
// only this attempt; the stream keeps delivering.
func (c *Copier) Execute(ctx context.Context, target *decoder.ParsedTransaction) error {
	if !c.filterActive && !c.simulate {
		c.logger.Fatal("no wallets tracked outside simulate mode, refusing to mirror everything")
	}

	mint := target.Instruction.Mint
	trackedWallet := target.Instruction.Wallet

	if target.Instruction.Action == types.ActionSell {
		if _, ok := c.positions.Get(mint, trackedWallet, false); !ok {
			c.logger.Warn("target sell without cached target position, skipping",
				zap.Stringer("mint", mint), zap.Stringer("wallet", trackedWallet))
			return nil
		}
		if _, ok := c.positions.Get(mint, trackedWallet, true); !ok {
			c.logger.Warn("target sell without cached copy position, skipping",
				zap.Stringer("mint", mint), zap.Stringer("wallet", trackedWallet))
			return nil
		}
	}

	tx, err := c.builder.Build(target)
	if err != nil {
		return fmt.Errorf("build copy transaction: %w", err)
	}

	if c.simulate {
		return c.simulator.Simulate(ctx, tx)
	}

	signature, err := c.sender.SendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("send copy transaction: %w", err)
	}

	copySignature, err := base58.Decode(signature)
	if err != nil {
		return fmt.Errorf("decode returned signature %q: %w", signature, err)
	}

	if err := c.awaitConfirmation(ctx, target.Signature, copySignature); err != nil {
		return fmt.Errorf("check confirmation: %w", err)
	}

	return c.reconcile(ctx, trackedWallet, target.Signature, copySignature)
}

// awaitConfirmation polls the transaction cache for the copy signature until
// it shows up or the budget runs out, then logs the trade pair. The timeout
// itself is not an error; a signature missing from the cache after it is.
func (c *Copier) awaitConfirmation(ctx context.Context, targetSignature, copySignature []byte) error {
	deadline := time.Now().Add(confirmationTimeout)

	for time.Now().Before(deadline) {
		if _, err := c.transactions.Get(copySignature, false); err == nil {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(confirmationPoll):
		}
	}

	target, err := c.transactions.Get(targetSignature, false)
	if err != nil {
		return err
	}

	copied, err := c.transactions.Get(copySignature, false)
	if err != nil {
		return err
	}

	c.logTradePair(target, copied)

	return nil
}

// logTradePair emits the paired diagnostics for one mirrored trade. The
// target-fee field stays a placeholder until the fee model is settled.
func (c *Copier) logTradePair(target, copied *cache.TxValue) {
	diffPrice := decimal.Zero
	if target.Price.IsPositive() {
		diffPrice = target.Price.Sub(copied.Price).Div(target.Price).Mul(decimal.NewFromInt(100))
	}

	var diffSlot uint64
	if copied.Slot > target.Slot {
		diffSlot = copied.Slot - target.Slot
	}

	fields := []zap.Field{
		zap.Stringer("program", target.Program),
		zap.String("action", string(target.Action)),
		zap.Stringer("mint", target.Mint),
		zap.Stringer("target_user", target.Wallet),
		zap.Stringer("copy_user", copied.Wallet),
		zap.String("target_sig", base58.Encode(target.Signature)),
		zap.String("copy_sig", base58.Encode(copied.Signature)),
		zap.String("target_status", string(target.Status)),
		zap.String("copy_status", string(copied.Status)),
		zap.String("target_token", target.TokenAmount.String()),
		zap.String("copy_token", copied.TokenAmount.String()),
		zap.String("target_sol", target.SolAmount.String()),
		zap.String("copy_sol", copied.SolAmount.String()),
		zap.String("target_fee", "not calculated"),
		zap.String("copy_fee", copied.TxFee.Add(copied.TradeFee).String()),
		zap.Duration("diff_time", copied.Time.Sub(target.Time)),
		zap.String("diff_price_pct", diffPrice.StringFixed(4)),
		zap.Uint64("diff_slot", diffSlot),
	}

	if copied.Status == types.StatusSuccess {
		c.logger.Info("trade pair", fields...)
	} else {
		c.logger.Error("trade pair", fields...)
	}
}
