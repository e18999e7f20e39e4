// internal/builder/builder.go
package builder

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solmirror/copybot/internal/cache"
	"github.com/solmirror/copybot/internal/decoder"
	"github.com/solmirror/copybot/internal/wallet"
)

// SwapBuilder is one venue's instruction builder, paired with the venue's
// decoder under the same program id.
type SwapBuilder interface {
	BuildSwap(parsed *decoder.ParsedInstruction) ([]solana.Instruction, error)
}

// TransactionBuilder assembles a signed copy transaction from a decoded
// target trade: compute budget, swap instruction(s), tip.
type TransactionBuilder struct {
	venues    map[solana.PublicKey]SwapBuilder
	blockhash *cache.BlockHashCache
	wallet    *wallet.Wallet
	logger    *zap.Logger
}

func New(
	venues map[solana.PublicKey]SwapBuilder,
	blockhash *cache.BlockHashCache,
	w *wallet.Wallet,
	logger *zap.Logger,
) *TransactionBuilder {
	return &TransactionBuilder{
		venues:    venues,
		blockhash: blockhash,
		wallet:    w,
		logger:    logger.Named("builder"),
	}
}

// Build produces a ready-to-submit signed transaction. Any failure aborts
// the build whole; there is no partial submission.
func (b *TransactionBuilder) Build(target *decoder.ParsedTransaction) (*solana.Transaction, error) {
	start := time.Now()

	venue, ok := b.venues[target.Instruction.ProgramID]
	if !ok {
		return nil, fmt.Errorf("unsupported program: %s", target.Instruction.ProgramID)
	}

	swapInstructions, err := venue.BuildSwap(&target.Instruction)
	if err != nil {
		return nil, fmt.Errorf("build swap instructions: %w", err)
	}

	limit, err := buildComputeUnitLimit(ComputeUnitLimit)
	if err != nil {
		return nil, fmt.Errorf("build compute unit limit: %w", err)
	}

	price, err := buildComputeUnitPrice(target.PriorityFee)
	if err != nil {
		return nil, fmt.Errorf("build compute unit price: %w", err)
	}

	tip, err := buildTip(b.wallet.PublicKey)
	if err != nil {
		return nil, err
	}

	instructions := make([]solana.Instruction, 0, len(swapInstructions)+3)
	instructions = append(instructions, limit, price)
	instructions = append(instructions, swapInstructions...)
	instructions = append(instructions, tip)

	tx, err := solana.NewTransaction(
		instructions,
		b.blockhash.Get(),
		solana.TransactionPayer(b.wallet.PublicKey),
	)
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}

	if err := b.wallet.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	b.logger.Debug("transaction built",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("instructions", len(instructions)))

	return tx, nil
}
