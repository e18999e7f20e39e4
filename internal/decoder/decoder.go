// internal/decoder/decoder.go
package decoder

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solmirror/copybot/internal/amounts"
	"github.com/solmirror/copybot/internal/cache"
	"github.com/solmirror/copybot/internal/stream"
	"github.com/solmirror/copybot/internal/types"
)

// Decoder turns raw stream transactions into normalized trades. A nil result
// without error means the transaction is not a trade we follow.
type Decoder struct {
	venues      map[solana.PublicKey]ProgramDecoder
	feeCache    *cache.PriorityFeeCache
	ownWallet   solana.PublicKey
	tipLamports uint64
	logger      *zap.Logger
}

func New(
	venues map[solana.PublicKey]ProgramDecoder,
	feeCache *cache.PriorityFeeCache,
	ownWallet solana.PublicKey,
	tipLamports uint64,
	logger *zap.Logger,
) *Decoder {
	return &Decoder{
		venues:      venues,
		feeCache:    feeCache,
		ownWallet:   ownWallet,
		tipLamports: tipLamports,
		logger:      logger.Named("decoder"),
	}
}

// Decode runs the full pipeline: account resolution, program detection,
// instruction filtering, parsing and fee accounting.
func (d *Decoder) Decode(tx *stream.TransactionUpdate) (*ParsedTransaction, error) {
	start := time.Now()

	if tx == nil || tx.Message == nil || tx.Meta == nil {
		return nil, nil
	}

	accountKeys, err := resolveAccountKeys(tx)
	if err != nil {
		return nil, err
	}

	programID, venue := d.filterPrograms(accountKeys)
	if venue == nil {
		return nil, nil
	}

	instruction := venue.FilterInstructions(tx, accountKeys)
	if instruction == nil {
		return nil, nil
	}

	status := types.StatusSuccess
	if tx.Meta.Err != nil {
		status = types.StatusFailed
	}

	parsed, err := venue.ParseInstruction(
		status,
		instruction,
		accountKeys,
		tx.Meta.PreTokenBalances,
		tx.Meta.PostTokenBalances,
	)
	if err != nil {
		return nil, fmt.Errorf("parse instruction for program %s: %w", programID, err)
	}

	// Self-submitted transactions also paid the landing tip, which the
	// execution metadata does not report.
	totalFee := tx.Meta.Fee
	if parsed.Wallet.Equals(d.ownWallet) {
		totalFee += d.tipLamports
	}

	result := &ParsedTransaction{
		Status:      status,
		Signature:   tx.Signature,
		Instruction: *parsed,
		TxFee:       amounts.ToDecimal(totalFee, amounts.WSOLDecimals),
		Slot:        tx.Slot,
		PriorityFee: d.feeCache.Get(),
	}

	d.logger.Debug("transaction decoded",
		zap.Duration("elapsed", time.Since(start)),
		zap.Uint64("slot", tx.Slot))

	return result, nil
}

// resolveAccountKeys concatenates the static keys with addresses loaded for
// versioned transactions, writable before read-only.
func resolveAccountKeys(tx *stream.TransactionUpdate) ([]solana.PublicKey, error) {
	raw := make([][]byte, 0,
		len(tx.Message.AccountKeys)+
			len(tx.Meta.LoadedWritableAddresses)+
			len(tx.Meta.LoadedReadonlyAddresses))

	raw = append(raw, tx.Message.AccountKeys...)
	raw = append(raw, tx.Meta.LoadedWritableAddresses...)
	raw = append(raw, tx.Meta.LoadedReadonlyAddresses...)

	keys := make([]solana.PublicKey, 0, len(raw))
	for _, key := range raw {
		if len(key) != solana.PublicKeyLength {
			return nil, fmt.Errorf("account key has %d bytes, want %d", len(key), solana.PublicKeyLength)
		}
		keys = append(keys, solana.PublicKeyFromBytes(key))
	}

	return keys, nil
}

// filterPrograms scans the account list for supported program ids. More than
// one occurrence makes the transaction ambiguous and it is dropped whole:
// precision over recall.
func (d *Decoder) filterPrograms(accountKeys []solana.PublicKey) (solana.PublicKey, ProgramDecoder) {
	var (
		programID solana.PublicKey
		venue     ProgramDecoder
		count     int
	)

	for _, account := range accountKeys {
		matched, ok := d.venues[account]
		if !ok {
			continue
		}

		count++
		if count > 1 {
			return solana.PublicKey{}, nil
		}

		programID = account
		venue = matched
	}

	return programID, venue
}

// tokenDecimals looks up the mint's precision from the balance snapshots,
// pre before post.
func tokenDecimals(mint string, preBalances, postBalances []stream.TokenBalance) (uint32, error) {
	for _, balance := range preBalances {
		if balance.Mint == mint {
			return balance.Decimals, nil
		}
	}
	for _, balance := range postBalances {
		if balance.Mint == mint {
			return balance.Decimals, nil
		}
	}

	return 0, fmt.Errorf("token decimals not found for mint %s", mint)
}
