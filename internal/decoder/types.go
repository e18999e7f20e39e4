// internal/decoder/types.go
package decoder

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/solmirror/copybot/internal/cache"
	"github.com/solmirror/copybot/internal/stream"
	"github.com/solmirror/copybot/internal/types"
)

// FilteredInstruction is the single venue instruction that survived
// filtering: its account-index list and the raw trade-event payload captured
// from the inner instructions.
type FilteredInstruction struct {
	Accounts []byte
	Event    []byte
}

// ParsedInstruction is the normalized trade intent extracted from one
// transaction. Immutable once produced.
type ParsedInstruction struct {
	ProgramID     solana.PublicKey
	Wallet        solana.PublicKey
	Mint          solana.PublicKey
	Action        types.TradeAction
	TokenAmount   decimal.Decimal
	TokenDecimals uint32
	SolAmount     decimal.Decimal
	Price         decimal.Decimal
	TradeFee      decimal.Decimal
	Accounts      []solana.PublicKey
}

// ParsedTransaction wraps a parsed instruction with transaction-level data.
type ParsedTransaction struct {
	Status      types.TradeStatus
	Signature   []byte
	Instruction ParsedInstruction
	TxFee       decimal.Decimal
	Slot        uint64
	PriorityFee uint64
}

// CacheValue builds the denormalized snapshot stored in the transaction
// cache for later correlation.
func (p *ParsedTransaction) CacheValue() *cache.TxValue {
	return &cache.TxValue{
		Time:        time.Now(),
		Program:     p.Instruction.ProgramID,
		Wallet:      p.Instruction.Wallet,
		Mint:        p.Instruction.Mint,
		SolAmount:   p.Instruction.SolAmount,
		TokenAmount: p.Instruction.TokenAmount,
		Price:       p.Instruction.Price,
		TradeFee:    p.Instruction.TradeFee,
		TxFee:       p.TxFee,
		Status:      p.Status,
		Action:      p.Instruction.Action,
		Signature:   p.Signature,
		Slot:        p.Slot,
	}
}

// ProgramDecoder is one venue's instruction filter and parser. Adding a venue
// means adding an implementation and registering it under its program id.
type ProgramDecoder interface {
	// FilterInstructions scans top-level and inner instructions for the
	// venue's trade instruction; nil when the transaction carries none,
	// more than one, or fails the wallet filter.
	FilterInstructions(tx *stream.TransactionUpdate, accountKeys []solana.PublicKey) *FilteredInstruction

	// ParseInstruction turns the filtered instruction into a normalized
	// trade record. Failed transactions parse with zero amounts.
	ParseInstruction(
		status types.TradeStatus,
		instruction *FilteredInstruction,
		accountKeys []solana.PublicKey,
		preBalances, postBalances []stream.TokenBalance,
	) (*ParsedInstruction, error)
}
