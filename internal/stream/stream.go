// internal/stream/stream.go
package stream

import (
	"context"
)

// CommitmentLevel mirrors the commitment the upstream feed was asked for.
type CommitmentLevel int32

const (
	CommitmentProcessed CommitmentLevel = iota
	CommitmentConfirmed
	CommitmentFinalized
)

// TransactionFilter selects which confirmed transactions a subscription
// receives. Nil boolean fields mean "no constraint".
type TransactionFilter struct {
	Vote            *bool
	Failed          *bool
	AccountInclude  []string
	AccountRequired []string
}

// Request describes one subscription: named transaction filters and/or the
// block-metadata feed, at a single commitment level.
type Request struct {
	Transactions map[string]TransactionFilter
	BlocksMeta   bool
	Commitment   CommitmentLevel
}

// Subscriber is the external streaming transport. The returned channel is
// closed when the stream terminates for any reason; consumers resubscribe.
type Subscriber interface {
	Subscribe(ctx context.Context, req Request) (<-chan Update, error)
}

// Update carries exactly one event kind.
type Update struct {
	Transaction *TransactionUpdate
	BlockMeta   *BlockMetaUpdate
}

// BlockMetaUpdate announces a finalized block and its hash.
type BlockMetaUpdate struct {
	Slot      uint64
	Blockhash string
}

// TransactionUpdate is one confirmed transaction as delivered by the feed.
// Account keys and loaded addresses are raw 32-byte values; the decoder owns
// their validation.
type TransactionUpdate struct {
	Slot      uint64
	Signature []byte
	Message   *Message
	Meta      *Meta
}

// Message is the compiled transaction message.
type Message struct {
	AccountKeys  [][]byte
	Instructions []CompiledInstruction
}

// CompiledInstruction references accounts by index into the resolved
// account-key list.
type CompiledInstruction struct {
	ProgramIDIndex uint32
	Accounts       []byte
	Data           []byte
}

// InnerInstructions groups the CPI instructions invoked by one top-level
// instruction.
type InnerInstructions struct {
	Index        uint32
	Instructions []CompiledInstruction
}

// TokenBalance is a pre/post token balance snapshot entry.
type TokenBalance struct {
	AccountIndex uint32
	Mint         string
	Owner        string
	Decimals     uint32
}

// Meta is the execution metadata attached to a transaction. A nil Err means
// the transaction succeeded. Loaded addresses extend the static account keys
// for versioned transactions, writable first.
type Meta struct {
	Err                     []byte
	Fee                     uint64
	PreTokenBalances        []TokenBalance
	PostTokenBalances       []TokenBalance
	InnerInstructions       []InnerInstructions
	LoadedWritableAddresses [][]byte
	LoadedReadonlyAddresses [][]byte
}
