// internal/cache/cells.go
package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
)

// BlockHashCache is a single-writer broadcast cell: the block-metadata stream
// publishes the latest finalized blockhash, any number of builders read it
// without blocking the writer or each other.
type BlockHashCache struct {
	value atomic.Pointer[solana.Hash]
}

func NewBlockHashCache() *BlockHashCache {
	c := &BlockHashCache{}
	c.value.Store(&solana.Hash{})
	return c
}

// SetFromBase58 parses and publishes a blockhash delivered by the stream.
func (c *BlockHashCache) SetFromBase58(blockhash string) error {
	hash, err := solana.HashFromBase58(blockhash)
	if err != nil {
		return fmt.Errorf("invalid blockhash %q: %w", blockhash, err)
	}

	c.value.Store(&hash)
	return nil
}

// Get returns the last published blockhash; the zero hash before the first set.
func (c *BlockHashCache) Get() solana.Hash {
	return *c.value.Load()
}

// PriorityFeeCache holds the latest priority-fee estimate in micro-lamports,
// refreshed by a background poller.
type PriorityFeeCache struct {
	value atomic.Uint64
}

func NewPriorityFeeCache() *PriorityFeeCache {
	return &PriorityFeeCache{}
}

func (c *PriorityFeeCache) Set(microLamports uint64) {
	c.value.Store(microLamports)
}

func (c *PriorityFeeCache) Get() uint64 {
	return c.value.Load()
}
