// internal/cache/transaction.go
package cache

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/solmirror/copybot/internal/types"
)

// TxValue is a denormalized snapshot of a decoded transaction, cached by
// signature for later correlation. Values are immutable once stored.
type TxValue struct {
	Time        time.Time
	Program     solana.PublicKey
	Wallet      solana.PublicKey
	Mint        solana.PublicKey
	SolAmount   decimal.Decimal
	TokenAmount decimal.Decimal
	Price       decimal.Decimal
	TradeFee    decimal.Decimal
	TxFee       decimal.Decimal
	Status      types.TradeStatus
	Action      types.TradeAction
	Signature   []byte
	Slot        uint64
}

const txShardCount = 16

type txShard struct {
	mu    sync.Mutex
	store map[string]*TxValue
}

// TransactionCache maps raw signatures to cached snapshots. The map is
// sharded by signature so concurrent streams never contend on one lock.
type TransactionCache struct {
	shards [txShardCount]*txShard
}

func NewTransactionCache() *TransactionCache {
	c := &TransactionCache{}
	for i := range c.shards {
		c.shards[i] = &txShard{store: make(map[string]*TxValue)}
	}
	return c
}

func (c *TransactionCache) shard(key []byte) *txShard {
	h := fnv.New32a()
	h.Write(key)
	return c.shards[h.Sum32()%txShardCount]
}

// Set inserts or overwrites the snapshot for a signature.
func (c *TransactionCache) Set(signature []byte, value *TxValue) {
	shard := c.shard(signature)

	shard.mu.Lock()
	shard.store[string(signature)] = value
	shard.mu.Unlock()
}

// Get returns the snapshot for a signature. With consume=true the entry is
// removed as it is returned; the reconciliation path takes each signature
// exactly once, confirmation and logging read without consuming.
func (c *TransactionCache) Get(signature []byte, consume bool) (*TxValue, error) {
	shard := c.shard(signature)

	shard.mu.Lock()
	value, ok := shard.store[string(signature)]
	if ok && consume {
		delete(shard.store, string(signature))
	}
	shard.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("transaction not cached: signature=%s", base58.Encode(signature))
	}

	return value, nil
}
