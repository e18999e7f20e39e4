// internal/cache/position.go
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solmirror/copybot/internal/storage/models"
	"github.com/solmirror/copybot/internal/types"
)

// PositionKey addresses one side of a mirrored pair. The target side is
// stored under (tracked, tracked), the copy side under (tracked, own wallet),
// so both live in the same mint bucket without colliding.
type PositionKey struct {
	TrackedWallet   solana.PublicKey
	EffectiveWallet solana.PublicKey
}

type mintPositions struct {
	mu        sync.RWMutex
	positions map[PositionKey]*models.Position
}

// PositionCache is a two-level concurrent map: mint -> dual key -> position.
// Each mint bucket has its own lock, so a slow update on one mint never
// blocks lookups for another.
type PositionCache struct {
	ownWallet solana.PublicKey

	mu    sync.RWMutex
	store map[solana.PublicKey]*mintPositions
}

func NewPositionCache(ownWallet solana.PublicKey) *PositionCache {
	return &PositionCache{
		ownWallet: ownWallet,
		store:     make(map[solana.PublicKey]*mintPositions),
	}
}

// Key builds the dual key for a tracked wallet and side.
func (c *PositionCache) Key(trackedWallet solana.PublicKey, isCopy bool) PositionKey {
	if isCopy {
		return PositionKey{TrackedWallet: trackedWallet, EffectiveWallet: c.ownWallet}
	}
	return PositionKey{TrackedWallet: trackedWallet, EffectiveWallet: trackedWallet}
}

// OpenedPositionLister loads every still-open position from persistence.
type OpenedPositionLister interface {
	GetAllOpenedPositions(ctx context.Context) ([]*models.Position, error)
}

// Warm loads all opened positions once at startup. Copy rows are keyed by
// the wallet of the target row they back-reference; rows without a
// back-reference are target positions keyed by their own wallet.
func (c *PositionCache) Warm(ctx context.Context, store OpenedPositionLister, logger *zap.Logger) error {
	rows, err := store.GetAllOpenedPositions(ctx)
	if err != nil {
		return fmt.Errorf("position cache warm-up: %w", err)
	}

	walletByID := make(map[uint]string, len(rows))
	for _, row := range rows {
		walletByID[row.ID] = row.Wallet
	}

	for _, row := range rows {
		trackedWallet := row.Wallet
		isCopy := false

		if row.TargetPositionID != nil {
			target, ok := walletByID[*row.TargetPositionID]
			if !ok {
				logger.Warn("copy position references unknown target, skipping",
					zap.Uint("position_id", row.ID),
					zap.Uint("target_position_id", *row.TargetPositionID))
				continue
			}
			trackedWallet = target
			isCopy = true
		}

		wallet, err := solana.PublicKeyFromBase58(trackedWallet)
		if err != nil {
			return fmt.Errorf("position cache warm-up: wallet %q: %w", trackedWallet, err)
		}

		mint, err := solana.PublicKeyFromBase58(row.Mint)
		if err != nil {
			return fmt.Errorf("position cache warm-up: mint %q: %w", row.Mint, err)
		}

		c.Set(mint, wallet, row, isCopy)
	}

	logger.Info("position cache warmed", zap.Int("count", len(rows)))
	return nil
}

// Get returns the cached position for one side of a (mint, tracked wallet)
// pair.
func (c *PositionCache) Get(mint, trackedWallet solana.PublicKey, isCopy bool) (*models.Position, bool) {
	c.mu.RLock()
	entry, ok := c.store[mint]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	entry.mu.RLock()
	position, ok := entry.positions[c.Key(trackedWallet, isCopy)]
	entry.mu.RUnlock()

	return position, ok
}

// Set inserts or overwrites one side of a pair.
func (c *PositionCache) Set(mint, trackedWallet solana.PublicKey, position *models.Position, isCopy bool) {
	c.entry(mint).set(c.Key(trackedWallet, isCopy), position)
}

// Update writes a position back after a trade. Closed positions are evicted,
// and the mint bucket is dropped once its last entry goes.
func (c *PositionCache) Update(mint, trackedWallet solana.PublicKey, position *models.Position, isCopy bool) {
	key := c.Key(trackedWallet, isCopy)

	if position.Status != types.PositionClosed {
		c.entry(mint).set(key, position)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store[mint]
	if !ok {
		return
	}

	entry.mu.Lock()
	delete(entry.positions, key)
	empty := len(entry.positions) == 0
	entry.mu.Unlock()

	if empty {
		delete(c.store, mint)
	}
}

func (c *PositionCache) entry(mint solana.PublicKey) *mintPositions {
	c.mu.RLock()
	entry, ok := c.store[mint]
	c.mu.RUnlock()

	if ok {
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok = c.store[mint]; !ok {
		entry = &mintPositions{positions: make(map[PositionKey]*models.Position)}
		c.store[mint] = entry
	}

	return entry
}

func (e *mintPositions) set(key PositionKey, position *models.Position) {
	e.mu.Lock()
	e.positions[key] = position
	e.mu.Unlock()
}
