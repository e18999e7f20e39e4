// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/solmirror/copybot/internal/storage/models"
)

// Store is the persistence contract for positions and trades. Position and
// trade writes that belong to one reconciliation step are committed as a
// single atomic unit.
type Store interface {
	// CreatePositionWithTrade inserts a fresh position and its first trade
	// in one transaction, filling both IDs.
	CreatePositionWithTrade(ctx context.Context, position *models.Position, trade *models.Trade) error

	// UpdatePositionWithTrade appends a trade and persists the recomputed
	// position in one transaction.
	UpdatePositionWithTrade(ctx context.Context, position *models.Position, trade *models.Trade) error

	// GetAllOpenedPositions returns every position still marked opened,
	// newest first.
	GetAllOpenedPositions(ctx context.Context) ([]*models.Position, error)

	// GetOpenedPosition finds the open position for a (mint, wallet) pair;
	// nil without error when there is none.
	GetOpenedPosition(ctx context.Context, mint, wallet string) (*models.Position, error)

	// ListTradesByPosition returns all trades of one position, newest first.
	ListTradesByPosition(ctx context.Context, positionID uint) ([]*models.Trade, error)

	// RunMigrations creates or updates the schema.
	RunMigrations() error
}
