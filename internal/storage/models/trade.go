// internal/storage/models/trade.go
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solmirror/copybot/internal/types"
)

// Trade is an immutable execution record linked to exactly one position.
// Copy-side trades reference the tracked wallet's trade they mirror.
type Trade struct {
	ID            uint              `gorm:"primarykey"`
	PositionID    uint              `gorm:"index;not null"`
	TargetTradeID *uint             `gorm:"index"`
	Wallet        string            `gorm:"index;not null;type:varchar(44)"`
	Signature     string            `gorm:"uniqueIndex;not null;type:varchar(88)"`
	Action        types.TradeAction `gorm:"not null;type:varchar(8)"`
	Status        types.TradeStatus `gorm:"not null;type:varchar(16)"`
	Mint          string            `gorm:"index;not null;type:varchar(44)"`
	Amount        decimal.Decimal   `gorm:"type:decimal(30,12);not null"`
	Price         decimal.Decimal   `gorm:"type:decimal(30,18);not null"`
	TradeFee      decimal.Decimal   `gorm:"type:decimal(30,12);not null"`
	TxFee         decimal.Decimal   `gorm:"type:decimal(30,12);not null"`
	Amm           string            `gorm:"not null;type:varchar(44)"`
	Slot          uint64            `gorm:"not null"`
	CreatedAt     time.Time         `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `gorm:"default:CURRENT_TIMESTAMP"`
}
