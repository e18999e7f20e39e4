// internal/storage/models/position.go
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solmirror/copybot/internal/types"
)

// Position is a tracked holding for one (wallet, mint) pair. A row either
// belongs to a tracked wallet (target side) or to the bot's own wallet
// (copy side); copy rows carry a back-reference to their target row via
// TargetPositionID.
type Position struct {
	ID               uint                 `gorm:"primarykey"`
	TargetPositionID *uint                `gorm:"index"`
	Wallet           string               `gorm:"index;not null;type:varchar(44)"`
	Mint             string               `gorm:"index;not null;type:varchar(44)"`
	AmountTotal      decimal.Decimal      `gorm:"type:decimal(30,12);not null"`
	AmountLeft       decimal.Decimal      `gorm:"type:decimal(30,12);not null"`
	AvgBuyPrice      decimal.Decimal      `gorm:"type:decimal(30,18);not null"`
	AvgSellPrice     decimal.NullDecimal  `gorm:"type:decimal(30,18)"`
	TotalFee         decimal.Decimal      `gorm:"type:decimal(30,12);not null"`
	RealizedPnl      decimal.NullDecimal  `gorm:"type:decimal(30,12)"`
	Amm              string               `gorm:"not null;type:varchar(44)"`
	Status           types.PositionStatus `gorm:"index;not null;type:varchar(16)"`
	CreatedAt        time.Time            `gorm:"default:CURRENT_TIMESTAMP"`
	ClosedAt         *time.Time
	UpdatedAt        time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// IsCopy reports whether the row mirrors someone else's position.
func (p *Position) IsCopy() bool {
	return p.TargetPositionID != nil
}
