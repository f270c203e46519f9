package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementLineItem is one order's contribution to a settlement, or a
// synthetic adjustment row for a refund that landed after a prior month's
// settlement was finalized.
type SettlementLineItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SettlementID     uuid.UUID       `gorm:"column:settlement_id;type:uuid;not null;index"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	GrossAmount      decimal.Decimal `gorm:"column:gross_amount;type:numeric(18,2);not null;default:0"`
	RefundAmount     decimal.Decimal `gorm:"column:refund_amount;type:numeric(18,2);not null;default:0"`
	NetAmount        decimal.Decimal `gorm:"column:net_amount;type:numeric(18,2);not null;default:0"`
	CommissionAmount decimal.Decimal `gorm:"column:commission_amount;type:numeric(18,2);not null;default:0"`
	IsAdjustment     bool            `gorm:"column:is_adjustment;not null;default:false"`
	OriginalYear     *int            `gorm:"column:original_year"`
	OriginalMonth    *int            `gorm:"column:original_month"`
	Description      string          `gorm:"column:description;not null;default:''"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}
