package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
)

// Settlement is a seller's monthly statement reconciling sales, refunds,
// commission, and cross-month adjustments into a net payable amount. It owns
// its line items; they are only reachable through the settlement.
type Settlement struct {
	ID                       uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID                 uuid.UUID              `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_settlements_seller_period"`
	Year                     int                    `gorm:"column:year;not null;uniqueIndex:ux_settlements_seller_period"`
	Month                    int                    `gorm:"column:month;not null;uniqueIndex:ux_settlements_seller_period"`
	Currency                 string                 `gorm:"column:currency;not null;default:'usd'"`
	GrossSales               decimal.Decimal        `gorm:"column:gross_sales;type:numeric(18,2);not null;default:0"`
	TotalRefunds             decimal.Decimal        `gorm:"column:total_refunds;type:numeric(18,2);not null;default:0"`
	NetSales                 decimal.Decimal        `gorm:"column:net_sales;type:numeric(18,2);not null;default:0"`
	TotalCommission          decimal.Decimal        `gorm:"column:total_commission;type:numeric(18,2);not null;default:0"`
	PreviousMonthAdjustments decimal.Decimal        `gorm:"column:previous_month_adjustments;type:numeric(18,2);not null;default:0"`
	NetPayable               decimal.Decimal        `gorm:"column:net_payable;type:numeric(18,2);not null;default:0"`
	OrderCount               int                    `gorm:"column:order_count;not null;default:0"`
	Status                   enums.SettlementStatus `gorm:"column:status;type:settlement_status_enum;not null;default:'draft'"`
	Version                  int                    `gorm:"column:version;not null;default:1"`
	AuditNotes               string                 `gorm:"column:audit_notes;type:text;not null;default:''"`
	FinalizedAt              *time.Time             `gorm:"column:finalized_at"`
	ExportedAt               *time.Time             `gorm:"column:exported_at"`
	CreatedAt                time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time              `gorm:"column:updated_at;autoUpdateTime"`

	LineItems []SettlementLineItem `gorm:"foreignKey:SettlementID;constraint:OnDelete:CASCADE"`
}

// PeriodStart returns the first instant of the settlement month in UTC.
func (s Settlement) PeriodStart() time.Time {
	return time.Date(s.Year, time.Month(s.Month), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the exclusive end of the settlement month in UTC.
func (s Settlement) PeriodEnd() time.Time {
	return s.PeriodStart().AddDate(0, 1, 0)
}

// IsLocked reports whether the settlement may no longer be regenerated.
func (s Settlement) IsLocked() bool {
	return s.Status != enums.SettlementStatusDraft
}
