package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
)

// EscrowEntry holds one seller's share of one payment until it is paid out
// or reversed via refund. Entries are never shared across sellers.
type EscrowEntry struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentTransactionID uuid.UUID          `gorm:"column:payment_transaction_id;type:uuid;not null;uniqueIndex:ux_escrow_entries_txn_seller"`
	SellerID             uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_escrow_entries_txn_seller;index"`
	OrderID              uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	Amount               decimal.Decimal    `gorm:"column:amount;type:numeric(18,2);not null"`
	RefundedAmount       decimal.Decimal    `gorm:"column:refunded_amount;type:numeric(18,2);not null;default:0"`
	Currency             string             `gorm:"column:currency;not null;default:'usd'"`
	Status               enums.EscrowStatus `gorm:"column:status;type:escrow_status_enum;not null;default:'held'"`
	IsEligibleForPayout  bool               `gorm:"column:is_eligible_for_payout;not null;default:false"`
	ReleasedAt           *time.Time         `gorm:"column:released_at"`
	Version              int                `gorm:"column:version;not null;default:1"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// RemainingAmount returns the balance still held after refunds.
func (e EscrowEntry) RemainingAmount() decimal.Decimal {
	return e.Amount.Sub(e.RefundedAmount)
}

// IsPayable reports whether the entry may be included in a payout batch.
// Only fully intact Held entries qualify; partially refunded balances are
// reconciled through the monthly settlement instead.
func (e EscrowEntry) IsPayable() bool {
	return e.IsEligibleForPayout && e.Status == enums.EscrowStatusHeld
}
