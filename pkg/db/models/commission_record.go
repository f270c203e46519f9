package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionRecord snapshots the marketplace commission charged for one
// seller's share of one payment. The snapshot fields never change; the
// refund accumulators only grow.
type CommissionRecord struct {
	ID                       uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentTransactionID     uuid.UUID       `gorm:"column:payment_transaction_id;type:uuid;not null;uniqueIndex:ux_commission_records_txn_seller"`
	SellerID                 uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_commission_records_txn_seller;index"`
	OrderID                  uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	OrderAmount              decimal.Decimal `gorm:"column:order_amount;type:numeric(18,2);not null"`
	Currency                 string          `gorm:"column:currency;not null;default:'usd'"`
	CommissionRate           decimal.Decimal `gorm:"column:commission_rate;type:numeric(7,4);not null"`
	CommissionAmount         decimal.Decimal `gorm:"column:commission_amount;type:numeric(18,2);not null"`
	AppliedRuleID            uuid.UUID       `gorm:"column:applied_rule_id;type:uuid;not null"`
	RefundedAmount           decimal.Decimal `gorm:"column:refunded_amount;type:numeric(18,2);not null;default:0"`
	RefundedCommissionAmount decimal.Decimal `gorm:"column:refunded_commission_amount;type:numeric(18,2);not null;default:0"`
	NetCommissionAmount      decimal.Decimal `gorm:"column:net_commission_amount;type:numeric(18,2);not null"`
	LastRefundRecalculatedAt *time.Time      `gorm:"column:last_refund_recalculated_at"`
	Version                  int             `gorm:"column:version;not null;default:1"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// IsFullyRefunded reports whether the entire order amount has been reversed.
func (r CommissionRecord) IsFullyRefunded() bool {
	return r.RefundedAmount.GreaterThanOrEqual(r.OrderAmount)
}

// RemainingOrderAmount returns the portion of the order not yet refunded.
func (r CommissionRecord) RemainingOrderAmount() decimal.Decimal {
	return r.OrderAmount.Sub(r.RefundedAmount)
}

// RemainingCommission returns the commission not yet reversed.
func (r CommissionRecord) RemainingCommission() decimal.Decimal {
	return r.CommissionAmount.Sub(r.RefundedCommissionAmount)
}
