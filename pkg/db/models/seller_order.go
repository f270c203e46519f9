package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SellerOrder projects one seller's share of a paid order into the
// settlement schema. Fulfillment owns the full order; this row carries only
// what monthly statements read.
type SellerOrder struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	PaymentTransactionID uuid.UUID       `gorm:"column:payment_transaction_id;type:uuid;not null;uniqueIndex:ux_seller_orders_txn_seller"`
	SellerID             uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_seller_orders_txn_seller;index"`
	GrossAmount          decimal.Decimal `gorm:"column:gross_amount;type:numeric(18,2);not null"`
	Currency             string          `gorm:"column:currency;not null;default:'usd'"`
	CategoryID           *uuid.UUID      `gorm:"column:category_id;type:uuid"`
	OrderedAt            time.Time       `gorm:"column:ordered_at;not null;index"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
}
