package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Refund records one completed refund against a seller's share of a payment.
// Settlement generation reads these to fold late refunds into the month they
// were received.
type Refund struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentTransactionID uuid.UUID       `gorm:"column:payment_transaction_id;type:uuid;not null;index"`
	SellerID             uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index"`
	OrderID              uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	Amount               decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	CommissionReversal   decimal.Decimal `gorm:"column:commission_reversal;type:numeric(18,2);not null;default:0"`
	Currency             string          `gorm:"column:currency;not null;default:'usd'"`
	ReceivedAt           time.Time       `gorm:"column:received_at;not null;index"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
}
