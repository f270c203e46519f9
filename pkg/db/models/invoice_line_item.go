package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceLineItem is one commission record's contribution to an invoice.
type InvoiceLineItem struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID          uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null;index"`
	CommissionRecordID uuid.UUID       `gorm:"column:commission_record_id;type:uuid;not null"`
	OrderID            uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	Description        string          `gorm:"column:description;not null;default:''"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
}
