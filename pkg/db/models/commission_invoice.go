package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
)

// CommissionInvoice bills a seller for the finalized commission of one
// period, or corrects a previously issued invoice. Invoice numbers are
// assigned sequentially at issue time and never change afterwards.
type CommissionInvoice struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID          uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_commission_invoices_period_type"`
	Year              int                 `gorm:"column:year;not null;uniqueIndex:ux_commission_invoices_period_type"`
	Month             int                 `gorm:"column:month;not null;uniqueIndex:ux_commission_invoices_period_type"`
	InvoiceType       enums.InvoiceType   `gorm:"column:invoice_type;type:invoice_type_enum;not null;default:'standard';uniqueIndex:ux_commission_invoices_period_type"`
	InvoiceNumber     string              `gorm:"column:invoice_number;not null;unique"`
	Currency          string              `gorm:"column:currency;not null;default:'usd'"`
	NetAmount         decimal.Decimal     `gorm:"column:net_amount;type:numeric(18,2);not null"`
	TaxRate           decimal.Decimal     `gorm:"column:tax_rate;type:numeric(7,4);not null;default:0"`
	TaxAmount         decimal.Decimal     `gorm:"column:tax_amount;type:numeric(18,2);not null;default:0"`
	GrossAmount       decimal.Decimal     `gorm:"column:gross_amount;type:numeric(18,2);not null"`
	Status            enums.InvoiceStatus `gorm:"column:status;type:invoice_status_enum;not null;default:'draft'"`
	OriginalInvoiceID *uuid.UUID          `gorm:"column:original_invoice_id;type:uuid"`
	CorrectionReason  *string             `gorm:"column:correction_reason"`
	IssuedAt          *time.Time          `gorm:"column:issued_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}
