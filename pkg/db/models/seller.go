package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Seller is the engine's read model of a marketplace seller: only the fields
// settlement and invoicing need. Onboarding/KYC own the rest.
type Seller struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name      string          `gorm:"column:name;not null"`
	Currency  string          `gorm:"column:currency;not null;default:'usd'"`
	TaxRate   decimal.Decimal `gorm:"column:tax_rate;type:numeric(7,4);not null;default:0"`
	IsActive  bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
