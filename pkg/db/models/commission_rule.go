package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionRule configures the marketplace cut for a (seller, category) scope.
// A nil seller and nil category means the global default rule.
type CommissionRule struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID      *uuid.UUID       `gorm:"column:seller_id;type:uuid;index"`
	CategoryID    *uuid.UUID       `gorm:"column:category_id;type:uuid;index"`
	Rate          decimal.Decimal  `gorm:"column:rate;type:numeric(7,4);not null"`
	FixedFee      decimal.Decimal  `gorm:"column:fixed_fee;type:numeric(18,2);not null;default:0"`
	MinCommission *decimal.Decimal `gorm:"column:min_commission;type:numeric(18,2)"`
	MaxCommission *decimal.Decimal `gorm:"column:max_commission;type:numeric(18,2)"`
	Priority      int              `gorm:"column:priority;not null;default:0"`
	EffectiveDate time.Time        `gorm:"column:effective_date;not null"`
	ExpiresAt     *time.Time       `gorm:"column:expires_at"`
	IsActive      bool             `gorm:"column:is_active;not null;default:true"`
	Version       int              `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// Specificity ranks the rule scope; higher outranks lower.
// seller+category > seller > category > global.
func (r CommissionRule) Specificity() int {
	switch {
	case r.SellerID != nil && r.CategoryID != nil:
		return 3
	case r.SellerID != nil:
		return 2
	case r.CategoryID != nil:
		return 1
	default:
		return 0
	}
}

// AppliesTo reports whether the rule's scope matches the given seller/category
// and was effective at the given instant.
func (r CommissionRule) AppliesTo(sellerID uuid.UUID, categoryID *uuid.UUID, asOf time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.EffectiveDate.After(asOf) {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(asOf) {
		return false
	}
	if r.SellerID != nil && *r.SellerID != sellerID {
		return false
	}
	if r.CategoryID != nil {
		if categoryID == nil || *r.CategoryID != *categoryID {
			return false
		}
	}
	return true
}

// SameScope reports whether two rules target exactly the same
// (seller, category) pair.
func (r CommissionRule) SameScope(other CommissionRule) bool {
	return equalUUIDPtr(r.SellerID, other.SellerID) && equalUUIDPtr(r.CategoryID, other.CategoryID)
}

// OverlapsWindow reports whether two effective windows intersect. A nil
// expiry means the window is open-ended.
func (r CommissionRule) OverlapsWindow(other CommissionRule) bool {
	if r.ExpiresAt != nil && !r.ExpiresAt.After(other.EffectiveDate) {
		return false
	}
	if other.ExpiresAt != nil && !other.ExpiresAt.After(r.EffectiveDate) {
		return false
	}
	return true
}

func equalUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
