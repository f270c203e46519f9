package commission

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/money"
)

// ErrNoApplicableRule is returned when no commission rule matches a charge and
// no global default exists. Charging with an implicit zero rate would silently
// under-collect, so resolution fails instead.
var ErrNoApplicableRule = apperrors.New(apperrors.CodeNotFound, "no applicable commission rule")

// ResolveInput identifies the charge a rule is being resolved for.
type ResolveInput struct {
	SellerID   uuid.UUID
	CategoryID *uuid.UUID
	AsOf       time.Time
}

// Resolve picks the single rule governing a charge. Candidates are ordered by
// scope specificity (seller+category, seller, category, global), then by
// priority, then by most recent effective date.
func (s *service) Resolve(ctx context.Context, in ResolveInput) (*models.CommissionRule, error) {
	if in.SellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if in.AsOf.IsZero() {
		return nil, fmt.Errorf("asOf is required")
	}

	candidates, err := s.repo.ListCandidateRules(ctx, in.SellerID, in.CategoryID, in.AsOf)
	if err != nil {
		return nil, fmt.Errorf("listing candidate rules: %w", err)
	}

	applicable := candidates[:0]
	for _, rule := range candidates {
		if rule.AppliesTo(in.SellerID, in.CategoryID, in.AsOf) {
			applicable = append(applicable, rule)
		}
	}
	if len(applicable) == 0 {
		return nil, ErrNoApplicableRule
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		a, b := applicable[i], applicable[j]
		if a.Specificity() != b.Specificity() {
			return a.Specificity() > b.Specificity()
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.EffectiveDate.After(b.EffectiveDate)
	})

	winner := applicable[0]
	return &winner, nil
}

// chargeFor computes the commission a rule yields for an order amount:
// percentage of the order plus the fixed fee, clamped to the rule's bounds.
// The result is exact; rounding happens when the record is persisted.
func chargeFor(rule *models.CommissionRule, orderAmount decimal.Decimal) decimal.Decimal {
	charge := money.ApplyRate(orderAmount, rule.Rate).Add(rule.FixedFee)
	return money.Clamp(charge, rule.MinCommission, rule.MaxCommission)
}
