package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
)

// CreateRuleInput describes a new commission rule.
type CreateRuleInput struct {
	SellerID      *uuid.UUID
	CategoryID    *uuid.UUID
	Rate          decimal.Decimal
	FixedFee      decimal.Decimal
	MinCommission *decimal.Decimal
	MaxCommission *decimal.Decimal
	Priority      int
	EffectiveDate time.Time
	ExpiresAt     *time.Time
}

// CreateRule validates and persists a commission rule. At most one active rule
// may cover a given (seller, category) scope at any instant; priority only
// breaks ties between different scopes during resolution. A new rule whose
// effective window overlaps an active rule in the same scope is rejected with
// a conflict error regardless of priority.
func (s *service) CreateRule(ctx context.Context, in CreateRuleInput) (*models.CommissionRule, error) {
	if in.Rate.IsNegative() {
		return nil, fmt.Errorf("rate must not be negative")
	}
	if in.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("rate must not exceed 100")
	}
	if in.FixedFee.IsNegative() {
		return nil, fmt.Errorf("fixedFee must not be negative")
	}
	if in.EffectiveDate.IsZero() {
		return nil, fmt.Errorf("effectiveDate is required")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(in.EffectiveDate) {
		return nil, fmt.Errorf("expiresAt must be after effectiveDate")
	}
	if in.MinCommission != nil && in.MaxCommission != nil && in.MinCommission.GreaterThan(*in.MaxCommission) {
		return nil, fmt.Errorf("minCommission must not exceed maxCommission")
	}

	rule := &models.CommissionRule{
		ID:            uuid.New(),
		SellerID:      in.SellerID,
		CategoryID:    in.CategoryID,
		Rate:          in.Rate,
		FixedFee:      in.FixedFee,
		MinCommission: in.MinCommission,
		MaxCommission: in.MaxCommission,
		Priority:      in.Priority,
		EffectiveDate: in.EffectiveDate,
		ExpiresAt:     in.ExpiresAt,
		IsActive:      true,
		Version:       1,
	}

	existing, err := s.repo.ListActiveRulesByScope(ctx, in.SellerID, in.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("listing rules for scope: %w", err)
	}
	for _, other := range existing {
		if other.OverlapsWindow(*rule) {
			return nil, apperrors.New(apperrors.CodeConflict, "commission rule conflicts with an existing rule").
				WithDetails(map[string]any{"conflictingRuleId": other.ID})
		}
	}

	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("creating commission rule: %w", err)
	}
	return rule, nil
}
