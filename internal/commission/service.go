package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/money"
)

// Service is the commission ledger: it resolves rules, records the immutable
// commission snapshot per payment, and applies proportional refund reversals.
type Service interface {
	WithTx(tx *gorm.DB) Service

	CreateRule(ctx context.Context, in CreateRuleInput) (*models.CommissionRule, error)
	Resolve(ctx context.Context, in ResolveInput) (*models.CommissionRule, error)
	Record(ctx context.Context, in RecordInput) (*models.CommissionRecord, error)
	AdjustForRefund(ctx context.Context, in RefundAdjustmentInput) (*RefundAdjustment, error)
	GetRecord(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.CommissionRecord, error)
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the commission service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{repo: params.Repo, logg: params.Logger}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), logg: s.logg}
}

// RecordInput describes one seller's share of a completed payment.
type RecordInput struct {
	PaymentTransactionID uuid.UUID
	SellerID             uuid.UUID
	OrderID              uuid.UUID
	CategoryID           *uuid.UUID
	OrderAmount          decimal.Decimal
	Currency             string
	OccurredAt           time.Time
}

// RefundAdjustmentInput identifies a refund against a recorded commission.
type RefundAdjustmentInput struct {
	PaymentTransactionID uuid.UUID
	SellerID             uuid.UUID
	RefundAmount         decimal.Decimal
	OccurredAt           time.Time
}

// RefundAdjustment is the outcome of applying one refund: the updated record
// and the commission reversed by this refund alone.
type RefundAdjustment struct {
	Record             *models.CommissionRecord
	CommissionReversal decimal.Decimal
}

// Record resolves the governing rule as of the payment time and persists the
// commission snapshot. Each (transaction, seller) pair is charged exactly
// once; a repeat is rejected as a conflict.
func (s *service) Record(ctx context.Context, in RecordInput) (*models.CommissionRecord, error) {
	if in.PaymentTransactionID == uuid.Nil {
		return nil, fmt.Errorf("paymentTransactionID is required")
	}
	if in.SellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if in.OrderID == uuid.Nil {
		return nil, fmt.Errorf("orderID is required")
	}
	if !money.IsPositive(in.OrderAmount) {
		return nil, fmt.Errorf("orderAmount must be positive")
	}
	if in.OccurredAt.IsZero() {
		return nil, fmt.Errorf("occurredAt is required")
	}

	rule, err := s.Resolve(ctx, ResolveInput{
		SellerID:   in.SellerID,
		CategoryID: in.CategoryID,
		AsOf:       in.OccurredAt,
	})
	if err != nil {
		return nil, err
	}

	commissionAmount := money.Round2(chargeFor(rule, in.OrderAmount))

	record := &models.CommissionRecord{
		ID:                       uuid.New(),
		PaymentTransactionID:     in.PaymentTransactionID,
		SellerID:                 in.SellerID,
		OrderID:                  in.OrderID,
		OrderAmount:              money.Round2(in.OrderAmount),
		Currency:                 in.Currency,
		CommissionRate:           rule.Rate,
		CommissionAmount:         commissionAmount,
		AppliedRuleID:            rule.ID,
		RefundedAmount:           decimal.Zero,
		RefundedCommissionAmount: decimal.Zero,
		NetCommissionAmount:      commissionAmount,
		Version:                  1,
	}

	if err := s.repo.CreateRecord(ctx, record); err != nil {
		if db.IsUniqueViolation(err, "ux_commission_records_txn_seller") {
			return nil, apperrors.New(apperrors.CodeConflict, "commission already recorded for transaction and seller")
		}
		return nil, fmt.Errorf("creating commission record: %w", err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transactionId": in.PaymentTransactionID,
		"sellerId":      in.SellerID,
		"commission":    commissionAmount.String(),
		"ruleId":        rule.ID,
	}), "commission recorded")

	return record, nil
}

// AdjustForRefund reverses commission in proportion to the refunded share of
// the order. Successive partial refunds accumulate; the reversal is computed
// per refund against the original snapshot, rounded, then clamped so the
// reversed total never exceeds the commission originally charged.
func (s *service) AdjustForRefund(ctx context.Context, in RefundAdjustmentInput) (*RefundAdjustment, error) {
	if in.PaymentTransactionID == uuid.Nil {
		return nil, fmt.Errorf("paymentTransactionID is required")
	}
	if in.SellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if !money.IsPositive(in.RefundAmount) {
		return nil, fmt.Errorf("refundAmount must be positive")
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	record, err := s.repo.FindRecordForUpdate(ctx, in.PaymentTransactionID, in.SellerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "commission record not found for refund")
		}
		return nil, fmt.Errorf("loading commission record: %w", err)
	}

	newRefunded := record.RefundedAmount.Add(in.RefundAmount)
	if newRefunded.GreaterThan(record.OrderAmount) {
		return nil, apperrors.New(apperrors.CodeStateConflict, "refund exceeds order amount").
			WithDetails(map[string]any{
				"orderAmount":     record.OrderAmount.String(),
				"alreadyRefunded": record.RefundedAmount.String(),
				"refundAmount":    in.RefundAmount.String(),
			})
	}

	reversal := money.Round2(money.Proportion(record.CommissionAmount, in.RefundAmount, record.OrderAmount))
	if remaining := record.RemainingCommission(); reversal.GreaterThan(remaining) {
		reversal = remaining
	}

	now := in.OccurredAt
	record.RefundedAmount = newRefunded
	record.RefundedCommissionAmount = record.RefundedCommissionAmount.Add(reversal)
	record.NetCommissionAmount = record.CommissionAmount.Sub(record.RefundedCommissionAmount)
	record.LastRefundRecalculatedAt = &now
	record.Version++

	if err := s.repo.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("saving commission record: %w", err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transactionId": in.PaymentTransactionID,
		"sellerId":      in.SellerID,
		"reversal":      reversal.String(),
		"netCommission": record.NetCommissionAmount.String(),
	}), "commission adjusted for refund")

	return &RefundAdjustment{Record: record, CommissionReversal: reversal}, nil
}

// GetRecord fetches the commission record for a (transaction, seller) pair.
func (s *service) GetRecord(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.CommissionRecord, error) {
	if transactionID == uuid.Nil {
		return nil, fmt.Errorf("transactionID is required")
	}
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}

	record, err := s.repo.FindRecord(ctx, transactionID, sellerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "commission record not found")
		}
		return nil, fmt.Errorf("loading commission record: %w", err)
	}
	return record, nil
}
