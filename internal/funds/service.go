package funds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/internal/commission"
	"github.com/SebastianDabkowski/mercato-settlement/internal/escrow"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/money"
)

// Service reacts to payment lifecycle events. A completed payment opens both
// ledgers for each seller in the order, a refund reverses them together, and a
// fulfillment confirmation unlocks the seller's escrow for payout. Each event
// is applied in one transaction so the ledgers never diverge.
type Service interface {
	HandlePaymentCompleted(ctx context.Context, in PaymentCompletedInput) error
	HandleRefundCompleted(ctx context.Context, in RefundCompletedInput) error
	HandleFulfillmentConfirmed(ctx context.Context, transactionID, sellerID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo       Repository
	Commission commission.Service
	Escrow     escrow.Service
	Tx         txRunner
	Logger     *logger.Logger
}

type service struct {
	repo       Repository
	commission commission.Service
	escrow     escrow.Service
	tx         txRunner
	logg       *logger.Logger
}

// NewService builds the funds service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if params.Commission == nil {
		return nil, fmt.Errorf("commission service is required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow service is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:       params.Repo,
		commission: params.Commission,
		escrow:     params.Escrow,
		tx:         params.Tx,
		logg:       params.Logger,
	}, nil
}

// PaymentLine is one seller's share of a multi-vendor order.
type PaymentLine struct {
	SellerID   uuid.UUID
	CategoryID *uuid.UUID
	Amount     decimal.Decimal
}

// PaymentCompletedInput describes a completed payment split across sellers.
type PaymentCompletedInput struct {
	PaymentTransactionID uuid.UUID
	OrderID              uuid.UUID
	Currency             string
	OccurredAt           time.Time
	Lines                []PaymentLine
}

// RefundCompletedInput describes a refund against one seller's share.
type RefundCompletedInput struct {
	PaymentTransactionID uuid.UUID
	SellerID             uuid.UUID
	OrderID              uuid.UUID
	Amount               decimal.Decimal
	Currency             string
	OccurredAt           time.Time
}

// HandlePaymentCompleted records commission and holds escrow for every seller
// line, plus the order projection that monthly settlement reads. Redelivered
// events are absorbed: a line whose commission is already recorded is skipped
// without touching the other sellers.
func (s *service) HandlePaymentCompleted(ctx context.Context, in PaymentCompletedInput) error {
	if in.PaymentTransactionID == uuid.Nil {
		return fmt.Errorf("paymentTransactionID is required")
	}
	if in.OrderID == uuid.Nil {
		return fmt.Errorf("orderID is required")
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("at least one seller line is required")
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		comm := s.commission.WithTx(tx)
		esc := s.escrow.WithTx(tx)

		for _, line := range in.Lines {
			// Checked before inserting: a unique violation would abort the
			// surrounding transaction and fail the remaining seller lines.
			_, err := comm.GetRecord(ctx, in.PaymentTransactionID, line.SellerID)
			if err == nil {
				s.logg.Info(s.logg.WithFields(ctx, map[string]any{
					"transactionId": in.PaymentTransactionID,
					"sellerId":      line.SellerID,
				}), "payment already processed for seller, skipping")
				continue
			}
			if !apperrors.HasCode(err, apperrors.CodeNotFound) {
				return fmt.Errorf("checking commission for seller %s: %w", line.SellerID, err)
			}

			if _, err := comm.Record(ctx, commission.RecordInput{
				PaymentTransactionID: in.PaymentTransactionID,
				SellerID:             line.SellerID,
				OrderID:              in.OrderID,
				CategoryID:           line.CategoryID,
				OrderAmount:          line.Amount,
				Currency:             in.Currency,
				OccurredAt:           in.OccurredAt,
			}); err != nil {
				return fmt.Errorf("recording commission for seller %s: %w", line.SellerID, err)
			}

			if _, err := esc.Hold(ctx, escrow.HoldInput{
				PaymentTransactionID: in.PaymentTransactionID,
				SellerID:             line.SellerID,
				OrderID:              in.OrderID,
				Amount:               line.Amount,
				Currency:             in.Currency,
			}); err != nil {
				return fmt.Errorf("holding escrow for seller %s: %w", line.SellerID, err)
			}

			if err := repo.CreateSellerOrder(ctx, &models.SellerOrder{
				ID:                   uuid.New(),
				OrderID:              in.OrderID,
				PaymentTransactionID: in.PaymentTransactionID,
				SellerID:             line.SellerID,
				GrossAmount:          money.Round2(line.Amount),
				Currency:             in.Currency,
				CategoryID:           line.CategoryID,
				OrderedAt:            in.OccurredAt,
			}); err != nil {
				return fmt.Errorf("creating seller order for seller %s: %w", line.SellerID, err)
			}
		}
		return nil
	})
}

// HandleRefundCompleted reverses both ledgers for the refunded share and keeps
// the refund projection, carrying the commission reversal the adjustment
// computed so settlement can attribute it to the right month later.
func (s *service) HandleRefundCompleted(ctx context.Context, in RefundCompletedInput) error {
	if in.PaymentTransactionID == uuid.Nil {
		return fmt.Errorf("paymentTransactionID is required")
	}
	if in.SellerID == uuid.Nil {
		return fmt.Errorf("sellerID is required")
	}
	if !money.IsPositive(in.Amount) {
		return fmt.Errorf("amount must be positive")
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		adjustment, err := s.commission.WithTx(tx).AdjustForRefund(ctx, commission.RefundAdjustmentInput{
			PaymentTransactionID: in.PaymentTransactionID,
			SellerID:             in.SellerID,
			RefundAmount:         in.Amount,
			OccurredAt:           in.OccurredAt,
		})
		if err != nil {
			return err
		}

		if _, err := s.escrow.WithTx(tx).ApplyRefund(ctx, escrow.ApplyRefundInput{
			PaymentTransactionID: in.PaymentTransactionID,
			SellerID:             in.SellerID,
			RefundAmount:         in.Amount,
		}); err != nil {
			return err
		}

		return s.repo.WithTx(tx).CreateRefund(ctx, &models.Refund{
			ID:                   uuid.New(),
			PaymentTransactionID: in.PaymentTransactionID,
			SellerID:             in.SellerID,
			OrderID:              in.OrderID,
			Amount:               money.Round2(in.Amount),
			CommissionReversal:   adjustment.CommissionReversal,
			Currency:             in.Currency,
			ReceivedAt:           in.OccurredAt,
		})
	})
}

// HandleFulfillmentConfirmed unlocks the seller's escrow for payout.
func (s *service) HandleFulfillmentConfirmed(ctx context.Context, transactionID, sellerID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.escrow.WithTx(tx).MarkEligible(ctx, transactionID, sellerID)
		return err
	})
}
