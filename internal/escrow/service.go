package escrow

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
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/money"
)

// Service is the escrow ledger: it holds seller funds per payment, applies
// refund reversals, and releases balances claimed by completed payouts.
type Service interface {
	WithTx(tx *gorm.DB) Service

	Hold(ctx context.Context, in HoldInput) (*models.EscrowEntry, error)
	MarkEligible(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error)
	ApplyRefund(ctx context.Context, in ApplyRefundInput) (*models.EscrowEntry, error)
	Release(ctx context.Context, entryIDs []uuid.UUID, releasedAt time.Time) error
	ListPayable(ctx context.Context) ([]models.EscrowEntry, error)
	GetEntry(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error)
	HeldBalance(ctx context.Context, sellerID uuid.UUID) (decimal.Decimal, error)
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

// NewService builds the escrow service.
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

// HoldInput describes one seller's share of a completed payment.
type HoldInput struct {
	PaymentTransactionID uuid.UUID
	SellerID             uuid.UUID
	OrderID              uuid.UUID
	Amount               decimal.Decimal
	Currency             string
}

// ApplyRefundInput identifies a refund against a held entry.
type ApplyRefundInput struct {
	PaymentTransactionID uuid.UUID
	SellerID             uuid.UUID
	RefundAmount         decimal.Decimal
}

// Hold creates a Held entry for a seller's share of a payment. Entries start
// ineligible for payout until fulfillment is confirmed. Each
// (transaction, seller) pair holds exactly once.
func (s *service) Hold(ctx context.Context, in HoldInput) (*models.EscrowEntry, error) {
	if in.PaymentTransactionID == uuid.Nil {
		return nil, fmt.Errorf("paymentTransactionID is required")
	}
	if in.SellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if in.OrderID == uuid.Nil {
		return nil, fmt.Errorf("orderID is required")
	}
	if !money.IsPositive(in.Amount) {
		return nil, fmt.Errorf("amount must be positive")
	}

	entry := &models.EscrowEntry{
		ID:                   uuid.New(),
		PaymentTransactionID: in.PaymentTransactionID,
		SellerID:             in.SellerID,
		OrderID:              in.OrderID,
		Amount:               money.Round2(in.Amount),
		RefundedAmount:       decimal.Zero,
		Currency:             in.Currency,
		Status:               enums.EscrowStatusHeld,
		IsEligibleForPayout:  false,
		Version:              1,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "ux_escrow_entries_txn_seller") {
			return nil, apperrors.New(apperrors.CodeConflict, "escrow already held for transaction and seller")
		}
		return nil, fmt.Errorf("creating escrow entry: %w", err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transactionId": in.PaymentTransactionID,
		"sellerId":      in.SellerID,
		"amount":        entry.Amount.String(),
	}), "escrow held")

	return entry, nil
}

// MarkEligible flags an entry as payable once fulfillment is confirmed.
// Repeated confirmations and confirmations arriving after the entry reached a
// terminal state are no-ops.
func (s *service) MarkEligible(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
	if transactionID == uuid.Nil {
		return nil, fmt.Errorf("transactionID is required")
	}
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}

	entry, err := s.repo.FindForUpdate(ctx, transactionID, sellerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "escrow entry not found")
		}
		return nil, fmt.Errorf("loading escrow entry: %w", err)
	}

	if entry.IsEligibleForPayout || entry.Status.IsTerminal() {
		return entry, nil
	}

	entry.IsEligibleForPayout = true
	entry.Version++
	if err := s.repo.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("saving escrow entry: %w", err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transactionId": transactionID,
		"sellerId":      sellerID,
	}), "escrow marked eligible for payout")

	return entry, nil
}

// ApplyRefund reduces the held balance. A refund covering the full remaining
// balance moves the entry to Refunded; anything less moves it to
// PartiallyRefunded. Refunding an already released entry means the money has
// left the platform, which is a data-integrity alarm, not a routine failure.
func (s *service) ApplyRefund(ctx context.Context, in ApplyRefundInput) (*models.EscrowEntry, error) {
	if in.PaymentTransactionID == uuid.Nil {
		return nil, fmt.Errorf("paymentTransactionID is required")
	}
	if in.SellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if !money.IsPositive(in.RefundAmount) {
		return nil, fmt.Errorf("refundAmount must be positive")
	}

	entry, err := s.repo.FindForUpdate(ctx, in.PaymentTransactionID, in.SellerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "escrow entry not found for refund")
		}
		return nil, fmt.Errorf("loading escrow entry: %w", err)
	}

	switch entry.Status {
	case enums.EscrowStatusReleased:
		return nil, apperrors.New(apperrors.CodeStateConflict, "refund received for already released escrow").
			WithDetails(map[string]any{"escrowEntryId": entry.ID})
	case enums.EscrowStatusRefunded:
		return nil, apperrors.New(apperrors.CodeStateConflict, "escrow already fully refunded").
			WithDetails(map[string]any{"escrowEntryId": entry.ID})
	}

	newRefunded := entry.RefundedAmount.Add(in.RefundAmount)
	if newRefunded.GreaterThan(entry.Amount) {
		return nil, apperrors.New(apperrors.CodeStateConflict, "refund exceeds held amount").
			WithDetails(map[string]any{
				"heldAmount":      entry.Amount.String(),
				"alreadyRefunded": entry.RefundedAmount.String(),
				"refundAmount":    in.RefundAmount.String(),
			})
	}

	entry.RefundedAmount = newRefunded
	if newRefunded.Equal(entry.Amount) {
		entry.Status = enums.EscrowStatusRefunded
	} else {
		entry.Status = enums.EscrowStatusPartiallyRefunded
	}
	entry.Version++

	if err := s.repo.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("saving escrow entry: %w", err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transactionId": in.PaymentTransactionID,
		"sellerId":      in.SellerID,
		"refund":        in.RefundAmount.String(),
		"status":        entry.Status,
	}), "escrow refund applied")

	return entry, nil
}

// Release moves the given entries to Released after a successful payout
// transfer. Every entry must still be payable; anything else means the batch
// claimed state that changed underneath it, and the whole release fails.
func (s *service) Release(ctx context.Context, entryIDs []uuid.UUID, releasedAt time.Time) error {
	if len(entryIDs) == 0 {
		return fmt.Errorf("entryIDs are required")
	}
	if releasedAt.IsZero() {
		releasedAt = time.Now().UTC()
	}

	entries, err := s.repo.FindByIDsForUpdate(ctx, entryIDs)
	if err != nil {
		return fmt.Errorf("loading escrow entries: %w", err)
	}
	if len(entries) != len(entryIDs) {
		return apperrors.New(apperrors.CodeStateConflict, "escrow entries missing for release").
			WithDetails(map[string]any{"expected": len(entryIDs), "found": len(entries)})
	}

	for i := range entries {
		if !entries[i].IsPayable() {
			return apperrors.New(apperrors.CodeStateConflict, "escrow entry not releasable").
				WithDetails(map[string]any{
					"escrowEntryId": entries[i].ID,
					"status":        entries[i].Status,
				})
		}
		entries[i].Status = enums.EscrowStatusReleased
		entries[i].ReleasedAt = &releasedAt
		entries[i].Version++
	}

	if err := s.repo.SaveAll(ctx, entries); err != nil {
		return fmt.Errorf("saving escrow entries: %w", err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"entries": len(entries)}), "escrow released")
	return nil
}

// ListPayable locks and returns the entries eligible for the next payout
// batch. Callers must hold a transaction; the row locks vanish otherwise.
func (s *service) ListPayable(ctx context.Context) ([]models.EscrowEntry, error) {
	entries, err := s.repo.ListPayable(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing payable escrow entries: %w", err)
	}
	return entries, nil
}

// GetEntry fetches the escrow entry for a (transaction, seller) pair.
func (s *service) GetEntry(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
	if transactionID == uuid.Nil {
		return nil, fmt.Errorf("transactionID is required")
	}
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}

	entry, err := s.repo.Find(ctx, transactionID, sellerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "escrow entry not found")
		}
		return nil, fmt.Errorf("loading escrow entry: %w", err)
	}
	return entry, nil
}

// HeldBalance returns the sum still held for a seller across Held and
// PartiallyRefunded entries.
func (s *service) HeldBalance(ctx context.Context, sellerID uuid.UUID) (decimal.Decimal, error) {
	if sellerID == uuid.Nil {
		return decimal.Zero, fmt.Errorf("sellerID is required")
	}
	total, err := s.repo.SumHeldBySeller(ctx, sellerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing held balance: %w", err)
	}
	return total, nil
}
