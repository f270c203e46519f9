package escrow

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
)

type fakeRepository struct {
	createFn             func(ctx context.Context, entry *models.EscrowEntry) error
	findFn               func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error)
	findForUpdateFn      func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error)
	findByIDsForUpdateFn func(ctx context.Context, ids []uuid.UUID) ([]models.EscrowEntry, error)
	listPayableFn        func(ctx context.Context) ([]models.EscrowEntry, error)
	saveFn               func(ctx context.Context, entry *models.EscrowEntry) error
	saveAllFn            func(ctx context.Context, entries []models.EscrowEntry) error
	sumHeldFn            func(ctx context.Context, sellerID uuid.UUID) (decimal.Decimal, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, entry *models.EscrowEntry) error {
	if f.createFn != nil {
		return f.createFn(ctx, entry)
	}
	return nil
}

func (f *fakeRepository) Find(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
	if f.findFn != nil {
		return f.findFn(ctx, transactionID, sellerID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindForUpdate(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
	if f.findForUpdateFn != nil {
		return f.findForUpdateFn(ctx, transactionID, sellerID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.EscrowEntry, error) {
	if f.findByIDsForUpdateFn != nil {
		return f.findByIDsForUpdateFn(ctx, ids)
	}
	return nil, nil
}

func (f *fakeRepository) ListPayable(ctx context.Context) ([]models.EscrowEntry, error) {
	if f.listPayableFn != nil {
		return f.listPayableFn(ctx)
	}
	return nil, nil
}

func (f *fakeRepository) Save(ctx context.Context, entry *models.EscrowEntry) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, entry)
	}
	return nil
}

func (f *fakeRepository) SaveAll(ctx context.Context, entries []models.EscrowEntry) error {
	if f.saveAllFn != nil {
		return f.saveAllFn(ctx, entries)
	}
	return nil
}

func (f *fakeRepository) SumHeldBySeller(ctx context.Context, sellerID uuid.UUID) (decimal.Decimal, error) {
	if f.sumHeldFn != nil {
		return f.sumHeldFn(ctx, sellerID)
	}
	return decimal.Zero, nil
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Logger: logger.New(logger.Options{ServiceName: "escrow-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func heldEntry(amount string) *models.EscrowEntry {
	return &models.EscrowEntry{
		ID:                   uuid.New(),
		PaymentTransactionID: uuid.New(),
		SellerID:             uuid.New(),
		OrderID:              uuid.New(),
		Amount:               dec(amount),
		RefundedAmount:       decimal.Zero,
		Currency:             "usd",
		Status:               enums.EscrowStatusHeld,
		Version:              1,
	}
}

func TestService_Hold(t *testing.T) {
	var created *models.EscrowEntry
	repo := &fakeRepository{
		createFn: func(ctx context.Context, entry *models.EscrowEntry) error {
			created = entry
			return nil
		},
	}
	svc := newTestService(t, repo)

	got, err := svc.Hold(context.Background(), HoldInput{
		PaymentTransactionID: uuid.New(),
		SellerID:             uuid.New(),
		OrderID:              uuid.New(),
		Amount:               dec("92.70"),
		Currency:             "usd",
	})
	if err != nil {
		t.Fatalf("Hold error: %v", err)
	}
	if created == nil {
		t.Fatal("expected entry to be created")
	}
	if created.Status != enums.EscrowStatusHeld {
		t.Fatalf("expected held status, got %s", created.Status)
	}
	if created.IsEligibleForPayout {
		t.Fatal("new entry must not be payout eligible")
	}
	if got != created {
		t.Fatal("service should return the created entry")
	}
}

func TestService_HoldDuplicateConflict(t *testing.T) {
	repo := &fakeRepository{
		createFn: func(ctx context.Context, entry *models.EscrowEntry) error {
			return errors.New(`duplicate key value violates unique constraint "ux_escrow_entries_txn_seller"`)
		},
	}
	svc := newTestService(t, repo)

	_, err := svc.Hold(context.Background(), HoldInput{
		PaymentTransactionID: uuid.New(),
		SellerID:             uuid.New(),
		OrderID:              uuid.New(),
		Amount:               dec("10.00"),
	})
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestService_MarkEligible(t *testing.T) {
	entry := heldEntry("50.00")
	var saved *models.EscrowEntry
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
			return entry, nil
		},
		saveFn: func(ctx context.Context, e *models.EscrowEntry) error {
			saved = e
			return nil
		},
	}
	svc := newTestService(t, repo)

	got, err := svc.MarkEligible(context.Background(), entry.PaymentTransactionID, entry.SellerID)
	if err != nil {
		t.Fatalf("MarkEligible error: %v", err)
	}
	if !got.IsEligibleForPayout {
		t.Fatal("expected entry to become eligible")
	}
	if saved == nil {
		t.Fatal("expected entry to be saved")
	}
	if got.Version != 2 {
		t.Fatalf("expected version bump, got %d", got.Version)
	}
}

func TestService_MarkEligibleIdempotent(t *testing.T) {
	entry := heldEntry("50.00")
	entry.IsEligibleForPayout = true

	saves := 0
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
			return entry, nil
		},
		saveFn: func(ctx context.Context, e *models.EscrowEntry) error {
			saves++
			return nil
		},
	}
	svc := newTestService(t, repo)

	if _, err := svc.MarkEligible(context.Background(), entry.PaymentTransactionID, entry.SellerID); err != nil {
		t.Fatalf("MarkEligible error: %v", err)
	}
	if saves != 0 {
		t.Fatal("repeat confirmation must not rewrite the entry")
	}
}

func TestService_ApplyRefundPartial(t *testing.T) {
	entry := heldEntry("100.00")
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
			return entry, nil
		},
	}
	svc := newTestService(t, repo)

	got, err := svc.ApplyRefund(context.Background(), ApplyRefundInput{
		PaymentTransactionID: entry.PaymentTransactionID,
		SellerID:             entry.SellerID,
		RefundAmount:         dec("30.00"),
	})
	if err != nil {
		t.Fatalf("ApplyRefund error: %v", err)
	}
	if got.Status != enums.EscrowStatusPartiallyRefunded {
		t.Fatalf("expected partially refunded, got %s", got.Status)
	}
	if !got.RemainingAmount().Equal(dec("70.00")) {
		t.Fatalf("expected remaining 70.00, got %s", got.RemainingAmount())
	}
	if got.IsPayable() {
		t.Fatal("partially refunded entry must not be payable")
	}
}

func TestService_ApplyRefundFull(t *testing.T) {
	entry := heldEntry("100.00")
	entry.RefundedAmount = dec("60.00")
	entry.Status = enums.EscrowStatusPartiallyRefunded

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
			return entry, nil
		},
	}
	svc := newTestService(t, repo)

	got, err := svc.ApplyRefund(context.Background(), ApplyRefundInput{
		PaymentTransactionID: entry.PaymentTransactionID,
		SellerID:             entry.SellerID,
		RefundAmount:         dec("40.00"),
	})
	if err != nil {
		t.Fatalf("ApplyRefund error: %v", err)
	}
	if got.Status != enums.EscrowStatusRefunded {
		t.Fatalf("expected refunded, got %s", got.Status)
	}
	if !got.RemainingAmount().IsZero() {
		t.Fatalf("expected zero remaining, got %s", got.RemainingAmount())
	}
}

func TestService_ApplyRefundAfterRelease(t *testing.T) {
	entry := heldEntry("100.00")
	entry.Status = enums.EscrowStatusReleased

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
			return entry, nil
		},
	}
	svc := newTestService(t, repo)

	_, err := svc.ApplyRefund(context.Background(), ApplyRefundInput{
		PaymentTransactionID: entry.PaymentTransactionID,
		SellerID:             entry.SellerID,
		RefundAmount:         dec("10.00"),
	})
	if !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if !apperrors.IsAlarm(err) {
		t.Fatal("refund after release must raise an alarm")
	}
}

func TestService_ApplyRefundOverHeldAmount(t *testing.T) {
	entry := heldEntry("50.00")
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
			return entry, nil
		},
	}
	svc := newTestService(t, repo)

	_, err := svc.ApplyRefund(context.Background(), ApplyRefundInput{
		PaymentTransactionID: entry.PaymentTransactionID,
		SellerID:             entry.SellerID,
		RefundAmount:         dec("50.01"),
	})
	if !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_Release(t *testing.T) {
	first := heldEntry("40.00")
	first.IsEligibleForPayout = true
	second := heldEntry("60.00")
	second.IsEligibleForPayout = true

	var saved []models.EscrowEntry
	repo := &fakeRepository{
		findByIDsForUpdateFn: func(ctx context.Context, ids []uuid.UUID) ([]models.EscrowEntry, error) {
			return []models.EscrowEntry{*first, *second}, nil
		},
		saveAllFn: func(ctx context.Context, entries []models.EscrowEntry) error {
			saved = entries
			return nil
		},
	}
	svc := newTestService(t, repo)

	releasedAt := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	if err := svc.Release(context.Background(), []uuid.UUID{first.ID, second.ID}, releasedAt); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 saved entries, got %d", len(saved))
	}
	for _, entry := range saved {
		if entry.Status != enums.EscrowStatusReleased {
			t.Fatalf("expected released, got %s", entry.Status)
		}
		if entry.ReleasedAt == nil || !entry.ReleasedAt.Equal(releasedAt) {
			t.Fatalf("released timestamp mismatch: %v", entry.ReleasedAt)
		}
	}
}

func TestService_ReleaseRejectsNonPayableEntry(t *testing.T) {
	payable := heldEntry("40.00")
	payable.IsEligibleForPayout = true
	refunded := heldEntry("60.00")
	refunded.IsEligibleForPayout = true
	refunded.Status = enums.EscrowStatusPartiallyRefunded

	repo := &fakeRepository{
		findByIDsForUpdateFn: func(ctx context.Context, ids []uuid.UUID) ([]models.EscrowEntry, error) {
			return []models.EscrowEntry{*payable, *refunded}, nil
		},
	}
	svc := newTestService(t, repo)

	err := svc.Release(context.Background(), []uuid.UUID{payable.ID, refunded.ID}, time.Now().UTC())
	if !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_ReleaseMissingEntries(t *testing.T) {
	entry := heldEntry("40.00")
	entry.IsEligibleForPayout = true

	repo := &fakeRepository{
		findByIDsForUpdateFn: func(ctx context.Context, ids []uuid.UUID) ([]models.EscrowEntry, error) {
			return []models.EscrowEntry{*entry}, nil
		},
	}
	svc := newTestService(t, repo)

	err := svc.Release(context.Background(), []uuid.UUID{entry.ID, uuid.New()}, time.Now().UTC())
	if !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}
