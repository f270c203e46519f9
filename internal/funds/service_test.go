package funds

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/internal/commission"
	"github.com/SebastianDabkowski/mercato-settlement/internal/escrow"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
)

type fakeRepository struct {
	orders  []models.SellerOrder
	refunds []models.Refund
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) CreateSellerOrder(ctx context.Context, order *models.SellerOrder) error {
	f.orders = append(f.orders, *order)
	return nil
}

func (f *fakeRepository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	f.refunds = append(f.refunds, *refund)
	return nil
}

type fakeCommission struct {
	recordFn    func(ctx context.Context, in commission.RecordInput) (*models.CommissionRecord, error)
	adjustFn    func(ctx context.Context, in commission.RefundAdjustmentInput) (*commission.RefundAdjustment, error)
	getRecordFn func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.CommissionRecord, error)

	recorded []commission.RecordInput
	adjusted []commission.RefundAdjustmentInput
}

func (f *fakeCommission) WithTx(tx *gorm.DB) commission.Service { return f }

func (f *fakeCommission) CreateRule(ctx context.Context, in commission.CreateRuleInput) (*models.CommissionRule, error) {
	return nil, nil
}

func (f *fakeCommission) Resolve(ctx context.Context, in commission.ResolveInput) (*models.CommissionRule, error) {
	return nil, nil
}

func (f *fakeCommission) Record(ctx context.Context, in commission.RecordInput) (*models.CommissionRecord, error) {
	f.recorded = append(f.recorded, in)
	if f.recordFn != nil {
		return f.recordFn(ctx, in)
	}
	return &models.CommissionRecord{ID: uuid.New(), SellerID: in.SellerID}, nil
}

func (f *fakeCommission) AdjustForRefund(ctx context.Context, in commission.RefundAdjustmentInput) (*commission.RefundAdjustment, error) {
	f.adjusted = append(f.adjusted, in)
	if f.adjustFn != nil {
		return f.adjustFn(ctx, in)
	}
	return &commission.RefundAdjustment{CommissionReversal: decimal.Zero}, nil
}

func (f *fakeCommission) GetRecord(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.CommissionRecord, error) {
	if f.getRecordFn != nil {
		return f.getRecordFn(ctx, transactionID, sellerID)
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "commission record not found")
}

type fakeEscrow struct {
	holdFn   func(ctx context.Context, in escrow.HoldInput) (*models.EscrowEntry, error)
	refundFn func(ctx context.Context, in escrow.ApplyRefundInput) (*models.EscrowEntry, error)

	holds    []escrow.HoldInput
	refunds  []escrow.ApplyRefundInput
	eligible []uuid.UUID
}

func (f *fakeEscrow) WithTx(tx *gorm.DB) escrow.Service { return f }

func (f *fakeEscrow) Hold(ctx context.Context, in escrow.HoldInput) (*models.EscrowEntry, error) {
	f.holds = append(f.holds, in)
	if f.holdFn != nil {
		return f.holdFn(ctx, in)
	}
	return &models.EscrowEntry{ID: uuid.New()}, nil
}

func (f *fakeEscrow) MarkEligible(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
	f.eligible = append(f.eligible, transactionID)
	return &models.EscrowEntry{}, nil
}

func (f *fakeEscrow) ApplyRefund(ctx context.Context, in escrow.ApplyRefundInput) (*models.EscrowEntry, error) {
	f.refunds = append(f.refunds, in)
	if f.refundFn != nil {
		return f.refundFn(ctx, in)
	}
	return &models.EscrowEntry{}, nil
}

func (f *fakeEscrow) Release(ctx context.Context, entryIDs []uuid.UUID, releasedAt time.Time) error {
	return nil
}

func (f *fakeEscrow) ListPayable(ctx context.Context) ([]models.EscrowEntry, error) {
	return nil, nil
}

func (f *fakeEscrow) GetEntry(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
	return nil, nil
}

func (f *fakeEscrow) HeldBalance(ctx context.Context, sellerID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(t *testing.T, repo *fakeRepository, comm *fakeCommission, esc *fakeEscrow) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Commission: comm,
		Escrow:     esc,
		Tx:         &fakeTxRunner{},
		Logger:     logger.New(logger.Options{ServiceName: "funds-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestService_HandlePaymentCompleted(t *testing.T) {
	repo := &fakeRepository{}
	comm := &fakeCommission{}
	esc := &fakeEscrow{}
	svc := newTestService(t, repo, comm, esc)

	sellerA, sellerB := uuid.New(), uuid.New()
	occurredAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	err := svc.HandlePaymentCompleted(context.Background(), PaymentCompletedInput{
		PaymentTransactionID: uuid.New(),
		OrderID:              uuid.New(),
		Currency:             "usd",
		OccurredAt:           occurredAt,
		Lines: []PaymentLine{
			{SellerID: sellerA, Amount: dec("65.00")},
			{SellerID: sellerB, Amount: dec("80.00")},
		},
	})
	if err != nil {
		t.Fatalf("HandlePaymentCompleted error: %v", err)
	}

	if len(comm.recorded) != 2 {
		t.Fatalf("expected 2 commission records, got %d", len(comm.recorded))
	}
	if len(esc.holds) != 2 {
		t.Fatalf("expected 2 escrow holds, got %d", len(esc.holds))
	}
	if len(repo.orders) != 2 {
		t.Fatalf("expected 2 seller orders, got %d", len(repo.orders))
	}
	if !repo.orders[0].GrossAmount.Equal(dec("65.00")) || !repo.orders[0].OrderedAt.Equal(occurredAt) {
		t.Fatalf("order projection mismatch: %+v", repo.orders[0])
	}
}

func TestService_HandlePaymentCompletedSkipsProcessedLines(t *testing.T) {
	repo := &fakeRepository{}
	esc := &fakeEscrow{}
	sellerA, sellerB := uuid.New(), uuid.New()
	comm := &fakeCommission{
		getRecordFn: func(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.CommissionRecord, error) {
			if sellerID == sellerA {
				return &models.CommissionRecord{ID: uuid.New(), SellerID: sellerA}, nil
			}
			return nil, apperrors.New(apperrors.CodeNotFound, "commission record not found")
		},
	}
	svc := newTestService(t, repo, comm, esc)

	err := svc.HandlePaymentCompleted(context.Background(), PaymentCompletedInput{
		PaymentTransactionID: uuid.New(),
		OrderID:              uuid.New(),
		Currency:             "usd",
		OccurredAt:           time.Now().UTC(),
		Lines: []PaymentLine{
			{SellerID: sellerA, Amount: dec("65.00")},
			{SellerID: sellerB, Amount: dec("80.00")},
		},
	})
	if err != nil {
		t.Fatalf("HandlePaymentCompleted error: %v", err)
	}

	// Seller A's line was redelivered and skipped entirely, with no insert
	// attempted that could abort the transaction.
	if len(comm.recorded) != 1 || comm.recorded[0].SellerID != sellerB {
		t.Fatalf("expected a single commission insert for seller B, got %+v", comm.recorded)
	}
	if len(esc.holds) != 1 || esc.holds[0].SellerID != sellerB {
		t.Fatalf("expected a single hold for seller B, got %+v", esc.holds)
	}
	if len(repo.orders) != 1 || repo.orders[0].SellerID != sellerB {
		t.Fatalf("expected a single order for seller B, got %+v", repo.orders)
	}
}

func TestService_HandlePaymentCompletedAbortsOnHoldFailure(t *testing.T) {
	repo := &fakeRepository{}
	comm := &fakeCommission{}
	esc := &fakeEscrow{
		holdFn: func(ctx context.Context, in escrow.HoldInput) (*models.EscrowEntry, error) {
			return nil, apperrors.New(apperrors.CodeInternal, "insert failed")
		},
	}
	svc := newTestService(t, repo, comm, esc)

	err := svc.HandlePaymentCompleted(context.Background(), PaymentCompletedInput{
		PaymentTransactionID: uuid.New(),
		OrderID:              uuid.New(),
		Currency:             "usd",
		OccurredAt:           time.Now().UTC(),
		Lines:                []PaymentLine{{SellerID: uuid.New(), Amount: dec("65.00")}},
	})
	if err == nil {
		t.Fatal("expected error when escrow hold fails")
	}
	if len(repo.orders) != 0 {
		t.Fatalf("no order projection expected after failure, got %d", len(repo.orders))
	}
}

func TestService_HandleRefundCompleted(t *testing.T) {
	repo := &fakeRepository{}
	comm := &fakeCommission{
		adjustFn: func(ctx context.Context, in commission.RefundAdjustmentInput) (*commission.RefundAdjustment, error) {
			return &commission.RefundAdjustment{CommissionReversal: dec("2.10")}, nil
		},
	}
	esc := &fakeEscrow{}
	svc := newTestService(t, repo, comm, esc)

	txnID, sellerID := uuid.New(), uuid.New()
	receivedAt := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	err := svc.HandleRefundCompleted(context.Background(), RefundCompletedInput{
		PaymentTransactionID: txnID,
		SellerID:             sellerID,
		OrderID:              uuid.New(),
		Amount:               dec("30.00"),
		Currency:             "usd",
		OccurredAt:           receivedAt,
	})
	if err != nil {
		t.Fatalf("HandleRefundCompleted error: %v", err)
	}

	if len(comm.adjusted) != 1 || !comm.adjusted[0].RefundAmount.Equal(dec("30.00")) {
		t.Fatalf("commission adjustment mismatch: %+v", comm.adjusted)
	}
	if len(esc.refunds) != 1 || !esc.refunds[0].RefundAmount.Equal(dec("30.00")) {
		t.Fatalf("escrow refund mismatch: %+v", esc.refunds)
	}
	if len(repo.refunds) != 1 {
		t.Fatalf("expected 1 refund row, got %d", len(repo.refunds))
	}
	refund := repo.refunds[0]
	if !refund.CommissionReversal.Equal(dec("2.10")) {
		t.Fatalf("reversal mismatch: %s", refund.CommissionReversal)
	}
	if !refund.ReceivedAt.Equal(receivedAt) {
		t.Fatalf("receivedAt mismatch: %s", refund.ReceivedAt)
	}
}

func TestService_HandleRefundCompletedAbortsOnAdjustmentFailure(t *testing.T) {
	repo := &fakeRepository{}
	comm := &fakeCommission{
		adjustFn: func(ctx context.Context, in commission.RefundAdjustmentInput) (*commission.RefundAdjustment, error) {
			return nil, apperrors.New(apperrors.CodeStateConflict, "refund exceeds order amount")
		},
	}
	esc := &fakeEscrow{}
	svc := newTestService(t, repo, comm, esc)

	err := svc.HandleRefundCompleted(context.Background(), RefundCompletedInput{
		PaymentTransactionID: uuid.New(),
		SellerID:             uuid.New(),
		OrderID:              uuid.New(),
		Amount:               dec("500.00"),
		Currency:             "usd",
		OccurredAt:           time.Now().UTC(),
	})
	if !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(esc.refunds) != 0 || len(repo.refunds) != 0 {
		t.Fatal("nothing should be written after a failed adjustment")
	}
}

func TestService_HandleFulfillmentConfirmed(t *testing.T) {
	repo := &fakeRepository{}
	comm := &fakeCommission{}
	esc := &fakeEscrow{}
	svc := newTestService(t, repo, comm, esc)

	txnID := uuid.New()
	if err := svc.HandleFulfillmentConfirmed(context.Background(), txnID, uuid.New()); err != nil {
		t.Fatalf("HandleFulfillmentConfirmed error: %v", err)
	}
	if len(esc.eligible) != 1 || esc.eligible[0] != txnID {
		t.Fatalf("expected eligibility call for %s, got %+v", txnID, esc.eligible)
	}
}
