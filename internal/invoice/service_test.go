package invoice

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/internal/settlement"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/config"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/outbox"
)

type fakeRepository struct {
	invoices  map[uuid.UUID]models.CommissionInvoice
	sequences map[int]int64
	sellers   map[uuid.UUID]models.Seller
	records   []models.CommissionRecord
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		invoices:  make(map[uuid.UUID]models.CommissionInvoice),
		sequences: make(map[int]int64),
		sellers:   make(map[uuid.UUID]models.Seller),
	}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, invoice *models.CommissionInvoice) error {
	f.invoices[invoice.ID] = *invoice
	return nil
}

func (f *fakeRepository) Save(ctx context.Context, invoice *models.CommissionInvoice) error {
	f.invoices[invoice.ID] = *invoice
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error) {
	invoice, ok := f.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &invoice, nil
}

func (f *fakeRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeRepository) FindByPeriod(ctx context.Context, sellerID uuid.UUID, year, month int, invoiceType enums.InvoiceType) (*models.CommissionInvoice, error) {
	for _, invoice := range f.invoices {
		if invoice.SellerID == sellerID && invoice.Year == year && invoice.Month == month && invoice.InvoiceType == invoiceType {
			found := invoice
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.CommissionInvoice, error) {
	var out []models.CommissionInvoice
	for _, invoice := range f.invoices {
		if invoice.SellerID == sellerID {
			out = append(out, invoice)
		}
	}
	return out, nil
}

func (f *fakeRepository) NextSequenceValue(ctx context.Context, year int) (int64, error) {
	f.sequences[year]++
	return f.sequences[year], nil
}

func (f *fakeRepository) FindSeller(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error) {
	seller, ok := f.sellers[sellerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &seller, nil
}

func (f *fakeRepository) ListCommissionRecordsByOrderIDs(ctx context.Context, sellerID uuid.UUID, orderIDs []uuid.UUID) ([]models.CommissionRecord, error) {
	wanted := make(map[uuid.UUID]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = struct{}{}
	}
	var out []models.CommissionRecord
	for _, record := range f.records {
		if record.SellerID != sellerID {
			continue
		}
		if _, ok := wanted[record.OrderID]; ok {
			out = append(out, record)
		}
	}
	return out, nil
}

type fakeSettlements struct {
	statements map[uuid.UUID]*models.Settlement
}

func (f *fakeSettlements) Generate(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	return nil, nil
}

func (f *fakeSettlements) GenerateForPeriod(ctx context.Context, year, month int) (*settlement.GenerationSummary, error) {
	return nil, nil
}

func (f *fakeSettlements) Finalize(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	return nil, nil
}

func (f *fakeSettlements) Export(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	return nil, nil
}

func (f *fakeSettlements) Get(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	statement, ok := f.statements[sellerID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "settlement not found")
	}
	return statement, nil
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
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

type fixture struct {
	repo        *fakeRepository
	settlements *fakeSettlements
	emitter     *fakeEmitter
	svc         Service
	sellerID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeRepository()
	settlements := &fakeSettlements{statements: make(map[uuid.UUID]*models.Settlement)}
	emitter := &fakeEmitter{}

	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Settlement: settlements,
		Outbox:     emitter,
		Tx:         &fakeTxRunner{},
		Logger:     logger.New(logger.Options{ServiceName: "invoice-test", Output: io.Discard}),
		Config:     config.InvoiceConfig{NumberPrefix: "INV"},
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return &fixture{
		repo:        repo,
		settlements: settlements,
		emitter:     emitter,
		svc:         svc,
		sellerID:    uuid.New(),
	}
}

// seedFinalized installs a finalized March 2026 statement with two order
// lines totalling 27.00 commission, plus the backing seller and records.
func (fx *fixture) seedFinalized(t *testing.T, taxRate string) {
	t.Helper()
	fx.repo.sellers[fx.sellerID] = models.Seller{
		ID:       fx.sellerID,
		Name:     "Test Seller",
		Currency: "usd",
		TaxRate:  dec(taxRate),
		IsActive: true,
	}

	orderA, orderB := uuid.New(), uuid.New()
	fx.repo.records = append(fx.repo.records,
		models.CommissionRecord{ID: uuid.New(), SellerID: fx.sellerID, OrderID: orderA, CommissionAmount: dec("7.00")},
		models.CommissionRecord{ID: uuid.New(), SellerID: fx.sellerID, OrderID: orderB, CommissionAmount: dec("20.00")},
	)

	fx.settlements.statements[fx.sellerID] = &models.Settlement{
		ID:              uuid.New(),
		SellerID:        fx.sellerID,
		Year:            2026,
		Month:           3,
		Currency:        "usd",
		TotalCommission: dec("27.00"),
		Status:          enums.SettlementStatusFinalized,
		LineItems: []models.SettlementLineItem{
			{OrderID: orderA, CommissionAmount: dec("7.00")},
			{OrderID: orderB, CommissionAmount: dec("20.00")},
		},
	}
}

func TestService_Issue(t *testing.T) {
	fx := newFixture(t)
	fx.seedFinalized(t, "23")

	invoice, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if invoice.InvoiceNumber != "INV-2026-000001" {
		t.Fatalf("invoice number mismatch: %s", invoice.InvoiceNumber)
	}
	if !invoice.NetAmount.Equal(dec("27.00")) {
		t.Fatalf("net mismatch: %s", invoice.NetAmount)
	}
	// 27.00 * 23%
	if !invoice.TaxAmount.Equal(dec("6.21")) {
		t.Fatalf("tax mismatch: %s", invoice.TaxAmount)
	}
	if !invoice.GrossAmount.Equal(dec("33.21")) {
		t.Fatalf("gross mismatch: %s", invoice.GrossAmount)
	}
	if invoice.Status != enums.InvoiceStatusIssued {
		t.Fatalf("expected issued, got %s", invoice.Status)
	}
	if len(invoice.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(invoice.LineItems))
	}
	lineTotal := decimal.Zero
	for _, item := range invoice.LineItems {
		lineTotal = lineTotal.Add(item.Amount)
	}
	if !lineTotal.Equal(invoice.NetAmount) {
		t.Fatalf("line items %s do not sum to net %s", lineTotal, invoice.NetAmount)
	}
	if len(fx.emitter.events) != 1 || fx.emitter.events[0].EventType != enums.EventInvoiceIssued {
		t.Fatalf("expected issued event, got %v", fx.emitter.events)
	}
}

func TestService_IssueSequentialNumbers(t *testing.T) {
	fx := newFixture(t)
	fx.seedFinalized(t, "0")

	first, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// Second seller, same year: next number in sequence.
	fx.sellerID = uuid.New()
	fx.seedFinalized(t, "0")
	second, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if first.InvoiceNumber != "INV-2026-000001" || second.InvoiceNumber != "INV-2026-000002" {
		t.Fatalf("numbers not sequential: %s, %s", first.InvoiceNumber, second.InvoiceNumber)
	}
}

func TestService_IssueRequiresFinalizedSettlement(t *testing.T) {
	fx := newFixture(t)
	fx.seedFinalized(t, "23")
	fx.settlements.statements[fx.sellerID].Status = enums.SettlementStatusDraft

	_, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3)
	if !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_IssueDuplicate(t *testing.T) {
	fx := newFixture(t)
	fx.seedFinalized(t, "23")

	if _, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3); err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	_, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestService_CorrectIssuesCreditNote(t *testing.T) {
	fx := newFixture(t)
	fx.seedFinalized(t, "10")

	original, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	correction, err := fx.svc.Correct(context.Background(), CorrectInput{
		SellerID:     fx.sellerID,
		Year:         2026,
		Month:        3,
		NewNetAmount: dec("20.00"),
		Reason:       "commission overstated",
	})
	if err != nil {
		t.Fatalf("Correct error: %v", err)
	}
	if correction.InvoiceType != enums.InvoiceTypeCreditNote {
		t.Fatalf("expected credit note, got %s", correction.InvoiceType)
	}
	if !correction.NetAmount.Equal(dec("-7.00")) {
		t.Fatalf("delta mismatch: %s", correction.NetAmount)
	}
	// -7.00 * 10%
	if !correction.TaxAmount.Equal(dec("-0.70")) {
		t.Fatalf("tax mismatch: %s", correction.TaxAmount)
	}
	if correction.OriginalInvoiceID == nil || *correction.OriginalInvoiceID != original.ID {
		t.Fatal("correction must reference the original invoice")
	}

	stored := fx.repo.invoices[original.ID]
	if stored.Status != enums.InvoiceStatusCorrected {
		t.Fatalf("original must be corrected, got %s", stored.Status)
	}
	last := fx.emitter.events[len(fx.emitter.events)-1]
	if last.EventType != enums.EventInvoiceCorrected {
		t.Fatalf("expected corrected event, got %s", last.EventType)
	}
}

func TestService_CorrectIssuesCorrectionForIncrease(t *testing.T) {
	fx := newFixture(t)
	fx.seedFinalized(t, "0")

	if _, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3); err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	correction, err := fx.svc.Correct(context.Background(), CorrectInput{
		SellerID:     fx.sellerID,
		Year:         2026,
		Month:        3,
		NewNetAmount: dec("30.00"),
		Reason:       "missed order",
	})
	if err != nil {
		t.Fatalf("Correct error: %v", err)
	}
	if correction.InvoiceType != enums.InvoiceTypeCorrection {
		t.Fatalf("expected correction, got %s", correction.InvoiceType)
	}
	if !correction.NetAmount.Equal(dec("3.00")) {
		t.Fatalf("delta mismatch: %s", correction.NetAmount)
	}
}

func TestService_CorrectRejectsZeroDelta(t *testing.T) {
	fx := newFixture(t)
	fx.seedFinalized(t, "0")

	if _, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3); err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	_, err := fx.svc.Correct(context.Background(), CorrectInput{
		SellerID:     fx.sellerID,
		Year:         2026,
		Month:        3,
		NewNetAmount: dec("27.00"),
		Reason:       "no-op",
	})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_MarkPaidAndCancel(t *testing.T) {
	fx := newFixture(t)
	fx.seedFinalized(t, "0")

	invoice, err := fx.svc.Issue(context.Background(), fx.sellerID, 2026, 3)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	paid, err := fx.svc.MarkPaid(context.Background(), invoice.ID)
	if err != nil {
		t.Fatalf("MarkPaid error: %v", err)
	}
	if paid.Status != enums.InvoiceStatusPaid {
		t.Fatalf("expected paid, got %s", paid.Status)
	}

	if _, err := fx.svc.Cancel(context.Background(), invoice.ID); !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("paid invoice must not cancel, got %v", err)
	}
}
