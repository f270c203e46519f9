package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/internal/settlement"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/config"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/money"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/outbox"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/outbox/payloads"
)

// Service issues, corrects, and settles commission invoices. An invoice bills
// the seller for the commission a finalized settlement charged.
type Service interface {
	Issue(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.CommissionInvoice, error)
	Correct(ctx context.Context, in CorrectInput) (*models.CommissionInvoice, error)
	MarkPaid(ctx context.Context, invoiceID uuid.UUID) (*models.CommissionInvoice, error)
	Cancel(ctx context.Context, invoiceID uuid.UUID) (*models.CommissionInvoice, error)
	Get(ctx context.Context, invoiceID uuid.UUID) (*models.CommissionInvoice, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.CommissionInvoice, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo       Repository
	Settlement settlement.Service
	Outbox     eventEmitter
	Tx         txRunner
	Logger     *logger.Logger
	Config     config.InvoiceConfig
}

type service struct {
	repo       Repository
	settlement settlement.Service
	outbox     eventEmitter
	tx         txRunner
	logg       *logger.Logger
	cfg        config.InvoiceConfig
}

// NewService builds the invoice service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:       params.Repo,
		settlement: params.Settlement,
		outbox:     params.Outbox,
		tx:         params.Tx,
		logg:       params.Logger,
		cfg:        params.Config,
	}, nil
}

func (s *service) numberPrefix() string {
	if s.cfg.NumberPrefix != "" {
		return s.cfg.NumberPrefix
	}
	return "INV"
}

func (s *service) formatNumber(year int, sequence int64) string {
	return fmt.Sprintf("%s-%04d-%06d", s.numberPrefix(), year, sequence)
}

// Issue bills the commission of a finalized settlement. The invoice number
// comes from the year's sequence, locked inside the same transaction, so
// numbers are sequential and never reused. One standard invoice exists per
// seller and period.
func (s *service) Issue(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.CommissionInvoice, error) {
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}

	statement, err := s.settlement.Get(ctx, sellerID, year, month)
	if err != nil {
		return nil, err
	}
	if statement.Status == enums.SettlementStatusDraft {
		return nil, apperrors.New(apperrors.CodeStateConflict, "settlement must be finalized before invoicing").
			WithDetails(map[string]any{"sellerId": sellerID, "year": year, "month": month})
	}

	var out *models.CommissionInvoice
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByPeriod(ctx, sellerID, year, month, enums.InvoiceTypeStandard); err == nil {
			return apperrors.New(apperrors.CodeConflict, "invoice already issued for period")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("checking existing invoice: %w", err)
		}

		seller, err := repo.FindSeller(ctx, sellerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "seller not found")
			}
			return fmt.Errorf("loading seller: %w", err)
		}

		items, err := s.buildLineItems(ctx, repo, statement)
		if err != nil {
			return err
		}

		net := statement.TotalCommission
		tax := money.Round2(money.ApplyRate(net, seller.TaxRate))
		issuedAt := time.Now().UTC()

		sequence, err := repo.NextSequenceValue(ctx, year)
		if err != nil {
			return fmt.Errorf("allocating invoice number: %w", err)
		}

		invoice := &models.CommissionInvoice{
			ID:            uuid.New(),
			SellerID:      sellerID,
			Year:          year,
			Month:         month,
			InvoiceType:   enums.InvoiceTypeStandard,
			InvoiceNumber: s.formatNumber(year, sequence),
			Currency:      statement.Currency,
			NetAmount:     net,
			TaxRate:       seller.TaxRate,
			TaxAmount:     tax,
			GrossAmount:   net.Add(tax),
			Status:        enums.InvoiceStatusIssued,
			IssuedAt:      &issuedAt,
			LineItems:     items,
		}
		if err := repo.Create(ctx, invoice); err != nil {
			return fmt.Errorf("creating invoice: %w", err)
		}

		out = invoice
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceIssued,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Version:       1,
			OccurredAt:    issuedAt,
			Data: payloads.InvoiceIssuedEvent{
				InvoiceID:     invoice.ID,
				SellerID:      sellerID,
				InvoiceNumber: invoice.InvoiceNumber,
				InvoiceType:   invoice.InvoiceType.String(),
				GrossAmount:   invoice.GrossAmount,
				Currency:      invoice.Currency,
				IssuedAt:      issuedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"invoiceNumber": out.InvoiceNumber,
		"sellerId":      sellerID,
		"gross":         out.GrossAmount.String(),
	}), "invoice issued")

	return out, nil
}

// buildLineItems mirrors the settlement's non-adjustment lines so the items
// sum exactly to the invoiced commission.
func (s *service) buildLineItems(ctx context.Context, repo Repository, statement *models.Settlement) ([]models.InvoiceLineItem, error) {
	orderIDs := make([]uuid.UUID, 0, len(statement.LineItems))
	for _, line := range statement.LineItems {
		if !line.IsAdjustment {
			orderIDs = append(orderIDs, line.OrderID)
		}
	}

	records, err := repo.ListCommissionRecordsByOrderIDs(ctx, statement.SellerID, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("loading commission records: %w", err)
	}
	recordByOrder := make(map[uuid.UUID]models.CommissionRecord, len(records))
	for _, record := range records {
		recordByOrder[record.OrderID] = record
	}

	items := make([]models.InvoiceLineItem, 0, len(orderIDs))
	for _, line := range statement.LineItems {
		if line.IsAdjustment {
			continue
		}
		record, ok := recordByOrder[line.OrderID]
		if !ok {
			return nil, apperrors.New(apperrors.CodeStateConflict, "settlement line has no commission record").
				WithDetails(map[string]any{"orderId": line.OrderID})
		}
		items = append(items, models.InvoiceLineItem{
			ID:                 uuid.New(),
			CommissionRecordID: record.ID,
			OrderID:            line.OrderID,
			Amount:             line.CommissionAmount,
			Description:        fmt.Sprintf("commission for order %s", line.OrderID),
		})
	}
	return items, nil
}

// CorrectInput describes a correction to an issued invoice.
type CorrectInput struct {
	SellerID     uuid.UUID
	Year         int
	Month        int
	NewNetAmount decimal.Decimal
	Reason       string
}

// Correct issues a delta document against the period's standard invoice: a
// credit note when the corrected commission is lower, a correction invoice
// when it is higher. The original keeps its number and moves to Corrected.
func (s *service) Correct(ctx context.Context, in CorrectInput) (*models.CommissionInvoice, error) {
	if in.SellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if in.Reason == "" {
		return nil, fmt.Errorf("reason is required")
	}

	var out *models.CommissionInvoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		original, err := repo.FindByPeriod(ctx, in.SellerID, in.Year, in.Month, enums.InvoiceTypeStandard)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "no invoice to correct for period")
			}
			return fmt.Errorf("loading invoice: %w", err)
		}
		if original.Status != enums.InvoiceStatusIssued && original.Status != enums.InvoiceStatusPaid {
			return apperrors.New(apperrors.CodeStateConflict, "only issued or paid invoices can be corrected").
				WithDetails(map[string]any{"status": original.Status})
		}

		delta := in.NewNetAmount.Sub(original.NetAmount)
		if delta.IsZero() {
			return apperrors.New(apperrors.CodeValidation, "corrected amount equals the original")
		}

		invoiceType := enums.InvoiceTypeCorrection
		if delta.IsNegative() {
			invoiceType = enums.InvoiceTypeCreditNote
		}

		tax := money.Round2(money.ApplyRate(delta, original.TaxRate))
		issuedAt := time.Now().UTC()
		sequence, err := repo.NextSequenceValue(ctx, in.Year)
		if err != nil {
			return fmt.Errorf("allocating invoice number: %w", err)
		}

		reason := in.Reason
		correction := &models.CommissionInvoice{
			ID:                uuid.New(),
			SellerID:          in.SellerID,
			Year:              in.Year,
			Month:             in.Month,
			InvoiceType:       invoiceType,
			InvoiceNumber:     s.formatNumber(in.Year, sequence),
			Currency:          original.Currency,
			NetAmount:         delta,
			TaxRate:           original.TaxRate,
			TaxAmount:         tax,
			GrossAmount:       delta.Add(tax),
			Status:            enums.InvoiceStatusIssued,
			OriginalInvoiceID: &original.ID,
			CorrectionReason:  &reason,
			IssuedAt:          &issuedAt,
		}
		if err := repo.Create(ctx, correction); err != nil {
			return fmt.Errorf("creating correction: %w", err)
		}

		original.Status = enums.InvoiceStatusCorrected
		if err := repo.Save(ctx, original); err != nil {
			return fmt.Errorf("saving original invoice: %w", err)
		}

		out = correction
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceCorrected,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   correction.ID,
			Version:       1,
			OccurredAt:    issuedAt,
			Data: payloads.InvoiceIssuedEvent{
				InvoiceID:     correction.ID,
				SellerID:      in.SellerID,
				InvoiceNumber: correction.InvoiceNumber,
				InvoiceType:   correction.InvoiceType.String(),
				GrossAmount:   correction.GrossAmount,
				Currency:      correction.Currency,
				IssuedAt:      issuedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"invoiceNumber": out.InvoiceNumber,
		"type":          out.InvoiceType,
		"delta":         out.NetAmount.String(),
	}), "invoice corrected")

	return out, nil
}

// MarkPaid records the seller's payment against an issued invoice.
func (s *service) MarkPaid(ctx context.Context, invoiceID uuid.UUID) (*models.CommissionInvoice, error) {
	return s.transition(ctx, invoiceID, enums.InvoiceStatusIssued, enums.InvoiceStatusPaid)
}

// Cancel voids an issued invoice that was never paid.
func (s *service) Cancel(ctx context.Context, invoiceID uuid.UUID) (*models.CommissionInvoice, error) {
	return s.transition(ctx, invoiceID, enums.InvoiceStatusIssued, enums.InvoiceStatusCancelled)
}

func (s *service) transition(ctx context.Context, invoiceID uuid.UUID, from, to enums.InvoiceStatus) (*models.CommissionInvoice, error) {
	if invoiceID == uuid.Nil {
		return nil, fmt.Errorf("invoiceID is required")
	}

	var out *models.CommissionInvoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := repo.FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "invoice not found")
			}
			return fmt.Errorf("loading invoice: %w", err)
		}
		if invoice.Status != from {
			return apperrors.New(apperrors.CodeStateConflict, fmt.Sprintf("invoice must be %s", from)).
				WithDetails(map[string]any{"status": invoice.Status})
		}

		invoice.Status = to
		if err := repo.Save(ctx, invoice); err != nil {
			return fmt.Errorf("saving invoice: %w", err)
		}
		out = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one invoice with its line items.
func (s *service) Get(ctx context.Context, invoiceID uuid.UUID) (*models.CommissionInvoice, error) {
	if invoiceID == uuid.Nil {
		return nil, fmt.Errorf("invoiceID is required")
	}
	invoice, err := s.repo.FindByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "invoice not found")
		}
		return nil, fmt.Errorf("loading invoice: %w", err)
	}
	return invoice, nil
}

// ListBySeller lists a seller's invoices, newest first.
func (s *service) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.CommissionInvoice, error) {
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	return s.repo.ListBySeller(ctx, sellerID)
}
