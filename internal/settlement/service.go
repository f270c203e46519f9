package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/money"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/outbox"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/outbox/payloads"
)

// Service generates, finalizes, and exports monthly seller settlements.
type Service interface {
	Generate(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error)
	GenerateForPeriod(ctx context.Context, year, month int) (*GenerationSummary, error)
	Finalize(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error)
	Export(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error)
	Get(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo   Repository
	Outbox eventEmitter
	Tx     txRunner
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	outbox eventEmitter
	tx     txRunner
	logg   *logger.Logger
}

// NewService builds the settlement service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repo is required")
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
	return &service{repo: params.Repo, outbox: params.Outbox, tx: params.Tx, logg: params.Logger}, nil
}

// GenerationSummary reports one generation pass over all active sellers.
type GenerationSummary struct {
	Year      int
	Month     int
	Generated int
	Skipped   int
	Failed    int
}

func validatePeriod(year, month int) error {
	if year < 2000 || year > 2200 {
		return fmt.Errorf("year out of range: %d", year)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("month out of range: %d", month)
	}
	return nil
}

// Generate builds or rebuilds a seller's statement for one month. Drafts may
// be regenerated any number of times; the previous line items are discarded
// and the version history notes the rebuild. A finalized statement never
// changes, late refunds surface as adjustments in the month they arrive.
func (s *service) Generate(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	var out *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindBySellerPeriodForUpdate(ctx, sellerID, year, month)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("loading settlement: %w", err)
		}
		if existing != nil && existing.IsLocked() {
			return apperrors.New(apperrors.CodeStateConflict, "settlement already finalized").
				WithDetails(map[string]any{"sellerId": sellerID, "year": year, "month": month})
		}

		statement, items, err := s.build(ctx, repo, sellerID, year, month)
		if err != nil {
			return err
		}

		if existing == nil {
			statement.ID = uuid.New()
			statement.Version = 1
			if err := repo.Create(ctx, statement); err != nil {
				return fmt.Errorf("creating settlement: %w", err)
			}
		} else {
			statement.ID = existing.ID
			statement.Version = existing.Version + 1
			statement.CreatedAt = existing.CreatedAt
			statement.AuditNotes = appendAuditNote(existing.AuditNotes,
				fmt.Sprintf("regenerated as version %d at %s", statement.Version, time.Now().UTC().Format(time.RFC3339)))
			if err := repo.Save(ctx, statement); err != nil {
				return fmt.Errorf("saving settlement: %w", err)
			}
		}

		for i := range items {
			items[i].SettlementID = statement.ID
		}
		if err := repo.ReplaceLineItems(ctx, statement.ID, items); err != nil {
			return fmt.Errorf("writing line items: %w", err)
		}

		statement.LineItems = items
		out = statement
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"sellerId":   sellerID,
		"year":       year,
		"month":      month,
		"netPayable": out.NetPayable.String(),
		"version":    out.Version,
	}), "settlement generated")

	return out, nil
}

// build assembles the statement and its line items from the month's orders,
// the refunds received inside the month, and the commission ledger.
func (s *service) build(ctx context.Context, repo Repository, sellerID uuid.UUID, year, month int) (*models.Settlement, []models.SettlementLineItem, error) {
	period := models.Settlement{Year: year, Month: month}
	start, end := period.PeriodStart(), period.PeriodEnd()

	orders, err := repo.ListOrdersForPeriod(ctx, sellerID, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("listing orders: %w", err)
	}
	refunds, err := repo.ListRefundsReceived(ctx, sellerID, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("listing refunds: %w", err)
	}

	currency, err := resolveCurrency(orders, refunds)
	if err != nil {
		return nil, nil, err
	}

	txnIDs := make([]uuid.UUID, 0, len(orders))
	orderByTxn := make(map[uuid.UUID]models.SellerOrder, len(orders))
	for _, order := range orders {
		txnIDs = append(txnIDs, order.PaymentTransactionID)
		orderByTxn[order.PaymentTransactionID] = order
	}

	records, err := repo.ListCommissionRecords(ctx, sellerID, txnIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("listing commission records: %w", err)
	}
	recordByTxn := make(map[uuid.UUID]models.CommissionRecord, len(records))
	for _, record := range records {
		recordByTxn[record.PaymentTransactionID] = record
	}

	// Refunds against this month's own orders fold into the order line;
	// the rest become cross-month adjustments.
	sameMonthRefunds := make(map[uuid.UUID][]models.Refund)
	var adjustmentRefunds []models.Refund
	for _, refund := range refunds {
		if _, ok := orderByTxn[refund.PaymentTransactionID]; ok {
			sameMonthRefunds[refund.PaymentTransactionID] = append(sameMonthRefunds[refund.PaymentTransactionID], refund)
		} else {
			adjustmentRefunds = append(adjustmentRefunds, refund)
		}
	}

	grossSales := decimal.Zero
	totalRefunds := decimal.Zero
	totalCommission := decimal.Zero
	items := make([]models.SettlementLineItem, 0, len(orders)+len(adjustmentRefunds))

	for _, order := range orders {
		refundAmount := decimal.Zero
		commissionReversal := decimal.Zero
		for _, refund := range sameMonthRefunds[order.PaymentTransactionID] {
			refundAmount = refundAmount.Add(refund.Amount)
			commissionReversal = commissionReversal.Add(refund.CommissionReversal)
		}

		commission := decimal.Zero
		if record, ok := recordByTxn[order.PaymentTransactionID]; ok {
			commission = record.CommissionAmount.Sub(commissionReversal)
		}

		net := order.GrossAmount.Sub(refundAmount)
		items = append(items, models.SettlementLineItem{
			ID:               uuid.New(),
			OrderID:          order.OrderID,
			GrossAmount:      order.GrossAmount,
			RefundAmount:     refundAmount,
			NetAmount:        net,
			CommissionAmount: commission,
		})

		grossSales = grossSales.Add(order.GrossAmount)
		totalRefunds = totalRefunds.Add(refundAmount)
		totalCommission = totalCommission.Add(commission)
	}

	adjustments, adjustmentTotal, err := s.buildAdjustments(ctx, repo, sellerID, adjustmentRefunds)
	if err != nil {
		return nil, nil, err
	}
	items = append(items, adjustments...)

	netSales := grossSales.Sub(totalRefunds)
	netPayable := netSales.Sub(totalCommission).Add(adjustmentTotal)

	statement := &models.Settlement{
		SellerID:                 sellerID,
		Year:                     year,
		Month:                    month,
		Currency:                 currency,
		GrossSales:               money.Round2(grossSales),
		TotalRefunds:             money.Round2(totalRefunds),
		NetSales:                 money.Round2(netSales),
		TotalCommission:          money.Round2(totalCommission),
		PreviousMonthAdjustments: money.Round2(adjustmentTotal),
		NetPayable:               money.Round2(netPayable),
		OrderCount:               len(orders),
		Status:                   enums.SettlementStatusDraft,
	}
	return statement, items, nil
}

// buildAdjustments turns refunds for previously settled orders into negative
// adjustment lines. The seller gives back the refunded amount and recovers
// the commission reversed with it.
func (s *service) buildAdjustments(ctx context.Context, repo Repository, sellerID uuid.UUID, refunds []models.Refund) ([]models.SettlementLineItem, decimal.Decimal, error) {
	if len(refunds) == 0 {
		return nil, decimal.Zero, nil
	}

	txnIDs := make([]uuid.UUID, 0, len(refunds))
	for _, refund := range refunds {
		txnIDs = append(txnIDs, refund.PaymentTransactionID)
	}
	originals, err := repo.ListOrdersByTransactionIDs(ctx, sellerID, txnIDs)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("loading original orders: %w", err)
	}
	originalByTxn := make(map[uuid.UUID]models.SellerOrder, len(originals))
	for _, order := range originals {
		originalByTxn[order.PaymentTransactionID] = order
	}

	total := decimal.Zero
	items := make([]models.SettlementLineItem, 0, len(refunds))
	for _, refund := range refunds {
		impact := refund.Amount.Sub(refund.CommissionReversal).Neg()
		item := models.SettlementLineItem{
			ID:               uuid.New(),
			OrderID:          refund.OrderID,
			RefundAmount:     refund.Amount,
			NetAmount:        impact,
			CommissionAmount: refund.CommissionReversal.Neg(),
			IsAdjustment:     true,
		}
		if original, ok := originalByTxn[refund.PaymentTransactionID]; ok {
			origYear, origMonth := original.OrderedAt.UTC().Year(), int(original.OrderedAt.UTC().Month())
			item.OriginalYear = &origYear
			item.OriginalMonth = &origMonth
			item.Description = fmt.Sprintf("refund for order settled in %04d-%02d", origYear, origMonth)
		} else {
			item.Description = "refund for order outside settlement history"
		}
		items = append(items, item)
		total = total.Add(impact)
	}
	return items, total, nil
}

func resolveCurrency(orders []models.SellerOrder, refunds []models.Refund) (string, error) {
	currency := ""
	for _, order := range orders {
		if currency == "" {
			currency = order.Currency
			continue
		}
		if order.Currency != currency {
			return "", apperrors.New(apperrors.CodeValidation, "mixed currencies in settlement month").
				WithDetails(map[string]any{"currencies": []string{currency, order.Currency}})
		}
	}
	for _, refund := range refunds {
		if currency == "" {
			currency = refund.Currency
			continue
		}
		if refund.Currency != currency {
			return "", apperrors.New(apperrors.CodeValidation, "mixed currencies in settlement month").
				WithDetails(map[string]any{"currencies": []string{currency, refund.Currency}})
		}
	}
	if currency == "" {
		currency = "usd"
	}
	return currency, nil
}

func appendAuditNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

// GenerateForPeriod generates statements for every seller with activity in
// the month. One seller's failure does not stop the rest.
func (s *service) GenerateForPeriod(ctx context.Context, year, month int) (*GenerationSummary, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	period := models.Settlement{Year: year, Month: month}
	sellers, err := s.repo.ListSellersWithActivity(ctx, period.PeriodStart(), period.PeriodEnd())
	if err != nil {
		return nil, fmt.Errorf("listing sellers with activity: %w", err)
	}

	summary := &GenerationSummary{Year: year, Month: month}
	for _, sellerID := range sellers {
		_, err := s.Generate(ctx, sellerID, year, month)
		switch {
		case err == nil:
			summary.Generated++
		case apperrors.HasCode(err, apperrors.CodeStateConflict):
			summary.Skipped++
		default:
			summary.Failed++
			s.logg.Error(s.logg.WithSellerID(ctx, sellerID.String()), "settlement generation failed", err)
		}
	}
	return summary, nil
}

// Finalize locks a draft statement and announces it for export.
func (s *service) Finalize(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	var out *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		statement, err := repo.FindBySellerPeriodForUpdate(ctx, sellerID, year, month)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "settlement not found")
			}
			return fmt.Errorf("loading settlement: %w", err)
		}
		if statement.Status != enums.SettlementStatusDraft {
			return apperrors.New(apperrors.CodeStateConflict, "only draft settlements can be finalized").
				WithDetails(map[string]any{"status": statement.Status})
		}

		finalizedAt := time.Now().UTC()
		statement.Status = enums.SettlementStatusFinalized
		statement.FinalizedAt = &finalizedAt
		statement.Version++
		if err := repo.Save(ctx, statement); err != nil {
			return fmt.Errorf("saving settlement: %w", err)
		}

		out = statement
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementFinalized,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   statement.ID,
			Version:       1,
			OccurredAt:    finalizedAt,
			Data: payloads.SettlementFinalizedEvent{
				SettlementID: statement.ID,
				SellerID:     statement.SellerID,
				Year:         statement.Year,
				Month:        statement.Month,
				NetPayable:   statement.NetPayable,
				Currency:     statement.Currency,
				FinalizedAt:  finalizedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Export marks a finalized statement as handed off to external accounting.
func (s *service) Export(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	var out *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		statement, err := repo.FindBySellerPeriodForUpdate(ctx, sellerID, year, month)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "settlement not found")
			}
			return fmt.Errorf("loading settlement: %w", err)
		}
		if statement.Status != enums.SettlementStatusFinalized {
			return apperrors.New(apperrors.CodeStateConflict, "only finalized settlements can be exported").
				WithDetails(map[string]any{"status": statement.Status})
		}

		exportedAt := time.Now().UTC()
		statement.Status = enums.SettlementStatusExported
		statement.ExportedAt = &exportedAt
		statement.Version++
		if err := repo.Save(ctx, statement); err != nil {
			return fmt.Errorf("saving settlement: %w", err)
		}

		out = statement
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementExported,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   statement.ID,
			Version:       1,
			OccurredAt:    exportedAt,
			Data: payloads.SettlementExportedEvent{
				SettlementID: statement.ID,
				SellerID:     statement.SellerID,
				Year:         statement.Year,
				Month:        statement.Month,
				ExportedAt:   exportedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches a seller's statement for one month, line items included.
func (s *service) Get(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	statement, err := s.repo.FindBySellerPeriod(ctx, sellerID, year, month)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "settlement not found")
		}
		return nil, fmt.Errorf("loading settlement: %w", err)
	}
	return statement, nil
}
