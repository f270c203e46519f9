package invoice

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
)

// Repository manages persistence for commission invoices and the per-year
// number sequences.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, invoice *models.CommissionInvoice) error
	Save(ctx context.Context, invoice *models.CommissionInvoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error)
	FindByPeriod(ctx context.Context, sellerID uuid.UUID, year, month int, invoiceType enums.InvoiceType) (*models.CommissionInvoice, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.CommissionInvoice, error)

	NextSequenceValue(ctx context.Context, year int) (int64, error)
	FindSeller(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error)
	ListCommissionRecordsByOrderIDs(ctx context.Context, sellerID uuid.UUID, orderIDs []uuid.UUID) ([]models.CommissionRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an invoice repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, invoice *models.CommissionInvoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) Save(ctx context.Context, invoice *models.CommissionInvoice) error {
	return r.db.WithContext(ctx).Omit("LineItems").Save(invoice).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error) {
	var invoice models.CommissionInvoice
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CommissionInvoice, error) {
	var invoice models.CommissionInvoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByPeriod(ctx context.Context, sellerID uuid.UUID, year, month int, invoiceType enums.InvoiceType) (*models.CommissionInvoice, error) {
	var invoice models.CommissionInvoice
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND year = ? AND month = ? AND invoice_type = ?", sellerID, year, month, invoiceType).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.CommissionInvoice, error) {
	var invoices []models.CommissionInvoice
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// NextSequenceValue locks the year's sequence row and hands out the next
// number. The caller's transaction keeps the number gapless under concurrent
// issuance; the row is created on first use.
func (r *repository) NextSequenceValue(ctx context.Context, year int) (int64, error) {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.InvoiceSequence{Year: year, NextValue: 1}).Error; err != nil {
		return 0, err
	}

	var seq models.InvoiceSequence
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&seq, "year = ?", year).Error; err != nil {
		return 0, err
	}

	value := seq.NextValue
	seq.NextValue++
	if err := r.db.WithContext(ctx).Save(&seq).Error; err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repository) FindSeller(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.WithContext(ctx).First(&seller, "id = ?", sellerID).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

func (r *repository) ListCommissionRecordsByOrderIDs(ctx context.Context, sellerID uuid.UUID, orderIDs []uuid.UUID) ([]models.CommissionRecord, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var records []models.CommissionRecord
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND order_id IN ?", sellerID, orderIDs).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
