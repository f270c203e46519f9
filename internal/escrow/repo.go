package escrow

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
)

// Repository manages persistence for escrow entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, entry *models.EscrowEntry) error
	Find(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error)
	FindForUpdate(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error)
	FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.EscrowEntry, error)
	ListPayable(ctx context.Context) ([]models.EscrowEntry, error)
	Save(ctx context.Context, entry *models.EscrowEntry) error
	SaveAll(ctx context.Context, entries []models.EscrowEntry) error
	SumHeldBySeller(ctx context.Context, sellerID uuid.UUID) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.EscrowEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Find(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
	var entry models.EscrowEntry
	err := r.db.WithContext(ctx).
		Where("payment_transaction_id = ? AND seller_id = ?", transactionID, sellerID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindForUpdate(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.EscrowEntry, error) {
	var entry models.EscrowEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_transaction_id = ? AND seller_id = ?", transactionID, sellerID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.EscrowEntry, error) {
	var entries []models.EscrowEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListPayable locks and returns every entry eligible for inclusion in a payout
// batch. SKIP LOCKED keeps concurrent batch runs from claiming the same rows.
func (r *repository) ListPayable(ctx context.Context) ([]models.EscrowEntry, error) {
	var entries []models.EscrowEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND is_eligible_for_payout = ?", enums.EscrowStatusHeld, true).
		Order("seller_id, created_at").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) Save(ctx context.Context, entry *models.EscrowEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *repository) SaveAll(ctx context.Context, entries []models.EscrowEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Save(&entries).Error
}

func (r *repository) SumHeldBySeller(ctx context.Context, sellerID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.EscrowEntry{}).
		Select("COALESCE(SUM(amount - refunded_amount), 0)").
		Where("seller_id = ? AND status IN ?", sellerID, []enums.EscrowStatus{enums.EscrowStatusHeld, enums.EscrowStatusPartiallyRefunded}).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
