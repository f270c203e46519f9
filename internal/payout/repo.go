package payout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
)

// Repository manages persistence for payouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ListDueForProcessing(ctx context.Context, asOf time.Time, maxRetries int) ([]models.Payout, error)
	ListStaleProcessing(ctx context.Context, startedBefore time.Time) ([]models.Payout, error)
	ListClaimedEscrowEntryIDs(ctx context.Context) ([]uuid.UUID, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Payout, error)
	Save(ctx context.Context, payout *models.Payout) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payout, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListDueForProcessing locks and returns payouts ready for a transfer attempt:
// scheduled payouts whose date has arrived plus failed payouts with retry
// budget left. SKIP LOCKED keeps concurrent workers off the same rows.
func (r *repository) ListDueForProcessing(ctx context.Context, asOf time.Time, maxRetries int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("(status = ? AND scheduled_at <= ?) OR (status = ? AND retry_count < ?)",
			enums.PayoutStatusScheduled, asOf, enums.PayoutStatusFailed, maxRetries).
		Order("scheduled_at").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) ListStaleProcessing(ctx context.Context, startedBefore time.Time) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("status = ? AND processing_started_at < ?", enums.PayoutStatusProcessing, startedBefore).
		Order("processing_started_at").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// ListClaimedEscrowEntryIDs returns every escrow entry referenced by a payout
// that has not completed. Entries in this set stay out of new batches even
// though their escrow rows still read as payable.
func (r *repository) ListClaimedEscrowEntryIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Raw(`SELECT unnest(escrow_entry_ids) FROM payouts WHERE status <> ?`, enums.PayoutStatusPaid).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) Save(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Save(payout).Error
}
