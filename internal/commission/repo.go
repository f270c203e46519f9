package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
)

// Repository manages persistence for commission rules and records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateRule(ctx context.Context, rule *models.CommissionRule) error
	ListCandidateRules(ctx context.Context, sellerID uuid.UUID, categoryID *uuid.UUID, asOf time.Time) ([]models.CommissionRule, error)
	ListActiveRulesByScope(ctx context.Context, sellerID, categoryID *uuid.UUID) ([]models.CommissionRule, error)

	CreateRecord(ctx context.Context, record *models.CommissionRecord) error
	FindRecord(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.CommissionRecord, error)
	FindRecordForUpdate(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.CommissionRecord, error)
	SaveRecord(ctx context.Context, record *models.CommissionRecord) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a commission repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRule(ctx context.Context, rule *models.CommissionRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *repository) ListCandidateRules(ctx context.Context, sellerID uuid.UUID, categoryID *uuid.UUID, asOf time.Time) ([]models.CommissionRule, error) {
	var rules []models.CommissionRule
	query := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("effective_date <= ?", asOf).
		Where("expires_at IS NULL OR expires_at > ?", asOf).
		Where("seller_id IS NULL OR seller_id = ?", sellerID)
	if categoryID != nil {
		query = query.Where("category_id IS NULL OR category_id = ?", *categoryID)
	} else {
		query = query.Where("category_id IS NULL")
	}
	if err := query.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) ListActiveRulesByScope(ctx context.Context, sellerID, categoryID *uuid.UUID) ([]models.CommissionRule, error) {
	var rules []models.CommissionRule
	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	if sellerID != nil {
		query = query.Where("seller_id = ?", *sellerID)
	} else {
		query = query.Where("seller_id IS NULL")
	}
	if categoryID != nil {
		query = query.Where("category_id = ?", *categoryID)
	} else {
		query = query.Where("category_id IS NULL")
	}
	if err := query.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) CreateRecord(ctx context.Context, record *models.CommissionRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindRecord(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.CommissionRecord, error) {
	var record models.CommissionRecord
	err := r.db.WithContext(ctx).
		Where("payment_transaction_id = ? AND seller_id = ?", transactionID, sellerID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindRecordForUpdate(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.CommissionRecord, error) {
	var record models.CommissionRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_transaction_id = ? AND seller_id = ?", transactionID, sellerID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) SaveRecord(ctx context.Context, record *models.CommissionRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}
