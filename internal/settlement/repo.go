package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
)

// Repository manages persistence for settlements and the read models the
// generator folds into them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, settlement *models.Settlement) error
	Save(ctx context.Context, settlement *models.Settlement) error
	FindBySellerPeriod(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error)
	FindBySellerPeriodForUpdate(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error)
	ReplaceLineItems(ctx context.Context, settlementID uuid.UUID, items []models.SettlementLineItem) error

	ListOrdersForPeriod(ctx context.Context, sellerID uuid.UUID, start, end time.Time) ([]models.SellerOrder, error)
	ListOrdersByTransactionIDs(ctx context.Context, sellerID uuid.UUID, transactionIDs []uuid.UUID) ([]models.SellerOrder, error)
	ListRefundsReceived(ctx context.Context, sellerID uuid.UUID, start, end time.Time) ([]models.Refund, error)
	ListCommissionRecords(ctx context.Context, sellerID uuid.UUID, transactionIDs []uuid.UUID) ([]models.CommissionRecord, error)
	ListSellersWithActivity(ctx context.Context, start, end time.Time) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) Save(ctx context.Context, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Omit("LineItems").Save(settlement).Error
}

func (r *repository) FindBySellerPeriod(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("seller_id = ? AND year = ? AND month = ?", sellerID, year, month).
		First(&settlement).Error
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) FindBySellerPeriodForUpdate(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("seller_id = ? AND year = ? AND month = ?", sellerID, year, month).
		First(&settlement).Error
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

// ReplaceLineItems drops and rewrites a settlement's line items. Draft
// regeneration always rebuilds the full set.
func (r *repository) ReplaceLineItems(ctx context.Context, settlementID uuid.UUID, items []models.SettlementLineItem) error {
	if err := r.db.WithContext(ctx).
		Where("settlement_id = ?", settlementID).
		Delete(&models.SettlementLineItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) ListOrdersForPeriod(ctx context.Context, sellerID uuid.UUID, start, end time.Time) ([]models.SellerOrder, error) {
	var orders []models.SellerOrder
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND ordered_at >= ? AND ordered_at < ?", sellerID, start, end).
		Order("ordered_at").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListOrdersByTransactionIDs(ctx context.Context, sellerID uuid.UUID, transactionIDs []uuid.UUID) ([]models.SellerOrder, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}
	var orders []models.SellerOrder
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND payment_transaction_id IN ?", sellerID, transactionIDs).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListRefundsReceived(ctx context.Context, sellerID uuid.UUID, start, end time.Time) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND received_at >= ? AND received_at < ?", sellerID, start, end).
		Order("received_at").
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

func (r *repository) ListCommissionRecords(ctx context.Context, sellerID uuid.UUID, transactionIDs []uuid.UUID) ([]models.CommissionRecord, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}
	var records []models.CommissionRecord
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND payment_transaction_id IN ?", sellerID, transactionIDs).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListSellersWithActivity returns the sellers having orders or refunds inside
// the window; generation runs once per returned seller.
func (r *repository) ListSellersWithActivity(ctx context.Context, start, end time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Raw(`SELECT seller_id FROM seller_orders WHERE ordered_at >= ? AND ordered_at < ?
		     UNION
		     SELECT seller_id FROM refunds WHERE received_at >= ? AND received_at < ?`,
			start, end, start, end).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
