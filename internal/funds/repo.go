package funds

import (
	"context"

	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
)

// Repository persists the order and refund projections that settlement
// generation later reads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateSellerOrder(ctx context.Context, order *models.SellerOrder) error
	CreateRefund(ctx context.Context, refund *models.Refund) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a funds repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSellerOrder(ctx context.Context, order *models.SellerOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}
