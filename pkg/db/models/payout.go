package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/SebastianDabkowski/mercato-settlement/pkg/db/types"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
)

// Payout batches released escrow funds for one seller. The escrow entry
// references are written in the same transaction that reads eligibility, so a
// concurrent batch run cannot claim the same entries twice.
type Payout struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID            uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index"`
	BatchID             uuid.UUID          `gorm:"column:batch_id;type:uuid;not null;index"`
	EscrowEntryIDs      dbtypes.UUIDArray  `gorm:"column:escrow_entry_ids;type:uuid[];not null"`
	Amount              decimal.Decimal    `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency            string             `gorm:"column:currency;not null;default:'usd'"`
	Status              enums.PayoutStatus `gorm:"column:status;type:payout_status_enum;not null;default:'scheduled'"`
	RetryCount          int                `gorm:"column:retry_count;not null;default:0"`
	ScheduledAt         time.Time          `gorm:"column:scheduled_at;not null"`
	ProcessingStartedAt *time.Time         `gorm:"column:processing_started_at"`
	CompletedAt         *time.Time         `gorm:"column:completed_at"`
	ErrorReference      *string            `gorm:"column:error_reference"`
	ErrorMessage        *string            `gorm:"column:error_message"`
	TransferReference   *string            `gorm:"column:transfer_reference"`
	Version             int                `gorm:"column:version;not null;default:1"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// CanRetry reports whether a failed payout is still inside the retry budget.
func (p Payout) CanRetry(maxRetries int) bool {
	return p.Status == enums.PayoutStatusFailed && p.RetryCount < maxRetries
}
