package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutCompletedEvent notifies downstream collaborators that a seller payout
// was confirmed by the transfer provider and its escrow entries released.
type PayoutCompletedEvent struct {
	PayoutID    uuid.UUID       `json:"payoutId"`
	SellerID    uuid.UUID       `json:"sellerId"`
	BatchID     uuid.UUID       `json:"batchId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	EntryCount  int             `json:"entryCount"`
	CompletedAt time.Time       `json:"completedAt"`
	TransferRef string          `json:"transferRef,omitempty"`
}

// PayoutFailedEvent notifies downstream collaborators of a failed payout
// attempt. Exhausted indicates the retry budget is spent and the payout needs
// manual handling.
type PayoutFailedEvent struct {
	PayoutID       uuid.UUID       `json:"payoutId"`
	SellerID       uuid.UUID       `json:"sellerId"`
	BatchID        uuid.UUID       `json:"batchId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	RetryCount     int             `json:"retryCount"`
	Exhausted      bool            `json:"exhausted"`
	ErrorReference string          `json:"errorReference,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	FailedAt       time.Time       `json:"failedAt"`
}

// SettlementFinalizedEvent announces a locked monthly statement for export.
type SettlementFinalizedEvent struct {
	SettlementID uuid.UUID       `json:"settlementId"`
	SellerID     uuid.UUID       `json:"sellerId"`
	Year         int             `json:"year"`
	Month        int             `json:"month"`
	NetPayable   decimal.Decimal `json:"netPayable"`
	Currency     string          `json:"currency"`
	FinalizedAt  time.Time       `json:"finalizedAt"`
}

// SettlementExportedEvent confirms a finalized statement left the platform.
type SettlementExportedEvent struct {
	SettlementID uuid.UUID `json:"settlementId"`
	SellerID     uuid.UUID `json:"sellerId"`
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	ExportedAt   time.Time `json:"exportedAt"`
}

// InvoiceIssuedEvent announces a newly issued commission invoice.
type InvoiceIssuedEvent struct {
	InvoiceID     uuid.UUID       `json:"invoiceId"`
	SellerID      uuid.UUID       `json:"sellerId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	InvoiceType   string          `json:"invoiceType"`
	GrossAmount   decimal.Decimal `json:"grossAmount"`
	Currency      string          `json:"currency"`
	IssuedAt      time.Time       `json:"issuedAt"`
}
