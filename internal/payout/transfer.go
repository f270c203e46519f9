package payout

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferState is the provider-side state of one transfer attempt.
type TransferState string

const (
	TransferStateSucceeded TransferState = "succeeded"
	TransferStateFailed    TransferState = "failed"
	TransferStatePending   TransferState = "pending"
)

// TransferRequest asks the provider to move a payout amount to the seller.
// The payout ID doubles as the idempotency key so a retried attempt never
// moves money twice.
type TransferRequest struct {
	PayoutID uuid.UUID
	SellerID uuid.UUID
	Amount   decimal.Decimal
	Currency string
}

// TransferResult reports the provider's answer for one transfer.
type TransferResult struct {
	State          TransferState
	Reference      string
	ErrorReference string
	ErrorMessage   string
}

// Transferor abstracts the external money-movement provider. Transfer starts
// or resumes the transfer for a payout; Lookup fetches its current state when
// an earlier attempt ended without a definitive answer.
type Transferor interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Lookup(ctx context.Context, payoutID uuid.UUID) (*TransferResult, error)
}

// SandboxTransferor stands in where no payment provider is wired up. Every
// transfer succeeds immediately with a synthetic reference derived from the
// payout ID, so the rest of the pipeline behaves as in production. Not for
// environments that move real money.
type SandboxTransferor struct{}

// NewSandboxTransferor builds the sandbox provider.
func NewSandboxTransferor() *SandboxTransferor {
	return &SandboxTransferor{}
}

func (s *SandboxTransferor) reference(payoutID uuid.UUID) string {
	return "sandbox-" + payoutID.String()
}

func (s *SandboxTransferor) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	return &TransferResult{State: TransferStateSucceeded, Reference: s.reference(req.PayoutID)}, nil
}

func (s *SandboxTransferor) Lookup(ctx context.Context, payoutID uuid.UUID) (*TransferResult, error) {
	return &TransferResult{State: TransferStateSucceeded, Reference: s.reference(payoutID)}, nil
}
