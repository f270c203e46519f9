package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePayout     OutboxAggregateType = "payout"
	AggregateSettlement OutboxAggregateType = "settlement"
	AggregateInvoice    OutboxAggregateType = "commission_invoice"
	AggregateEscrow     OutboxAggregateType = "escrow_entry"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	AggregatePayout,
	AggregateSettlement,
	AggregateInvoice,
	AggregateEscrow,
}

// IsValid reports whether the value is known.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPayoutCompleted      OutboxEventType = "payout.completed"
	EventPayoutFailed         OutboxEventType = "payout.failed"
	EventPayoutExhausted      OutboxEventType = "payout.retries_exhausted"
	EventSettlementFinalized  OutboxEventType = "settlement.finalized"
	EventSettlementExported   OutboxEventType = "settlement.exported"
	EventInvoiceIssued        OutboxEventType = "invoice.issued"
	EventInvoiceCorrected     OutboxEventType = "invoice.corrected"
	EventEscrowIntegrityAlarm OutboxEventType = "escrow.integrity_alarm"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPayoutCompleted,
	EventPayoutFailed,
	EventPayoutExhausted,
	EventSettlementFinalized,
	EventSettlementExported,
	EventInvoiceIssued,
	EventInvoiceCorrected,
	EventEscrowIntegrityAlarm,
}

// IsValid reports whether the value is known.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxDLQErrorReason classifies why an outbox event hit the dead-letter table.
type OutboxDLQErrorReason string

const (
	DLQReasonPublishFailed  OutboxDLQErrorReason = "publish_failed"
	DLQReasonDecodeFailed   OutboxDLQErrorReason = "decode_failed"
	DLQReasonMaxAttempts    OutboxDLQErrorReason = "max_attempts_exceeded"
	DLQReasonUnknownPayload OutboxDLQErrorReason = "unknown_payload"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	DLQReasonPublishFailed,
	DLQReasonDecodeFailed,
	DLQReasonMaxAttempts,
	DLQReasonUnknownPayload,
}

// IsValid reports whether the value is known.
func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
