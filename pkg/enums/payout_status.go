package enums

import "fmt"

// PayoutStatus tracks a batched seller payout through processing.
type PayoutStatus string

const (
	PayoutStatusScheduled  PayoutStatus = "scheduled"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusScheduled,
	PayoutStatusProcessing,
	PayoutStatusPaid,
	PayoutStatusFailed,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the payout state machine permits the move.
func (p PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	switch p {
	case PayoutStatusScheduled:
		return next == PayoutStatusProcessing
	case PayoutStatusProcessing:
		return next == PayoutStatusPaid || next == PayoutStatusFailed
	case PayoutStatusFailed:
		return next == PayoutStatusProcessing
	default:
		return false
	}
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
