package enums

import "fmt"

// EscrowStatus tracks the lifecycle of funds held on a seller's behalf.
type EscrowStatus string

const (
	EscrowStatusHeld              EscrowStatus = "held"
	EscrowStatusReleased          EscrowStatus = "released"
	EscrowStatusRefunded          EscrowStatus = "refunded"
	EscrowStatusPartiallyRefunded EscrowStatus = "partially_refunded"
)

var validEscrowStatuses = []EscrowStatus{
	EscrowStatusHeld,
	EscrowStatusReleased,
	EscrowStatusRefunded,
	EscrowStatusPartiallyRefunded,
}

// String implements fmt.Stringer.
func (e EscrowStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is known.
func (e EscrowStatus) IsValid() bool {
	for _, candidate := range validEscrowStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the entry can no longer change state.
func (e EscrowStatus) IsTerminal() bool {
	return e == EscrowStatusReleased || e == EscrowStatusRefunded
}

// ParseEscrowStatus converts raw input into an EscrowStatus.
func ParseEscrowStatus(value string) (EscrowStatus, error) {
	for _, candidate := range validEscrowStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow status %q", value)
}
