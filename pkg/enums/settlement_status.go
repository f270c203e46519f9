package enums

import "fmt"

// SettlementStatus tracks a monthly settlement statement.
type SettlementStatus string

const (
	SettlementStatusDraft     SettlementStatus = "draft"
	SettlementStatusFinalized SettlementStatus = "finalized"
	SettlementStatusExported  SettlementStatus = "exported"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusDraft,
	SettlementStatusFinalized,
	SettlementStatusExported,
}

// String implements fmt.Stringer.
func (s SettlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SettlementStatus) IsValid() bool {
	for _, candidate := range validSettlementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSettlementStatus converts raw input into a SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	for _, candidate := range validSettlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement status %q", value)
}
