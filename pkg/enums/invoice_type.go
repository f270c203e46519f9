package enums

import "fmt"

// InvoiceType distinguishes standard invoices from their corrections.
type InvoiceType string

const (
	InvoiceTypeStandard   InvoiceType = "standard"
	InvoiceTypeCreditNote InvoiceType = "credit_note"
	InvoiceTypeCorrection InvoiceType = "correction"
)

var validInvoiceTypes = []InvoiceType{
	InvoiceTypeStandard,
	InvoiceTypeCreditNote,
	InvoiceTypeCorrection,
}

// String implements fmt.Stringer.
func (i InvoiceType) String() string {
	return string(i)
}

// IsValid reports whether the value is known.
func (i InvoiceType) IsValid() bool {
	for _, candidate := range validInvoiceTypes {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInvoiceType converts raw input into an InvoiceType.
func ParseInvoiceType(value string) (InvoiceType, error) {
	for _, candidate := range validInvoiceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice type %q", value)
}
