package models

// InvoiceSequence hands out sequential invoice numbers per calendar year.
// The row is locked and incremented inside the issue transaction.
type InvoiceSequence struct {
	Year      int   `gorm:"column:year;primaryKey"`
	NextValue int64 `gorm:"column:next_value;not null;default:1"`
}
