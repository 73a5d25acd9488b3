package domain

import "time"

// ProductNotification is published on the products feed topics whenever a
// product record is written or removed.
type ProductNotification struct {
	Scope    Scope
	Section  string
	Op       ChangeOp
	Product  Product
	Modified time.Time
}

// SectionNotification is published on the sections topic after all of a
// section's products were written.
type SectionNotification struct {
	Scope   Scope
	Section Section
}
