package task

import (
	"time"

	"storefront/menusync/internal/domain"
)

type ProductTask struct {
	Scope    string          `json:"scope"`    // partner/location
	Section  string          `json:"section"`  // Section the product was published under
	Op       domain.ChangeOp `json:"op"`       // add, update or delete
	Kind     domain.Kind     `json:"kind"`     // Product kind
	ID       string          `json:"id"`       // Product id
	Name     string          `json:"name"`     // Display name, empty in keys-only mode
	Modified time.Time       `json:"modified"` // Client-assigned write time
}

func (t *ProductTask) TaskType() string {
	return "ProductTask"
}

func (t *ProductTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
