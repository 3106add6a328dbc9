package domain

import "time"

// Product is the minimal catalog model the permission table gates on.
type Product struct {
	ID         string
	SupplierID string
	Name       string
	PriceCents int64
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
