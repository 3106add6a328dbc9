package dto

// ProductCreateRequest payload for new catalog entries.
type ProductCreateRequest struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
}

// ProductResponse is the public shape of a catalog entry.
type ProductResponse struct {
	ID         string `json:"id"`
	SupplierID string `json:"supplierId"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	Active     bool   `json:"active"`
}
