package catalog

import "time"

type Product struct {
	ID        int64
	Name      string
	Slug      string
	Sold      int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Variant is the purchasable SKU of a Product with its own stock and price.
// Price is in minor currency units. Stock never goes below zero.
type Variant struct {
	ID          int64
	ProductID   int64
	VariantName string
	Stock       int
	Price       int
}
