package cart

import "time"

type Item struct {
	ID        int64
	UserID    int64
	ProductID int64
	VariantID int64
	Quantity  int
	Price     int // snapshot: unit price x quantity
	CreatedAt time.Time
}

// ClampQuantity caps the requested quantity at the available stock.
// The original storefront silently reduces oversized requests instead of failing.
func ClampQuantity(stock, requested int) int {
	if requested > stock {
		return stock
	}
	return requested
}
