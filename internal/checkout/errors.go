package checkout

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrAddressNotFound   = errors.New("address not found")
	ErrVariantMismatch   = errors.New("variant does not belong to this product")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotInCart         = errors.New("product is not in the cart")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyProcessed  = errors.New("status already processed")
	ErrSignatureInvalid  = errors.New("invalid signature")
)
