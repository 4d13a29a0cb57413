package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrCartEmpty       = errors.New("cart is empty, nothing to checkout")
	ErrOrderNotFound   = errors.New("order not found")
	ErrForbidden       = errors.New("order belongs to another user")
	ErrIllegalStatus   = errors.New("illegal transition of order status")
)

// AddressError names the first required address field that is missing.
type AddressError struct {
	Address string // "shipping" or "billing"
	Field   string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid %s address: missing %s", e.Address, e.Field)
}

// OutOfStockError identifies the first line whose quantity cannot be served.
type OutOfStockError struct {
	VariationID int64
	Requested   int
	Available   int
	// Raced is set when the stock was taken between the read and the decrement;
	// Available is unknown then.
	Raced bool
}

func (e *OutOfStockError) Error() string {
	if e.Raced {
		return fmt.Sprintf("variation %d out of stock: requested %d, taken by a concurrent order", e.VariationID, e.Requested)
	}
	return fmt.Sprintf("variation %d out of stock: requested %d, available %d", e.VariationID, e.Requested, e.Available)
}

// Error codes returned to API clients.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeInvalidAddress  = "invalid_address"
	CodeCartEmpty       = "cart_empty"
	CodeOutOfStock      = "out_of_stock"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeInvalidStatus   = "invalid_status"
	CodeServerError     = "server_error"
)

// Code maps err to its client-facing code. Anything unrecognised is a server error.
func Code(err error) string {
	var addrErr *AddressError
	var stockErr *OutOfStockError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.As(err, &addrErr):
		return CodeInvalidAddress
	case errors.Is(err, ErrCartEmpty):
		return CodeCartEmpty
	case errors.As(err, &stockErr):
		return CodeOutOfStock
	case errors.Is(err, ErrOrderNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrIllegalStatus):
		return CodeInvalidStatus
	default:
		return CodeServerError
	}
}
