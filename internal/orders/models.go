package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address is copied by value onto the order; later edits to the customer's
// address book never reach past orders.
type Address struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Phone      string `json:"phone,omitempty"`
	Address1   string `json:"address1" validate:"required"`
	Address2   string `json:"address2,omitempty"`
	PostalCode string `json:"postal_code" validate:"required"`
	City       string `json:"city" validate:"required"`
	Country    string `json:"country,omitempty"`
}

type Order struct {
	ID        int64
	UserID    int64
	CartID    int64
	Status    Status
	Total     decimal.Decimal
	Currency  string
	Shipping  Address
	Billing   Address
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder is the header written at checkout time.
type NewOrder struct {
	UserID   int64
	CartID   int64
	Total    decimal.Decimal
	Currency string
	Shipping Address
	Billing  Address
}

type Summary struct {
	ID        int64
	Status    Status
	Total     decimal.Decimal
	Currency  string
	CreatedAt time.Time
}

// Line snapshots the product as it was sold.
type Line struct {
	ID             int64
	OrderID        int64
	ProductID      int64
	VariationID    int64
	ProductName    string
	VariationLabel string
	UnitPrice      decimal.Decimal
	Quantity       int
	LineTotal      decimal.Decimal
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentValidated PaymentStatus = "validated"
)

type Payment struct {
	ID             int64
	OrderID        int64
	Amount         decimal.Decimal
	Method         string
	Status         PaymentStatus
	Provider       string
	TransactionRef string
	CreatedAt      time.Time
}

// IsPaid reports whether at least one payment has been validated.
func IsPaid(payments []Payment) bool {
	for _, p := range payments {
		if p.Status == PaymentValidated {
			return true
		}
	}
	return false
}
