package models

import (
	"errors"
	"fmt"
)

// ErrInvalidOrder is returned when a decoded order breaks a domain invariant.
var ErrInvalidOrder = errors.New("invalid order")

// Order is the domain record carried in the payload of the orders topics.
// Field tags follow the Avro schema registered by the order producers.
type Order struct {
	ID       string  `avro:"orderId" json:"orderId"`
	Category string  `avro:"product" json:"product"`
	Amount   float64 `avro:"price" json:"price"`
}

// Validate checks the order invariants.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: missing order id", ErrInvalidOrder)
	}
	if !(o.Amount > 0) {
		return fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidOrder, o.Amount)
	}
	return nil
}
