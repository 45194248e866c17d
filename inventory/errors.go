/*
errors.go - Error types for the lot ledger engine

ERROR CATEGORIES:
  1. Validation errors - the command is rejected, no state changes
     (no valid line items, insufficient stock)
  2. Policy rejections - the command is never attempted
     (deleting a recorded purchase or sale)
  3. Ingest errors - the document could not be decoded, the engine keeps
     its last known good state

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var stockErr *inventory.InsufficientStockError
      errors.As(err, &stockErr)
      // stockErr.Product, stockErr.Requested, stockErr.Available
  }
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoValidLines is returned when a purchase or sale has no line item
	// with a product name and a positive quantity.
	ErrNoValidLines = errors.New("no valid line items")

	// ErrInsufficientStock is returned when a sale asks for more than the
	// lots of a product hold.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrTraceabilityViolation is returned for every attempt to delete a
	// recorded purchase or sale.
	ErrTraceabilityViolation = errors.New("traceability violation")

	// ErrMalformedDocument is returned when an ingest document cannot be decoded.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrInvalidQuantity is returned when incoming stock is not a positive
	// number of units.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError names the product that cannot be served.
// Requested is the demand summed over every line of the sale naming that
// product, not the quantity of a single line.
type InsufficientStockError struct {
	Product   string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.Product, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// TransactionKind names the kind of recorded transaction.
type TransactionKind string

const (
	KindPurchase TransactionKind = "purchase"
	KindSale     TransactionKind = "sale"
)

// TraceabilityError is the advisory returned when deletion is attempted.
type TraceabilityError struct {
	Kind   TransactionKind
	ID     string
	Remedy string
}

func (e *TraceabilityError) Error() string {
	return fmt.Sprintf("deleting %s %s is not supported to preserve traceability: %s",
		e.Kind, e.ID, e.Remedy)
}

func (e *TraceabilityError) Unwrap() error {
	return ErrTraceabilityViolation
}

func newTraceabilityError(kind TransactionKind, id string) *TraceabilityError {
	remedy := "record a supplier return instead"
	if kind == KindSale {
		remedy = "record a customer return instead"
	}
	return &TraceabilityError{Kind: kind, ID: id, Remedy: remedy}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoValidLines) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrMalformedDocument)
}

// IsPolicyRejection returns true if the operation is forbidden outright.
func IsPolicyRejection(err error) bool {
	return errors.Is(err, ErrTraceabilityViolation)
}
