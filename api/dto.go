/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  validator tags; responses reuse the inventory types where their JSON is
  already the public contract (products, lots, movements, transactions).

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Structural checks (required fields, date formats, discount range) are
  declared here as `validate` tags and run by the handler before the engine
  is called. Business rules (no valid line, insufficient stock) stay in the
  engine.

SEE ALSO:
  - handlers.go: Uses these types
  - inventory/types.go: Domain types
*/
package api

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/lot-ledger/inventory"
)

// =============================================================================
// CATALOG
// =============================================================================

// CreateProductRequest adds a catalog entry, or updates the reference prices
// of an existing one.
type CreateProductRequest struct {
	Name          string          `json:"name" validate:"required"`
	Threshold     int             `json:"threshold" validate:"gte=0"`
	PurchasePrice decimal.Decimal `json:"purchase_price" validate:"gte=0"`
	SalePrice     decimal.Decimal `json:"sale_price" validate:"gte=0"`
}

// AvailabilityResponse is the derived stock of one product, with an optional
// FEFO preview for a requested quantity.
type AvailabilityResponse struct {
	Product   string           `json:"product"`
	Available int              `json:"available"`
	Requested int              `json:"requested,omitempty"`
	Plan      []inventory.Draw `json:"plan,omitempty"`
	Short     int              `json:"short,omitempty"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type PurchaseLineRequest struct {
	Product       string          `json:"product"`
	LotNumber     string          `json:"lot_number"`
	Quantity      int             `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price" validate:"gte=0"`
	SalePrice     decimal.Decimal `json:"sale_price" validate:"gte=0"`
	Expiry        string          `json:"expiry" validate:"omitempty,datetime=2006-01-02"`
	Supplier      string          `json:"supplier"`
}

// RecordPurchaseRequest records received goods. Lines without a product or
// with a non-positive quantity are skipped by the engine.
type RecordPurchaseRequest struct {
	Date          string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Supplier      string                `json:"supplier"`
	PaymentStatus string                `json:"payment_status"`
	Lines         []PurchaseLineRequest `json:"lines" validate:"required,min=1,dive"`
	Actor         string                `json:"actor"`
}

type SaleLineRequest struct {
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Discount  decimal.Decimal `json:"discount" validate:"gte=0,lte=100"`
}

type RecordSaleRequest struct {
	Date          string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Client        string            `json:"client"`
	PaymentMode   string            `json:"payment_mode"`
	PaymentStatus string            `json:"payment_status"`
	Notes         string            `json:"notes"`
	Lines         []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
	Actor         string            `json:"actor"`
}

// PurchaseResponse adds the derived total to a purchase.
type PurchaseResponse struct {
	inventory.Purchase
	Total decimal.Decimal `json:"total"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// InsufficientStockDetails names the product a sale could not be served from.
type InsufficientStockDetails struct {
	Product   string `json:"product"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// TraceabilityDetails tells the client what to record instead of deleting.
type TraceabilityDetails struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Remedy string `json:"remedy"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// newValidator returns a validator that compares decimal fields as numbers.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// validationDetails maps each failing field to a short message.
func validationDetails(err error) map[string]string {
	details := map[string]string{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		details["body"] = err.Error()
		return details
	}
	for _, fe := range verrs {
		details[fe.Namespace()] = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return details
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func (r RecordPurchaseRequest) toInput() (inventory.PurchaseInput, error) {
	date, err := inventory.ParseDate(r.Date)
	if err != nil {
		return inventory.PurchaseInput{}, err
	}
	in := inventory.PurchaseInput{
		Date:          date,
		Supplier:      r.Supplier,
		PaymentStatus: r.PaymentStatus,
		Lines:         make([]inventory.PurchaseLine, 0, len(r.Lines)),
		Actor:         r.Actor,
	}
	for _, l := range r.Lines {
		expiry, err := inventory.ParseDate(l.Expiry)
		if err != nil {
			return inventory.PurchaseInput{}, err
		}
		in.Lines = append(in.Lines, inventory.PurchaseLine{
			Product:       l.Product,
			LotNumber:     l.LotNumber,
			Quantity:      l.Quantity,
			PurchasePrice: l.PurchasePrice,
			SalePrice:     l.SalePrice,
			Expiry:        expiry,
			Supplier:      l.Supplier,
		})
	}
	return in, nil
}

func (r RecordSaleRequest) toInput() (inventory.SaleInput, error) {
	date, err := inventory.ParseDate(r.Date)
	if err != nil {
		return inventory.SaleInput{}, err
	}
	in := inventory.SaleInput{
		Date:          date,
		Client:        r.Client,
		PaymentMode:   r.PaymentMode,
		PaymentStatus: r.PaymentStatus,
		Notes:         r.Notes,
		Lines:         make([]inventory.SaleLine, 0, len(r.Lines)),
		Actor:         r.Actor,
	}
	for _, l := range r.Lines {
		in.Lines = append(in.Lines, inventory.SaleLine{
			Product:   l.Product,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Discount:  l.Discount,
		})
	}
	return in, nil
}

func toPurchaseResponses(purchases []inventory.Purchase) []PurchaseResponse {
	out := make([]PurchaseResponse, len(purchases))
	for i, p := range purchases {
		out[i] = PurchaseResponse{Purchase: p, Total: p.Total()}
	}
	return out
}
