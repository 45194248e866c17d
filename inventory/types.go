/*
Package inventory provides the pharmacy lot ledger engine.

PURPOSE:
  Stock is tracked per purchase lot rather than per product total, so that
  expiry dates and supplier traceability survive for every batch. This
  package holds the rules that create, merge, consume and report on lots.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product:   Catalog entry (name, reorder threshold, reference prices)
  - Lot:       A received batch with remaining/initial quantity and expiry
  - Movement:  Immutable audit record of one quantity change on one lot
  - Purchase:  Immutable record of received goods (creates/replenishes lots)
  - Sale:      Immutable record of dispensed goods (consumes lots FEFO)
  - Dataset:   The whole state blob owned by an Engine

DESIGN PRINCIPLES:
  1. Derived stock: on-hand quantity is ALWAYS the sum of lot remainders,
     there is no counter that can drift
  2. Immutability: purchases, sales and movements are never edited or deleted
  3. Precision: prices and totals use decimal.Decimal
  4. Case-insensitive keys: product names and lot numbers are user-entered

SEE ALSO:
  - lots.go: Lot merge and stock queries
  - allocate.go: FEFO allocation
  - recorder.go: Purchase and sale recording
  - migrate.go: Ingest, migration and export
*/
package inventory

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG
// =============================================================================

// DefaultThreshold is the reorder threshold given to products created
// without one.
const DefaultThreshold = 5

// Product is a catalog entry. Quantity is a display snapshot written by
// RecomputeCatalogQuantities; the lot ledger stays authoritative.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Threshold     int             `json:"threshold"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Quantity      int             `json:"quantity"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PriceDefaults carries the values used when a product is created, and the
// reference prices applied when it already exists. Zero means "not supplied".
type PriceDefaults struct {
	Threshold     int
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
}

// =============================================================================
// LOT
// =============================================================================

type LotStatus string

const (
	LotActive   LotStatus = "active"
	LotDepleted LotStatus = "depleted"
)

// Lot is a received batch of a product.
//
// INVARIANTS:
//   - Remaining <= Initial
//   - Status == LotDepleted iff Remaining <= 0
type Lot struct {
	ID            string          `json:"id"`
	Product       string          `json:"product"`
	LotNumber     string          `json:"lot_number"`
	Remaining     int             `json:"remaining"`
	Initial       int             `json:"initial"`
	Expiry        Date            `json:"expiry"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Supplier      string          `json:"supplier"`
	Status        LotStatus       `json:"status"`
	Reference     string          `json:"reference"`
	CreatedAt     time.Time       `json:"created_at"`
	ModifiedAt    time.Time       `json:"modified_at"`
}

// LotInput is the incoming stock handed to AddOrMergeLot.
type LotInput struct {
	Product       string
	LotNumber     string
	Quantity      int
	Expiry        Date
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
	Supplier      string
}

// =============================================================================
// MOVEMENT
// =============================================================================

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Movement records a single quantity change on a single lot.
// Before and After are the lot's remaining quantity around the change.
type Movement struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Product   string    `json:"product"`
	LotNumber string    `json:"lot_number"`
	Direction Direction `json:"direction"`
	Quantity  int       `json:"quantity"`
	Before    int       `json:"before"`
	After     int       `json:"after"`
	Reference string    `json:"reference"`
	Note      string    `json:"note"`
	Actor     string    `json:"actor"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// PurchaseLine is one received line item.
type PurchaseLine struct {
	Product       string          `json:"product"`
	LotNumber     string          `json:"lot_number"`
	Quantity      int             `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Expiry        Date            `json:"expiry"`
	Supplier      string          `json:"supplier,omitempty"`
}

// Purchase is an immutable record of received goods.
type Purchase struct {
	ID            string         `json:"id"`
	Date          Date           `json:"date"`
	Supplier      string         `json:"supplier"`
	PaymentStatus string         `json:"payment_status"`
	Lines         []PurchaseLine `json:"lines"`
	CreatedAt     time.Time      `json:"created_at"`
	CreatedBy     string         `json:"created_by,omitempty"`
}

// Total is the purchase cost: sum of purchase price times quantity.
func (p Purchase) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		total = total.Add(l.PurchasePrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// SaleLine is one dispensed line item. Discount is a percentage.
type SaleLine struct {
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

// Amount is quantity x unit price x (1 - discount/100).
func (l SaleLine) Amount() decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(l.Discount.Div(decimal.NewFromInt(100)))
	return decimal.NewFromInt(int64(l.Quantity)).Mul(l.UnitPrice).Mul(factor)
}

// Sale is an immutable record of dispensed goods.
type Sale struct {
	ID            string          `json:"id"`
	Date          Date            `json:"date"`
	Client        string          `json:"client"`
	PaymentMode   string          `json:"payment_mode"`
	PaymentStatus string          `json:"payment_status"`
	Notes         string          `json:"notes,omitempty"`
	Lines         []SaleLine      `json:"lines"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	CreatedBy     string          `json:"created_by,omitempty"`
}

// =============================================================================
// DATASET - The whole state blob
// =============================================================================

// Metadata describes the organization and the document itself.
type Metadata struct {
	OrganizationName string    `json:"organization_name"`
	Version          string    `json:"version"`
	AppName          string    `json:"app_name"`
	ExportedBy       string    `json:"exported_by,omitempty"`
	ExportedAt       time.Time `json:"exported_at"`
}

// Company is the organization's contact card.
type Company struct {
	Name string `json:"name"`
}

// Dataset is everything the engine holds. Quotes, payments, returns, users
// and statistics are not interpreted by the engine; they are carried so an
// export reproduces what was ingested.
type Dataset struct {
	Metadata  Metadata   `json:"metadata"`
	Company   Company    `json:"company"`
	Products  []Product  `json:"products"`
	Lots      []Lot      `json:"lots"`
	Purchases []Purchase `json:"purchases"`
	Sales     []Sale     `json:"sales"`
	Movements []Movement `json:"movements"`

	Quotes     []json.RawMessage `json:"quotes"`
	Payments   []json.RawMessage `json:"payments"`
	Returns    []json.RawMessage `json:"returns"`
	Users      []json.RawMessage `json:"users"`
	Statistics json.RawMessage   `json:"statistics,omitempty"`
}

// DefaultMetadata is used by engines created without a dataset.
func DefaultMetadata() Metadata {
	return Metadata{
		OrganizationName: "PHARMACIE",
		Version:          "2.1-Lots",
		AppName:          "Pharma Gestion",
	}
}

// NewDataset returns an empty dataset with the given metadata.
func NewDataset(meta Metadata, company Company) *Dataset {
	ds := &Dataset{Metadata: meta, Company: company}
	ds.normalize()
	return ds
}

// normalize replaces missing sections with empty ones.
func (d *Dataset) normalize() {
	if d.Products == nil {
		d.Products = []Product{}
	}
	if d.Lots == nil {
		d.Lots = []Lot{}
	}
	if d.Purchases == nil {
		d.Purchases = []Purchase{}
	}
	if d.Sales == nil {
		d.Sales = []Sale{}
	}
	if d.Movements == nil {
		d.Movements = []Movement{}
	}
	if d.Quotes == nil {
		d.Quotes = []json.RawMessage{}
	}
	if d.Payments == nil {
		d.Payments = []json.RawMessage{}
	}
	if d.Returns == nil {
		d.Returns = []json.RawMessage{}
	}
	if d.Users == nil {
		d.Users = []json.RawMessage{}
	}
	for i := range d.Purchases {
		if d.Purchases[i].Lines == nil {
			d.Purchases[i].Lines = []PurchaseLine{}
		}
	}
	for i := range d.Sales {
		if d.Sales[i].Lines == nil {
			d.Sales[i].Lines = []SaleLine{}
		}
	}
}

// Clone returns a deep copy. Decimal values are immutable and shared.
func (d *Dataset) Clone() *Dataset {
	c := &Dataset{
		Metadata:   d.Metadata,
		Company:    d.Company,
		Products:   append([]Product{}, d.Products...),
		Lots:       append([]Lot{}, d.Lots...),
		Purchases:  make([]Purchase, len(d.Purchases)),
		Sales:      make([]Sale, len(d.Sales)),
		Movements:  append([]Movement{}, d.Movements...),
		Quotes:     append([]json.RawMessage{}, d.Quotes...),
		Payments:   append([]json.RawMessage{}, d.Payments...),
		Returns:    append([]json.RawMessage{}, d.Returns...),
		Users:      append([]json.RawMessage{}, d.Users...),
		Statistics: append(json.RawMessage(nil), d.Statistics...),
	}
	for i, p := range d.Purchases {
		p.Lines = append([]PurchaseLine{}, p.Lines...)
		c.Purchases[i] = p
	}
	for i, s := range d.Sales {
		s.Lines = append([]SaleLine{}, s.Lines...)
		c.Sales[i] = s
	}
	return c
}

// DocumentCount is the number of records across every list section.
func (d *Dataset) DocumentCount() int {
	return len(d.Products) + len(d.Lots) + len(d.Purchases) + len(d.Sales) +
		len(d.Movements) + len(d.Quotes) + len(d.Payments) + len(d.Returns) + len(d.Users)
}
