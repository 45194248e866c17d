/*
recorder.go - Purchase and sale commands

PURPOSE:
  The two entry points that change stock. Each one orchestrates the ledger
  rules and appends exactly one immutable transaction record.

RECORD PURCHASE:
  for each line with a product and quantity > 0:
      catalog upsert (line prices)
      add or merge lot (reference = purchase id)
  no valid line -> ErrNoValidLines, nothing recorded

RECORD SALE (two passes):
  1. Validation: for each product, the demand summed over its lines must not
     exceed TotalAvailable. Any failure -> InsufficientStockError, nothing
     mutated.
  2. Allocation: FEFO per line in line order. Cannot short after pass 1.
  total = sum of qty x unit price x (1 - discount/100)

Both commands end by recomputing the catalog display quantities.

DELETION:
  Purchases and sales are never deleted. A correction is a new transaction
  (supplier return, customer return).
*/
package inventory

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// PurchaseInput is the request to record received goods. A line without a
// supplier inherits Supplier.
type PurchaseInput struct {
	Date          Date
	Supplier      string
	PaymentStatus string
	Lines         []PurchaseLine
	Actor         string
}

// SaleInput is the request to record dispensed goods.
type SaleInput struct {
	Date          Date
	Client        string
	PaymentMode   string
	PaymentStatus string
	Notes         string
	Lines         []SaleLine
	Actor         string
}

// =============================================================================
// PURCHASE
// =============================================================================

// RecordPurchase creates or replenishes one lot per valid line and appends
// the purchase. Invalid lines are dropped from the recorded purchase.
func (e *Engine) RecordPurchase(ctx context.Context, in PurchaseInput) (Purchase, error) {
	lines := make([]PurchaseLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		if strings.TrimSpace(l.Product) == "" || l.Quantity <= 0 {
			continue
		}
		if l.Supplier == "" {
			l.Supplier = in.Supplier
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return Purchase{}, ErrNoValidLines
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Purchase{}, err
	}

	w := e.writer(in.Actor)
	p := Purchase{
		ID:            w.newID(),
		Date:          in.Date,
		Supplier:      in.Supplier,
		PaymentStatus: in.PaymentStatus,
		Lines:         lines,
		CreatedAt:     w.now,
		CreatedBy:     w.actor,
	}
	for _, l := range lines {
		w.receive(l, l.Supplier, p.ID)
	}
	w.ds.Purchases = append(w.ds.Purchases, p)
	w.ds.recomputeCatalogQuantities()
	p.Lines = append([]PurchaseLine{}, lines...)

	e.log.Infow("purchase recorded",
		"purchase_id", p.ID,
		"supplier", p.Supplier,
		"lines", len(lines),
		"total", p.Total().String(),
	)
	return p, nil
}

// receive is the per-line purchase rule shared with migration replay.
func (w *writer) receive(l PurchaseLine, supplier, reference string) Lot {
	w.findOrCreateProduct(l.Product, PriceDefaults{
		PurchasePrice: l.PurchasePrice,
		SalePrice:     l.SalePrice,
	})
	return w.addOrMergeLot(LotInput{
		Product:       l.Product,
		LotNumber:     l.LotNumber,
		Quantity:      l.Quantity,
		Expiry:        l.Expiry,
		PurchasePrice: l.PurchasePrice,
		SalePrice:     l.SalePrice,
		Supplier:      supplier,
	}, reference)
}

// DeletePurchase always fails. Use a supplier return instead.
func (e *Engine) DeletePurchase(_ context.Context, id string) error {
	e.log.Warnw("purchase deletion rejected", "purchase_id", id)
	return newTraceabilityError(KindPurchase, id)
}

// =============================================================================
// SALE
// =============================================================================

// RecordSale verifies stock for every line before drawing from any lot.
func (e *Engine) RecordSale(ctx context.Context, in SaleInput) (Sale, error) {
	lines := make([]SaleLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		if strings.TrimSpace(l.Product) == "" || l.Quantity <= 0 {
			continue
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return Sale{}, ErrNoValidLines
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Sale{}, err
	}

	// Pass 1: validation. Demand is summed per product so that two lines of
	// the same product cannot each pass against the same stock.
	demand := map[string]int{}
	for _, l := range lines {
		key := nameKey(l.Product)
		demand[key] += l.Quantity
		if available := e.ds.totalAvailable(l.Product); demand[key] > available {
			return Sale{}, &InsufficientStockError{
				Product:   l.Product,
				Requested: demand[key],
				Available: available,
			}
		}
	}

	// Pass 2: allocation.
	w := e.writer(in.Actor)
	s := Sale{
		ID:            w.newID(),
		Date:          in.Date,
		Client:        in.Client,
		PaymentMode:   in.PaymentMode,
		PaymentStatus: in.PaymentStatus,
		Notes:         in.Notes,
		Lines:         lines,
		TotalAmount:   decimal.Zero,
		CreatedAt:     w.now,
		CreatedBy:     w.actor,
	}
	for _, l := range lines {
		if short := w.allocate(l.Product, l.Quantity, s.ID); short > 0 {
			// Unreachable after validation.
			e.log.Errorw("allocation short after validation",
				"sale_id", s.ID, "product", l.Product, "short", short)
		}
		s.TotalAmount = s.TotalAmount.Add(l.Amount())
	}
	w.ds.Sales = append(w.ds.Sales, s)
	w.ds.recomputeCatalogQuantities()
	s.Lines = append([]SaleLine{}, lines...)

	e.log.Infow("sale recorded",
		"sale_id", s.ID,
		"client", s.Client,
		"lines", len(lines),
		"total", s.TotalAmount.String(),
	)
	return s, nil
}

// DeleteSale always fails. Use a customer return instead.
func (e *Engine) DeleteSale(_ context.Context, id string) error {
	e.log.Warnw("sale deletion rejected", "sale_id", id)
	return newTraceabilityError(KindSale, id)
}
