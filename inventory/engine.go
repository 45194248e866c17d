/*
engine.go - The Engine: owner of the dataset

PURPOSE:
  An Engine holds exactly one Dataset and serializes access to it. Every
  command runs as a synchronous in-memory pass under the write lock, so a
  sale's validation pass always completes before its allocation pass and no
  other caller can observe the dataset in between.

MUTATION FLOW:
  Engine.RecordSale(ctx, in)
      -> lock
      -> w := e.writer(actor)          // fixed timestamp for the whole command
      -> w.validate / w.allocate / ...
      -> unlock

  The writer carries the dataset it mutates rather than the engine, so the
  same rules run against a fresh dataset during Ingest before it is swapped in.

READS:
  Query methods return copies. Callers may keep or modify them freely.

SEE ALSO:
  - recorder.go: Purchase and sale commands
  - migrate.go: Ingest and export
  - views.go: Derived views (stock levels, lot expiry, dashboard)
*/
package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/lot-ledger/pkg/logger"
)

// Engine is the lot ledger engine. The zero value is not usable; use New.
type Engine struct {
	mu    sync.RWMutex
	ds    *Dataset
	now   func() time.Time
	newID func() string
	log   *logger.Logger
}

// New creates an engine with an empty dataset.
func New(opts ...Option) *Engine {
	e := &Engine{
		now:   time.Now,
		newID: newID,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ds == nil {
		e.ds = NewDataset(DefaultMetadata(), Company{})
	}
	return e
}

// writer applies ledger rules to one dataset with one timestamp.
type writer struct {
	ds    *Dataset
	now   time.Time
	newID func() string
	actor string
}

// writer must be called with e.mu held for writing.
func (e *Engine) writer(actor string) *writer {
	return e.writerFor(e.ds, actor)
}

func (e *Engine) writerFor(ds *Dataset, actor string) *writer {
	if actor == "" {
		actor = ds.Metadata.ExportedBy
	}
	return &writer{ds: ds, now: e.now().UTC(), newID: e.newID, actor: actor}
}

// =============================================================================
// QUERIES
// =============================================================================

func (e *Engine) Products() []Product {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Product{}, e.ds.Products...)
}

// Product looks up a catalog entry by case-insensitive name.
func (e *Engine) Product(name string) (Product, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := e.ds.productIndex(name); i >= 0 {
		return e.ds.Products[i], true
	}
	return Product{}, false
}

// Lots returns every lot in insertion order, depleted ones included.
func (e *Engine) Lots() []Lot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Lot{}, e.ds.Lots...)
}

// Movements returns the movement log newest first. An empty product returns
// every product; limit <= 0 means no limit.
func (e *Engine) Movements(product string, limit int) []Movement {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := []Movement{}
	for _, m := range e.ds.Movements {
		if product != "" && !sameName(m.Product, product) {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (e *Engine) Purchases() []Purchase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ds.Clone().Purchases
}

func (e *Engine) Sales() []Sale {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ds.Clone().Sales
}

// TotalAvailable is the sum of remaining quantity over the product's lots.
// It is recomputed from the lots on every call.
func (e *Engine) TotalAvailable(product string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ds.totalAvailable(product)
}

// Snapshot returns a deep copy of the dataset, suitable for persistence.
func (e *Engine) Snapshot() *Dataset {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ds.Clone()
}

// =============================================================================
// LOW-LEVEL COMMANDS
// =============================================================================

// These expose the ledger rules one at a time. RecordPurchase and RecordSale
// are the normal entry points.

// FindOrCreateProduct returns the catalog entry for name, creating it with
// defaults when absent. Non-zero prices in defaults overwrite the reference
// prices of an existing entry.
func (e *Engine) FindOrCreateProduct(name string, defaults PriceDefaults) Product {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writer("").findOrCreateProduct(name, defaults)
}

// AddOrMergeLot adds incoming stock to the matching lot or creates a new one.
// A quantity below one unit is rejected with ErrInvalidQuantity.
func (e *Engine) AddOrMergeLot(in LotInput, reference string) (Lot, error) {
	if in.Quantity <= 0 {
		return Lot{}, fmt.Errorf("lot %s of %s: %w", in.LotNumber, in.Product, ErrInvalidQuantity)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	lot := e.writer("").addOrMergeLot(in, reference)
	e.ds.recomputeCatalogQuantities()
	return lot, nil
}

// Allocate consumes quantity of product FEFO and returns the unsatisfied
// remainder. There is no rollback on a shortfall; callers check
// TotalAvailable first.
func (e *Engine) Allocate(product string, quantity int, reference string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	short := e.writer("").allocate(product, quantity, reference)
	e.ds.recomputeCatalogQuantities()
	return short
}

// RecomputeCatalogQuantities refreshes every product's display quantity.
func (e *Engine) RecomputeCatalogQuantities() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ds.recomputeCatalogQuantities()
}

// Reset clears every section. Metadata and company info are kept.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	before := e.ds.DocumentCount()
	e.ds = NewDataset(e.ds.Metadata, e.ds.Company)
	e.log.Infow("dataset reset", "documents_cleared", before)
	return nil
}
