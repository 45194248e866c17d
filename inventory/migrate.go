/*
migrate.go - Ingest, migration and export

INGEST FLOW:
  decoded dataset (already fully parsed, see document.go / legacy.go)
      -> clone and default missing sections to empty
      -> lot ledger empty AND purchases exist?
             yes: replay every purchase line through catalog upsert +
                  AddOrMergeLot, in purchase order, reference = purchase id
      -> recompute catalog quantities (always)
      -> swap in under the write lock

  Replay is skipped whenever the ledger already holds a lot, which makes
  ingesting the same document twice a no-op for lots.

EXPORT:
  A deep copy with the metadata export timestamp set. The engine's own
  metadata is left untouched.
*/
package inventory

import (
	"context"
	"fmt"
	"strings"
)

// IngestResult reports what Ingest did besides replacing the dataset.
type IngestResult struct {
	Migrated    bool `json:"migrated"`
	LotsRebuilt int  `json:"lots_rebuilt"`
	Documents   int  `json:"documents"`
}

// Ingest replaces the engine's dataset with ds, rebuilding the lot ledger
// from purchase history when it is empty. ds is copied; the caller keeps
// ownership of it.
func (e *Engine) Ingest(ctx context.Context, ds *Dataset) (IngestResult, error) {
	if ds == nil {
		return IngestResult{}, fmt.Errorf("%w: empty dataset", ErrMalformedDocument)
	}
	next := ds.Clone()
	next.normalize()

	var res IngestResult
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return IngestResult{}, err
	}

	if len(next.Lots) == 0 && len(next.Purchases) > 0 {
		w := e.writerFor(next, "")
		res.LotsRebuilt = w.replayPurchases()
		res.Migrated = true
	}
	next.recomputeCatalogQuantities()
	res.Documents = next.DocumentCount()

	e.ds = next
	if res.Migrated {
		e.log.Infow("lot ledger rebuilt from purchase history",
			"purchases", len(next.Purchases),
			"lots", res.LotsRebuilt,
		)
	}
	e.log.Infow("dataset ingested", "documents", res.Documents)
	return res, nil
}

// replayPurchases feeds every complete purchase line back through the
// purchase rule and returns the number of lots in the rebuilt ledger.
func (w *writer) replayPurchases() int {
	for _, p := range w.ds.Purchases {
		for _, l := range p.Lines {
			if strings.TrimSpace(l.Product) == "" || l.LotNumber == "" || l.Quantity <= 0 {
				continue
			}
			supplier := p.Supplier
			if supplier == "" {
				supplier = l.Supplier
			}
			w.receive(l, supplier, p.ID)
		}
	}
	return len(w.ds.Lots)
}

// Export returns a deep copy of the dataset with the export timestamp set.
func (e *Engine) Export() *Dataset {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := e.ds.Clone()
	out.Metadata.ExportedAt = e.now().UTC()
	return out
}
