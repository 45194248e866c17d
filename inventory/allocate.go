/*
allocate.go - FEFO allocation (First Expired, First Out)

ALGORITHM:
  1. Select the product's lots with remaining > 0
  2. Stable-sort ascending by expiry; lots without an expiry sort last
  3. Draw min(remaining, stillNeeded) from each lot in that order
  4. Stop when stillNeeded reaches 0

  Example: lots A(exp 2025-01-01, 5) and B(exp 2026-01-01, 5), need 7
      -> A drawn 5 (depleted), B drawn 2 (3 left)

Ties keep insertion order, so two lots expiring the same day are drawn in
the order they were received.
*/
package inventory

import "slices"

// Draw is one planned or executed withdrawal from a lot.
type Draw struct {
	LotID     string `json:"lot_id"`
	LotNumber string `json:"lot_number"`
	Expiry    Date   `json:"expiry"`
	Quantity  int    `json:"quantity"`
}

// fefoOrder returns indexes into d.Lots in allocation order.
func (d *Dataset) fefoOrder(product string) []int {
	key := nameKey(product)
	var idx []int
	for i, l := range d.Lots {
		if l.Remaining > 0 && nameKey(l.Product) == key {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return compareExpiry(d.Lots[a].Expiry, d.Lots[b].Expiry)
	})
	return idx
}

func compareExpiry(a, b Date) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	}
	return a.Time.Compare(b.Time)
}

type draw struct {
	lot int
	qty int
}

// plan computes the draws for quantity without touching any lot.
func (d *Dataset) plan(product string, quantity int) ([]draw, int) {
	var draws []draw
	need := quantity
	for _, i := range d.fefoOrder(product) {
		if need <= 0 {
			break
		}
		take := min(d.Lots[i].Remaining, need)
		draws = append(draws, draw{lot: i, qty: take})
		need -= take
	}
	return draws, max(need, 0)
}

// allocate executes the plan: decrement, mark depleted, one "out" movement
// per draw. It returns the unsatisfied remainder and does not roll back.
func (w *writer) allocate(product string, quantity int, reference string) int {
	draws, short := w.ds.plan(product, quantity)
	for _, dr := range draws {
		lot := &w.ds.Lots[dr.lot]
		before := lot.Remaining
		lot.Remaining -= dr.qty
		lot.ModifiedAt = w.now
		if lot.Remaining <= 0 {
			lot.Status = LotDepleted
		}
		w.recordMovement(*lot, DirectionOut, dr.qty, before, reference, lotNote("Sale", lot.LotNumber))
	}
	return short
}

// PlanAllocation previews which lots a sale of quantity would draw from,
// and how much would remain unsatisfied.
func (e *Engine) PlanAllocation(product string, quantity int) ([]Draw, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	draws, short := e.ds.plan(product, quantity)
	out := make([]Draw, 0, len(draws))
	for _, dr := range draws {
		lot := e.ds.Lots[dr.lot]
		out = append(out, Draw{LotID: lot.ID, LotNumber: lot.LotNumber, Expiry: lot.Expiry, Quantity: dr.qty})
	}
	return out, short
}
