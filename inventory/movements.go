package inventory

// recordMovement prepends to the log so it reads newest first. before is the
// lot's remaining quantity ahead of the change; after is read from the lot.
func (w *writer) recordMovement(lot Lot, dir Direction, qty, before int, reference, note string) Movement {
	m := Movement{
		ID:        w.newID(),
		At:        w.now,
		Product:   lot.Product,
		LotNumber: lot.LotNumber,
		Direction: dir,
		Quantity:  qty,
		Before:    before,
		After:     lot.Remaining,
		Reference: reference,
		Note:      note,
		Actor:     w.actor,
	}
	w.ds.Movements = append([]Movement{m}, w.ds.Movements...)
	return m
}
