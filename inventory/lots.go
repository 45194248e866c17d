package inventory

import "fmt"

// =============================================================================
// LOT LEDGER
// =============================================================================

// lotIndex matches (product, lot number) case-insensitively.
func (d *Dataset) lotIndex(product, lotNumber string) int {
	pk, lk := nameKey(product), nameKey(lotNumber)
	for i := range d.Lots {
		if nameKey(d.Lots[i].Product) == pk && nameKey(d.Lots[i].LotNumber) == lk {
			return i
		}
	}
	return -1
}

// totalAvailable sums remaining over the product's lots with stock left.
func (d *Dataset) totalAvailable(product string) int {
	key := nameKey(product)
	total := 0
	for _, l := range d.Lots {
		if l.Remaining > 0 && nameKey(l.Product) == key {
			total += l.Remaining
		}
	}
	return total
}

func (d *Dataset) recomputeCatalogQuantities() {
	for i := range d.Products {
		d.Products[i].Quantity = d.totalAvailable(d.Products[i].Name)
	}
}

// addOrMergeLot is the only path through which lot quantities increase.
// A matched lot keeps its expiry, prices and supplier; its reference moves
// to the replenishing transaction.
func (w *writer) addOrMergeLot(in LotInput, reference string) Lot {
	if i := w.ds.lotIndex(in.Product, in.LotNumber); i >= 0 {
		lot := &w.ds.Lots[i]
		before := lot.Remaining
		lot.Remaining += in.Quantity
		lot.Initial += in.Quantity
		lot.ModifiedAt = w.now
		lot.Reference = reference
		if lot.Remaining > 0 {
			lot.Status = LotActive
		}
		w.recordMovement(*lot, DirectionIn, in.Quantity, before, reference, lotNote("Purchase", lot.LotNumber))
		return *lot
	}

	lot := Lot{
		ID:            w.newID(),
		Product:       in.Product,
		LotNumber:     in.LotNumber,
		Remaining:     in.Quantity,
		Initial:       in.Quantity,
		Expiry:        in.Expiry,
		PurchasePrice: in.PurchasePrice,
		SalePrice:     in.SalePrice,
		Supplier:      in.Supplier,
		Status:        LotDepleted,
		Reference:     reference,
		CreatedAt:     w.now,
		ModifiedAt:    w.now,
	}
	if lot.Remaining > 0 {
		lot.Status = LotActive
	}
	w.ds.Lots = append(w.ds.Lots, lot)
	w.recordMovement(lot, DirectionIn, in.Quantity, 0, reference, lotNote("Purchase", lot.LotNumber))
	return lot
}

func lotNote(kind, lotNumber string) string {
	return fmt.Sprintf("%s - Lot %s", kind, lotNumber)
}
