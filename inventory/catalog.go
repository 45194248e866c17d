package inventory

// =============================================================================
// CATALOG
// =============================================================================

// productIndex returns the position of the product named name, or -1.
func (d *Dataset) productIndex(name string) int {
	key := nameKey(name)
	for i := range d.Products {
		if nameKey(d.Products[i].Name) == key {
			return i
		}
	}
	return -1
}

// findOrCreateProduct never fails. A non-empty name is the caller's duty.
func (w *writer) findOrCreateProduct(name string, defaults PriceDefaults) Product {
	if i := w.ds.productIndex(name); i >= 0 {
		p := &w.ds.Products[i]
		if !defaults.PurchasePrice.IsZero() {
			p.PurchasePrice = defaults.PurchasePrice
		}
		if !defaults.SalePrice.IsZero() {
			p.SalePrice = defaults.SalePrice
		}
		return *p
	}

	threshold := defaults.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	p := Product{
		ID:            w.newID(),
		Name:          name,
		Threshold:     threshold,
		PurchasePrice: defaults.PurchasePrice,
		SalePrice:     defaults.SalePrice,
		CreatedAt:     w.now,
	}
	w.ds.Products = append(w.ds.Products, p)
	return p
}
