package inventory

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ExpiringSoonDays is the window in which an active lot is flagged as
// expiring soon.
const ExpiringSoonDays = 30

// =============================================================================
// STOCK LEVELS
// =============================================================================

type StockStatus string

const (
	StockOK  StockStatus = "ok"
	StockLow StockStatus = "low"
	StockOut StockStatus = "out"
)

// StockLevel is one catalog row with its quantity derived from the lots.
type StockLevel struct {
	Product       string          `json:"product"`
	Available     int             `json:"available"`
	Threshold     int             `json:"threshold"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Status        StockStatus     `json:"status"`
}

func stockStatus(available, threshold int) StockStatus {
	switch {
	case available <= 0:
		return StockOut
	case available <= threshold:
		return StockLow
	}
	return StockOK
}

// StockLevels returns one row per catalog product, in catalog order.
func (e *Engine) StockLevels() []StockLevel {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]StockLevel, 0, len(e.ds.Products))
	for _, p := range e.ds.Products {
		available := e.ds.totalAvailable(p.Name)
		out = append(out, StockLevel{
			Product:       p.Name,
			Available:     available,
			Threshold:     p.Threshold,
			PurchasePrice: p.PurchasePrice,
			SalePrice:     p.SalePrice,
			Status:        stockStatus(available, p.Threshold),
		})
	}
	return out
}

// =============================================================================
// LOT EXPIRY
// =============================================================================

type ExpiryStatus string

const (
	ExpiryActive       ExpiryStatus = "active"
	ExpiryExpiringSoon ExpiryStatus = "expiring_soon"
	ExpiryExpired      ExpiryStatus = "expired"
	ExpiryDepleted     ExpiryStatus = "depleted"
)

// LotView is a lot with its expiry evaluated against a reference day.
// DaysToExpiry is meaningful only when HasExpiry is set.
type LotView struct {
	Lot
	DaysToExpiry int          `json:"days_to_expiry"`
	HasExpiry    bool         `json:"has_expiry"`
	ExpiryStatus ExpiryStatus `json:"expiry_status"`
}

// daysUntil rounds up, so a lot expiring later today counts as one day out.
func daysUntil(expiry Date, asOf time.Time) int {
	return int(math.Ceil(expiry.Time.Sub(asOf).Hours() / 24))
}

func evaluateLot(l Lot, asOf time.Time) LotView {
	v := LotView{Lot: l, HasExpiry: !l.Expiry.IsZero(), ExpiryStatus: ExpiryActive}
	if v.HasExpiry {
		v.DaysToExpiry = daysUntil(l.Expiry, asOf)
	}
	switch {
	case l.Remaining <= 0:
		v.ExpiryStatus = ExpiryDepleted
	case v.HasExpiry && v.DaysToExpiry < 0:
		v.ExpiryStatus = ExpiryExpired
	case v.HasExpiry && v.DaysToExpiry <= ExpiringSoonDays:
		v.ExpiryStatus = ExpiryExpiringSoon
	}
	return v
}

// LotViews evaluates every lot against asOf, in ledger order.
func (e *Engine) LotViews(asOf time.Time) []LotView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]LotView, 0, len(e.ds.Lots))
	for _, l := range e.ds.Lots {
		out = append(out, evaluateLot(l, asOf))
	}
	return out
}

// =============================================================================
// DASHBOARD
// =============================================================================

type Dashboard struct {
	Organization string          `json:"organization"`
	Version      string          `json:"version"`
	Purchases    int             `json:"purchases"`
	Sales        int             `json:"sales"`
	Products     int             `json:"products"`
	Revenue      decimal.Decimal `json:"revenue"`
	Documents    int             `json:"documents"`
}

// Dashboard totals the recorded sales; revenue is the sum of sale totals.
func (e *Engine) Dashboard() Dashboard {
	e.mu.RLock()
	defer e.mu.RUnlock()

	revenue := decimal.Zero
	for _, s := range e.ds.Sales {
		revenue = revenue.Add(s.TotalAmount)
	}
	return Dashboard{
		Organization: e.ds.Metadata.OrganizationName,
		Version:      e.ds.Metadata.Version,
		Purchases:    len(e.ds.Purchases),
		Sales:        len(e.ds.Sales),
		Products:     len(e.ds.Products),
		Revenue:      revenue,
		Documents:    e.ds.DocumentCount(),
	}
}
