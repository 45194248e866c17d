/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	pharmacy data for demos. Each scenario goes through the same engine
	commands as the API (purchases, sales, ingest), so the resulting lots and
	movements are exactly what a real counter would have produced.

AVAILABLE SCENARIOS:

	counter-day:      A stocked shelf and a morning of FEFO sales
	expiry-watch:     Lots already expired, expiring soon, and far out
	legacy-migration: Purchase history without lots, rebuilt on ingest

HOW SCENARIOS WORK:
 1. Start a scratch engine with the current metadata
 2. Record purchases (or ingest a dataset) into it
 3. Optionally record sales
 4. Ingest the scratch dataset into the live engine and save the snapshot

A loader that fails leaves the live ledger and the store untouched.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "expiry-watch"}

Dates are relative to the handler clock so expiry statuses stay meaningful.

NOTE:

	Scenarios reset the ledger. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Reset, RecordPurchase, RecordSale
*/
package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/lot-ledger/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "counter-day",
		Name:        "Counter Day",
		Description: "Three products in stock, sales drawn earliest expiry first",
	},
	{
		ID:          "expiry-watch",
		Name:        "Expiry Watch",
		Description: "Expired, expiring-soon and long-dated lots side by side",
	},
	{
		ID:          "legacy-migration",
		Name:        "Legacy Migration",
		Description: "Purchases recorded before lots existed, rebuilt into a lot ledger",
	},
}

// scenarioLoader fills an empty engine. Dates are relative to today.
type scenarioLoader func(ctx context.Context, e *inventory.Engine, today inventory.Date) error

var scenarioLoaders = map[string]scenarioLoader{
	"counter-day":      loadCounterDayScenario,
	"expiry-watch":     loadExpiryWatchScenario,
	"legacy-migration": loadLegacyMigrationScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario replaces the ledger with a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown scenario", "unknown_scenario", req.ScenarioID)
		return
	}

	ctx := r.Context()
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	snap := h.Engine.Snapshot()
	scratch := inventory.New(
		inventory.WithClock(h.now),
		inventory.WithMetadata(snap.Metadata, snap.Company),
	)
	if err := load(ctx, scratch, h.today()); err != nil {
		h.engineError(w, r, err)
		return
	}
	if _, err := h.Engine.Ingest(ctx, scratch.Snapshot()); err != nil {
		h.engineError(w, r, err)
		return
	}
	if err := h.persist(ctx); err != nil {
		h.storeFailed(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"scenario":  req.ScenarioID,
		"dashboard": h.Engine.Dashboard(),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const demoActor = "demo@pharmacie.local"

func (h *Handler) today() inventory.Date {
	return inventory.DateOf(h.now().UTC())
}

func demoLine(product, lot string, qty int, buy, sell string, expiry inventory.Date) inventory.PurchaseLine {
	return inventory.PurchaseLine{
		Product:       product,
		LotNumber:     lot,
		Quantity:      qty,
		PurchasePrice: decimal.RequireFromString(buy),
		SalePrice:     decimal.RequireFromString(sell),
		Expiry:        expiry,
	}
}

func demoSale(product string, qty int, price, discount string) inventory.SaleLine {
	return inventory.SaleLine{
		Product:   product,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
		Discount:  decimal.RequireFromString(discount),
	}
}

func recordPurchases(ctx context.Context, e *inventory.Engine, purchases []inventory.PurchaseInput) error {
	for _, p := range purchases {
		p.Actor = demoActor
		if _, err := e.RecordPurchase(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// loadCounterDayScenario stocks three products from two suppliers and sells
// across lot boundaries.
func loadCounterDayScenario(ctx context.Context, e *inventory.Engine, today inventory.Date) error {
	err := recordPurchases(ctx, e, []inventory.PurchaseInput{
		{
			Date:          today.AddDays(-20),
			Supplier:      "Sopharma",
			PaymentStatus: "paid",
			Lines: []inventory.PurchaseLine{
				demoLine("Doliprane 500mg", "DOL-2401", 12, "9.80", "14.20", today.AddDays(60)),
				demoLine("Smecta", "SME-118", 20, "21.00", "29.50", today.AddDays(400)),
			},
		},
		{
			Date:          today.AddDays(-5),
			Supplier:      "Cooper Pharma",
			PaymentStatus: "pending",
			Lines: []inventory.PurchaseLine{
				demoLine("Doliprane 500mg", "DOL-2417", 30, "9.60", "14.20", today.AddDays(540)),
				demoLine("Aspegic 1000", "ASP-77", 4, "18.40", "26.00", inventory.Date{}),
			},
		},
	})
	if err != nil {
		return err
	}

	sales := []inventory.SaleInput{
		{
			Date:        today,
			Client:      "Comptoir",
			PaymentMode: "cash",
			Lines: []inventory.SaleLine{
				demoSale("Doliprane 500mg", 15, "14.20", "0"), // empties DOL-2401, 3 from DOL-2417
				demoSale("Smecta", 2, "29.50", "10"),
			},
		},
		{
			Date:        today,
			Client:      "Clinique Al Amal",
			PaymentMode: "card",
			Lines: []inventory.SaleLine{
				demoSale("Aspegic 1000", 3, "26.00", "0"),
			},
		},
	}
	for _, s := range sales {
		s.Actor = demoActor
		s.PaymentStatus = "paid"
		if _, err := e.RecordSale(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// loadExpiryWatchScenario receives lots whose expiry dates span every
// expiry status.
func loadExpiryWatchScenario(ctx context.Context, e *inventory.Engine, today inventory.Date) error {
	return recordPurchases(ctx, e, []inventory.PurchaseInput{
		{
			Date:          today.AddDays(-300),
			Supplier:      "Sopharma",
			PaymentStatus: "paid",
			Lines: []inventory.PurchaseLine{
				demoLine("Amoxicilline 1g", "AMX-0912", 6, "32.10", "45.00", today.AddDays(-10)),
				demoLine("Vitamine C 500", "VTC-331", 3, "12.00", "18.50", today.AddDays(12)),
			},
		},
		{
			Date:          today.AddDays(-2),
			Supplier:      "Cooper Pharma",
			PaymentStatus: "paid",
			Lines: []inventory.PurchaseLine{
				demoLine("Amoxicilline 1g", "AMX-1044", 24, "32.10", "45.00", today.AddDays(720)),
				demoLine("Vitamine C 500", "VTC-390", 40, "12.00", "18.50", today.AddDays(25)),
			},
		},
	})
}

// loadLegacyMigrationScenario ingests a purchase history with an empty lot
// ledger, as written before lots were tracked.
func loadLegacyMigrationScenario(ctx context.Context, e *inventory.Engine, today inventory.Date) error {
	snap := e.Snapshot()

	ds := inventory.NewDataset(snap.Metadata, snap.Company)
	ds.Products = []inventory.Product{
		{ID: "prod-legacy-1", Name: "Doliprane 500mg", Threshold: 10, Quantity: 999},
	}
	ds.Purchases = []inventory.Purchase{
		{
			ID:       "ach-legacy-1",
			Date:     today.AddDays(-90),
			Supplier: "Sopharma",
			Lines: []inventory.PurchaseLine{
				demoLine("Doliprane 500mg", "DOL-2310", 20, "9.50", "14.00", today.AddDays(90)),
				demoLine("Smecta", "SME-099", 10, "20.00", "28.00", today.AddDays(300)),
			},
			CreatedBy: demoActor,
		},
		{
			ID:       "ach-legacy-2",
			Date:     today.AddDays(-30),
			Supplier: "Cooper Pharma",
			Lines: []inventory.PurchaseLine{
				demoLine("doliprane 500MG", "dol-2310", 5, "9.50", "14.00", today.AddDays(90)),
			},
			CreatedBy: demoActor,
		},
	}

	_, err := e.Ingest(ctx, ds)
	return err
}
