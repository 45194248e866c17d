package inventory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lot-ledger/inventory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...inventory.Option) *inventory.Engine {
	t.Helper()
	seq := 0
	base := []inventory.Option{
		inventory.WithClock(func() time.Time { return testNow }),
		inventory.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	}
	return inventory.New(append(base, opts...)...)
}

func day(s string) inventory.Date {
	d, err := inventory.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pline(product, lot string, qty int, expiry string) inventory.PurchaseLine {
	return inventory.PurchaseLine{
		Product:       product,
		LotNumber:     lot,
		Quantity:      qty,
		PurchasePrice: money("4.50"),
		SalePrice:     money("7.00"),
		Expiry:        day(expiry),
	}
}

func sline(product string, qty int, unit string) inventory.SaleLine {
	return inventory.SaleLine{Product: product, Quantity: qty, UnitPrice: money(unit)}
}

func buy(t *testing.T, e *inventory.Engine, lines ...inventory.PurchaseLine) inventory.Purchase {
	t.Helper()
	p, err := e.RecordPurchase(context.Background(), inventory.PurchaseInput{
		Date:          day("2025-05-01"),
		Supplier:      "Sopharma",
		PaymentStatus: "paid",
		Lines:         lines,
	})
	require.NoError(t, err)
	return p
}

func sell(t *testing.T, e *inventory.Engine, lines ...inventory.SaleLine) inventory.Sale {
	t.Helper()
	s, err := e.RecordSale(context.Background(), inventory.SaleInput{
		Date:          day("2025-06-01"),
		Client:        "Walk-in",
		PaymentMode:   "cash",
		PaymentStatus: "paid",
		Lines:         lines,
	})
	require.NoError(t, err)
	return s
}

func lotByNumber(t *testing.T, e *inventory.Engine, number string) inventory.Lot {
	t.Helper()
	for _, l := range e.Lots() {
		if l.LotNumber == number {
			return l
		}
	}
	t.Fatalf("lot %s not found", number)
	return inventory.Lot{}
}

// =============================================================================
// CATALOG
// =============================================================================

func TestFindOrCreateProduct_CreatesWithDefaults(t *testing.T) {
	// GIVEN: An empty catalog
	// WHEN: A product is looked up without a threshold
	// THEN: It is created with threshold 5 and zero prices

	e := newTestEngine(t)

	p := e.FindOrCreateProduct("Doliprane 1g", inventory.PriceDefaults{})

	assert.Equal(t, "Doliprane 1g", p.Name)
	assert.Equal(t, inventory.DefaultThreshold, p.Threshold)
	assert.True(t, p.PurchasePrice.IsZero())
	assert.True(t, p.SalePrice.IsZero())
	assert.Equal(t, testNow, p.CreatedAt)
	assert.Len(t, e.Products(), 1)
}

func TestFindOrCreateProduct_CaseInsensitiveAndPriceOverwrite(t *testing.T) {
	// GIVEN: A product with reference prices
	// WHEN: It is looked up with different case, a new sale price and no purchase price
	// THEN: The same entry is returned, only the supplied price is overwritten

	e := newTestEngine(t)
	first := e.FindOrCreateProduct("Amoxicilline", inventory.PriceDefaults{
		Threshold:     10,
		PurchasePrice: money("3"),
		SalePrice:     money("5"),
	})

	again := e.FindOrCreateProduct("AMOXICILLINE", inventory.PriceDefaults{SalePrice: money("6")})

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Amoxicilline", again.Name)
	assert.Equal(t, 10, again.Threshold)
	assert.True(t, money("3").Equal(again.PurchasePrice))
	assert.True(t, money("6").Equal(again.SalePrice))
	assert.Len(t, e.Products(), 1)
}

// =============================================================================
// LOT LEDGER
// =============================================================================

func TestAddOrMergeLot_MergeAddsToRemainingAndInitial(t *testing.T) {
	// GIVEN: Lot L1 of product P received with quantity 10
	// WHEN: 5 more units of "l1" (different case) are received
	// THEN: One lot with remaining 15 / initial 15 and two "in" movements

	e := newTestEngine(t)
	first := buy(t, e, pline("Paracetamol", "L1", 10, "2026-01-01"))
	second := buy(t, e, pline("paracetamol", "l1", 5, "2026-01-01"))

	lots := e.Lots()
	require.Len(t, lots, 1)
	assert.Equal(t, 15, lots[0].Remaining)
	assert.Equal(t, 15, lots[0].Initial)
	assert.Equal(t, inventory.LotActive, lots[0].Status)
	assert.Equal(t, second.ID, lots[0].Reference)
	assert.Equal(t, 15, e.TotalAvailable("PARACETAMOL"))

	moves := e.Movements("Paracetamol", 0)
	require.Len(t, moves, 2)
	// newest first
	assert.Equal(t, second.ID, moves[0].Reference)
	assert.Equal(t, 10, moves[0].Before)
	assert.Equal(t, 15, moves[0].After)
	assert.Equal(t, first.ID, moves[1].Reference)
	assert.Equal(t, 0, moves[1].Before)
	assert.Equal(t, 10, moves[1].After)
	for _, m := range moves {
		assert.Equal(t, inventory.DirectionIn, m.Direction)
		assert.Equal(t, "Purchase - Lot L1", m.Note)
	}
}

func TestAddOrMergeLot_ReactivatesDepletedLot(t *testing.T) {
	// GIVEN: A lot that has been sold out
	// WHEN: The same lot number is received again
	// THEN: The lot is active again with the new stock

	e := newTestEngine(t)
	buy(t, e, pline("Ibuprofene", "IB-7", 4, "2026-03-01"))
	sell(t, e, sline("Ibuprofene", 4, "2.00"))
	require.Equal(t, inventory.LotDepleted, lotByNumber(t, e, "IB-7").Status)

	lot, err := e.AddOrMergeLot(inventory.LotInput{Product: "Ibuprofene", LotNumber: "IB-7", Quantity: 6}, "return-1")
	require.NoError(t, err)

	assert.Equal(t, inventory.LotActive, lot.Status)
	assert.Equal(t, 6, lot.Remaining)
	assert.Equal(t, 10, lot.Initial)
	assert.Equal(t, 6, e.TotalAvailable("Ibuprofene"))
}

func TestAddOrMergeLot_RejectsNonPositiveQuantity(t *testing.T) {
	// GIVEN: Lot IB-7 holding 4 units
	// WHEN: Zero or negative stock is added, to IB-7 or to a new lot number
	// THEN: Each call fails with ErrInvalidQuantity and the ledger is untouched

	e := newTestEngine(t)
	buy(t, e, pline("Ibuprofene", "IB-7", 4, "2026-03-01"))

	for _, in := range []inventory.LotInput{
		{Product: "Ibuprofene", LotNumber: "IB-7", Quantity: -4},
		{Product: "Ibuprofene", LotNumber: "IB-9", Quantity: 0},
		{Product: "Ibuprofene", LotNumber: "IB-9", Quantity: -4},
	} {
		_, err := e.AddOrMergeLot(in, "adjust-1")
		require.ErrorIs(t, err, inventory.ErrInvalidQuantity, "%s qty %d", in.LotNumber, in.Quantity)
		assert.True(t, inventory.IsClientError(err))
	}

	require.Len(t, e.Lots(), 1)
	assert.Equal(t, 4, lotByNumber(t, e, "IB-7").Remaining)
	assert.Equal(t, inventory.LotActive, lotByNumber(t, e, "IB-7").Status)
	assert.Len(t, e.Movements("Ibuprofene", 0), 1)
	assert.Equal(t, 4, e.TotalAvailable("Ibuprofene"))
}

func TestAddOrMergeLot_SameNumberDifferentProductIsSeparate(t *testing.T) {
	e := newTestEngine(t)
	buy(t, e,
		pline("Aspirine", "B01", 3, "2026-01-01"),
		pline("Vitamine C", "B01", 4, "2026-01-01"),
	)

	assert.Len(t, e.Lots(), 2)
	assert.Equal(t, 3, e.TotalAvailable("Aspirine"))
	assert.Equal(t, 4, e.TotalAvailable("Vitamine C"))
}

// =============================================================================
// FEFO ALLOCATION
// =============================================================================

func TestRecordSale_FEFO_EarliestExpiryFirst(t *testing.T) {
	// GIVEN: Lots B (exp 2026-01-01, 5) received before A (exp 2025-01-01, 5)
	// WHEN: 7 units are sold
	// THEN: A is drawn 5 and depleted, B is drawn 2 and keeps 3

	e := newTestEngine(t)
	buy(t, e,
		pline("Smecta", "B", 5, "2026-01-01"),
		pline("Smecta", "A", 5, "2025-01-01"),
	)

	sale := sell(t, e, sline("Smecta", 7, "3.00"))

	a := lotByNumber(t, e, "A")
	b := lotByNumber(t, e, "B")
	assert.Equal(t, 0, a.Remaining)
	assert.Equal(t, inventory.LotDepleted, a.Status)
	assert.Equal(t, 3, b.Remaining)
	assert.Equal(t, inventory.LotActive, b.Status)
	assert.Equal(t, 3, e.TotalAvailable("Smecta"))

	out := e.Movements("Smecta", 2)
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].LotNumber)
	assert.Equal(t, 2, out[0].Quantity)
	assert.Equal(t, "A", out[1].LotNumber)
	assert.Equal(t, 5, out[1].Quantity)
	for _, m := range out {
		assert.Equal(t, inventory.DirectionOut, m.Direction)
		assert.Equal(t, sale.ID, m.Reference)
	}
}

func TestPlanAllocation_TiesKeepInsertionOrderAndUndatedLast(t *testing.T) {
	// GIVEN: An undated lot, then two lots expiring the same day
	// WHEN: An allocation is planned for all the stock
	// THEN: Same-day lots are drawn in receipt order and the undated lot last

	e := newTestEngine(t)
	buy(t, e,
		pline("Gaviscon", "NODATE", 2, ""),
		pline("Gaviscon", "SAME-1", 2, "2025-09-01"),
		pline("Gaviscon", "SAME-2", 2, "2025-09-01"),
	)

	draws, short := e.PlanAllocation("gaviscon", 7)

	assert.Equal(t, 1, short)
	require.Len(t, draws, 3)
	assert.Equal(t, "SAME-1", draws[0].LotNumber)
	assert.Equal(t, "SAME-2", draws[1].LotNumber)
	assert.Equal(t, "NODATE", draws[2].LotNumber)
	assert.Equal(t, 6, e.TotalAvailable("Gaviscon"), "planning must not mutate")
}

func TestAllocate_ShortfallReturnsRemainderWithoutRollback(t *testing.T) {
	e := newTestEngine(t)
	buy(t, e, pline("Spasfon", "S1", 3, "2025-12-01"))

	short := e.Allocate("Spasfon", 5, "manual")

	assert.Equal(t, 2, short)
	assert.Equal(t, 0, e.TotalAvailable("Spasfon"))
	assert.Equal(t, inventory.LotDepleted, lotByNumber(t, e, "S1").Status)
}

// =============================================================================
// SALE VALIDATION
// =============================================================================

func TestRecordSale_InsufficientStock_NoMutation(t *testing.T) {
	// GIVEN: 10 units of Doliprane and 2 of Efferalgan
	// WHEN: A sale asks for 3 Doliprane and 5 Efferalgan
	// THEN: The sale fails naming Efferalgan, and nothing changes

	e := newTestEngine(t)
	buy(t, e,
		pline("Doliprane", "D1", 10, "2026-01-01"),
		pline("Efferalgan", "E1", 2, "2026-01-01"),
	)
	lotsBefore := e.Lots()
	movesBefore := e.Movements("", 0)

	_, err := e.RecordSale(context.Background(), inventory.SaleInput{
		Lines: []inventory.SaleLine{
			sline("Doliprane", 3, "2.00"),
			sline("Efferalgan", 5, "2.00"),
		},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Efferalgan", stockErr.Product)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
	assert.True(t, inventory.IsClientError(err))

	assert.Equal(t, lotsBefore, e.Lots())
	assert.Equal(t, movesBefore, e.Movements("", 0))
	assert.Empty(t, e.Sales())
}

func TestRecordSale_DemandAggregatedPerProduct(t *testing.T) {
	// GIVEN: 5 units in stock
	// WHEN: Two lines of the same product ask for 4 each
	// THEN: The combined demand of 8 is rejected

	e := newTestEngine(t)
	buy(t, e, pline("Maalox", "M1", 5, "2026-01-01"))

	_, err := e.RecordSale(context.Background(), inventory.SaleInput{
		Lines: []inventory.SaleLine{sline("Maalox", 4, "1"), sline("MAALOX", 4, "1")},
	})

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 8, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 5, e.TotalAvailable("Maalox"))
}

func TestRecordSale_TotalAppliesDiscount(t *testing.T) {
	e := newTestEngine(t)
	buy(t, e, pline("Voltarene", "V1", 10, "2026-01-01"))

	discounted := sline("Voltarene", 2, "10.00")
	discounted.Discount = money("10")
	sale := sell(t, e, discounted, sline("Voltarene", 1, "5.00"))

	assert.True(t, money("23").Equal(sale.TotalAmount), "got %s", sale.TotalAmount)
	assert.Equal(t, 7, e.TotalAvailable("Voltarene"))
	require.Len(t, e.Sales(), 1)
}

func TestRecord_NoValidLines(t *testing.T) {
	// GIVEN: Line items with no product or no positive quantity
	// WHEN: A purchase or sale is recorded from them
	// THEN: ErrNoValidLines and nothing is recorded

	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RecordPurchase(ctx, inventory.PurchaseInput{
		Lines: []inventory.PurchaseLine{pline("", "X", 3, ""), pline("Zyrtec", "Z", 0, "")},
	})
	assert.ErrorIs(t, err, inventory.ErrNoValidLines)

	_, err = e.RecordSale(ctx, inventory.SaleInput{
		Lines: []inventory.SaleLine{sline("  ", 1, "1"), sline("Zyrtec", -2, "1")},
	})
	assert.ErrorIs(t, err, inventory.ErrNoValidLines)

	assert.Empty(t, e.Purchases())
	assert.Empty(t, e.Sales())
	assert.Empty(t, e.Products())
	assert.Empty(t, e.Movements("", 0))
}

func TestRecordPurchase_DropsInvalidLinesAndInheritsSupplier(t *testing.T) {
	e := newTestEngine(t)

	p := buy(t, e,
		pline("Zyrtec", "Z1", 0, "2026-01-01"),
		pline("Zyrtec", "Z2", 4, "2026-01-01"),
	)

	require.Len(t, p.Lines, 1)
	assert.Equal(t, "Z2", p.Lines[0].LotNumber)
	assert.Equal(t, "Sopharma", p.Lines[0].Supplier)
	assert.Equal(t, "Sopharma", lotByNumber(t, e, "Z2").Supplier)
	assert.True(t, money("18").Equal(p.Total()))
}

// =============================================================================
// TRACEABILITY
// =============================================================================

func TestDelete_AlwaysRejected(t *testing.T) {
	// GIVEN: A recorded purchase and sale
	// WHEN: Either is deleted
	// THEN: The deletion is rejected with an advisory and nothing changes

	e := newTestEngine(t)
	ctx := context.Background()
	p := buy(t, e, pline("Dafalgan", "DF1", 5, "2026-01-01"))
	s := sell(t, e, sline("Dafalgan", 1, "2"))

	err := e.DeletePurchase(ctx, p.ID)
	assert.ErrorIs(t, err, inventory.ErrTraceabilityViolation)
	var trErr *inventory.TraceabilityError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, inventory.KindPurchase, trErr.Kind)
	assert.Contains(t, trErr.Remedy, "supplier return")
	assert.True(t, inventory.IsPolicyRejection(err))

	err = e.DeleteSale(ctx, s.ID)
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, inventory.KindSale, trErr.Kind)
	assert.Contains(t, trErr.Remedy, "customer return")

	assert.Len(t, e.Purchases(), 1)
	assert.Len(t, e.Sales(), 1)
	assert.Equal(t, 4, e.TotalAvailable("Dafalgan"))
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestInvariants_StockIsSumOfLotsAndMovementsBalance(t *testing.T) {
	// GIVEN: A mixed history of purchases and sales across products
	// THEN: Every product's stock equals the sum of its lot remainders,
	//       the catalog snapshot agrees after recompute, and every movement's
	//       before/after differ by exactly its quantity

	e := newTestEngine(t)
	buy(t, e,
		pline("A", "A1", 8, "2025-10-01"),
		pline("A", "A2", 4, "2025-08-01"),
		pline("B", "B1", 6, ""),
	)
	sell(t, e, sline("A", 5, "1"), sline("B", 2, "1"))
	buy(t, e, pline("a", "a2", 3, "2025-08-01"))
	sell(t, e, sline("A", 9, "1"))

	sums := map[string]int{}
	for _, l := range e.Lots() {
		assert.LessOrEqual(t, l.Remaining, l.Initial)
		assert.Equal(t, l.Remaining <= 0, l.Status == inventory.LotDepleted)
		if l.Remaining > 0 {
			sums[l.Product] += l.Remaining
		}
	}
	assert.Equal(t, sums["A"], e.TotalAvailable("A"))
	assert.Equal(t, sums["B"], e.TotalAvailable("B"))
	assert.Equal(t, 1, e.TotalAvailable("A"))
	assert.Equal(t, 4, e.TotalAvailable("B"))

	e.RecomputeCatalogQuantities()
	for _, p := range e.Products() {
		assert.Equal(t, e.TotalAvailable(p.Name), p.Quantity, p.Name)
	}

	for _, m := range e.Movements("", 0) {
		switch m.Direction {
		case inventory.DirectionIn:
			assert.Equal(t, m.Before+m.Quantity, m.After)
		case inventory.DirectionOut:
			assert.Equal(t, m.Before-m.Quantity, m.After)
		}
	}
}

func TestMovements_FilterAndLimit(t *testing.T) {
	e := newTestEngine(t)
	buy(t, e, pline("X", "X1", 1, ""), pline("Y", "Y1", 1, ""), pline("X", "X2", 1, ""))

	assert.Len(t, e.Movements("", 0), 3)
	assert.Len(t, e.Movements("x", 0), 2)
	latest := e.Movements("", 1)
	require.Len(t, latest, 1)
	assert.Equal(t, "X2", latest[0].LotNumber)
}

// =============================================================================
// ACTOR, RESET, CANCELLATION
// =============================================================================

func TestActor_FallsBackToMetadataExportedBy(t *testing.T) {
	meta := inventory.DefaultMetadata()
	meta.ExportedBy = "pharmacien@example.com"
	e := newTestEngine(t, inventory.WithMetadata(meta, inventory.Company{Name: "Pharmacie Centrale"}))

	p := buy(t, e, pline("K", "K1", 2, ""))
	s, err := e.RecordSale(context.Background(), inventory.SaleInput{
		Lines: []inventory.SaleLine{sline("K", 1, "1")},
		Actor: "caissier@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "pharmacien@example.com", p.CreatedBy)
	assert.Equal(t, "caissier@example.com", s.CreatedBy)
	moves := e.Movements("", 0)
	assert.Equal(t, "caissier@example.com", moves[0].Actor)
	assert.Equal(t, "pharmacien@example.com", moves[1].Actor)
}

func TestReset_KeepsMetadataAndCompany(t *testing.T) {
	meta := inventory.DefaultMetadata()
	meta.OrganizationName = "PHARMACIE DU CENTRE"
	e := newTestEngine(t, inventory.WithMetadata(meta, inventory.Company{Name: "Centre"}))
	buy(t, e, pline("K", "K1", 2, ""))

	require.NoError(t, e.Reset(context.Background()))

	snap := e.Snapshot()
	assert.Equal(t, "PHARMACIE DU CENTRE", snap.Metadata.OrganizationName)
	assert.Equal(t, "Centre", snap.Company.Name)
	assert.Zero(t, snap.DocumentCount())
	assert.NotNil(t, snap.Lots)
}

func TestRecordPurchase_CancelledContext(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RecordPurchase(ctx, inventory.PurchaseInput{
		Lines: []inventory.PurchaseLine{pline("K", "K1", 2, "")},
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.Lots())
}
