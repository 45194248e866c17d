package inventory_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lot-ledger/inventory"
)

// purchaseHistory is a dataset as written before lots existed: purchases
// only, an empty ledger and a stale catalog quantity.
func purchaseHistory() *inventory.Dataset {
	ds := inventory.NewDataset(inventory.DefaultMetadata(), inventory.Company{Name: "Pharmacie"})
	ds.Products = []inventory.Product{{ID: "p-1", Name: "Doliprane", Threshold: 5, Quantity: 99}}
	ds.Purchases = []inventory.Purchase{
		{
			ID:       "ach-1",
			Date:     day("2025-01-10"),
			Supplier: "Sopharma",
			Lines: []inventory.PurchaseLine{
				pline("Doliprane", "D-01", 10, "2026-01-01"),
				pline("Smecta", "", 4, "2026-01-01"), // no lot number: skipped
			},
		},
		{
			ID: "ach-2",
			Lines: []inventory.PurchaseLine{
				func() inventory.PurchaseLine {
					l := pline("doliprane", "d-01", 5, "2026-01-01")
					l.Supplier = "Cooper"
					return l
				}(),
			},
		},
	}
	return ds
}

func TestIngest_RebuildsEmptyLedgerFromPurchases(t *testing.T) {
	// GIVEN: A dataset with purchases but no lots
	// WHEN: It is ingested
	// THEN: Lots are rebuilt in purchase order and catalog quantities recomputed

	e := newTestEngine(t)

	res, err := e.Ingest(context.Background(), purchaseHistory())
	require.NoError(t, err)

	assert.True(t, res.Migrated)
	assert.Equal(t, 1, res.LotsRebuilt)

	lots := e.Lots()
	require.Len(t, lots, 1)
	assert.Equal(t, 15, lots[0].Remaining)
	assert.Equal(t, 15, lots[0].Initial)
	assert.Equal(t, "Sopharma", lots[0].Supplier)
	assert.Equal(t, "ach-2", lots[0].Reference)

	products := e.Products()
	require.Len(t, products, 1)
	assert.Equal(t, 15, products[0].Quantity)
	assert.Len(t, e.Movements("", 0), 2)
}

func TestIngest_SupplierFallsBackToLineSupplier(t *testing.T) {
	ds := inventory.NewDataset(inventory.DefaultMetadata(), inventory.Company{})
	l := pline("Aspegic", "AS-1", 3, "")
	l.Supplier = "Cooper"
	ds.Purchases = []inventory.Purchase{{ID: "ach-1", Lines: []inventory.PurchaseLine{l}}}

	e := newTestEngine(t)
	_, err := e.Ingest(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, "Cooper", lotByNumber(t, e, "AS-1").Supplier)
}

func TestIngest_Idempotent(t *testing.T) {
	// GIVEN: A dataset already migrated once
	// WHEN: Its export is ingested again
	// THEN: Replay is skipped and the ledger is unchanged

	e := newTestEngine(t)
	_, err := e.Ingest(context.Background(), purchaseHistory())
	require.NoError(t, err)
	lotsBefore := e.Lots()

	res, err := e.Ingest(context.Background(), e.Export())
	require.NoError(t, err)

	assert.False(t, res.Migrated)
	assert.Zero(t, res.LotsRebuilt)
	assert.Equal(t, lotsBefore, e.Lots())
}

func TestIngest_CopiesInput(t *testing.T) {
	ds := purchaseHistory()
	e := newTestEngine(t)
	_, err := e.Ingest(context.Background(), ds)
	require.NoError(t, err)

	assert.Empty(t, ds.Lots, "caller's dataset must not be mutated")
	ds.Purchases[0].Supplier = "changed"
	assert.Equal(t, "Sopharma", e.Purchases()[0].Supplier)
}

func TestIngest_NilDataset(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, inventory.ErrMalformedDocument)
}

func TestExportIngest_RoundTrip(t *testing.T) {
	// GIVEN: An engine with purchases, sales and pass-through sections
	// WHEN: Its export is encoded, decoded and ingested into a fresh engine
	// THEN: The second export is identical to the first

	e := newTestEngine(t)
	ds := purchaseHistory()
	ds.Quotes = append(ds.Quotes, []byte(`{"id":"dev-1","total":12.5}`))
	ds.Statistics = []byte(`{"visits":3}`)
	_, err := e.Ingest(context.Background(), ds)
	require.NoError(t, err)
	sell(t, e, sline("Doliprane", 6, "2.10"))

	var first bytes.Buffer
	require.NoError(t, inventory.EncodeDocument(&first, e.Export()))

	decoded, err := inventory.DecodeDocument(bytes.NewReader(first.Bytes()))
	require.NoError(t, err)
	other := newTestEngine(t)
	res, err := other.Ingest(context.Background(), decoded)
	require.NoError(t, err)
	assert.False(t, res.Migrated)

	var second bytes.Buffer
	require.NoError(t, inventory.EncodeDocument(&second, other.Export()))

	assert.JSONEq(t, first.String(), second.String())
	assert.Equal(t, e.TotalAvailable("Doliprane"), other.TotalAvailable("Doliprane"))
}

func TestExport_SetsTimestampOnCopyOnly(t *testing.T) {
	e := newTestEngine(t)

	out := e.Export()

	assert.Equal(t, testNow, out.Metadata.ExportedAt)
	assert.True(t, e.Snapshot().Metadata.ExportedAt.IsZero())
}

func TestDecodeDocument_Malformed(t *testing.T) {
	// GIVEN: An engine holding stock
	// WHEN: A truncated document is decoded
	// THEN: ErrMalformedDocument, and the engine keeps its state

	e := newTestEngine(t)
	buy(t, e, pline("K", "K1", 2, ""))

	_, err := inventory.DecodeDocument(strings.NewReader(`{"metadata": {`))

	assert.ErrorIs(t, err, inventory.ErrMalformedDocument)
	assert.True(t, inventory.IsClientError(err))
	assert.Equal(t, 2, e.TotalAvailable("K"))
}

func TestDecodeDocument_MissingSectionsDefaultEmpty(t *testing.T) {
	ds, err := inventory.DecodeDocument(strings.NewReader(`{"metadata":{"organization_name":"X"}}`))
	require.NoError(t, err)

	assert.Equal(t, "X", ds.Metadata.OrganizationName)
	assert.NotNil(t, ds.Products)
	assert.NotNil(t, ds.Lots)
	assert.NotNil(t, ds.Movements)
	assert.NotNil(t, ds.Users)
}
