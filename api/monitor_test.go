package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lot-ledger/inventory"
)

func TestBuildAlertReport(t *testing.T) {
	// GIVEN: One lot already expired, one expiring in 17 days, one far out
	s := newTestServer(t, RouterOptions{})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/purchases", `{
		"lines": [
			{"product": "Smecta", "lot_number": "S-OLD", "quantity": 2, "expiry": "2025-05-01"},
			{"product": "Doliprane 500", "lot_number": "D-SOON", "quantity": 40, "expiry": "2025-06-18"},
			{"product": "Doliprane 500", "lot_number": "D-LATER", "quantity": 40, "expiry": "2026-06-18"}
		]
	}`).Code)

	// WHEN: The report is built at the test clock
	report := BuildAlertReport(s.handler.Engine, testNow)

	// THEN: Each lot is classified; Smecta (2 <= default threshold) is low
	require.Len(t, report.Expired, 1)
	assert.Equal(t, "S-OLD", report.Expired[0].LotNumber)
	require.Len(t, report.ExpiringSoon, 1)
	assert.Equal(t, "D-SOON", report.ExpiringSoon[0].LotNumber)
	require.Len(t, report.LowStock, 1)
	assert.Equal(t, "Smecta", report.LowStock[0].Product)
	assert.Equal(t, inventory.StockLow, report.LowStock[0].Status)
	assert.False(t, report.Empty())
}

func TestStockMonitor_CheckKeepsLastReport(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	m := NewStockMonitor(s.handler)

	_, ok := m.Last()
	assert.False(t, ok)

	report := m.Check()

	last, ok := m.Last()
	require.True(t, ok)
	assert.True(t, report.Empty())
	assert.Equal(t, testNow, last.CheckedAt)
}

func TestStockMonitor_StartRunsImmediately(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	m := NewStockMonitor(s.handler)
	m.CheckInterval = time.Hour

	m.Start()
	defer m.Stop()

	assert.Eventually(t, func() bool {
		_, ok := m.Last()
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestStockMonitor_Disabled(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	m := NewStockMonitor(s.handler)
	m.Enabled = false

	m.Start()
	m.Stop()

	_, ok := m.Last()
	assert.False(t, ok)
}

func TestGetAlerts(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodGet, "/api/alerts", "")

	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[AlertReport](t, rec)
	assert.Empty(t, report.Expired)
	assert.Equal(t, testNow, report.CheckedAt)
}

func TestGetAlerts_CachedServesLastCheck(t *testing.T) {
	// GIVEN: A monitor whose last check ran before a lot was received
	s := newTestServer(t, RouterOptions{})
	m := NewStockMonitor(s.handler)
	m.Check()
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/purchases", `{
		"lines": [{"product": "Smecta", "lot_number": "S-OLD", "quantity": 2, "expiry": "2025-05-01"}]
	}`).Code)

	// WHEN: Alerts are requested with and without ?cached=1
	cached := decodeBody[AlertReport](t, s.do(t, http.MethodGet, "/api/alerts?cached=1", ""))
	fresh := decodeBody[AlertReport](t, s.do(t, http.MethodGet, "/api/alerts", ""))

	// THEN: The cached report is the monitor's, the default one is rebuilt
	assert.True(t, cached.Empty())
	require.Len(t, fresh.Expired, 1)
	assert.Equal(t, "S-OLD", fresh.Expired[0].LotNumber)
}

func TestGetAlerts_CachedWithoutCheckBuildsFresh(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	NewStockMonitor(s.handler)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/purchases", `{
		"lines": [{"product": "Smecta", "lot_number": "S-OLD", "quantity": 2, "expiry": "2025-05-01"}]
	}`).Code)

	report := decodeBody[AlertReport](t, s.do(t, http.MethodGet, "/api/alerts?cached=1", ""))

	assert.Len(t, report.Expired, 1)
}
