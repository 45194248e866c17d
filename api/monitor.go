/*
monitor.go - Periodic stock and expiry monitor

PURPOSE:
  Periodically evaluates lot expiry and stock levels and logs what needs
  attention: expired lots still holding stock, lots expiring soon, products
  at or below their reorder threshold. The latest report is served by
  GET /api/alerts?cached=1.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Read-only: never mutates the ledger (an expired lot is reported, not
    written off)

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether the monitor is active (default: true)

USAGE:
  monitor := NewStockMonitor(handler)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - inventory/views.go: StockLevels, LotViews
*/
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/warp/lot-ledger/inventory"
	"github.com/warp/lot-ledger/pkg/logger"
)

// AlertReport is the outcome of one monitor check.
type AlertReport struct {
	CheckedAt    time.Time              `json:"checked_at"`
	Expired      []inventory.LotView    `json:"expired"`
	ExpiringSoon []inventory.LotView    `json:"expiring_soon"`
	LowStock     []inventory.StockLevel `json:"low_stock"`
}

// Empty reports whether nothing needs attention.
func (a AlertReport) Empty() bool {
	return len(a.Expired) == 0 && len(a.ExpiringSoon) == 0 && len(a.LowStock) == 0
}

// BuildAlertReport evaluates the engine at asOf.
func BuildAlertReport(e *inventory.Engine, asOf time.Time) AlertReport {
	report := AlertReport{
		CheckedAt:    asOf,
		Expired:      []inventory.LotView{},
		ExpiringSoon: []inventory.LotView{},
		LowStock:     []inventory.StockLevel{},
	}
	for _, v := range e.LotViews(asOf) {
		switch v.ExpiryStatus {
		case inventory.ExpiryExpired:
			report.Expired = append(report.Expired, v)
		case inventory.ExpiryExpiringSoon:
			report.ExpiringSoon = append(report.ExpiringSoon, v)
		}
	}
	for _, l := range e.StockLevels() {
		if l.Status != inventory.StockOK {
			report.LowStock = append(report.LowStock, l)
		}
	}
	return report
}

// StockMonitor handles periodic expiry and stock checks.
type StockMonitor struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *AlertReport
	log    *logger.Logger
}

// NewStockMonitor creates a new monitor.
// The handler serves the monitor's last report from GET /api/alerts?cached=1.
func NewStockMonitor(h *Handler) *StockMonitor {
	m := &StockMonitor{
		Handler:       h,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
		log:           h.Log.WithComponent("monitor"),
	}
	h.monitor = m
	return m
}

// Start begins the monitor.
func (m *StockMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.log.Info("disabled, not starting")
		return
	}
	if m.ticker != nil {
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.wg.Add(1)

	go m.run()

	m.log.Infow("started", "interval", m.CheckInterval)
}

// Stop stops the monitor and waits for a running check to finish.
func (m *StockMonitor) Stop() {
	m.mu.Lock()
	ticker := m.ticker
	m.ticker = nil
	m.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.log.Info("stopped")
	}
}

func (m *StockMonitor) run() {
	defer m.wg.Done()

	// Run immediately on start
	m.Check()

	for {
		select {
		case <-m.ticker.C:
			m.Check()
		case <-m.stop:
			return
		}
	}
}

// Check evaluates the ledger now, logs the findings, and keeps the report.
func (m *StockMonitor) Check() AlertReport {
	report := BuildAlertReport(m.Handler.Engine, m.Handler.now().UTC())

	for _, v := range report.Expired {
		m.log.Warnw("expired lot holds stock",
			"product", v.Product, "lot", v.LotNumber, "remaining", v.Remaining, "expiry", v.Expiry)
	}
	if n := len(report.ExpiringSoon); n > 0 {
		m.log.Infow("lots expiring soon", "count", n, "within_days", inventory.ExpiringSoonDays)
	}
	for _, l := range report.LowStock {
		m.log.Infow("stock at or below threshold",
			"product", l.Product, "available", l.Available, "threshold", l.Threshold, "status", l.Status)
	}

	m.mu.Lock()
	m.last = &report
	m.mu.Unlock()
	return report
}

// Last returns the most recent report, if any check has run.
func (m *StockMonitor) Last() (AlertReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return AlertReport{}, false
	}
	return *m.last, true
}

// GetAlerts returns an alert report evaluated now. With ?cached=1 it returns
// the monitor's last report instead, falling back to a fresh one when no
// check has run yet.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	if cached, _ := strconv.ParseBool(r.URL.Query().Get("cached")); cached && h.monitor != nil {
		if report, ok := h.monitor.Last(); ok {
			writeJSON(w, http.StatusOK, report)
			return
		}
	}
	writeJSON(w, http.StatusOK, BuildAlertReport(h.Engine, h.now().UTC()))
}
