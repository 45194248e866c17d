/*
handlers.go - HTTP API handlers for the lot ledger

PURPOSE:
  Exposes the lot ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the inventory engine.

ENDPOINTS:
  Catalog:
    GET    /api/products                      List catalog products
    POST   /api/products                      Find or create a product
    GET    /api/products/{name}/available     Derived stock (+ FEFO preview with ?quantity=)

  Stock:
    GET    /api/stock                         Stock levels with low/out status
    GET    /api/lots                          Lots with expiry status (?as_of=YYYY-MM-DD)
    GET    /api/movements                     Movement journal (?product=&limit=)

  Transactions:
    GET    /api/purchases                     List purchases
    POST   /api/purchases                     Record a purchase
    DELETE /api/purchases/{id}                Always rejected (traceability)
    GET    /api/sales                         List sales
    POST   /api/sales                         Record a sale
    DELETE /api/sales/{id}                    Always rejected (traceability)

  Documents:
    GET    /api/dashboard                     Totals
    GET    /api/alerts                        Expired, expiring and low-stock report
    POST   /api/import                        Ingest a backup (?format=legacy)
    GET    /api/export                        Download the backup document
    POST   /api/reset                         Clear every collection
    GET    /api/reports/stock.xlsx            Stock workbook

  Scenarios:
    GET    /api/scenarios                     List demo scenarios
    GET    /api/scenarios/current             Last loaded scenario
    POST   /api/scenarios/load                Reset and load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator tags in dto.go)
  3. Call the engine
  4. Persist the snapshot (commands only)
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, no valid line, malformed document
  - 404: Product not found
  - 409: Deletion of a recorded transaction
  - 422: Insufficient stock
  - 500: Store failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - monitor.go: Periodic expiry and stock checks
  - scenarios.go: Demo scenario loaders
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/lot-ledger/inventory"
	"github.com/warp/lot-ledger/pkg/logger"
	"github.com/warp/lot-ledger/report"
)

// maxImportBytes caps the size of an uploaded backup document.
const maxImportBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Engine *inventory.Engine
	Store  inventory.Store
	Log    *logger.Logger

	// DefaultActor is used when a command names no actor.
	DefaultActor string

	validate *validator.Validate
	now      func() time.Time

	mu              sync.Mutex
	currentScenario string

	// cmdMu serializes commands from the engine call through the save, so
	// snapshots reach the store in the order they were applied.
	cmdMu sync.Mutex

	monitor *StockMonitor
}

// NewHandler creates a handler around an engine and the store its snapshots
// are saved to.
func NewHandler(engine *inventory.Engine, store inventory.Store, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Engine:   engine,
		Store:    store,
		Log:      log.WithComponent("api"),
		validate: newValidator(),
		now:      time.Now,
	}
}

// persist saves the engine's current dataset. Every successful command is
// followed by a save so a restart resumes from the last acknowledged state.
// Callers hold cmdMu.
func (h *Handler) persist(ctx context.Context) error {
	if h.Store == nil {
		return nil
	}
	return h.Store.Save(ctx, h.Engine.Snapshot())
}

func (h *Handler) actor(requested string) string {
	if requested != "" {
		return requested
	}
	return h.DefaultActor
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

// ListProducts returns the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Products())
}

// CreateProduct finds a product by name (case-insensitive) or creates it.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	p := h.Engine.FindOrCreateProduct(req.Name, inventory.PriceDefaults{
		Threshold:     req.Threshold,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
	})
	if err := h.persist(r.Context()); err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetAvailability returns the stock of one product. With ?quantity=N it also
// previews which lots a sale of N units would draw from.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := h.Engine.Product(name)
	if !ok {
		writeError(w, http.StatusNotFound, "product not found", "product_not_found", nil)
		return
	}

	resp := AvailabilityResponse{
		Product:   p.Name,
		Available: h.Engine.TotalAvailable(p.Name),
	}
	if q := r.URL.Query().Get("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "quantity must be a positive integer", "invalid_quantity", nil)
			return
		}
		resp.Requested = n
		resp.Plan, resp.Short = h.Engine.PlanAllocation(p.Name, n)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// STOCK ENDPOINTS
// =============================================================================

func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.StockLevels())
}

// ListLots evaluates lot expiry against ?as_of (default: today).
func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	asOf := h.now().UTC()
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := inventory.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of date", "invalid_date", err)
			return
		}
		asOf = d.Time
	}
	writeJSON(w, http.StatusOK, h.Engine.LotViews(asOf))
}

// ListMovements returns the journal, newest first.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "invalid_limit", nil)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.Engine.Movements(r.URL.Query().Get("product"), limit))
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPurchaseResponses(h.Engine.Purchases()))
}

// RecordPurchase receives goods into lots.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req RecordPurchaseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", "invalid_date", err)
		return
	}
	in.Actor = h.actor(in.Actor)

	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	p, err := h.Engine.RecordPurchase(r.Context(), in)
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	if err := h.persist(r.Context()); err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PurchaseResponse{Purchase: p, Total: p.Total()})
}

func (h *Handler) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	h.engineError(w, r, h.Engine.DeletePurchase(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Sales())
}

// RecordSale validates stock for every line, then draws from lots FEFO.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", "invalid_date", err)
		return
	}
	in.Actor = h.actor(in.Actor)

	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	s, err := h.Engine.RecordSale(r.Context(), in)
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	if err := h.persist(r.Context()); err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	h.engineError(w, r, h.Engine.DeleteSale(r.Context(), chi.URLParam(r, "id")))
}

// =============================================================================
// DOCUMENT ENDPOINTS
// =============================================================================

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Dashboard())
}

// Import replaces the dataset with an uploaded backup. ?format=legacy reads
// the predecessor's backup format.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	defer body.Close()

	decode := inventory.DecodeDocument
	if r.URL.Query().Get("format") == "legacy" {
		decode = inventory.DecodeLegacyDocument
	}
	ds, err := decode(body)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	res, err := h.Engine.Ingest(r.Context(), ds)
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	if err := h.persist(r.Context()); err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export downloads the current dataset as a backup document.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ds := h.Engine.Export()
	name := fmt.Sprintf("pharma-backup-%s.json", ds.Metadata.ExportedAt.Format("20060102-150405"))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if err := inventory.EncodeDocument(w, ds); err != nil {
		logger.FromContext(r.Context()).Errorw("export failed", "error", err)
	}
}

// Reset clears every collection, keeping metadata and company info.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	if err := h.Engine.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed", "reset_failed", err)
		return
	}
	if err := h.persist(r.Context()); err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// StockReport downloads the stock levels and lots as a workbook.
func (h *Handler) StockReport(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(now)))
	if err := report.WriteStockWorkbook(w, h.Engine.StockLevels(), h.Engine.LotViews(now)); err != nil {
		logger.FromContext(r.Context()).Errorw("stock report failed", "error", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the error response itself and reports whether to continue.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", "validation_failed", validationDetails(err))
		return false
	}
	return true
}

// engineError maps inventory errors to HTTP responses.
func (h *Handler) engineError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *inventory.InsufficientStockError
	var traceErr *inventory.TraceabilityError

	switch {
	case errors.As(err, &stockErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "insufficient_stock", InsufficientStockDetails{
			Product:   stockErr.Product,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
	case errors.As(err, &traceErr):
		writeError(w, http.StatusConflict, err.Error(), "traceability_violation", TraceabilityDetails{
			Kind:   string(traceErr.Kind),
			ID:     traceErr.ID,
			Remedy: traceErr.Remedy,
		})
	case errors.Is(err, inventory.ErrNoValidLines):
		writeError(w, http.StatusBadRequest, err.Error(), "no_valid_lines", nil)
	case errors.Is(err, inventory.ErrMalformedDocument):
		writeError(w, http.StatusBadRequest, "malformed document", "malformed_document", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled", "cancelled", nil)
	default:
		logger.FromContext(r.Context()).Errorw("command failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "internal", nil)
	}
}

// storeFailed reports a command that was applied in memory but not saved.
func (h *Handler) storeFailed(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Errorw("snapshot save failed", "error", err)
	writeError(w, http.StatusInternalServerError, "failed to save dataset", "store_failed", nil)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an ErrorResponse. An error passed as details is
// reported by its message.
func writeError(w http.ResponseWriter, status int, message, code string, details any) {
	resp := ErrorResponse{Error: message, Code: code}
	switch d := details.(type) {
	case nil:
	case error:
		resp.Details = d.Error()
	default:
		resp.Details = d
	}
	writeJSON(w, status, resp)
}
