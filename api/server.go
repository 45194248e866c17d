/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers (rate limiting keys on it)
  3. Logger:     Structured request logging (zap), request logger in context
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend
  6. Secure:     Security headers (frame deny, nosniff, CSP)

ROUTE GROUPS:
  /api/*            Queries, unlimited
  /api/* (cmd)      Commands, rate limited per client IP
  /api/scenarios/*  Demo data (loading resets the ledger)
  /                 Landing page

SECURITY NOTE:
  No authentication middleware. The server is meant for a single pharmacy
  on a trusted network.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"github.com/warp/lot-ledger/pkg/logger"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	CORSOrigins []string

	// WriteRateLimit is the number of commands accepted per client IP per
	// minute. Zero disables the limiter.
	WriteRateLimit int

	// Production enables HTTPS redirects.
	Production bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))
	r.Use(secureHeaders(opts.Production))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Queries
		r.Get("/products", h.ListProducts)
		r.Get("/products/{name}/available", h.GetAvailability)
		r.Get("/stock", h.ListStock)
		r.Get("/lots", h.ListLots)
		r.Get("/movements", h.ListMovements)
		r.Get("/purchases", h.ListPurchases)
		r.Get("/sales", h.ListSales)
		r.Get("/dashboard", h.GetDashboard)
		r.Get("/alerts", h.GetAlerts)
		r.Get("/export", h.Export)
		r.Get("/reports/stock.xlsx", h.StockReport)
		r.Get("/scenarios", h.ListScenarios)
		r.Get("/scenarios/current", h.GetCurrentScenario)

		// Commands
		r.Group(func(r chi.Router) {
			if opts.WriteRateLimit > 0 {
				r.Use(writeLimiter(opts.WriteRateLimit))
			}
			r.Post("/products", h.CreateProduct)
			r.Post("/purchases", h.RecordPurchase)
			r.Delete("/purchases/{id}", h.DeletePurchase)
			r.Post("/sales", h.RecordSale)
			r.Delete("/sales/{id}", h.DeleteSale)
			r.Post("/import", h.Import)
			r.Post("/reset", h.Reset)
			r.Post("/scenarios/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Pharma Gestion - Lot Ledger API</title></head>
<body style="font-family: system-ui; padding: 40px; max-width: 800px; margin: 0 auto;">
<h1>Pharma Gestion - Lot Ledger API</h1>
<p>The API is running.</p>
<h2>Endpoints</h2>
<ul>
<li><code>GET /api/stock</code> - Stock levels</li>
<li><code>GET /api/lots</code> - Lots with expiry status</li>
<li><code>POST /api/purchases</code> - Record a purchase</li>
<li><code>POST /api/sales</code> - Record a sale (FEFO)</li>
<li><code>GET /api/export</code> - Download a backup</li>
</ul>
</body>
</html>`))
	})

	return r
}

// requestLogger logs one line per request and stores a request-scoped
// logger in the context for handlers.
func requestLogger(base *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := base.With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithLogger(r.Context(), reqLog)))

			reqLog.Infow("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"remote", r.RemoteAddr,
				"duration", time.Since(start),
			)
		})
	}
}

func secureHeaders(production bool) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	}).Handler
}

func writeLimiter(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "too many requests", "rate_limited", nil)
		}),
	)
}
