package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
	"github.com/sdrshn-nmbr/tierledger/internal/metrics"
)

const (
	maxBodyBytes      = 10 << 20
	defaultNoticeList = 100
)

type Options struct {
	Service *ledger.Service
	Logger  *slog.Logger
	// Metrics and Gatherer are optional; /metrics is served only with a
	// Gatherer.
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	RateLimit      RateLimit
	AllowedOrigins []string
	// Ready reports backend health for /healthz.
	Ready func(r *http.Request) error
}

type handler struct {
	service *ledger.Service
	logger  *slog.Logger
	ready   func(r *http.Request) error
}

func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{service: opts.Service, logger: logger, ready: opts.Ready}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/").Subrouter()
	api.Use(requestLogger(logger))
	if opts.RateLimit.RPS > 0 {
		api.Use(newVisitorLimiter(opts.RateLimit).Middleware)
	}
	if opts.Metrics != nil {
		api.Use(opts.Metrics.Middleware)
	}

	api.HandleFunc("/customers", h.handleListCustomers).Methods(http.MethodGet)
	api.HandleFunc("/customers/import", h.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/customers/{mobile}", h.handleLookup).Methods(http.MethodGet)
	api.HandleFunc("/customers/{mobile}/verify", h.handleVerify).Methods(http.MethodPost)
	api.HandleFunc("/bills/preview", h.handlePreview).Methods(http.MethodPost)
	api.HandleFunc("/settlements", h.handleSettle).Methods(http.MethodPost)
	api.HandleFunc("/settings", h.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.handlePutSettings).Methods(http.MethodPut)
	api.HandleFunc("/notifications", h.handleNotifications).Methods(http.MethodGet)
	api.HandleFunc("/stats/overview", h.handleOverview).Methods(http.MethodGet)
	api.HandleFunc("/stats/analytics", h.handleAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/export/customers.csv", h.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/admin/seed", h.handleSeed).Methods(http.MethodPost)
	api.HandleFunc("/admin/reset", h.handleReset).Methods(http.MethodPost)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", requestIDHeader}),
		handlers.ExposedHeaders([]string{"Content-Length", requestIDHeader}),
	)
	return cors(r)
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *handler) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]customerStatusView, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, newCustomerStatusView(status))
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": out})
}

func (h *handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Lookup(r.Context(), mux.Vars(r)["mobile"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCustomerStatusView(status))
}

func (h *handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	verification, err := h.service.VerifyPin(r.Context(), mux.Vars(r)["mobile"], req.PIN)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

func (h *handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req loyalty.SettleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	preview, err := h.service.Preview(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req loyalty.SettleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	result, err := h.service.Settle(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if result.NewCustomer {
		status = http.StatusCreated
	}
	writeJSON(w, status, newSettlementView(result))
}

func (h *handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Config(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var cfg loyalty.TierConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeBadRequest(w, err)
		return
	}
	saved, err := h.service.SaveConfig(r.Context(), cfg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultNoticeList
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, ledger.CodeInvalidInput, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	notifications, err := h.service.Notifications(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []loyalty.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (h *handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.service.Analytics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="customers.csv"`)
	if _, err := h.service.ExportCSV(r.Context(), w); err != nil {
		// Headers may already be sent; log only.
		h.logger.Error("csv export failed", "error", err)
	}
}

func (h *handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	n, err := h.service.Import(r.Context(), req.Customers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *handler) handleSeed(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Seed(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		loggerFor(r, h.logger).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, ledger.Code(err), loyalty.UserMessage(err))
}
