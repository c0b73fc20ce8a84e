package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"BookLedger/internal/observability"
	"BookLedger/internal/persistence"
	"BookLedger/internal/projection"
	"BookLedger/internal/query"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = observability.NewLogger("server")

const defaultListLimit = 100

// Server exposes the read API over HTTP/JSON: vault and order state, audit
// listings, projected stats, and admin endpoints for integrity checks and
// projection rebuilds.
type Server struct {
	httpServer *http.Server
	addr       string
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	DB            *sql.DB
	Query         *query.Service
	Stats         *projection.Stats
	SnapshotMgr   *persistence.SnapshotManager
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	StartTime     time.Time
}

func New(addr string, deps *Deps) *Server {
	r := mux.NewRouter()
	r.Use(requestLogging(deps.Metrics))

	api := r.PathPrefix("/v1").Subrouter()
	h := &handlers{deps: deps}

	api.HandleFunc("/vaults/{id}", h.getVault).Methods(http.MethodGet)
	api.HandleFunc("/owners/{owner}/vaults", h.listVaultsByOwner).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{hash}", h.getOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{hash}/trades", h.listTrades).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{id}/deposits", h.listDeposits).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{id}/withdrawals", h.listWithdrawals).Methods(http.MethodGet)
	api.HandleFunc("/trades", h.listTrades).Methods(http.MethodGet)
	api.HandleFunc("/trades/{id}/changes", h.listTradeChanges).Methods(http.MethodGet)
	api.HandleFunc("/trades/recent", h.recentTrades).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.getStats).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/integrity", h.verifyIntegrity).Methods(http.MethodGet)
	admin.HandleFunc("/projections/rebuild", h.rebuildProjections).Methods(http.MethodPost)
	admin.HandleFunc("/eventlog", h.eventLogInfo).Methods(http.MethodGet)

	if deps.HealthChecker != nil {
		r.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler).Methods(http.MethodGet)
		r.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler).Methods(http.MethodGet)
	}
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		addr: addr,
	}
}

// Start serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		logger.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", s.addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// requestLogging tags every request with an id and logs method, path, status
// and latency.
func requestLogging(metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.New().String()
			w.Header().Set("X-Request-Id", requestID)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			logger.Debug().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("elapsed", elapsed).
				Msg("request")

			if metrics != nil {
				metrics.QueryRequests.WithLabelValues(r.URL.Path, strconv.Itoa(sw.status)).Inc()
				metrics.QueryDuration.WithLabelValues(r.URL.Path).Observe(elapsed.Seconds())
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// ============================================================================
// Handlers
// ============================================================================

type handlers struct {
	deps *Deps
}

func (h *handlers) getVault(w http.ResponseWriter, r *http.Request) {
	vault, err := h.deps.Query.GetVault(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if vault == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("vault not found"))
		return
	}
	writeJSON(w, http.StatusOK, vault)
}

func (h *handlers) listVaultsByOwner(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.deps.Query.ListVaultsByOwner(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vaults": vaults})
}

func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.deps.Query.GetOrder(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("order not found"))
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly := q.Get("active") == "true"
	orders, err := h.deps.Query.ListOrders(r.Context(), q.Get("owner"), activeOnly, limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (h *handlers) listDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := h.deps.Query.ListDeposits(r.Context(), mux.Vars(r)["id"], limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deposits": deposits})
}

func (h *handlers) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.deps.Query.ListWithdrawals(r.Context(), mux.Vars(r)["id"], limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"withdrawals": withdrawals})
}

func (h *handlers) listTrades(w http.ResponseWriter, r *http.Request) {
	// Order hash comes from the path on /orders/{hash}/trades, empty on
	// the flat /trades listing.
	trades, err := h.deps.Query.ListTrades(r.Context(), mux.Vars(r)["hash"], limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

func (h *handlers) listTradeChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := h.deps.Query.ListTradeChanges(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"changes": changes})
}

// recentTrades serves from the in-memory stats ring, not Postgres: cheap and
// fresh, but bounded and reset on restart.
func (h *handlers) recentTrades(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stats == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"trades": []struct{}{}})
		return
	}

	trades := h.deps.Stats.RecentTrades(r.URL.Query().Get("order_hash"), limitParam(r))
	out := make([]map[string]interface{}, 0, len(trades))
	for _, t := range trades {
		out = append(out, map[string]interface{}{
			"event_id":     t.EventID,
			"order_hash":   t.OrderHash,
			"sender":       t.Sender,
			"taker_input":  t.TakerInput.String(),
			"taker_output": t.TakerOutput.String(),
			"bounty":       t.Bounty.String(),
			"block":        t.Block,
			"timestamp":    t.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": out})
}

func (h *handlers) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Query.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Query.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) rebuildProjections(w http.ResponseWriter, r *http.Request) {
	if err := projection.Rebuild(r.Context(), h.deps.DB); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rebuilt": true})
}

func (h *handlers) eventLogInfo(w http.ResponseWriter, r *http.Request) {
	latestSeq, err := h.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"latest_sequence": latestSeq,
		"uptime_seconds":  int64(time.Since(h.deps.StartTime).Seconds()),
	})
}

// ============================================================================
// Helpers
// ============================================================================

func limitParam(r *http.Request) int {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
