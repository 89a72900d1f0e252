package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/elys-network/yield-aggregator/internal/analyzer"
	"github.com/elys-network/yield-aggregator/internal/cache"
	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/logger"
	"github.com/elys-network/yield-aggregator/internal/metrics"
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var webLogger = logger.GetForComponent("web_server")

const (
	SERVICE_NAME        = "yield-aggregator"
	SERVICE_VERSION     = "2.0.0"
	DEFAULT_AMOUNT      = 10000.0
	DEFAULT_TOLERANCE   = "medium"
	MAX_REQUEST_BYTES   = 1 << 20
	RECORD_PLAN_TIMEOUT = 5 * time.Second
	DEFAULT_LIST_LIMIT  = 20
	MAX_LIST_LIMIT      = 100
)

// Data sources reported by /api/protocols.
const (
	SourceRealData       = "real_data"
	SourceCachedRealData = "cached_real_data"
	SourceMockFallback   = "mock_data_fallback"
)

// PlanOptimizer computes portfolio plans.
type PlanOptimizer interface {
	Optimize(amount float64, riskTolerance string, metrics map[types.ProtocolID]types.ProtocolMetric) (types.PortfolioPlan, error)
	PolicyName() string
}

// SnapshotSource serves protocol metrics without blocking on a fetch.
type SnapshotSource interface {
	Get(ctx context.Context) (types.MetricsSnapshot, cache.CacheStatus)
}

// PlanRecorder stores and lists computed plans.
type PlanRecorder interface {
	RecordPlan(ctx context.Context, plan types.PortfolioPlan) error
	RecentPlans(ctx context.Context, limit int) ([]types.PortfolioPlan, error)
	PlanAnalytics(ctx context.Context) (types.PlanAnalytics, error)
}

// UpdateReader lists yield updater decisions.
type UpdateReader interface {
	RecentYieldUpdates(ctx context.Context, limit int) ([]types.YieldUpdate, error)
}

// Config wires the server. Plans, Updates and HealthCheck are optional.
type Config struct {
	Port        string
	Optimizer   PlanOptimizer
	Snapshots   SnapshotSource
	Plans       PlanRecorder
	Updates     UpdateReader
	HealthCheck func() error
}

// WebServer serves the HTTP API.
type WebServer struct {
	router      *mux.Router
	port        string
	optimizer   PlanOptimizer
	snapshots   SnapshotSource
	plans       PlanRecorder
	updates     UpdateReader
	healthCheck func() error
	startedAt   time.Time
	server      *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	ws := &WebServer{
		router:      mux.NewRouter(),
		port:        port,
		optimizer:   cfg.Optimizer,
		snapshots:   cfg.Snapshots,
		plans:       cfg.Plans,
		updates:     cfg.Updates,
		healthCheck: cfg.HealthCheck,
		startedAt:   time.Now(),
	}

	ws.setupRoutes()
	return ws
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/", ws.handleIndex).Methods("GET")
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/protocols", ws.handleGetProtocols).Methods("GET")
	api.HandleFunc("/optimize", ws.handleOptimize).Methods("POST", "OPTIONS")
	api.HandleFunc("/plans", ws.handleGetPlans).Methods("GET")
	api.HandleFunc("/plans/analytics", ws.handleGetPlanAnalytics).Methods("GET")
	api.HandleFunc("/yield-updates", ws.handleGetYieldUpdates).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server and blocks until it stops. http.ErrServerClosed is not an error.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	webLogger.Info().Msg("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleIndex returns the service banner
func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message":   "AI Yield Aggregator API",
		"status":    "running",
		"version":   SERVICE_VERSION,
		"policy":    ws.optimizer.PolicyName(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"endpoints": map[string]string{
			"health":        "/api/health",
			"protocols":     "/api/protocols",
			"optimize":      "/api/optimize",
			"plans":         "/api/plans",
			"analytics":     "/api/plans/analytics",
			"yield_updates": "/api/yield-updates",
			"metrics":       "/metrics",
		},
	})
}

// handleHealth returns server health. Only an unreachable configured database makes it unavailable.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snapshot, cacheStatus := ws.snapshots.Get(r.Context())

	overallStatus := "OK"
	statusCode := http.StatusOK
	if cacheStatus == cache.StatusFallback || snapshot.LiveCount() == 0 {
		overallStatus = "DEGRADED"
	}

	persistence := map[string]interface{}{"enabled": ws.healthCheck != nil}
	if ws.healthCheck != nil {
		if err := ws.healthCheck(); err != nil {
			persistence["healthy"] = false
			persistence["error"] = err.Error()
			overallStatus = "DEGRADED"
			statusCode = http.StatusServiceUnavailable
		} else {
			persistence["healthy"] = true
		}
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    SERVICE_NAME,
			"version": SERVICE_VERSION,
		},
		"data": map[string]interface{}{
			"cache_status":   cacheStatus,
			"protocols":      len(snapshot.Protocols),
			"live_protocols": snapshot.LiveCount(),
			"fetched_at":     snapshot.FetchedAt,
		},
		"persistence": persistence,
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetProtocols returns the cached protocol snapshot and where it came from
func (ws *WebServer) handleGetProtocols(w http.ResponseWriter, r *http.Request) {
	snapshot, status := ws.snapshots.Get(r.Context())

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"protocols":  snapshot.Protocols,
		"fetched_at": snapshot.FetchedAt,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"source":     dataSource(status),
	})
}

func dataSource(status cache.CacheStatus) string {
	switch status {
	case cache.StatusFresh:
		return SourceRealData
	case cache.StatusStale:
		return SourceCachedRealData
	default:
		return SourceMockFallback
	}
}

type optimizeRequest struct {
	Amount        *float64 `json:"amount"`
	RiskTolerance *string  `json:"risk_tolerance"`
}

// handleOptimize computes a plan from the cached snapshot
func (ws *WebServer) handleOptimize(w http.ResponseWriter, r *http.Request) {
	amount := DEFAULT_AMOUNT
	tolerance := DEFAULT_TOLERANCE

	var req optimizeRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, MAX_REQUEST_BYTES))
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if req.Amount != nil {
		amount = *req.Amount
	}
	if req.RiskTolerance != nil && *req.RiskTolerance != "" {
		tolerance = *req.RiskTolerance
	}

	resolved := string(config.ResolveRiskProfile(tolerance).Tolerance)

	snapshot, cacheStatus := ws.snapshots.Get(r.Context())
	plan, err := ws.optimizer.Optimize(amount, tolerance, snapshot.Protocols)
	if err != nil {
		var validationErr *analyzer.ValidationError
		if errors.As(err, &validationErr) {
			metrics.OptimizeRequestsTotal.WithLabelValues(resolved, "invalid").Inc()
			ws.writeErrorResponse(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		metrics.OptimizeRequestsTotal.WithLabelValues(resolved, "error").Inc()
		webLogger.Error().Err(err).Msg("Optimization failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Optimization failed")
		return
	}

	plan.PlanID = uuid.New().String()
	outcome := "ok"
	if plan.IsEmpty() {
		outcome = "empty"
	}
	metrics.OptimizeRequestsTotal.WithLabelValues(string(plan.RiskTolerance), outcome).Inc()
	metrics.PlanExpectedAPY.WithLabelValues(string(plan.RiskTolerance)).Observe(plan.ExpectedAPY)

	if ws.plans != nil {
		go ws.recordPlan(plan)
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"plan":        plan,
		"data_source": dataSource(cacheStatus),
	})
}

func (ws *WebServer) recordPlan(plan types.PortfolioPlan) {
	ctx, cancel := context.WithTimeout(context.Background(), RECORD_PLAN_TIMEOUT)
	defer cancel()
	if err := ws.plans.RecordPlan(ctx, plan); err != nil {
		webLogger.Warn().Err(err).Str("planId", plan.PlanID).Msg("Failed to record plan")
	}
}

// handleGetPlans returns recent plans
func (ws *WebServer) handleGetPlans(w http.ResponseWriter, r *http.Request) {
	if ws.plans == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Persistence is not enabled")
		return
	}
	limit := parseLimit(r)

	plans, err := ws.plans.RecentPlans(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent plans")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve plans")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"plans": plans,
		"count": len(plans),
		"limit": limit,
	})
}

// handleGetPlanAnalytics returns aggregate plan statistics
func (ws *WebServer) handleGetPlanAnalytics(w http.ResponseWriter, r *http.Request) {
	if ws.plans == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Persistence is not enabled")
		return
	}

	analytics, err := ws.plans.PlanAnalytics(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get plan analytics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve plan analytics")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, analytics)
}

// handleGetYieldUpdates returns recent yield updater decisions
func (ws *WebServer) handleGetYieldUpdates(w http.ResponseWriter, r *http.Request) {
	if ws.updates == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Persistence is not enabled")
		return
	}
	limit := parseLimit(r)

	updates, err := ws.updates.RecentYieldUpdates(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get yield updates")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve yield updates")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"updates": updates,
		"count":   len(updates),
		"limit":   limit,
	})
}

func parseLimit(r *http.Request) int {
	limit := DEFAULT_LIST_LIMIT
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= MAX_LIST_LIMIT {
			limit = parsedLimit
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and records request metrics by route template
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapper.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
