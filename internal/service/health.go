package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger verifies connectivity to a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BlacklistSource reports quarantined aggregates.
type BlacklistSource interface {
	Blacklisted() []string
}

// HealthServer provides HTTP health check endpoints for cmdbusd.
type HealthServer struct {
	addr      string
	redis     Pinger
	blacklist BlacklistSource
	logger    *zap.Logger
	server    *http.Server
}

// NewHealthServer creates a new health check server listening on addr.
func NewHealthServer(addr string, redis Pinger, blacklist BlacklistSource, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthServer{
		addr:      addr,
		redis:     redis,
		blacklist: blacklist,
		logger:    logger,
	}
}

// Handler returns the HTTP routes of the health server.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)
	return mux
}

// Start starts the HTTP health check server in the background.
func (h *HealthServer) Start() error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health_server_failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the health check server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if Redis is accessible, 503 Service Unavailable otherwise.
// Quarantined aggregates are listed but do not make the service unhealthy.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Redis:  "connected",
	}
	if h.blacklist != nil {
		response.Blacklisted = h.blacklist.Blacklisted()
	}

	status := http.StatusOK
	if err := h.redis.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status      string   `json:"status"`
	Redis       string   `json:"redis,omitempty"`
	Blacklisted []string `json:"blacklisted,omitempty"`
	Error       string   `json:"error,omitempty"`
}
