package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/morezero/marketplace-gateway/pkg/adapter"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
	"github.com/morezero/marketplace-gateway/pkg/metrics"
)

const httpLogPrefix = "server:http"

// DefaultMaxBodyBytes caps /invoke bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// HTTPOptions configures an HTTPAdapter.
type HTTPOptions struct {
	MaxBodyBytes int64
	// RateLimit is requests per second on /invoke; 0 disables limiting.
	RateLimit          float64
	RateBurst          int
	HealthCheckTimeout time.Duration
	// Health defaults to always healthy.
	Health HealthChecker
}

// HTTPAdapter serves invocations over POST /invoke plus operational endpoints.
type HTTPAdapter struct {
	adapter    *adapter.Adapter
	dispatcher *dispatcher.Dispatcher
	metrics    *metrics.Metrics
	opts       HTTPOptions
	limiter    *rate.Limiter
}

// NewHTTPAdapter creates an HTTPAdapter. m may be nil.
func NewHTTPAdapter(d *dispatcher.Dispatcher, m *metrics.Metrics, opts HTTPOptions) *HTTPAdapter {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = 5 * time.Second
	}
	h := &HTTPAdapter{
		adapter:    adapter.New(d, m, adapter.TransportHTTP),
		dispatcher: d,
		metrics:    m,
		opts:       opts,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return h
}

// Handler returns the routed handler with the middleware chain applied.
func (h *HTTPAdapter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleHome())
	mux.Handle("/invoke", Chain(http.HandlerFunc(h.handleInvoke), RateLimit(h.limiter)))
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/ready", handleReady)
	mux.HandleFunc("/openapi.json", h.handleOpenAPI)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics.Handler())
	}
	return Chain(mux, RecoverPanic(), RequestID(), h.metrics.InstrumentHandler)
}

func (h *HTTPAdapter) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeEnvelope(w, http.StatusMethodNotAllowed, dispatcher.Failure("Method not allowed"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn(fmt.Sprintf("%s - request body over %d bytes rejected", httpLogPrefix, tooLarge.Limit))
			writeEnvelope(w, http.StatusRequestEntityTooLarge, dispatcher.Failure("Request body too large"))
			return
		}
		slog.Warn(fmt.Sprintf("%s - failed to read request body: %v", httpLogPrefix, err))
		writeEnvelope(w, http.StatusBadRequest, dispatcher.Failure("Failed to read request body"))
		return
	}

	env, err := h.adapter.Handle(r.Context(), body)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, env)
		return
	}
	writeEnvelope(w, http.StatusOK, env)
}

func (h *HTTPAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.HealthCheckTimeout)
	defer cancel()

	report := &HealthReport{Status: StatusHealthy, Checks: map[string]bool{}, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if h.opts.Health != nil {
		report = h.opts.Health.Health(ctx)
	}
	status := http.StatusOK
	if report.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeEnvelope(w http.ResponseWriter, status int, env dispatcher.Envelope) {
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", httpLogPrefix, err))
	}
}
