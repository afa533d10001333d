// Package health serves the liveness and readiness probes on the correxd
// diagnostics listener.
//
// A daemon that intercepts keystrokes must fail loudly when one of its
// backing services goes away, so /readyz re-probes every registered
// dependency (history store, input hook) on each request instead of
// caching a verdict. /healthz only says the process is up and serving.
//
// Responses are JSON: {"status": "ok"} for liveness, and for readiness a
// per-dependency breakdown such as
//
//	{"status": "degraded", "checks": {"history": "ok", "hook": "fail: hook detached"}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker probes one dependency of the daemon.
type Checker struct {
	// Name keys the check in the /readyz response.
	Name string

	// Check returns nil when the dependency is usable. It must respect
	// context cancellation; the handler bounds each probe's runtime.
	Check func(ctx context.Context) error
}

// Handler answers the probe endpoints. The checker list is fixed at
// construction; the handler itself is stateless and safe for concurrent
// requests.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
	started  time.Time
}

// Option configures a [Handler].
type Option func(*Handler)

// WithCheckTimeout bounds each dependency probe. Default 5s.
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a Handler over the given dependency checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  5 * time.Second,
		started:  time.Now(),
	}
}

// Configure applies options after construction. Split from New so the
// common call site can stay variadic over checkers.
func (h *Handler) Configure(opts ...Option) *Handler {
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// probeReport is the JSON body for both endpoints.
type probeReport struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz reports process liveness. It never consults the checkers; a
// process that can serve this request is alive by definition.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, probeReport{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz re-probes every dependency and degrades to 503 when any of them
// fails. Probes run in registration order, each bounded by the check
// timeout.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	report := probeReport{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	code := http.StatusOK

	for _, c := range h.checkers {
		if err := h.probe(r.Context(), c); err != nil {
			report.Checks[c.Name] = "fail: " + err.Error()
			report.Status = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			report.Checks[c.Name] = "ok"
		}
	}

	h.respond(w, code, report)
}

func (h *Handler) probe(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return c.Check(ctx)
}

func (h *Handler) respond(w http.ResponseWriter, code int, report probeReport) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
