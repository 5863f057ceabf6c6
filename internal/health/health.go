// Package health serves the liveness and readiness probes of the chat
// simulator.
//
//   - /healthz is the liveness probe and answers 200 while the process serves HTTP.
//   - /readyz is the readiness probe and answers 200 only when every
//     [Checker] passes and the server is not draining.
//
// Both respond with {"status": "ok"|"fail"|"draining", "checks": {...}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when healthy.
type Checker struct {
	// Name keys the result in the JSON response (e.g. "providers").
	Name string

	// Check must respect context cancellation.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time; draining can be toggled at any time.
type Handler struct {
	checkers []Checker
	draining atomic.Bool
}

// New creates a [Handler]. Checkers run concurrently on every /readyz
// request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// SetDraining marks the server as shutting down. While draining, /readyz
// answers 503 so load balancers stop routing new streams here.
func (h *Handler) SetDraining(v bool) {
	h.draining.Store(v)
}

// Draining reports whether [Handler.SetDraining] was set.
func (h *Handler) Draining() bool {
	return h.draining.Load()
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 when every checker passes within [checkTimeout].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.Draining() {
		writeJSON(w, http.StatusServiceUnavailable, result{Status: "draining"})
		return
	}

	checks, ok := h.run(r.Context())
	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ok {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// run evaluates all checkers concurrently and reports their outcome.
func (h *Handler) run(ctx context.Context) (map[string]string, bool) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			err := c.Check(cctx)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()
	return checks, allOK
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
