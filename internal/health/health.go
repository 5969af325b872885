// Package health provides the liveness and readiness probes for the voice
// runtime.
//
//   - /healthz answers 200 whenever the process serves HTTP.
//   - /readyz answers 200 only when every registered dependency check
//     passes: donation registry loaded, phrase index reachable, providers
//     responding.
//
// Responses are JSON with a top-level "status" and a per-check "checks" map
// carrying each check's outcome and latency.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe. Check returns nil when the dependency
// can serve requests and must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// CheckState is one dependency's outcome in the readiness report.
type CheckState struct {
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// report is the JSON body of both probes.
type report struct {
	Status string                `json:"status"`
	Checks map[string]CheckState `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. Safe for concurrent use; the checker
// list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New creates a handler evaluating the given checkers on each /readyz
// request. Checks run concurrently; slow dependencies do not serialise.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200. A process that can run this handler is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers 200 only when every checker passes within its timeout.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	states := make([]CheckState, len(h.checkers))

	g, ctx := errgroup.WithContext(r.Context())
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(cctx)
			states[i] = CheckState{
				Status:    "ok",
				LatencyMS: float64(time.Since(start).Microseconds()) / 1000.0,
			}
			if err != nil {
				states[i].Status = "fail"
				states[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	res := report{Status: "ok", Checks: make(map[string]CheckState, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		res.Checks[c.Name] = states[i]
		if states[i].Status != "ok" {
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}
	writeReport(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// PingChecker adapts anything with a Ping method, such as a pgx pool, into a
// named checker.
func PingChecker(name string, p interface {
	Ping(ctx context.Context) error
}) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// StaticChecker reports a fixed readiness state, for components that either
// loaded at boot or did not.
func StaticChecker(name string, err error) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return err }}
}

func writeReport(w http.ResponseWriter, status int, v report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprint(w, `{"status":"error"}`)
	}
}
