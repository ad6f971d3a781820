// Package health aggregates liveness checks for the server's backing
// subsystems. The HTTP layer registers a checker per dependency (the
// database, the geocoder circuit) and /healthz reports the combined
// result.
package health

import (
	"context"
	"sync"
)

// Status is the outcome of probing one subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes a single subsystem. It should honor ctx deadlines
// since CheckAll runs inside a request.
type Checker func(ctx context.Context) Status

// Registry holds named checkers and runs them on demand. Checkers run
// in registration order so the health endpoint output is stable.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry returns an empty registry. A registry with no checkers
// reports healthy.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker under the given name. Registering the same
// name twice runs both checkers; names are labels, not keys.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
}

// CheckAll probes every registered subsystem and reports whether all
// of them are healthy, along with the per-subsystem results.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	checkers := append([]namedChecker(nil), r.checkers...)
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(checkers))
	for _, nc := range checkers {
		st := nc.check(ctx)
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
