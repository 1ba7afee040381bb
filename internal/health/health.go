// Package health aggregates named subsystem probes for the service
// health endpoint.
package health

import (
	"context"
	"sync"
)

// Status is the outcome of probing a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Check probes one subsystem. The context carries the request deadline.
type Check func(ctx context.Context) Status

type probe struct {
	name string
	run  Check
}

// Registry holds the registered probes and runs them on demand.
type Registry struct {
	mu     sync.RWMutex
	probes []probe
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a probe under the given subsystem name. The name set at
// registration overrides whatever the probe puts in Status.Name.
func (r *Registry) Register(name string, run Check) {
	r.mu.Lock()
	r.probes = append(r.probes, probe{name: name, run: run})
	r.mu.Unlock()
}

// CheckAll runs every probe in registration order. The aggregate is
// healthy only when every subsystem is.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	probes := make([]probe, len(r.probes))
	copy(probes, r.probes)
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(probes))
	for _, p := range probes {
		st := p.run(ctx)
		st.Name = p.name
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}

// Summary runs every probe and flattens the results into a
// name-to-detail map, the shape the health endpoint reports.
func (r *Registry) Summary(ctx context.Context) (bool, map[string]string) {
	healthy, statuses := r.CheckAll(ctx)
	out := make(map[string]string, len(statuses))
	for _, st := range statuses {
		detail := st.Detail
		if detail == "" {
			if st.Healthy {
				detail = "healthy"
			} else {
				detail = "unhealthy"
			}
		}
		out[st.Name] = detail
	}
	return healthy, out
}
