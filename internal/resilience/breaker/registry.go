package breaker

import (
	"sort"
	"sync"
)

// Registry owns one Breaker per endpoint key. The application creates a
// single Registry at startup and passes it to call sites.
type Registry struct {
	mu        sync.Mutex
	defaults  Config
	overrides map[string]Config
	breakers  map[string]*Breaker
}

// NewRegistry creates an empty registry using defaults for new breakers.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		defaults:  defaults,
		overrides: make(map[string]Config),
		breakers:  make(map[string]*Breaker),
	}
}

// Configure sets per-endpoint overrides. It only affects breakers created
// after the call; an existing breaker keeps its thresholds until removed.
func (r *Registry) Configure(endpoint string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[endpoint] = cfg
}

// Get returns the breaker for endpoint, creating it on first use.
func (r *Registry) Get(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[endpoint]; ok {
		return b
	}

	cfg := r.defaults
	if o, ok := r.overrides[endpoint]; ok {
		cfg = cfg.merge(o)
	}
	b := New(endpoint, cfg)
	r.breakers[endpoint] = b
	return b
}

// Lookup returns the breaker for endpoint without creating one.
func (r *Registry) Lookup(endpoint string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[endpoint]
	return b, ok
}

// Reset forces one breaker Closed. It reports false for unknown endpoints.
func (r *Registry) Reset(endpoint string) bool {
	b, ok := r.Lookup(endpoint)
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// ResetAll forces every breaker Closed.
func (r *Registry) ResetAll() {
	for _, b := range r.all() {
		b.Reset()
	}
}

// Remove drops a breaker so the next Get starts fresh with current overrides.
func (r *Registry) Remove(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, endpoint)
}

// Snapshots returns every breaker's state, sorted by endpoint.
func (r *Registry) Snapshots() []Snapshot {
	breakers := r.all()
	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Endpoint < out[j].Endpoint
	})
	return out
}

func (r *Registry) all() []*Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}
