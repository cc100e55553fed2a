// Package registry interns log message field names into dense integer
// handles, shared process-wide by every NVTable.
//
// Grounded on the name-value registry described in spec.md §4.1 and
// exercised against the original syslog-ng nv_registry_* contract in
// original_source/lib/logmsg/tests/test_nvtable.c (test_nv_registry).
package registry

import (
	"sync"

	"github.com/logflowd/logflowd/internal/telemetry"
	"github.com/logflowd/logflowd/log"
)

// Handle names a field in an NVTable. Zero means "none".
type Handle uint32

// NoHandle is the reserved zero handle meaning "none".
const NoHandle Handle = 0

// Registry interns names to handles. It is safe for concurrent use.
type Registry struct {
	mu sync.Mutex

	numStatic Handle
	next      Handle
	max       Handle

	names   map[Handle]string
	byName  map[string]Handle
	warned  bool

	metrics *telemetry.RegistryMetrics
}

// New creates a registry with the given static (built-in) names pre-allocated
// as handles 1..len(staticNames), and a hard ceiling on the total number of
// handles ever allocated.
func New(staticNames []string, max uint32) *Registry {
	r := &Registry{
		max:    Handle(max),
		names:  make(map[Handle]string, max),
		byName: make(map[string]Handle, max),
	}
	for _, name := range staticNames {
		r.AllocHandle(name)
	}
	r.numStatic = r.next
	return r
}

// NumStatic returns the number of static handles reserved at construction.
func (r *Registry) NumStatic() Handle {
	return r.numStatic
}

// SetMetrics wires m into the registry's allocation path. A nil m (the
// default) disables instrumentation entirely at no cost.
func (r *Registry) SetMetrics(m *telemetry.RegistryMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// AllocHandle returns the handle for name, allocating a new dynamic handle
// if name (or one of its aliases) is not yet known. Returns NoHandle once
// the registry's ceiling has been reached.
func (r *Registry) AllocHandle(name string) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.byName[name]; ok {
		return h
	}

	if r.next >= r.max {
		log.Once(&r.warned, func() {
			log.Errorf("registry: handle space exhausted (max=%d), refusing to allocate %q", r.max, name)
		})
		r.metrics.Exhausted()
		return NoHandle
	}

	r.next++
	h := r.next
	r.names[h] = name
	r.byName[name] = h
	r.metrics.Allocated()
	return h
}

// AddAlias makes name resolve to handle. A repeat call with the same pair is
// a no-op; aliasing a name that already denotes a different canonical handle
// is rejected.
func (r *Registry) AddAlias(handle Handle, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		return existing == handle
	}
	if _, ok := r.names[handle]; !ok {
		return false
	}
	r.byName[name] = handle
	return true
}

// GetName returns the name the handle was originally registered under,
// never an alias.
func (r *Registry) GetName(handle Handle) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[handle]
	return name, ok
}
