package metrics

import (
	"fmt"
	"sync"
)

// ID identifies a registered metric within its kind (counter or timer).
type ID int

// GID identifies a registered measurement group.
type GID int

// DefaultGroup is the group used by callers that don't need to segment
// their metrics, e.g. a single Engine with one PageManager per TimeRange.
const DefaultGroup GID = 0

type desc struct {
	Name string
	Help string
}

type descOption func(*desc)

// WithHelp attaches a short human-readable description to a registered
// metric, surfaced by exporters that print metric documentation.
func WithHelp(help string) descOption {
	return func(d *desc) { d.Help = help }
}

// Registry holds the set of named metrics a Group will track. Register
// metrics once at startup; NewGroup then produces independent, zeroed
// storage for every registered metric, so two Groups never share state.
type Registry struct {
	mu       sync.Mutex
	names    map[string]bool
	groups   map[GID]string
	counters []desc
	timers   []desc
}

// NewRegistry returns an empty Registry with only the default group
// defined.
func NewRegistry() *Registry {
	return &Registry{
		names:  make(map[string]bool),
		groups: map[GID]string{DefaultGroup: "default"},
	}
}

// MustRegisterGroup registers a new group using the specified name.
// If the group name is not unique, MustRegisterGroup will panic.
//
// MustRegisterGroup is not safe to call from multiple goroutines.
func (r *Registry) MustRegisterGroup(name string) GID {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.groups {
		if existing == name {
			panic(fmt.Sprintf("group name '%s' already in use", name))
		}
	}
	gid := GID(len(r.groups))
	r.groups[gid] = name
	return gid
}

// MustRegisterCounter registers a new counter metric using the provided
// descriptor. If the metric name is not unique across counters and
// timers, MustRegisterCounter will panic.
//
// MustRegisterCounter is not safe to call from multiple goroutines.
func (r *Registry) MustRegisterCounter(name string, opts ...descOption) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mustBeUnique(name)
	d := desc{Name: name}
	for _, opt := range opts {
		opt(&d)
	}

	id := ID(len(r.counters))
	r.counters = append(r.counters, d)
	return id
}

// MustRegisterTimer registers a new timer metric using the provided
// descriptor. If the metric name is not unique across counters and
// timers, MustRegisterTimer will panic.
//
// MustRegisterTimer is not safe to call from multiple goroutines.
func (r *Registry) MustRegisterTimer(name string, opts ...descOption) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mustBeUnique(name)
	d := desc{Name: name}
	for _, opt := range opts {
		opt(&d)
	}

	id := ID(len(r.timers))
	r.timers = append(r.timers, d)
	return id
}

func (r *Registry) mustBeUnique(name string) {
	if r.names[name] {
		panic(fmt.Sprintf("metric name '%s' already in use", name))
	}
	r.names[name] = true
}

// NewGroup returns a fresh measurement group: one zeroed Counter or
// Timer per metric registered with r so far, independent of any other
// Group's storage.
//
// NewGroup is safe to call from multiple goroutines.
func (r *Registry) NewGroup(gid GID) *Group {
	r.mu.Lock()
	defer r.mu.Unlock()

	counters := make([]Counter, len(r.counters))
	for i := range counters {
		counters[i].desc = &r.counters[i]
	}

	timers := make([]Timer, len(r.timers))
	for i := range timers {
		timers[i].desc = &r.timers[i]
	}

	return &Group{gid: gid, counters: counters, timers: timers}
}

// Group is a set of live metric storage for one measurement instance,
// e.g. one per Engine, scoped to the metrics registered at the time
// NewGroup was called.
type Group struct {
	gid      GID
	counters []Counter
	timers   []Timer
}

// GID returns the group id this Group was created for.
func (g *Group) GID() GID { return g.gid }

// GetCounter returns the counter registered with id.
func (g *Group) GetCounter(id ID) *Counter {
	return &g.counters[id]
}

// GetTimer returns the timer registered with id.
func (g *Group) GetTimer(id ID) *Timer {
	return &g.timers[id]
}
