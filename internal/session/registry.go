// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Handle bundles everything the engine tracks for one session.
type Handle struct {
	Context *Context
	Tracker *Tracker

	mu     sync.RWMutex
	result *types.Result
	done   time.Time
}

// SetResult stores the finished result and stamps the completion time used
// by the eviction sweep.
func (h *Handle) SetResult(r *types.Result, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result = r
	h.done = at
}

// Result returns the stored result, nil while the session is running.
func (h *Handle) Result() *types.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result
}

// doneAt returns the completion time, zero while running.
func (h *Handle) doneAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.done
}

// Registry owns the active sessions of one engine instance. It is an
// injected value, not a package global; two engines never share state.
// Finished sessions stay readable for a retention window so late pollers
// can still fetch progress and results, then a background sweep evicts
// them.
type Registry struct {
	retention time.Duration

	mu       sync.RWMutex
	sessions map[string]*Handle

	stopOnce sync.Once
	stop     chan struct{}
}

// sweepInterval is how often the eviction sweep runs.
const sweepInterval = time.Minute

// NewRegistry creates a registry evicting finished sessions after the given
// retention window. Zero retention uses the config default.
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = types.DefaultResearchConfig().ResultRetention
	}
	r := &Registry{
		retention: retention,
		sessions:  make(map[string]*Handle),
		stop:      make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Close stops the eviction sweep.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Create registers a new session and returns its id and handle.
func (r *Registry) Create(query string, profile types.UserProfile, cfg types.ResearchConfig) (string, *Handle) {
	id := uuid.NewString()
	h := &Handle{
		Context: NewContext(id, query, profile, cfg),
		Tracker: NewTracker(id),
	}
	r.mu.Lock()
	r.sessions[id] = h
	r.mu.Unlock()
	return id, h
}

// Get returns the handle for a session id.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	return h, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// sweep evicts sessions whose retention window has passed.
func (r *Registry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.evictBefore(now.Add(-r.retention))
		}
	}
}

// evictBefore removes sessions finished before the cutoff.
func (r *Registry) evictBefore(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.sessions {
		if done := h.doneAt(); !done.IsZero() && done.Before(cutoff) {
			delete(r.sessions, id)
		}
	}
}
