package session

import (
	"sync"
	"time"
)

// Registry is the in-memory session table: three parallel maps keyed by
// session id, updated atomically on create and destroy. The registry is the
// sole owner of container handles; everything else reaches containers
// through the Manager.
type Registry struct {
	mu         sync.Mutex
	max        int
	containers map[string]string // session id -> container name
	lastAccess map[string]time.Time
	locks      map[string]*sync.Mutex
}

// NewRegistry creates a registry capped at max sessions.
func NewRegistry(max int) *Registry {
	return &Registry{
		max:        max,
		containers: make(map[string]string),
		lastAccess: make(map[string]time.Time),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Lookup returns the container name for a session, if present.
func (r *Registry) Lookup(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.containers[sessionID]
	return name, ok
}

// Touch refreshes a session's last-access time.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.containers[sessionID]; ok {
		r.lastAccess[sessionID] = time.Now()
	}
}

// Add inserts a new session. It re-checks the capacity limit so two
// concurrent creates cannot exceed it; the loser must remove the container
// it created.
func (r *Registry) Add(sessionID, container string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.containers[sessionID]; !ok && len(r.containers) >= r.max {
		return false
	}
	r.containers[sessionID] = container
	r.lastAccess[sessionID] = time.Now()
	if _, ok := r.locks[sessionID]; !ok {
		r.locks[sessionID] = &sync.Mutex{}
	}
	return true
}

// Remove deletes a session from all three maps.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.containers, sessionID)
	delete(r.lastAccess, sessionID)
	delete(r.locks, sessionID)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.containers)
}

// AtCapacity reports whether a new session would exceed max_sessions.
func (r *Registry) AtCapacity() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.containers) >= r.max
}

// LockFor returns the per-session mutex for a registered session. The
// pointer stays valid after Remove so a holder can still unlock it; ids that
// are no longer registered get nothing, so lock entries cannot leak.
func (r *Registry) LockFor(sessionID string) (*sync.Mutex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mu, ok := r.locks[sessionID]
	return mu, ok
}

// Sessions returns a snapshot of all live session ids.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.containers))
	for sid := range r.containers {
		ids = append(ids, sid)
	}
	return ids
}

// IdleLongerThan returns sessions whose idle time exceeds ttl.
func (r *Registry) IdleLongerThan(ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var expired []string
	for sid, last := range r.lastAccess {
		if now.Sub(last) > ttl {
			expired = append(expired, sid)
		}
	}
	return expired
}
