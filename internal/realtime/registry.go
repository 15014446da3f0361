package realtime

import "sync"

// Registry maps connection ids to their single live session. Its atomic
// remove is the sole serialization point for the race between an explicit
// stop and a disconnect: whichever caller gets the session back finalizes
// it, the other sees nil and does nothing.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Create installs the session built by factory, atomically replacing any
// stale leftover for the connection. The leftover is disposed, not treated
// as an error: a client re-initializing over the same connection simply
// abandons its previous session.
func (r *Registry) Create(connID string, factory func() *Session) *Session {
	sess := factory()

	r.mu.Lock()
	stale := r.sessions[connID]
	r.sessions[connID] = sess
	r.mu.Unlock()

	if stale != nil {
		stale.Dispose()
	}
	return sess
}

// Get returns the live session for the connection, or nil.
func (r *Registry) Get(connID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[connID]
}

// Remove atomically detaches and returns the session, or nil if the
// connection has none. Exactly one concurrent caller gets a non-nil result.
func (r *Registry) Remove(connID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[connID]
	if sess != nil {
		delete(r.sessions, connID)
	}
	return sess
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
