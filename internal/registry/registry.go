// Package registry tracks which users hold a live connection and which rooms
// they are subscribed to. It is the only mutable shared state in the relay
// core; everything else reads snapshots of it.
package registry

import (
	"sync"

	v1 "relay/contracts/chat/v1"
)

// Conn is the opaque connection handle held per session. The registry never
// owns the transport's lifetime; the lifecycle controller that accepted the
// connection does.
type Conn interface {
	// Enqueue offers a frame to the connection's send queue without blocking.
	// It reports false when the client is shutting down or the queue is full.
	Enqueue(f v1.Frame) bool
	// Done is closed when the connection is shutting down.
	Done() <-chan struct{}
	// Close signals connection goroutines to stop (idempotent).
	Close()
	// CloseTransport force-closes the underlying socket (best effort).
	CloseTransport()
}

// Session is the live association between a user identity and its connection.
type Session struct {
	UserID      string
	DisplayName string
	Conn        Conn
}

// Registry maps userID -> live session and userID -> subscribed room set.
//
// Invariant: a fully registered user has entries in both maps; Register and
// Unregister maintain the pair atomically under one lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	subs     map[string]map[string]struct{}
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		subs:     make(map[string]map[string]struct{}),
	}
}

// Register inserts or overwrites the session entry for userID. A pre-existing
// connection for the same id is superseded and abandoned; closing it is the
// caller's responsibility, not the registry's.
func (r *Registry) Register(userID, displayName string, conn Conn) {
	if userID == "" || conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[userID] = Session{UserID: userID, DisplayName: displayName, Conn: conn}
	if r.subs[userID] == nil {
		r.subs[userID] = make(map[string]struct{})
	}
}

// Unregister removes and returns the session if present. Safe to call twice;
// the second call reports ok=false.
func (r *Registry) Unregister(userID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, userID)
	delete(r.subs, userID)
	return s, true
}

// UnregisterConn removes the session only while conn is still the
// registered connection for userID. A superseded connection's late teardown
// therefore cannot evict its replacement; the call reports ok=false and the
// live session stays intact.
func (r *Registry) UnregisterConn(userID string, conn Conn) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok || s.Conn != conn {
		return Session{}, false
	}
	delete(r.sessions, userID)
	delete(r.subs, userID)
	return s, true
}

// Lookup returns the connection for userID, if any.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return s.Conn, true
}

// AllSessions returns a snapshot of the current sessions. Readers iterate the
// snapshot, so entries disappearing concurrently are not an error.
func (r *Registry) AllSessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Subscribe adds roomID to userID's subscription set.
func (r *Registry) Subscribe(userID, roomID string) {
	if userID == "" || roomID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[userID] == nil {
		r.subs[userID] = make(map[string]struct{})
	}
	r.subs[userID][roomID] = struct{}{}
}

// Subscriptions returns a copy of userID's subscribed room ids.
func (r *Registry) Subscriptions(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subs[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Subscribed reports whether userID is subscribed to roomID.
func (r *Registry) Subscribed(userID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.subs[userID][roomID]
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SnapshotAndClear atomically removes every session and returns them. Used by
// the shutdown coordinator so no further fan-out targets a connection that is
// being torn down.
func (r *Registry) SnapshotAndClear() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.sessions = make(map[string]Session)
	r.subs = make(map[string]map[string]struct{})
	return out
}
