// Package session implements the local, per-pod session table: one socket
// per user per pod, with registration under an existing key replacing the
// prior entry and closing the superseded socket.
package session

import (
	"log/slog"
	"sync"

	"chatgate/internal/metrics"
)

// Socket is the narrow send capability a transport must provide. It lets
// the session table and the delivery router stay transport-agnostic.
type Socket interface {
	Send(v any) error
	Close() error
}

// Table is the concurrent map of user ID to open socket on this pod.
// Registration under an existing key atomically replaces the entry and
// closes the superseded socket.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]Socket
}

// New constructs an empty Table.
func New() *Table {
	return &Table{sessions: make(map[string]Socket)}
}

// Put registers sock for userID, closing any socket it replaces.
func (t *Table) Put(userID string, sock Socket) {
	t.mu.Lock()
	old, existed := t.sessions[userID]
	t.sessions[userID] = sock
	t.mu.Unlock()

	if !existed {
		metrics.LocalSessions.Inc()
	}
	if existed && old != sock {
		slog.Info("session replaced", "component", "session", "user_id", userID)
		_ = old.Close()
	}
}

// Remove deletes userID's entry, but only if sock is still the currently
// registered socket — this prevents a slow disconnect cleanup from
// clobbering a session that has already been replaced.
func (t *Table) Remove(userID string, sock Socket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.sessions[userID]
	if !ok || cur != sock {
		return false
	}
	delete(t.sessions, userID)
	metrics.LocalSessions.Dec()
	return true
}

// Get returns the socket registered for userID, if any.
func (t *Table) Get(userID string) (Socket, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sock, ok := t.sessions[userID]
	return sock, ok
}

// Count returns the number of sessions currently registered on this pod.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
