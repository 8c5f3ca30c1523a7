package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

// Registry owns every live session, indexed by session ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Connect registers a new anonymous session for client.
func (r *Registry) Connect(client Client) *Session {
	s := newSession(client)

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	return s
}

// Bind authenticates the session and seeds its cache with the identity's
// persisted subscriptions.
func (r *Registry) Bind(id uuid.UUID, identity *models.Identity) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrUnknownSession
	}
	return s.bind(identity.Key, identity.Subscriptions)
}

// Disconnect removes the session. It is safe to call more than once.
func (r *Registry) Disconnect(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.close()
	}
	return s, ok
}

func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Authenticated snapshots the sessions currently bound to an identity.
func (r *Registry) Authenticated() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Authenticated() {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
