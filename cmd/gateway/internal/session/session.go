package session

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyBound   = errors.New("session already bound to an identity")
	ErrSessionClosed  = errors.New("session closed")
	ErrUnknownSession = errors.New("unknown session")
)

// Client is the outbound half of a live connection.
type Client interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// Session is the runtime state of one connection. The subscription cache
// exists only while the session is authenticated.
type Session struct {
	id     uuid.UUID
	client Client

	mu          sync.RWMutex
	state       State
	identityKey string
	subs        map[string]struct{}
}

func newSession(client Client) *Session {
	return &Session{
		id:     uuid.New(),
		client: client,
		state:  StateAnonymous,
	}
}

func (s *Session) ID() uuid.UUID      { return s.id }
func (s *Session) Client() Client     { return s.client }
func (s *Session) Send(v interface{}) { s.client.SendJSON(v) }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Authenticated() bool { return s.State() == StateAuthenticated }

// IdentityKey returns the bound identity, if any.
func (s *Session) IdentityKey() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated {
		return "", false
	}
	return s.identityKey, true
}

// Subscriptions returns the cached set sorted, or nil when not authenticated.
func (s *Session) Subscriptions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated {
		return nil
	}
	out := make([]string, 0, len(s.subs))
	for sym := range s.subs {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// IsSubscribed is the router's matching decision.
func (s *Session) IsSubscribed(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated {
		return false
	}
	_, ok := s.subs[symbol]
	return ok
}

// ReplaceSubscriptions overwrites the cache with a set returned by the
// store. It reports false, leaving the session untouched, when the session
// is anonymous or already closed.
func (s *Session) ReplaceSubscriptions(symbols []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return false
	}
	s.subs = toSet(symbols)
	return true
}

func (s *Session) bind(identityKey string, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateAuthenticated:
		return ErrAlreadyBound
	case StateClosed:
		return ErrSessionClosed
	}
	s.state = StateAuthenticated
	s.identityKey = identityKey
	s.subs = toSet(symbols)
	return nil
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.subs = nil
}

func toSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		set[sym] = struct{}{}
	}
	return set
}
