package testutils

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // Responses sent through SendJSON
	RawBytes []string              // Pre-encoded frames sent through SendBytes
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = append(m.RawBytes, string(b))
}

func (m *MockClient) LastMsg() (protocol.WSResponse, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return protocol.WSResponse{}, false
	}
	return m.Messages[len(m.Messages)-1], true
}

func (m *MockClient) LastMsgEvent() string {
	msg, _ := m.LastMsg()
	return msg.Event
}

func (m *MockClient) Events() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]string, len(m.Messages))
	for i, msg := range m.Messages {
		out[i] = msg.Event
	}
	return out
}

// LastSubscribed returns the symbols of the latest "subscribed" message.
func (m *MockClient) LastSubscribed() ([]string, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for i := len(m.Messages) - 1; i >= 0; i-- {
		if data, ok := m.Messages[i].Data.(protocol.SubscribedData); ok {
			return data.Symbols, true
		}
	}
	return nil, false
}

// PriceUpdates decodes every broadcast frame the client received.
func (m *MockClient) PriceUpdates() []protocol.PriceUpdateData {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	var out []protocol.PriceUpdateData
	for _, raw := range m.RawBytes {
		var frame struct {
			Event string                   `json:"event"`
			Data  protocol.PriceUpdateData `json:"data"`
		}
		if err := json.Unmarshal([]byte(raw), &frame); err == nil && frame.Event == protocol.EventPriceUpdate {
			out = append(out, frame.Data)
		}
	}
	return out
}

func (m *MockClient) Reset() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Messages = m.Messages[:0]
	m.RawBytes = m.RawBytes[:0]
}

var _ repository.CredentialStore = (*MockCredentialStore)(nil)

// MockCredentialStore is an in-memory store with a fake hash.
type MockCredentialStore struct {
	Identities map[string]*models.Identity
	Calls      int
	FailWith   error
	// BeforeMutate runs at the start of Add/RemoveSubscription, outside the lock
	BeforeMutate func()
	Mu           sync.Mutex
}

func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{Identities: make(map[string]*models.Identity)}
}

func (m *MockCredentialStore) FindByKey(ctx context.Context, key string) (*models.Identity, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	id, ok := m.Identities[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *id
	cp.Subscriptions = append([]string{}, id.Subscriptions...)
	return &cp, nil
}

func (m *MockCredentialStore) Create(ctx context.Context, key, secret string) (*models.Identity, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if _, ok := m.Identities[key]; ok {
		return nil, repository.ErrAlreadyExists
	}
	id := &models.Identity{Key: key, Verifier: "hashed:" + secret, Subscriptions: []string{}, CreatedAt: time.Now()}
	m.Identities[key] = id
	return id, nil
}

func (m *MockCredentialStore) Verify(identity *models.Identity, secret string) bool {
	return identity != nil && identity.Verifier == "hashed:"+secret
}

func (m *MockCredentialStore) AddSubscription(ctx context.Context, key, symbol string) ([]string, error) {
	return m.mutate(key, func(set map[string]bool) { set[symbol] = true })
}

func (m *MockCredentialStore) RemoveSubscription(ctx context.Context, key, symbol string) ([]string, error) {
	return m.mutate(key, func(set map[string]bool) { delete(set, symbol) })
}

func (m *MockCredentialStore) mutate(key string, fn func(set map[string]bool)) ([]string, error) {
	if m.BeforeMutate != nil {
		m.BeforeMutate()
	}

	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	id, ok := m.Identities[key]
	if !ok {
		return nil, repository.ErrNotFound
	}

	set := make(map[string]bool)
	for _, s := range id.Subscriptions {
		set[s] = true
	}
	fn(set)

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	id.Subscriptions = out
	return append([]string{}, out...), nil
}

// Persisted returns the stored subscription set of key.
func (m *MockCredentialStore) Persisted(key string) []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if id, ok := m.Identities[key]; ok {
		return append([]string{}, id.Subscriptions...)
	}
	return nil
}

func (m *MockCredentialStore) Close() error { return nil }

// StaticPrices serves a fixed price table.
type StaticPrices map[string]float64

func (s StaticPrices) Prices() map[string]float64 {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
