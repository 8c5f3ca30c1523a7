package hub_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/session"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

var catalog = models.NewCatalog(models.DefaultSymbols)

var prices = testutils.StaticPrices{"GOOG": 150, "TSLA": 210.5, "AMZN": 1.0, "META": 99.9, "NVDA": 400}

func setup() (*hub.Hub, *testutils.MockCredentialStore) {
	store := testutils.NewMockCredentialStore()
	return hub.NewHub(store, prices, catalog, zap.NewNop()), store
}

func cmd(event string, data interface{}) protocol.WSRequest {
	req := protocol.WSRequest{Event: event}
	if data != nil {
		req.Data, _ = json.Marshal(data)
	}
	return req
}

func creds(key, secret string) protocol.CredentialsPayload {
	return protocol.CredentialsPayload{IdentityKey: key, Secret: secret}
}

func sym(s string) protocol.SymbolPayload { return protocol.SymbolPayload{Symbol: s} }

// connectAndLogin registers key (ignoring duplicates) and logs a new session in.
func connectAndLogin(t *testing.T, h *hub.Hub, key string) (*session.Session, *testutils.MockClient) {
	t.Helper()
	ctx := context.Background()
	client := testutils.NewMockClient(key)
	sess := h.Register(client)

	h.HandleCommand(ctx, sess, cmd(protocol.EventRegister, creds(key, "secret1")))
	h.HandleCommand(ctx, sess, cmd(protocol.EventLogin, creds(key, "secret1")))
	if !sess.Authenticated() {
		t.Fatalf("login for %s failed: %v", key, client.Events())
	}
	return sess, client
}

func TestHub_Register(t *testing.T) {
	h, store := setup()
	ctx := context.Background()
	client := testutils.NewMockClient("c1")
	sess := h.Register(client)

	h.HandleCommand(ctx, sess, cmd(protocol.EventRegister, creds("a@x.com", "secret1")))
	msg, _ := client.LastMsg()
	if msg.Event != protocol.EventRegisterSuccess {
		t.Fatalf("Expected register_success, got %s", msg.Event)
	}
	if msg.Data.(protocol.MessageData).Message != "registration successful" {
		t.Errorf("Unexpected message %+v", msg.Data)
	}

	h.HandleCommand(ctx, sess, cmd(protocol.EventRegister, creds("a@x.com", "other-secret")))
	msg, _ = client.LastMsg()
	if msg.Event != protocol.EventRegisterError || msg.Data.(protocol.ReasonData).Reason != "user already exists" {
		t.Errorf("Expected duplicate register_error, got %+v", msg)
	}
	if store.Identities["a@x.com"].Verifier != "hashed:secret1" {
		t.Error("Duplicate registration altered the first record")
	}
}

func TestHub_Register_Validation(t *testing.T) {
	h, store := setup()
	client := testutils.NewMockClient("c1")
	sess := h.Register(client)

	h.HandleCommand(context.Background(), sess, cmd(protocol.EventRegister, creds("a@x.com", "short")))

	if client.LastMsgEvent() != protocol.EventRegisterError {
		t.Errorf("Expected register_error, got %s", client.LastMsgEvent())
	}
	if store.Calls != 0 {
		t.Error("Validation must short-circuit before the store")
	}
}

func TestHub_Login_Success(t *testing.T) {
	h, _ := setup()
	_, client := connectAndLogin(t, h, "a@x.com")

	events := client.Events()
	want := []string{protocol.EventRegisterSuccess, protocol.EventLoginSuccess, protocol.EventSubscribed}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("Expected %v, got %v", want, events)
	}

	login := client.Messages[1].Data.(protocol.LoginSuccessData)
	if login.IdentityKey != "a@x.com" {
		t.Errorf("Expected identity a@x.com, got %s", login.IdentityKey)
	}
	if !reflect.DeepEqual(login.Catalog, []string{"GOOG", "TSLA", "AMZN", "META", "NVDA"}) {
		t.Errorf("Unexpected catalog %v", login.Catalog)
	}
	if syms, _ := client.LastSubscribed(); len(syms) != 0 {
		t.Errorf("Expected empty subscription set, got %v", syms)
	}
}

func TestHub_Login_Failures(t *testing.T) {
	h, _ := setup()
	ctx := context.Background()
	client := testutils.NewMockClient("c1")
	sess := h.Register(client)
	h.HandleCommand(ctx, sess, cmd(protocol.EventRegister, creds("a@x.com", "secret1")))

	var reasons []string
	for _, c := range []protocol.CredentialsPayload{creds("a@x.com", "wrong-1"), creds("a@x.com", "wrong-2"), creds("ghost@x.com", "secret1")} {
		h.HandleCommand(ctx, sess, cmd(protocol.EventLogin, c))
		msg, _ := client.LastMsg()
		if msg.Event != protocol.EventLoginError {
			t.Fatalf("Expected login_error, got %s", msg.Event)
		}
		reasons = append(reasons, msg.Data.(protocol.ReasonData).Reason)
	}

	if sess.Authenticated() {
		t.Error("Failed logins must leave the session anonymous")
	}
	if reasons[0] != reasons[2] {
		t.Errorf("Unknown identity and wrong secret should look alike: %v", reasons)
	}
}

func TestHub_Login_Twice(t *testing.T) {
	h, _ := setup()
	sess, client := connectAndLogin(t, h, "a@x.com")

	h.HandleCommand(context.Background(), sess, cmd(protocol.EventLogin, creds("a@x.com", "secret1")))

	if client.LastMsgEvent() != protocol.EventLoginError {
		t.Errorf("Expected login_error on second login, got %s", client.LastMsgEvent())
	}
}

func TestHub_AnonymousCommandsIgnored(t *testing.T) {
	h, store := setup()
	ctx := context.Background()
	client := testutils.NewMockClient("c1")
	sess := h.Register(client)

	h.HandleCommand(ctx, sess, cmd(protocol.EventSubscribe, sym("GOOG")))
	h.HandleCommand(ctx, sess, cmd(protocol.EventUnsubscribe, sym("GOOG")))
	h.HandleCommand(ctx, sess, cmd(protocol.EventRequestSnapshot, nil))

	if len(client.Messages) != 0 {
		t.Errorf("Anonymous commands must be ignored silently, got %v", client.Events())
	}
	if store.Calls != 0 {
		t.Error("Anonymous commands must not reach the store")
	}
}

func TestHub_SubscribeOutsideCatalog(t *testing.T) {
	h, store := setup()
	sess, client := connectAndLogin(t, h, "a@x.com")
	client.Reset()

	h.HandleCommand(context.Background(), sess, cmd(protocol.EventSubscribe, sym("DOGE")))

	if len(client.Messages) != 0 {
		t.Errorf("Out-of-catalog subscribe must be silent, got %v", client.Events())
	}
	if got := store.Persisted("a@x.com"); len(got) != 0 {
		t.Errorf("Persisted set must not change, got %v", got)
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	h, _ := setup()
	ctx := context.Background()
	sess, client := connectAndLogin(t, h, "a@x.com")

	h.HandleCommand(ctx, sess, cmd(protocol.EventSubscribe, sym("goog")))
	if syms, _ := client.LastSubscribed(); !reflect.DeepEqual(syms, []string{"GOOG"}) {
		t.Fatalf("Expected [GOOG], got %v", syms)
	}

	h.HandleCommand(ctx, sess, cmd(protocol.EventUnsubscribe, sym("GOOG")))
	if syms, _ := client.LastSubscribed(); len(syms) != 0 {
		t.Errorf("Expected empty set after unsubscribe, got %v", syms)
	}
}

func TestHub_SubscribeStoreFailure(t *testing.T) {
	h, store := setup()
	sess, client := connectAndLogin(t, h, "a@x.com")
	store.FailWith = errors.New("connection reset")

	h.HandleCommand(context.Background(), sess, cmd(protocol.EventSubscribe, sym("GOOG")))

	msg, _ := client.LastMsg()
	if msg.Event != protocol.EventError || msg.Data.(protocol.ReasonData).Reason != "server error" {
		t.Errorf("Expected generic server error, got %+v", msg)
	}
}

func TestHub_UnknownEvent(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")
	sess := h.Register(client)

	h.HandleCommand(context.Background(), sess, cmd("teleport", nil))

	if client.LastMsgEvent() != protocol.EventError {
		t.Errorf("Expected error, got %s", client.LastMsgEvent())
	}
}

func TestHub_Snapshot(t *testing.T) {
	h, _ := setup()
	sess, client := connectAndLogin(t, h, "a@x.com")

	h.HandleCommand(context.Background(), sess, cmd(protocol.EventRequestSnapshot, nil))

	msg, _ := client.LastMsg()
	if msg.Event != protocol.EventInitialPrices {
		t.Fatalf("Expected initial_prices, got %s", msg.Event)
	}
	snapshot := msg.Data.(map[string]float64)
	for _, s := range catalog.Symbols() {
		p, ok := snapshot[s]
		if !ok {
			t.Errorf("Snapshot missing %s", s)
			continue
		}
		if p < 1.0 {
			t.Errorf("%s price %f below floor", s, p)
		}
	}
}

func TestHub_BroadcastDeliversOnlySubscribedSymbols(t *testing.T) {
	h, _ := setup()
	ctx := context.Background()

	a, clientA := connectAndLogin(t, h, "a@x.com")
	b, clientB := connectAndLogin(t, h, "b@x.com")
	anonClient := testutils.NewMockClient("anon")
	h.Register(anonClient)

	h.HandleCommand(ctx, a, cmd(protocol.EventSubscribe, sym("GOOG")))
	h.HandleCommand(ctx, a, cmd(protocol.EventSubscribe, sym("TSLA")))
	h.HandleCommand(ctx, b, cmd(protocol.EventSubscribe, sym("NVDA")))

	now := time.Now()
	var batch []models.StockUpdate
	for i, s := range catalog.Symbols() {
		batch = append(batch, models.StockUpdate{Symbol: s, Price: float64(100 + i), Time: now, SeqID: 1})
	}
	h.Broadcast(batch)

	received := func(c *testutils.MockClient) []string {
		var out []string
		for _, u := range c.PriceUpdates() {
			out = append(out, u.Symbol)
		}
		sort.Strings(out)
		return out
	}

	if got := received(clientA); !reflect.DeepEqual(got, []string{"GOOG", "TSLA"}) {
		t.Errorf("Session A expected [GOOG TSLA], got %v", got)
	}
	if got := received(clientB); !reflect.DeepEqual(got, []string{"NVDA"}) {
		t.Errorf("Session B expected [NVDA], got %v", got)
	}
	if len(anonClient.RawBytes) != 0 {
		t.Error("Anonymous session must receive no ticks")
	}

	for _, u := range clientA.PriceUpdates() {
		if u.Symbol == "GOOG" && u.Price != 100 {
			t.Errorf("GOOG expected price 100, got %f", u.Price)
		}
	}
}

func TestHub_NoDeliveryAfterUnregister(t *testing.T) {
	h, _ := setup()
	sess, client := connectAndLogin(t, h, "a@x.com")
	h.HandleCommand(context.Background(), sess, cmd(protocol.EventSubscribe, sym("GOOG")))

	h.Unregister(sess)
	h.Broadcast([]models.StockUpdate{{Symbol: "GOOG", Price: 1, Time: time.Now()}})

	if len(client.RawBytes) != 0 {
		t.Error("Unregistered session must not receive ticks")
	}
	if !client.Closed {
		t.Error("Unregister should close the client")
	}
	if h.Sessions() != 0 {
		t.Errorf("Expected 0 sessions, got %d", h.Sessions())
	}
}

func TestHub_PersistenceAcrossSessions(t *testing.T) {
	h, _ := setup()
	ctx := context.Background()

	first, _ := connectAndLogin(t, h, "a@x.com")
	h.HandleCommand(ctx, first, cmd(protocol.EventSubscribe, sym("GOOG")))
	h.Unregister(first)

	client := testutils.NewMockClient("again")
	sess := h.Register(client)
	h.HandleCommand(ctx, sess, cmd(protocol.EventLogin, creds("a@x.com", "secret1")))

	if syms, _ := client.LastSubscribed(); !reflect.DeepEqual(syms, []string{"GOOG"}) {
		t.Errorf("Expected [GOOG] restored on login, got %v", syms)
	}
}

func TestHub_ConcurrentSessions(t *testing.T) {
	// Run with `go test -race ./...`
	h, _ := setup()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, key := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		sess, _ := connectAndLogin(t, h, key)
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				h.HandleCommand(ctx, s, cmd(protocol.EventSubscribe, sym("GOOG")))
				h.HandleCommand(ctx, s, cmd(protocol.EventUnsubscribe, sym("GOOG")))
			}
			h.Unregister(s)
		}(sess)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			h.Broadcast([]models.StockUpdate{{Symbol: "GOOG", Price: 10, Time: time.Now()}})
		}
	}()

	wg.Wait()
	if h.Sessions() != 0 {
		t.Errorf("Expected all sessions gone, got %d", h.Sessions())
	}
}
