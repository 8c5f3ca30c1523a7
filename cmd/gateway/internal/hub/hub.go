package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/auth"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/ledger"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/session"
	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

const registerSuccessMessage = "registration successful"

// PriceSource exposes the simulator's current prices.
type PriceSource interface {
	Prices() map[string]float64
}

// Hub dispatches client commands and routes price ticks to subscribed sessions.
type Hub struct {
	registry *session.Registry
	auth     *auth.Service
	ledger   *ledger.Ledger
	prices   PriceSource
	catalog  models.Catalog
	logger   *zap.Logger
}

func NewHub(store repository.CredentialStore, prices PriceSource, catalog models.Catalog, logger *zap.Logger) *Hub {
	return &Hub{
		registry: session.NewRegistry(),
		auth:     auth.NewService(store, logger),
		ledger:   ledger.New(store, catalog, logger),
		prices:   prices,
		catalog:  catalog,
		logger:   logger,
	}
}

// Register opens an anonymous session for a freshly connected client.
func (h *Hub) Register(client session.Client) *session.Session {
	sess := h.registry.Connect(client)
	h.logger.Debug("Client connected", zap.String("session", sess.ID().String()), zap.String("remote", client.ID()))
	return sess
}

// Unregister drops the session; nothing is delivered to it afterwards.
func (h *Hub) Unregister(sess *session.Session) {
	if _, ok := h.registry.Disconnect(sess.ID()); ok {
		h.logger.Debug("Client disconnected", zap.String("session", sess.ID().String()))
	}
	sess.Client().Close()
}

// Sessions reports the number of live sessions.
func (h *Hub) Sessions() int { return h.registry.Len() }

// HandleCommand runs one client command to completion. Callers must not
// issue the next command for the same session before this returns.
func (h *Hub) HandleCommand(ctx context.Context, sess *session.Session, req protocol.WSRequest) {
	switch req.Event {
	case protocol.EventRegister:
		h.handleRegister(ctx, sess, req)
	case protocol.EventLogin:
		h.handleLogin(ctx, sess, req)
	case protocol.EventSubscribe, protocol.EventUnsubscribe, protocol.EventRequestSnapshot:
		// Nothing but register/login is accepted before login_success
		if !sess.Authenticated() {
			return
		}
		if req.Event == protocol.EventRequestSnapshot {
			h.handleSnapshot(sess)
			return
		}
		h.handleSubscription(ctx, sess, req)
	default:
		h.sendError(sess, "Unknown event: "+req.Event)
	}
}

func (h *Hub) handleRegister(ctx context.Context, sess *session.Session, req protocol.WSRequest) {
	creds, err := req.Credentials()
	if err != nil {
		sess.Send(protocol.RegisterError("invalid request"))
		return
	}

	if _, err := h.auth.Register(ctx, creds.IdentityKey, creds.Secret); err != nil {
		sess.Send(protocol.RegisterError(auth.Reason(err)))
		return
	}
	sess.Send(protocol.RegisterSuccess(registerSuccessMessage))
}

func (h *Hub) handleLogin(ctx context.Context, sess *session.Session, req protocol.WSRequest) {
	creds, err := req.Credentials()
	if err != nil {
		sess.Send(protocol.LoginError("invalid request"))
		return
	}

	identity, err := h.auth.Login(ctx, creds.IdentityKey, creds.Secret)
	if err != nil {
		sess.Send(protocol.LoginError(auth.Reason(err)))
		return
	}

	switch err := h.registry.Bind(sess.ID(), identity); {
	case errors.Is(err, session.ErrAlreadyBound):
		sess.Send(protocol.LoginError("already logged in"))
		return
	case err != nil:
		// Disconnected while the store was answering
		return
	}

	h.logger.Info("Session authenticated",
		zap.String("session", sess.ID().String()),
		zap.String("identity", identity.Key),
	)
	sess.Send(protocol.LoginSuccess(identity.Key, h.catalog.Symbols()))
	sess.Send(protocol.Subscribed(sess.Subscriptions()))
}

func (h *Hub) handleSubscription(ctx context.Context, sess *session.Session, req protocol.WSRequest) {
	symbol, err := req.Symbol()
	if err != nil {
		h.sendError(sess, "invalid request")
		return
	}

	op := h.ledger.Subscribe
	if req.Event == protocol.EventUnsubscribe {
		op = h.ledger.Unsubscribe
	}
	if _, err := op(ctx, sess, symbol); err != nil {
		h.sendError(sess, "server error")
	}
}

// handleSnapshot sends the price of every catalog symbol, subscribed or not.
func (h *Hub) handleSnapshot(sess *session.Session) {
	current := h.prices.Prices()
	snapshot := make(map[string]float64, h.catalog.Len())
	for _, sym := range h.catalog.Symbols() {
		if p, ok := current[sym]; ok {
			snapshot[sym] = p
		}
	}
	sess.Send(protocol.InitialPrices(snapshot))
}

// Broadcast delivers each sample of a tick to the sessions subscribed to
// its symbol. Delivery is fire-and-forget.
func (h *Hub) Broadcast(batch []models.StockUpdate) {
	sessions := h.registry.Authenticated()
	if len(sessions) == 0 {
		return
	}

	for _, update := range batch {
		var payload []byte
		for _, sess := range sessions {
			if !sess.IsSubscribed(update.Symbol) {
				continue
			}
			if payload == nil {
				b, err := protocol.EncodePriceUpdate(update)
				if err != nil {
					h.logger.Error("Encode price update failed", zap.String("symbol", update.Symbol), zap.Error(err))
					break
				}
				payload = b
			}
			sess.Client().SendBytes(payload)
		}
	}
}

func (h *Hub) sendError(sess *session.Session, reason string) {
	sess.Send(protocol.Error(reason))
}
