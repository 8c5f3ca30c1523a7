// Package ledger keeps each session's cached subscription set in step with
// the durable credential store.
package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/session"
	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

type mutation func(ctx context.Context, key, symbol string) ([]string, error)

type Ledger struct {
	store   repository.SubscriptionStore
	catalog models.Catalog
	logger  *zap.Logger
}

func New(store repository.SubscriptionStore, catalog models.Catalog, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

// Subscribe adds symbol to the session's identity. Anonymous sessions and
// symbols outside the catalog are ignored without any reply; applied
// reports whether the request got past that filter.
func (l *Ledger) Subscribe(ctx context.Context, sess *session.Session, symbol string) (applied bool, err error) {
	return l.apply(ctx, "subscribe", sess, symbol, l.store.AddSubscription)
}

// Unsubscribe is the inverse of Subscribe with the same silence policy.
func (l *Ledger) Unsubscribe(ctx context.Context, sess *session.Session, symbol string) (applied bool, err error) {
	return l.apply(ctx, "unsubscribe", sess, symbol, l.store.RemoveSubscription)
}

func (l *Ledger) apply(ctx context.Context, op string, sess *session.Session, symbol string, mutate mutation) (bool, error) {
	key, ok := sess.IdentityKey()
	if !ok || !l.catalog.Contains(symbol) {
		return false, nil
	}

	// The store's answer wins over anything computed locally, so a
	// concurrent change from another session of the same identity shows up here.
	symbols, err := mutate(ctx, key, symbol)
	if err != nil {
		l.logger.Error("Subscription update failed",
			zap.String("op", op),
			zap.String("identity", key),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return true, err
	}

	if !sess.ReplaceSubscriptions(symbols) {
		l.logger.Debug("Session closed during store call, discarding result",
			zap.String("op", op),
			zap.String("session", sess.ID().String()),
		)
		return true, nil
	}

	sess.Send(protocol.Subscribed(symbols))
	l.logger.Debug("Subscriptions updated",
		zap.String("op", op),
		zap.String("identity", key),
		zap.Strings("symbols", symbols),
	)
	return true, nil
}
