package repository

import (
	"context"
	"errors"

	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

var (
	ErrNotFound         = errors.New("identity not found")
	ErrAlreadyExists    = errors.New("identity already exists")
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// SubscriptionStore mutates the durable subscription set of an identity.
// Both operations are idempotent, atomic per identity, and return the
// resulting set sorted ascending.
type SubscriptionStore interface {
	AddSubscription(ctx context.Context, key, symbol string) ([]string, error)
	RemoveSubscription(ctx context.Context, key, symbol string) ([]string, error)
}

// CredentialStore holds registered identities.
type CredentialStore interface {
	SubscriptionStore

	FindByKey(ctx context.Context, key string) (*models.Identity, error)
	Create(ctx context.Context, key, secret string) (*models.Identity, error)
	Verify(identity *models.Identity, secret string) bool
	Close() error
}

// unavailable wraps backend failures so callers can match ErrStoreUnavailable
// while the underlying cause stays in the chain for logging.
func unavailable(op string, err error) error {
	return &storeError{op: op, err: err}
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return e.op + ": " + ErrStoreUnavailable.Error() + ": " + e.err.Error()
}
func (e *storeError) Unwrap() []error { return []error{ErrStoreUnavailable, e.err} }
