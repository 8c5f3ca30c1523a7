package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

const (
	MinSecretLength = 6
	// bcrypt ignores everything past 72 bytes
	MaxSecretLength = repository.MaxSecretBytes
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError describes a rejected registration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string        { return e.Reason }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Store is the part of the credential store the auth flow needs.
type Store interface {
	FindByKey(ctx context.Context, key string) (*models.Identity, error)
	Create(ctx context.Context, key, secret string) (*models.Identity, error)
	Verify(identity *models.Identity, secret string) bool
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// ValidateCredentials applies the registration policy. It never touches the store.
func ValidateCredentials(key, secret string) error {
	local, domain, ok := strings.Cut(key, "@")
	if !ok || local == "" || domain == "" || strings.ContainsAny(key, " \t\r\n") {
		return &ValidationError{Field: "identityKey", Reason: "invalid email address"}
	}
	if len(secret) < MinSecretLength {
		return &ValidationError{Field: "secret", Reason: fmt.Sprintf("password must be at least %d characters", MinSecretLength)}
	}
	if len(secret) > MaxSecretLength {
		return &ValidationError{Field: "secret", Reason: fmt.Sprintf("password must be at most %d characters", MaxSecretLength)}
	}
	return nil
}

func (s *Service) Register(ctx context.Context, key, secret string) (*models.Identity, error) {
	if err := ValidateCredentials(key, secret); err != nil {
		return nil, err
	}

	identity, err := s.store.Create(ctx, key, secret)
	switch {
	case err == nil:
		s.logger.Info("Identity registered", zap.String("identity", key))
		return identity, nil
	case errors.Is(err, repository.ErrAlreadyExists):
		return nil, err
	default:
		s.logger.Error("Registration failed", zap.String("identity", key), zap.Error(err))
		return nil, fmt.Errorf("register %s: %w", key, asUnavailable(err))
	}
}

// Login answers ErrInvalidCredentials for both unknown identities and wrong
// secrets so the response does not reveal which keys are registered.
func (s *Service) Login(ctx context.Context, key, secret string) (*models.Identity, error) {
	// No registered secret is longer than MaxSecretLength, and bcrypt would
	// compare only its prefix.
	if key == "" || secret == "" || len(secret) > MaxSecretLength {
		return nil, ErrInvalidCredentials
	}

	identity, err := s.store.FindByKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("Login for unknown identity", zap.String("identity", key))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("Login lookup failed", zap.String("identity", key), zap.Error(err))
		return nil, fmt.Errorf("login %s: %w", key, asUnavailable(err))
	}

	if !s.store.Verify(identity, secret) {
		s.logger.Debug("Login with wrong secret", zap.String("identity", key))
		return nil, ErrInvalidCredentials
	}
	return identity, nil
}

// Reason maps an auth error onto the text sent to the client.
func Reason(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Reason
	case errors.Is(err, repository.ErrAlreadyExists):
		return "user already exists"
	case errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials.Error()
	default:
		return "server error"
	}
}

func asUnavailable(err error) error {
	if errors.Is(err, repository.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
}
