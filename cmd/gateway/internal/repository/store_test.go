package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/repository"
)

var testHasher = repository.Hasher{Cost: bcrypt.MinCost}

type storeFactory func(t *testing.T) repository.CredentialStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"redis": func(t *testing.T) repository.CredentialStore {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			store := repository.NewRedisStore(rdb, testHasher)
			t.Cleanup(func() { store.Close() })
			return store
		},
		"sqlite": func(t *testing.T) repository.CredentialStore {
			store, err := repository.OpenSQLStore(filepath.Join(t.TempDir(), "users.db"), testHasher)
			if err != nil {
				t.Fatalf("OpenSQLStore failed: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func TestStore_CreateAndFind(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()

			created, err := store.Create(ctx, "a@x.com", "secret1")
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if created.Verifier == "" || created.Verifier == "secret1" {
				t.Errorf("Verifier must be a hash, got %q", created.Verifier)
			}

			found, err := store.FindByKey(ctx, "a@x.com")
			if err != nil {
				t.Fatalf("FindByKey failed: %v", err)
			}
			if found.Key != "a@x.com" {
				t.Errorf("Expected key a@x.com, got %s", found.Key)
			}
			if len(found.Subscriptions) != 0 {
				t.Errorf("Expected no subscriptions, got %v", found.Subscriptions)
			}
			if !store.Verify(found, "secret1") {
				t.Error("Verify should accept the registered secret")
			}
			if store.Verify(found, "secret2") {
				t.Error("Verify should reject a wrong secret")
			}
		})
	}
}

func TestStore_VerifyRejectsOverlongSecret(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			secret := strings.Repeat("a", repository.MaxSecretBytes)

			created, err := store.Create(context.Background(), "l@x.com", secret)
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if !store.Verify(created, secret) {
				t.Error("Verify should accept a secret of exactly MaxSecretBytes")
			}
			if store.Verify(created, secret+"WRONG-SUFFIX") {
				t.Error("Verify must reject a secret that only shares the first 72 bytes")
			}
		})
	}
}

func TestStore_DuplicateCreate(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()

			first, err := store.Create(ctx, "a@x.com", "secret1")
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			_, err = store.Create(ctx, "a@x.com", "other-secret")
			if !errors.Is(err, repository.ErrAlreadyExists) {
				t.Fatalf("Expected ErrAlreadyExists, got %v", err)
			}

			found, _ := store.FindByKey(ctx, "a@x.com")
			if found.Verifier != first.Verifier {
				t.Error("Duplicate registration must not alter the first record")
			}
		})
	}
}

func TestStore_FindUnknown(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			_, err := newStore(t).FindByKey(context.Background(), "ghost@x.com")
			if !errors.Is(err, repository.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_SubscriptionsAreIdempotent(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			store.Create(ctx, "a@x.com", "secret1")

			store.AddSubscription(ctx, "a@x.com", "TSLA")
			set, err := store.AddSubscription(ctx, "a@x.com", "GOOG")
			if err != nil {
				t.Fatalf("AddSubscription failed: %v", err)
			}
			set, _ = store.AddSubscription(ctx, "a@x.com", "GOOG")

			if want := []string{"GOOG", "TSLA"}; !reflect.DeepEqual(set, want) {
				t.Errorf("Expected %v, got %v", want, set)
			}

			set, err = store.RemoveSubscription(ctx, "a@x.com", "NVDA")
			if err != nil {
				t.Fatalf("RemoveSubscription failed: %v", err)
			}
			if want := []string{"GOOG", "TSLA"}; !reflect.DeepEqual(set, want) {
				t.Errorf("Removing an absent symbol should be a no-op, got %v", set)
			}

			store.RemoveSubscription(ctx, "a@x.com", "GOOG")
			set, _ = store.RemoveSubscription(ctx, "a@x.com", "TSLA")
			if set == nil || len(set) != 0 {
				t.Errorf("Expected empty non-nil set, got %#v", set)
			}

			found, _ := store.FindByKey(ctx, "a@x.com")
			if len(found.Subscriptions) != 0 {
				t.Errorf("Persisted set should be empty, got %v", found.Subscriptions)
			}
		})
	}
}

func TestStore_ConcurrentMutationsConverge(t *testing.T) {
	symbols := []string{"GOOG", "TSLA", "AMZN", "META", "NVDA"}

	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			store.Create(ctx, "a@x.com", "secret1")

			var wg sync.WaitGroup
			for _, sym := range symbols {
				wg.Add(2)
				go func(s string) {
					defer wg.Done()
					if _, err := store.AddSubscription(ctx, "a@x.com", s); err != nil {
						t.Errorf("AddSubscription(%s): %v", s, err)
					}
				}(sym)
				go func(s string) {
					defer wg.Done()
					if _, err := store.AddSubscription(ctx, "a@x.com", s); err != nil {
						t.Errorf("AddSubscription(%s): %v", s, err)
					}
				}(sym)
			}
			wg.Wait()

			found, _ := store.FindByKey(ctx, "a@x.com")
			if len(found.Subscriptions) != len(symbols) {
				t.Errorf("Expected %d subscriptions, got %v", len(symbols), found.Subscriptions)
			}
		})
	}
}

func TestRedisStore_CreateWritesWholeHash(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := repository.NewRedisStore(rdb, testHasher)
	defer store.Close()
	ctx := context.Background()

	created, err := store.Create(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	stamp := mr.HGet("user:a@x.com", "created_at")
	if stamp == "" {
		t.Fatal("created_at missing from the identity hash")
	}
	if mr.HGet("user:a@x.com", "verifier") != created.Verifier {
		t.Error("Stored verifier does not match the returned identity")
	}

	if _, err := store.Create(ctx, "a@x.com", "other-secret"); !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("Expected ErrAlreadyExists, got %v", err)
	}
	if got := mr.HGet("user:a@x.com", "created_at"); got != stamp {
		t.Errorf("Duplicate create rewrote created_at: %q -> %q", stamp, got)
	}

	found, err := store.FindByKey(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindByKey failed: %v", err)
	}
	if found.CreatedAt.IsZero() {
		t.Error("FindByKey should parse created_at")
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := repository.NewRedisStore(rdb, testHasher)
	defer store.Close()

	mr.Close()

	_, err := store.FindByKey(context.Background(), "a@x.com")
	if !errors.Is(err, repository.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}

	_, err = store.Create(context.Background(), "a@x.com", "secret1")
	if !errors.Is(err, repository.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}

	_, err = store.AddSubscription(context.Background(), "a@x.com", "GOOG")
	if !errors.Is(err, repository.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}
