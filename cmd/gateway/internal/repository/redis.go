package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

const (
	userPrefix = "user:"
	subsPrefix = "subs:"

	fieldVerifier  = "verifier"
	fieldCreatedAt = "created_at"
)

// createIdentity claims the identity hash and stamps its creation time in
// one atomic step, so a half-written identity is never left behind.
var createIdentity = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[3], ARGV[4])
return 1
`)

// Compile-time check to ensure RedisStore implements CredentialStore
var _ CredentialStore = (*RedisStore)(nil)

// RedisStore keeps each identity in a hash (user:<key>) and its
// subscriptions in a set (subs:<key>).
type RedisStore struct {
	client *redis.Client
	hasher Hasher
}

func NewRedisStore(client *redis.Client, hasher Hasher) *RedisStore {
	return &RedisStore{
		client: client,
		hasher: hasher,
	}
}

// FindByKey loads the identity hash and its subscription set in one round trip
func (r *RedisStore) FindByKey(ctx context.Context, key string) (*models.Identity, error) {
	var fields *redis.MapStringStringCmd
	var members *redis.StringSliceCmd

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, userPrefix+key)
		members = pipe.SMembers(ctx, subsPrefix+key)
		return nil
	})
	if err != nil {
		return nil, unavailable("find identity", err)
	}

	verifier := fields.Val()[fieldVerifier]
	if verifier == "" {
		return nil, ErrNotFound
	}

	identity := &models.Identity{
		Key:           key,
		Verifier:      verifier,
		Subscriptions: sortedSet(members.Val()),
	}
	if ts, ok := fields.Val()[fieldCreatedAt]; ok {
		identity.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return identity, nil
}

// Create claims the key with HSETNX inside a script so concurrent
// registrations of the same key cannot both succeed.
func (r *RedisStore) Create(ctx context.Context, key, secret string) (*models.Identity, error) {
	verifier, err := r.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	now := time.Now().UTC()
	created, err := createIdentity.Run(ctx, r.client, []string{userPrefix + key},
		fieldVerifier, verifier, fieldCreatedAt, now.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return nil, unavailable("create identity", err)
	}
	if created == 0 {
		return nil, ErrAlreadyExists
	}

	return &models.Identity{
		Key:           key,
		Verifier:      verifier,
		Subscriptions: []string{},
		CreatedAt:     now,
	}, nil
}

func (r *RedisStore) Verify(identity *models.Identity, secret string) bool {
	return r.hasher.Verify(identity, secret)
}

// AddSubscription runs SADD + SMEMBERS inside MULTI/EXEC
func (r *RedisStore) AddSubscription(ctx context.Context, key, symbol string) ([]string, error) {
	return r.mutateSubscriptions(ctx, "add subscription", key, func(pipe redis.Pipeliner, setKey string) {
		pipe.SAdd(ctx, setKey, symbol)
	})
}

// RemoveSubscription runs SREM + SMEMBERS inside MULTI/EXEC
func (r *RedisStore) RemoveSubscription(ctx context.Context, key, symbol string) ([]string, error) {
	return r.mutateSubscriptions(ctx, "remove subscription", key, func(pipe redis.Pipeliner, setKey string) {
		pipe.SRem(ctx, setKey, symbol)
	})
}

func (r *RedisStore) mutateSubscriptions(ctx context.Context, op, key string, mutate func(pipe redis.Pipeliner, setKey string)) ([]string, error) {
	setKey := subsPrefix + key
	var members *redis.StringSliceCmd

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		mutate(pipe, setKey)
		members = pipe.SMembers(ctx, setKey)
		return nil
	})
	if err != nil {
		return nil, unavailable(op, err)
	}
	return sortedSet(members.Val()), nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func sortedSet(symbols []string) []string {
	out := make([]string, len(symbols))
	copy(out, symbols)
	sort.Strings(out)
	return out
}
