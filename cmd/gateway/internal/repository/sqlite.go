package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

var _ CredentialStore = (*SQLStore)(nil)

type userRecord struct {
	IdentityKey string `gorm:"primaryKey;column:identity_key"`
	Verifier    string `gorm:"not null"`
	CreatedAt   time.Time
}

func (userRecord) TableName() string { return "users" }

type subscriptionRecord struct {
	UserKey string `gorm:"primaryKey;column:user_key"`
	Symbol  string `gorm:"primaryKey"`
}

func (subscriptionRecord) TableName() string { return "subscriptions" }

// SQLStore is the embedded alternative to RedisStore, backed by pure-Go SQLite.
type SQLStore struct {
	db     *gorm.DB
	hasher Hasher
}

// OpenSQLStore opens (creating if needed) the database file at path.
func OpenSQLStore(path string, hasher Hasher) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewSQLStore(db, hasher)
}

// NewSQLStore migrates the schema on db and pins it to a single connection
// so SQLite never reports "database is locked" under concurrent sessions.
func NewSQLStore(db *gorm.DB, hasher Hasher) (*SQLStore, error) {
	if err := db.AutoMigrate(&userRecord{}, &subscriptionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &SQLStore{db: db, hasher: hasher}, nil
}

func (s *SQLStore) FindByKey(ctx context.Context, key string) (*models.Identity, error) {
	var user userRecord
	err := s.db.WithContext(ctx).First(&user, "identity_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find identity", err)
	}

	subs, err := listSubscriptions(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, unavailable("find identity", err)
	}

	return &models.Identity{
		Key:           user.IdentityKey,
		Verifier:      user.Verifier,
		Subscriptions: subs,
		CreatedAt:     user.CreatedAt,
	}, nil
}

func (s *SQLStore) Create(ctx context.Context, key, secret string) (*models.Identity, error) {
	verifier, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	user := userRecord{IdentityKey: key, Verifier: verifier, CreatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRecord{}).Where("identity_key = ?", key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyExists
		}
		return tx.Create(&user).Error
	})
	if errors.Is(err, ErrAlreadyExists) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, unavailable("create identity", err)
	}

	return &models.Identity{
		Key:           key,
		Verifier:      verifier,
		Subscriptions: []string{},
		CreatedAt:     user.CreatedAt,
	}, nil
}

func (s *SQLStore) Verify(identity *models.Identity, secret string) bool {
	return s.hasher.Verify(identity, secret)
}

func (s *SQLStore) AddSubscription(ctx context.Context, key, symbol string) ([]string, error) {
	return s.mutateSubscriptions(ctx, "add subscription", key, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&subscriptionRecord{UserKey: key, Symbol: symbol}).Error
	})
}

func (s *SQLStore) RemoveSubscription(ctx context.Context, key, symbol string) ([]string, error) {
	return s.mutateSubscriptions(ctx, "remove subscription", key, func(tx *gorm.DB) error {
		return tx.Where("user_key = ? AND symbol = ?", key, symbol).Delete(&subscriptionRecord{}).Error
	})
}

func (s *SQLStore) mutateSubscriptions(ctx context.Context, op, key string, mutate func(tx *gorm.DB) error) ([]string, error) {
	var subs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mutate(tx); err != nil {
			return err
		}
		var err error
		subs, err = listSubscriptions(tx, key)
		return err
	})
	if err != nil {
		return nil, unavailable(op, err)
	}
	return subs, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func listSubscriptions(db *gorm.DB, key string) ([]string, error) {
	subs := []string{}
	err := db.Model(&subscriptionRecord{}).
		Where("user_key = ?", key).
		Order("symbol").
		Pluck("symbol", &subs).Error
	if subs == nil {
		subs = []string{}
	}
	return subs, err
}
