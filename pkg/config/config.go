package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config holds all configuration for the application
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type GatewayConfig struct {
	ValidTickers []string `mapstructure:"valid_tickers"`
	WSPath       string   `mapstructure:"ws_path"`
	SendBuffer   int      `mapstructure:"send_buffer"`
}

// FeedConfig tunes the synthetic price simulator.
type FeedConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	MaxDelta  float64       `mapstructure:"max_delta"`
	Floor     float64       `mapstructure:"floor"`
	BasePrice float64       `mapstructure:"base_price"`
	Spread    float64       `mapstructure:"spread"`
}

type StoreConfig struct {
	Driver     string `mapstructure:"driver"` // "redis" or "sqlite"
	SQLitePath string `mapstructure:"sqlite_path"`
	BcryptCost int    `mapstructure:"bcrypt_cost"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig controls the optional tick mirror.
type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	Partitions int      `mapstructure:"partitions"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"` // "json" or "console"
	File       string `mapstructure:"file"`     // empty: stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Catalog builds the symbol catalog from the configured tickers.
func (c *Config) Catalog() models.Catalog {
	return models.NewCatalog(c.Gateway.ValidTickers)
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment so APP_PORT etc. are visible below
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "app.port" -> "APP_PORT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees env vars for keys viper knows about
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "gateway.valid_tickers", "gateway.ws_path", "gateway.send_buffer")
	bindEnv(v, "feed.interval", "feed.max_delta", "feed.floor", "feed.base_price", "feed.spread")
	bindEnv(v, "store.driver", "store.sqlite_path", "store.bcrypt_cost")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.partitions")
	bindEnv(v, "logger.level", "logger.encoding", "logger.file", "logger.max_size_mb", "logger.max_backups", "logger.max_age_days")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("gateway.valid_tickers", models.DefaultSymbols)
	v.SetDefault("gateway.ws_path", "/ws")
	v.SetDefault("gateway.send_buffer", 256)

	v.SetDefault("feed.interval", time.Second)
	v.SetDefault("feed.max_delta", 1.0)
	v.SetDefault("feed.floor", 1.0)
	v.SetDefault("feed.base_price", 100.0)
	v.SetDefault("feed.spread", 100.0)

	v.SetDefault("store.driver", StoreRedis)
	v.SetDefault("store.sqlite_path", "data/stock-ticker.db")
	v.SetDefault("store.bcrypt_cost", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "price_ticks")
	v.SetDefault("kafka.partitions", 4)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 28)
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Catalog().Len() == 0 {
		return fmt.Errorf("gateway.valid_tickers cannot be empty")
	}
	if c.Feed.Interval <= 0 {
		return fmt.Errorf("feed.interval must be positive, got %s", c.Feed.Interval)
	}
	if c.Feed.MaxDelta < 0 {
		return fmt.Errorf("feed.max_delta cannot be negative")
	}
	if c.Feed.Floor <= 0 {
		return fmt.Errorf("feed.floor must be positive")
	}
	switch c.Store.Driver {
	case StoreRedis:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
