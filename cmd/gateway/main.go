package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/feed"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-ticker/pkg/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open credential store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	var sink feed.Sink
	var kafkaSink *feed.KafkaSink
	if cfg.Kafka.Enabled {
		kafkaSink = newKafkaSink(ctx, cfg, logger)
		sink = kafkaSink
	}

	catalog := cfg.Catalog()
	sim := feed.NewSimulator(logger, catalog, feed.Options{
		Interval:  cfg.Feed.Interval,
		MaxDelta:  cfg.Feed.MaxDelta,
		Floor:     cfg.Feed.Floor,
		BasePrice: cfg.Feed.BasePrice,
		Spread:    cfg.Feed.Spread,
	}, feed.NewRand(), feed.SystemClock{}, sink)

	// The hub reads prices from the simulator; the simulator pushes ticks to the hub
	wsHub := hub.NewHub(store, sim, catalog, logger)

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		sim.Run(ctx, wsHub.Broadcast)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Gateway.WSPath, gateway.ServeWS(wsHub, logger, cfg.Gateway.SendBuffer))
	mux.HandleFunc("/healthz", gateway.Health(wsHub))

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go func() {
		logger.Info("Server Started",
			zap.String("port", cfg.App.Port),
			zap.String("env", cfg.App.Env),
			zap.String("store", cfg.Store.Driver),
			zap.Strings("catalog", catalog.Symbols()),
		)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("Shutdown signal received")

	cancel()
	<-feedDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	// Flush the tick mirror before exit
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("Error closing Kafka writer", zap.Error(err))
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("Error closing credential store", zap.Error(err))
	}

	logger.Info("Shutdown Complete")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.CredentialStore, error) {
	hasher := repository.Hasher{Cost: cfg.Store.BcryptCost}

	if cfg.Store.Driver == config.StoreSQLite {
		return repository.OpenSQLStore(cfg.Store.SQLitePath, hasher)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	return repository.NewRedisStore(rdb, hasher), nil
}

func newKafkaSink(ctx context.Context, cfg *config.Config, logger *zap.Logger) *feed.KafkaSink {
	tc := feed.NewTopicCreator(logger, feed.NewAdminDialer(kafka.DefaultDialer), feed.SystemClock{})
	if err := tc.Ensure(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
		// The writer can still auto-create the topic on brokers that allow it
		logger.Warn("Tick topic not confirmed", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{}, // one symbol, one partition
		// Send batches to reduce network IO
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	}
	return feed.NewKafkaSink(writer)
}
