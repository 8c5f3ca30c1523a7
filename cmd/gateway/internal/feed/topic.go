package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	topicReadyAttempts = 5
	topicReadyBackoff  = 200 * time.Millisecond
)

// AdminConn is the subset of *kafka.Conn used to manage topics.
type AdminConn interface {
	Controller() (kafka.Broker, error)
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

type AdminDialer interface {
	DialContext(ctx context.Context, network, address string) (AdminConn, error)
}

type kafkaDialer struct{ dialer *kafka.Dialer }

// NewAdminDialer wraps a kafka dialer so it hands out AdminConns.
func NewAdminDialer(d *kafka.Dialer) AdminDialer {
	return kafkaDialer{dialer: d}
}

func (k kafkaDialer) DialContext(ctx context.Context, network, address string) (AdminConn, error) {
	conn, err := k.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TopicCreator makes sure the tick mirror topic exists before the feed starts.
type TopicCreator struct {
	logger *zap.Logger
	dialer AdminDialer
	clock  Clock
}

func NewTopicCreator(logger *zap.Logger, dialer AdminDialer, clock Clock) *TopicCreator {
	return &TopicCreator{
		logger: logger,
		dialer: dialer,
		clock:  clock,
	}
}

// Ensure creates topic on the cluster controller (an "already exists"
// answer is fine) and waits until its partitions are visible.
func (tc *TopicCreator) Ensure(ctx context.Context, brokers []string, topic string, partitions int) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	var conn AdminConn
	var err error
	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("dial brokers: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get controller: %w", err)
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}

	return tc.waitForTopic(ctx, conn, topic)
}

func (tc *TopicCreator) waitForTopic(ctx context.Context, conn AdminConn, topic string) error {
	for i := 0; i < topicReadyAttempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tc.clock.After(topicReadyBackoff):
		}

		parts, err := conn.ReadPartitions(topic)
		if err == nil && len(parts) > 0 {
			tc.logger.Info("Tick topic ready", zap.String("topic", topic), zap.Int("partitions", len(parts)))
			return nil
		}
	}
	return fmt.Errorf("topic %s not ready after %d attempts", topic, topicReadyAttempts)
}
