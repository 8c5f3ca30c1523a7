package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/feed"
)

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
	Closed     bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// MockClock advances instantly: After moves CurrentTime forward and fires at once.
type MockClock struct {
	CurrentTime time.Time
	Mu          sync.Mutex
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) After(d time.Duration) <-chan time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
	ch := make(chan time.Time, 1)
	ch <- m.CurrentTime
	return ch
}

// MockRand returns Values in order (cycling), or ValFloat when Values is empty.
type MockRand struct {
	ValFloat float64
	Values   []float64
	next     int
	Mu       sync.Mutex
}

func (m *MockRand) Float64() float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Values) == 0 {
		return m.ValFloat
	}
	v := m.Values[m.next%len(m.Values)]
	m.next++
	return v
}

type MockKafkaConn struct {
	CreatedTopics []string
	CreateErr     error
	NotReady      bool
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
	}
	return m.CreateErr
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.NotReady {
		return nil, nil
	}
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	Dialed  []string
	DialErr error
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (feed.AdminConn, error) {
	m.Dialed = append(m.Dialed, address)
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}
