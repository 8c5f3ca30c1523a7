package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

var _ Sink = (*KafkaSink)(nil)

// MessageWriter is the part of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors tick batches to a Kafka topic, keyed by symbol so a
// symbol's ticks stay ordered within one partition.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (k *KafkaSink) Publish(ctx context.Context, batch []models.StockUpdate) error {
	if len(batch) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(batch))
	for _, update := range batch {
		payload, err := json.Marshal(update)
		if err != nil {
			return fmt.Errorf("marshal %s tick: %w", update.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(update.Symbol),
			Value: payload,
			Time:  update.Time,
		})
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

// Close flushes buffered messages.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
