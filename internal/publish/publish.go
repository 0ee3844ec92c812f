// Package publish fans created ticks out to downstream consumers.
package publish

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher receives every tick the create job appends.
type Publisher interface {
	Publish(ctx context.Context, symbol string, payload []byte) error
	Close() error
}

// Nop discards everything. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) Close() error                                  { return nil }

// Kafka publishes ticks to a topic, keyed by symbol so one symbol's ticks
// stay ordered within a partition.
type Kafka struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafka creates a publisher writing to the given brokers and topic.
func NewKafka(brokers []string, topic string, log *zap.Logger) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		log: log,
	}
}

// Publish writes one tick message.
func (k *Kafka) Publish(ctx context.Context, symbol string, payload []byte) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(symbol),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish tick %s: %w", symbol, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
