package infra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes settlement events. A disabled producer drops writes.
type KafkaProducer struct {
	writer  *kafka.Writer
	logger  *slog.Logger
	enabled bool
}

// NewKafkaProducer builds the relay's writer from KAFKA_* settings.
func NewKafkaProducer(cfg *Config, logger *slog.Logger) *KafkaProducer {
	brokers := brokerList(cfg.KafkaBrokers)
	if !cfg.KafkaEnabled || len(brokers) == 0 {
		logger.Info("kafka producer disabled")
		return &KafkaProducer{logger: logger}
	}

	// Hash on the play id key keeps every event of one player on one partition.
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
	}

	logger.Info("kafka producer initialized", "brokers", brokers, "write_timeout", cfg.KafkaWriteTimeout)
	return &KafkaProducer{writer: w, logger: logger, enabled: true}
}

// Publish writes one event keyed by play id.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if !p.enabled {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value}); err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

// Close flushes and shuts down the writer.
func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func brokerList(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
