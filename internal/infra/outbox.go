package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/provgate/gateway/internal/domain"
)

// OutboxDB is the subset of pgxpool.Pool the poller uses.
type OutboxDB interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Publisher sends one message to a topic. KafkaProducer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
type OutboxPoller struct {
	db        OutboxDB
	producer  Publisher
	metrics   *Metrics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(db OutboxDB, producer Publisher, logger *slog.Logger, interval time.Duration, batchSize int) *OutboxPoller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxPoller{
		db:        db,
		producer:  producer,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// WithMetrics counts published events on m.
func (p *OutboxPoller) WithMetrics(m *Metrics) *OutboxPoller {
	p.metrics = m
	return p
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			if _, err := p.Poll(ctx); err != nil {
				p.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// Topic returns the Kafka topic for an outbox event.
func Topic(aggregate domain.AggregateType, event domain.EventType) string {
	return "gateway." + string(aggregate) + "." + string(event)
}

// Poll publishes one batch and returns how many events were marked published.
// Publishing stops at the first broker failure so per-player ordering is
// preserved. An event that cannot be encoded is logged and left unpublished.
func (p *OutboxPoller) Poll(ctx context.Context) (int, error) {
	events, err := p.fetch(ctx)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(events))
	var pubErr error
	for _, e := range events {
		msg, err := encodeEvent(e)
		if err != nil {
			p.logger.Error("outbox event not encodable, skipping",
				"event_id", e.EventID, "event_type", e.EventType, "aggregate_id", e.AggregateID, "error", err)
			continue
		}

		if err := p.producer.Publish(ctx, Topic(e.AggregateType, e.EventType), []byte(e.PartitionKey), msg); err != nil {
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
			pubErr = fmt.Errorf("publish %s: %w", e.EventID, err)
			break
		}
		published = append(published, e.SeqID)
	}

	if len(published) > 0 {
		if _, err := p.db.Exec(ctx,
			`UPDATE event_outbox SET "publishedAt" = now() WHERE "id" = ANY($1)`, published); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
		if p.metrics != nil {
			p.metrics.ObservePublished(len(published))
		}
	}

	p.logger.Debug("outbox poll complete", "published", len(published))
	return len(published), pubErr
}

func encodeEvent(e domain.OutboxRow) ([]byte, error) {
	msg, err := json.Marshal(map[string]interface{}{
		"event_id":       e.EventID,
		"aggregate_type": e.AggregateType,
		"aggregate_id":   e.AggregateID,
		"event_type":     e.EventType,
		"headers":        e.Headers,
		"payload":        e.Payload,
		"occurred_at":    e.OccurredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode outbox event %s: %w", e.EventID, err)
	}
	return msg, nil
}

func (p *OutboxPoller) fetch(ctx context.Context) ([]domain.OutboxRow, error) {
	rows, err := p.db.Query(ctx, `
		SELECT "id", "eventId", "aggregateType", "aggregateId", "eventType",
		       "partitionKey", "headers", "payload", "occurredAt"
		FROM event_outbox
		WHERE "publishedAt" IS NULL
		ORDER BY "id" ASC
		LIMIT $1`, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxRow
	for rows.Next() {
		var e domain.OutboxRow
		if err := rows.Scan(&e.SeqID, &e.EventID, &e.AggregateType, &e.AggregateID,
			&e.EventType, &e.PartitionKey, &e.Headers, &e.Payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
