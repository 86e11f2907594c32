package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/provgate/gateway/internal/domain"
)

const outboxColumns = `"id", "eventId", "aggregateType", "aggregateId", "eventType",
		       "partitionKey", "headers", "payload", "occurredAt"`

type outboxRepo struct{}

// NewOutboxRepository returns a pgx-backed OutboxRepository.
func NewOutboxRepository() OutboxRepository {
	return &outboxRepo{}
}

// Insert writes a settlement event in the caller's transaction. A draft the
// relay could not re-encode is refused, which rolls back the settlement write
// with it.
func (r *outboxRepo) Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error {
	headers := ensureJSON(draft.Headers)
	if !json.Valid(headers) || !json.Valid(draft.Payload) {
		return fmt.Errorf("insert outbox event %s %s: invalid json", draft.EventType, draft.AggregateID)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO event_outbox
		  ("eventId", "aggregateType", "aggregateId", "eventType", "partitionKey", "headers", "payload", "occurredAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		draft.EventID,
		string(draft.AggregateType),
		draft.AggregateID,
		string(draft.EventType),
		draft.PartitionKey,
		headers,
		draft.Payload,
		draft.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event %s %s: %w", draft.EventType, draft.AggregateID, err)
	}
	return nil
}

// PendingForPlayer returns a player's unpublished events in relay order.
// Every event is partitioned by play id.
func (r *outboxRepo) PendingForPlayer(ctx context.Context, db DBTX, playID string, limit int) ([]domain.OutboxRow, error) {
	rows, err := db.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM event_outbox
		WHERE "publishedAt" IS NULL AND "partitionKey" = $1
		ORDER BY "id" ASC
		LIMIT $2`, playID, limit)
	if err != nil {
		return nil, fmt.Errorf("pending events for %s: %w", playID, err)
	}
	defer rows.Close()

	var events []domain.OutboxRow
	for rows.Next() {
		var e domain.OutboxRow
		if err := rows.Scan(&e.SeqID, &e.EventID, &e.AggregateType, &e.AggregateID,
			&e.EventType, &e.PartitionKey, &e.Headers, &e.Payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
