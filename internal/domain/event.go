package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventPlayerProvisioned EventType = "settlement.player.provisioned"
	EventBetPlaced         EventType = "settlement.bet.placed"
	EventBetIncreased      EventType = "settlement.bet.increased"
	EventBetSettled        EventType = "settlement.bet.settled"
	EventBetResettled      EventType = "settlement.bet.resettled"
	EventBetRolledBack     EventType = "settlement.bet.rolledback"
	EventBetCancelled      EventType = "settlement.bet.cancelled"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregatePlayer      AggregateType = "player"
	AggregateTransaction AggregateType = "transaction"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRow is an OutboxDraft with its sequence id, as read back by the relay.
type OutboxRow struct {
	SeqID int64
	OutboxDraft
}
