package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewTransactionEvent creates the outbox event for a transaction state change.
// Events are partitioned by player so a consumer sees one player's bets in order.
func NewTransactionEvent(evtType EventType, tx *Transaction) OutboxDraft {
	payload, _ := json.Marshal(tx)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateTransaction,
		AggregateID:   tx.TrxID,
		EventType:     evtType,
		PartitionKey:  tx.PlayID,
		Headers:       providerHeaders(tx.Provider),
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// NewSettleEvent creates the event for a settle, resettle or cancel write.
func NewSettleEvent(params SettleParams) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"trx_id":        params.TrxID,
		"payout_trx_id": params.PayoutTrxID,
		"payout_amount": params.PayoutAmount,
		"settle_time":   params.SettleTime,
		"flag":          params.Flag,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateTransaction,
		AggregateID:   params.TrxID,
		EventType:     params.Event,
		PartitionKey:  params.PlayID,
		Headers:       providerHeaders(params.Provider),
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// NewPlayerProvisionedEvent creates a player lifecycle event.
func NewPlayerProvisionedEvent(p *Player) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"play_id":  p.PlayID,
		"username": p.Username,
		"currency": p.Currency,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregatePlayer,
		AggregateID:   p.PlayID,
		EventType:     EventPlayerProvisioned,
		PartitionKey:  p.PlayID,
		Headers:       providerHeaders(p.Provider),
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

func providerHeaders(provider string) json.RawMessage {
	h, _ := json.Marshal(map[string]string{"provider": provider})
	return h
}
