package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Flag is the lifecycle state of a provider transaction row.
type Flag string

const (
	FlagRunning    Flag = "running"
	FlagRunningInc Flag = "running-inc"
	FlagSettled    Flag = "settled"
	FlagRollback   Flag = "rollback"
	FlagVoid       Flag = "void"
)

// IsRunning reports whether the wager is still open.
func (f Flag) IsRunning() bool { return f == FlagRunning || f == FlagRunningInc }

// IsTerminal reports whether no further settle may be applied.
func (f Flag) IsTerminal() bool { return f == FlagSettled || f == FlagVoid }

// Row status values. Superseded rows are kept for audit after an increase-bet.
const (
	RowSuperseded int16 = 0
	RowActive     int16 = 1
)

// Transaction represents a provider_transactions row.
//
// TrxID is the wallet idempotency key of the wager that created the row
// (wager-<ref> or wager-<n>-<ref>). Ref is the provider-prefixed external id
// and is unique among active rows of a provider.
type Transaction struct {
	TrxID         string          `json:"trx_id"`
	Provider      string          `json:"provider"`
	Ref           string          `json:"ref"`
	PlayID        string          `json:"play_id"`
	Currency      string          `json:"currency"`
	BetAmount     decimal.Decimal `json:"bet_amount"`
	PayoutAmount  decimal.Decimal `json:"payout_amount"`
	BetTime       time.Time       `json:"bet_time"`
	SettleTime    *time.Time      `json:"settle_time,omitempty"`
	Flag          Flag            `json:"flag"`
	Status        int16           `json:"status"`
	PayoutTrxID   *string         `json:"payout_trx_id,omitempty"`
	SettleCount   int             `json:"settle_count"`
	RollbackCount int             `json:"rollback_count"`
	Details       json.RawMessage `json:"details"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SettleParams is the persistence input for a settle, resettle or cancel.
// Event selects the outbox event; EventBetSettled also advances settle_count.
type SettleParams struct {
	TrxID        string
	Provider     string
	PlayID       string
	PayoutTrxID  string
	PayoutAmount decimal.Decimal
	SettleTime   time.Time
	Flag         Flag
	Event        EventType
	Details      json.RawMessage
}

// IncreaseParams supersedes Previous with Next in one step.
type IncreaseParams struct {
	Previous *Transaction
	Next     *Transaction
}
