package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// WalletSuccess is the wallet's success sentinel status code.
const WalletSuccess = 2100

// WalletResponse is the wallet's reply to any call. Credit is set by
// balance, CreditAfter by every mutation.
type WalletResponse struct {
	StatusCode  int              `json:"status_code"`
	Credit      *decimal.Decimal `json:"credit,omitempty"`
	CreditAfter *decimal.Decimal `json:"credit_after,omitempty"`
}

// OK reports whether the wallet returned the success sentinel.
func (r *WalletResponse) OK() bool { return r != nil && r.StatusCode == WalletSuccess }

// Credentials are the per provider and currency connection details. They are
// resolved for each request and never persisted.
type Credentials struct {
	Provider  string            `yaml:"provider" json:"-"`
	Currency  string            `yaml:"currency" json:"-"`
	APIURL    string            `yaml:"api_url" json:"-"`
	AgentID   string            `yaml:"agent_id" json:"-"`
	APIKey    string            `yaml:"api_key" json:"-"`
	SecretKey string            `yaml:"secret_key" json:"-"`
	WalletURL string            `yaml:"wallet_url" json:"-"`
	WalletID  string            `yaml:"wallet_client_id" json:"-"`
	WalletKey string            `yaml:"wallet_client_secret" json:"-"`
	Extra     map[string]string `yaml:"extra" json:"-"`
}

// Report is the audit record attached to wallet mutation calls.
type Report struct {
	Provider     string          `json:"provider"`
	Kind         string          `json:"kind"`
	Ref          string          `json:"ref"`
	GameCode     string          `json:"game_code,omitempty"`
	BetTime      time.Time       `json:"bet_time"`
	SettleTime   *time.Time      `json:"settle_time,omitempty"`
	BetAmount    decimal.Decimal `json:"bet_amount"`
	PayoutAmount decimal.Decimal `json:"payout_amount"`
	Odds         string          `json:"odds,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
}

// WagerRequest is the body of a wallet wager or payout call.
type WagerRequest struct {
	PlayID        string          `json:"play_id"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Report        Report          `json:"report"`
}

// WagerAndPayoutRequest debits and credits in a single wallet call.
type WagerAndPayoutRequest struct {
	PlayID        string          `json:"play_id"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id"`
	WagerAmount   decimal.Decimal `json:"wager_amount"`
	PayoutAmount  decimal.Decimal `json:"payout_amount"`
	Report        Report          `json:"report"`
}

// ResettleRequest re-applies a payout of a rolled back transaction.
type ResettleRequest struct {
	PlayID               string          `json:"play_id"`
	Currency             string          `json:"currency"`
	TransactionID        string          `json:"transaction_id"`
	Amount               decimal.Decimal `json:"amount"`
	BetID                string          `json:"bet_id"`
	SettledTransactionID string          `json:"settled_transaction_id"`
	BetTime              time.Time       `json:"bet_time"`
}

// CancelRequest refunds a wager identified by TransactionIDToCancel.
type CancelRequest struct {
	PlayID                string          `json:"play_id"`
	Currency              string          `json:"currency"`
	TransactionID         string          `json:"transaction_id"`
	Amount                decimal.Decimal `json:"amount"`
	TransactionIDToCancel string          `json:"transaction_id_to_cancel"`
}
