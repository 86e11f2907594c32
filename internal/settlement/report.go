package settlement

import (
	"encoding/json"

	"github.com/provgate/gateway/internal/domain"
)

// Report kinds attached to wallet calls.
const (
	KindWager    = "wager"
	KindIncrease = "increase"
	KindPayout   = "payout"
)

// ReportBuilder constructs the audit record sent with wager and payout calls.
type ReportBuilder interface {
	Build(kind string, player *domain.Player, tx *domain.Transaction, details map[string]any) domain.Report
}

// DefaultReportBuilder copies transaction fields and lifts game_code and odds
// out of the provider details.
type DefaultReportBuilder struct{}

func (DefaultReportBuilder) Build(kind string, player *domain.Player, tx *domain.Transaction, details map[string]any) domain.Report {
	r := domain.Report{
		Provider:     tx.Provider,
		Kind:         kind,
		Ref:          tx.Ref,
		BetTime:      tx.BetTime,
		SettleTime:   tx.SettleTime,
		BetAmount:    tx.BetAmount,
		PayoutAmount: tx.PayoutAmount,
	}
	if s, ok := details["game_code"].(string); ok {
		r.GameCode = s
	}
	if s, ok := details["odds"].(string); ok {
		r.Odds = s
	}
	if len(details) > 0 {
		r.Details, _ = json.Marshal(details)
	} else if len(tx.Details) > 0 {
		r.Details = tx.Details
	}
	return r
}
