package settlement

import (
	"context"
	"fmt"

	"github.com/provgate/gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// PlaceBet debits a new wager. A repeated external id is rejected with
// TransactionAlreadyExists before any wallet call, unless AllowIncrease is set
// and the wager is still running: a larger amount raises it, the same amount
// is acknowledged with the current balance.
func (e *Engine) PlaceBet(ctx context.Context, in BetInput) (res *Result, err error) {
	start := e.now()
	defer func() { e.observe("bet", start, err) }()

	if err := validateRef(in.PlayID, in.ExternalID); err != nil {
		return nil, err
	}
	if err := domain.ValidatePositiveAmount(in.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	player, creds, err := e.resolve(ctx, in.PlayID)
	if err != nil {
		return nil, fmt.Errorf("place bet: %w", err)
	}

	ref := e.policy.TransactionRef(in.ExternalID)
	release, err := e.lock(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("place bet: %w", err)
	}
	defer release()

	existing, err := e.loadTransaction(ctx, player, ref)
	if err != nil {
		return nil, fmt.Errorf("place bet: %w", err)
	}

	amount := e.toWallet(in.Amount, player.Currency)
	if existing != nil {
		if in.AllowIncrease && existing.Flag.IsRunning() {
			switch amount.Cmp(existing.BetAmount) {
			case 1:
				return e.increaseBet(ctx, player, creds, existing, in, amount)
			case 0:
				// Replay of the current stake.
				credit, err := e.balance(ctx, creds, player.PlayID)
				if err != nil {
					return nil, fmt.Errorf("place bet: %w", err)
				}
				return e.result(credit, player.Currency), nil
			}
		}
		return nil, domain.ErrTransactionAlreadyExists(ref)
	}

	credit, err := e.balance(ctx, creds, player.PlayID)
	if err != nil {
		return nil, fmt.Errorf("place bet: %w", err)
	}
	if credit.LessThan(amount) {
		return nil, domain.ErrInsufficientFund()
	}

	details := withGameCode(in.Details, in.GameCode)
	tx := &domain.Transaction{
		TrxID:        "wager-" + ref,
		Provider:     e.policy.Name(),
		Ref:          ref,
		PlayID:       player.PlayID,
		Currency:     player.Currency,
		BetAmount:    amount,
		PayoutAmount: decimal.Zero,
		BetTime:      e.timeOrNow(in.BetTime),
		Flag:         domain.FlagRunning,
		Status:       domain.RowActive,
		Details:      marshalDetails(details),
	}

	resp, err := e.wallet.Wager(ctx, creds, domain.WagerRequest{
		PlayID:        player.PlayID,
		Currency:      player.Currency,
		TransactionID: tx.TrxID,
		Amount:        amount,
		Report:        e.reports.Build(KindWager, player, tx, details),
	})
	creditAfter, err := e.walletResult("wager", ref, resp, err)
	if err != nil {
		return nil, fmt.Errorf("place bet: %w", err)
	}

	if err := e.repo.CreateWagerTransaction(ctx, tx); err != nil {
		// A concurrent writer won the unique index with the same wallet id, which
		// the wallet deduplicates, so the debit happened exactly once.
		if domain.HasCode(err, domain.CodeTransactionAlreadyExists) {
			return nil, err
		}
		return nil, e.drift("wager", player, ref, tx.TrxID, amount, err)
	}

	e.logger.Info("bet placed", "play_id", player.PlayID, "ref", ref, "trx_id", tx.TrxID, "amount", amount.String())
	return e.result(creditAfter, player.Currency), nil
}

// increaseBet replaces a running wager with a larger one. The wallet applies
// the difference in a single wagerAndPayout call; only after it succeeds is the
// old row superseded and the new running-inc row written.
func (e *Engine) increaseBet(
	ctx context.Context,
	player *domain.Player,
	creds domain.Credentials,
	existing *domain.Transaction,
	in BetInput,
	amount decimal.Decimal,
) (*Result, error) {
	ref := existing.Ref

	n, err := e.repo.GetWagerCount(ctx, e.policy.Name(), ref)
	if err != nil {
		return nil, fmt.Errorf("increase bet: %w", domain.ErrInternal("count wagers", err))
	}
	if n < 1 {
		n = 1
	}

	diff := amount.Sub(existing.BetAmount)
	credit, err := e.balance(ctx, creds, player.PlayID)
	if err != nil {
		return nil, fmt.Errorf("increase bet: %w", err)
	}
	if credit.LessThan(diff) {
		return nil, domain.ErrInsufficientFund()
	}

	details := withGameCode(in.Details, in.GameCode)
	betTime := existing.BetTime
	if !in.BetTime.IsZero() {
		betTime = in.BetTime.UTC()
	}
	next := &domain.Transaction{
		TrxID:        fmt.Sprintf("wager-%d-%s", n, ref),
		Provider:     existing.Provider,
		Ref:          ref,
		PlayID:       player.PlayID,
		Currency:     player.Currency,
		BetAmount:    amount,
		PayoutAmount: decimal.Zero,
		BetTime:      betTime,
		Flag:         domain.FlagRunningInc,
		Status:       domain.RowActive,
		Details:      marshalDetails(details),
	}

	walletID := fmt.Sprintf("increase-%d-%s", n, ref)
	resp, err := e.wallet.WagerAndPayout(ctx, creds, domain.WagerAndPayoutRequest{
		PlayID:        player.PlayID,
		Currency:      player.Currency,
		TransactionID: walletID,
		WagerAmount:   amount,
		PayoutAmount:  existing.BetAmount,
		Report:        e.reports.Build(KindIncrease, player, next, details),
	})
	creditAfter, err := e.walletResult("wagerAndPayout", ref, resp, err)
	if err != nil {
		return nil, fmt.Errorf("increase bet: %w", err)
	}

	if err := e.repo.IncreaseWagerTransaction(ctx, domain.IncreaseParams{Previous: existing, Next: next}); err != nil {
		return nil, e.drift("increase", player, ref, walletID, diff, err)
	}

	e.logger.Info("bet increased",
		"play_id", player.PlayID, "ref", ref, "trx_id", next.TrxID,
		"from", existing.BetAmount.String(), "to", amount.String())
	return e.result(creditAfter, player.Currency), nil
}

func withGameCode(details map[string]any, gameCode string) map[string]any {
	if gameCode == "" {
		return details
	}
	out := make(map[string]any, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out["game_code"] = gameCode
	return out
}
