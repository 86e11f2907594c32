package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/provgate/gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// Settle pays out a running wager. A rolled back transaction is resettled
// instead; settled and void transactions are rejected without a wallet call.
func (e *Engine) Settle(ctx context.Context, in SettleInput) (res *Result, err error) {
	start := e.now()
	defer func() { e.observe("settle", start, err) }()

	if err := validateRef(in.PlayID, in.ExternalID); err != nil {
		return nil, err
	}
	if err := domain.ValidateNonNegativeAmount(in.WinLoss); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	player, creds, err := e.resolve(ctx, in.PlayID)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	ref := e.policy.TransactionRef(in.ExternalID)
	release, err := e.lock(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	defer release()

	tx, err := e.loadTransaction(ctx, player, ref)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if tx == nil {
		return nil, domain.ErrTransactionNotFound(ref)
	}

	amount := e.toWallet(in.WinLoss, player.Currency)
	settleTime := e.timeOrNow(in.SettleTime)

	switch tx.Flag {
	case domain.FlagSettled:
		return nil, domain.ErrTransactionAlreadySettled(ref)
	case domain.FlagVoid:
		return nil, domain.ErrTransactionAlreadyVoid(ref)
	case domain.FlagRollback:
		return e.resettle(ctx, player, creds, tx, amount, settleTime, in.Details)
	}

	seq, err := e.repo.GetSettleCount(ctx, tx.TrxID)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", domain.ErrInternal("read settle count", err))
	}
	payoutID := fmt.Sprintf("payout-%d-%s", seq+1, ref)

	settled := *tx
	settled.PayoutAmount = amount
	settled.SettleTime = &settleTime

	resp, err := e.wallet.Payout(ctx, creds, domain.WagerRequest{
		PlayID:        player.PlayID,
		Currency:      player.Currency,
		TransactionID: payoutID,
		Amount:        amount,
		Report:        e.reports.Build(KindPayout, player, &settled, in.Details),
	})
	creditAfter, err := e.walletResult("payout", ref, resp, err)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	if err := e.repo.CreateSettleTransaction(ctx, domain.SettleParams{
		TrxID:        tx.TrxID,
		Provider:     tx.Provider,
		PlayID:       player.PlayID,
		PayoutTrxID:  payoutID,
		PayoutAmount: amount,
		SettleTime:   settleTime,
		Flag:         domain.FlagSettled,
		Event:        domain.EventBetSettled,
		Details:      marshalDetails(in.Details),
	}); err != nil {
		return nil, e.drift("payout", player, ref, payoutID, amount, err)
	}

	e.logger.Info("bet settled", "play_id", player.PlayID, "ref", ref, "trx_id", payoutID, "amount", amount.String())
	return e.result(creditAfter, player.Currency), nil
}

// resettle re-applies a payout to a rolled back transaction. The wallet id is
// derived from the rollback counter so every resettlement has a fresh key, and
// settledTransactionID points the wallet at the payout being replaced.
func (e *Engine) resettle(
	ctx context.Context,
	player *domain.Player,
	creds domain.Credentials,
	tx *domain.Transaction,
	amount decimal.Decimal,
	settleTime time.Time,
	details map[string]any,
) (*Result, error) {
	n, err := e.repo.GetRollbackCount(ctx, tx.TrxID)
	if err != nil {
		return nil, fmt.Errorf("resettle: %w", domain.ErrInternal("read rollback count", err))
	}
	if n < 1 {
		n = 1
	}
	resettleID := fmt.Sprintf("resettle-%d-%s", n, tx.Ref)

	settledID := tx.TrxID
	if tx.PayoutTrxID != nil && *tx.PayoutTrxID != "" {
		settledID = *tx.PayoutTrxID
	}

	resp, err := e.wallet.Resettle(ctx, creds, domain.ResettleRequest{
		PlayID:               player.PlayID,
		Currency:             player.Currency,
		TransactionID:        resettleID,
		Amount:               amount,
		BetID:                tx.Ref,
		SettledTransactionID: settledID,
		BetTime:              tx.BetTime,
	})
	creditAfter, err := e.walletResult("resettle", tx.Ref, resp, err)
	if err != nil {
		return nil, fmt.Errorf("resettle: %w", err)
	}

	if err := e.repo.CreateSettleTransaction(ctx, domain.SettleParams{
		TrxID:        tx.TrxID,
		Provider:     tx.Provider,
		PlayID:       player.PlayID,
		PayoutTrxID:  resettleID,
		PayoutAmount: amount,
		SettleTime:   settleTime,
		Flag:         domain.FlagSettled,
		Event:        domain.EventBetResettled,
		Details:      marshalDetails(details),
	}); err != nil {
		return nil, e.drift("resettle", player, tx.Ref, resettleID, amount, err)
	}

	e.logger.Info("bet resettled", "play_id", player.PlayID, "ref", tx.Ref, "trx_id", resettleID, "amount", amount.String())
	return e.result(creditAfter, player.Currency), nil
}
