package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/provgate/gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// Cancel refunds a running wager and voids the row. The refund names the
// wallet booking that debited the current bet amount.
func (e *Engine) Cancel(ctx context.Context, in CancelInput) (res *Result, err error) {
	start := e.now()
	defer func() { e.observe("cancel", start, err) }()

	if err := validateRef(in.PlayID, in.ExternalID); err != nil {
		return nil, err
	}

	player, creds, err := e.resolve(ctx, in.PlayID)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}

	ref := e.policy.TransactionRef(in.ExternalID)
	release, err := e.lock(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	defer release()

	tx, err := e.loadTransaction(ctx, player, ref)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	if tx == nil {
		return nil, domain.ErrTransactionNotFound(ref)
	}

	switch tx.Flag {
	case domain.FlagVoid:
		return nil, domain.ErrTransactionAlreadyVoid(ref)
	case domain.FlagSettled:
		return nil, e.policy.CancelSettledError(ref)
	case domain.FlagRollback:
		// The wallet still holds the rolled back payout.
		return nil, domain.ErrCannotCancel(ref)
	}

	cancelID := "cancel-" + ref
	resp, err := e.wallet.Cancel(ctx, creds, domain.CancelRequest{
		PlayID:                player.PlayID,
		Currency:              player.Currency,
		TransactionID:         cancelID,
		Amount:                tx.BetAmount,
		TransactionIDToCancel: debitID(tx),
	})
	creditAfter, err := e.walletResult("cancel", ref, resp, err)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}

	if err := e.repo.CreateSettleTransaction(ctx, domain.SettleParams{
		TrxID:        tx.TrxID,
		Provider:     tx.Provider,
		PlayID:       player.PlayID,
		PayoutTrxID:  cancelID,
		PayoutAmount: decimal.Zero,
		SettleTime:   e.now().UTC(),
		Flag:         domain.FlagVoid,
		Event:        domain.EventBetCancelled,
	}); err != nil {
		return nil, e.drift("cancel", player, ref, cancelID, tx.BetAmount, err)
	}

	e.logger.Info("bet cancelled", "play_id", player.PlayID, "ref", ref, "trx_id", cancelID, "amount", tx.BetAmount.String())
	return e.result(creditAfter, player.Currency), nil
}

// debitID is the wallet id that debited tx.BetAmount. An increased row was
// booked by its increase-<n>-<ref> call, not by the original wager.
func debitID(tx *domain.Transaction) string {
	if tx.Flag == domain.FlagRunningInc {
		return "increase-" + strings.TrimPrefix(tx.TrxID, "wager-")
	}
	return tx.TrxID
}
