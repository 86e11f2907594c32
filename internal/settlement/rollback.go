package settlement

import (
	"context"
	"fmt"

	"github.com/provgate/gateway/internal/domain"
)

// Rollback reopens a settled transaction so the next Settle resettles it.
// The wallet is not mutated here; the resettle call that follows names the
// payout it replaces. Returns the current wallet balance.
func (e *Engine) Rollback(ctx context.Context, in RollbackInput) (res *Result, err error) {
	start := e.now()
	defer func() { e.observe("rollback", start, err) }()

	if err := validateRef(in.PlayID, in.ExternalID); err != nil {
		return nil, err
	}

	player, creds, err := e.resolve(ctx, in.PlayID)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}

	ref := e.policy.TransactionRef(in.ExternalID)
	release, err := e.lock(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}
	defer release()

	tx, err := e.loadTransaction(ctx, player, ref)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}
	if tx == nil {
		return nil, domain.ErrTransactionNotFound(ref)
	}

	switch tx.Flag {
	case domain.FlagVoid:
		return nil, domain.ErrTransactionAlreadyVoid(ref)
	case domain.FlagRollback:
		return nil, domain.ErrTransactionAlreadyRolledBack(ref)
	case domain.FlagSettled:
	default:
		return nil, domain.ErrTransactionNotRollbackable(ref)
	}

	// Read the balance first so a wallet failure leaves the row settled and
	// the provider's retry can still succeed.
	credit, err := e.balance(ctx, creds, player.PlayID)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}

	if err := e.repo.MarkRollback(ctx, tx); err != nil {
		return nil, fmt.Errorf("rollback: %w", domain.ErrInternal("mark rollback", err))
	}

	e.logger.Info("bet rolled back", "play_id", player.PlayID, "ref", ref, "trx_id", tx.TrxID)
	return e.result(credit, player.Currency), nil
}
