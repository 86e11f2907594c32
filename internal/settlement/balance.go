package settlement

import (
	"context"
	"fmt"

	"github.com/provgate/gateway/internal/domain"
)

// Balance returns the player's wallet credit. It has no side effects.
func (e *Engine) Balance(ctx context.Context, playID string) (res *Result, err error) {
	start := e.now()
	defer func() { e.observe("balance", start, err) }()

	if err := domain.ValidatePlayID(playID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	player, creds, err := e.resolve(ctx, playID)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}

	credit, err := e.balance(ctx, creds, player.PlayID)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	return e.result(credit, player.Currency), nil
}
