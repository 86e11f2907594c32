package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/provgate/gateway/internal/domain"
)

// EnsurePlayer creates the player on first launch and refreshes username and
// token afterwards. The currency of an existing player cannot change.
func (e *Engine) EnsurePlayer(ctx context.Context, p domain.Player) (stored *domain.Player, err error) {
	start := e.now()
	defer func() { e.observe("ensure_player", start, err) }()

	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if err := domain.ValidatePlayID(p.PlayID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateCurrency(p.Currency); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if p.Username == "" {
		p.Username = p.PlayID
	}
	if p.Provider == "" {
		p.Provider = e.policy.Name()
	}
	if p.Status == "" {
		p.Status = domain.PlayerActive
	}

	existing, err := e.repo.GetPlayerByID(ctx, p.PlayID)
	if err != nil {
		return nil, domain.ErrInternal("load player", err)
	}
	if existing != nil && existing.Currency != p.Currency {
		return nil, domain.ErrValidation(fmt.Sprintf(
			"player %s already uses currency %s", p.PlayID, existing.Currency))
	}
	if _, ok := e.creds.Resolve(e.policy.Name(), p.Currency); !ok {
		return nil, domain.ErrCredentialsNotFound(e.policy.Name(), p.Currency)
	}

	stored, err = e.repo.CreatePlayer(ctx, &p)
	if err != nil {
		return nil, domain.ErrInternal("create player", err)
	}
	if existing == nil {
		e.logger.Info("player provisioned", "play_id", stored.PlayID, "currency", stored.Currency)
	}
	return stored, nil
}

// Authenticate resolves the player holding a launch token issued for this
// engine's provider. When a verifier is configured the token must also be
// valid and issued to that player.
func (e *Engine) Authenticate(ctx context.Context, token string) (player *domain.Player, err error) {
	start := e.now()
	defer func() { e.observe("authenticate", start, err) }()

	if token == "" {
		return nil, domain.ErrUnauthorized("missing token")
	}

	var claimed string
	if e.tokens != nil {
		claimed, err = e.tokens.VerifyLaunchToken(token)
		if err != nil {
			return nil, domain.ErrUnauthorized("invalid token")
		}
	}

	player, err = e.repo.GetPlayerByToken(ctx, token)
	if err != nil {
		return nil, domain.ErrInternal("load player by token", err)
	}
	if player == nil {
		return nil, domain.ErrPlayerNotFound("for token")
	}
	if player.Provider != e.policy.Name() {
		return nil, domain.ErrUnauthorized("token issued for provider " + player.Provider)
	}
	if claimed != "" && claimed != player.PlayID {
		return nil, domain.ErrUnauthorized("token issued to another player")
	}
	return player, nil
}
