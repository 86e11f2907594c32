package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/provgate/gateway/internal/auth"
	"github.com/provgate/gateway/internal/domain"
)

// Provisioner upserts players for one provider. *settlement.Engine satisfies it.
type Provisioner interface {
	EnsurePlayer(ctx context.Context, p domain.Player) (*domain.Player, error)
}

// TokenIssuer mints launch tokens. *auth.TokenManager satisfies it.
type TokenIssuer interface {
	Issue(playID, provider, currency string) (string, time.Time, error)
}

// Limiter is the rate limit check; *guard.RateLimiter satisfies it.
type Limiter interface {
	Check(ctx context.Context, key string) domain.GuardResult
}

// LaunchRequest is the body of POST /operator/launch.
type LaunchRequest struct {
	PlayID   string `json:"play_id"`
	Username string `json:"username"`
	Currency string `json:"currency"`
	Provider string `json:"provider"`
}

// LaunchResponse carries the token the game client hands to the provider.
type LaunchResponse struct {
	PlayID    string    `json:"play_id"`
	Provider  string    `json:"provider"`
	Currency  string    `json:"currency"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LaunchHandler provisions the player with the provider's engine and issues
// a fresh launch token stored on the player row.
func LaunchHandler(engines map[string]Provisioner, tokens TokenIssuer, limiter Limiter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil {
			if res := limiter.Check(r.Context(), launchKey(r)); !res.Allowed {
				RespondJSON(w, http.StatusTooManyRequests, map[string]string{
					"code":    "RATE_LIMITED",
					"message": res.Reason,
				})
				return
			}
		}

		var req LaunchRequest
		if err := DecodeJSON(r, &req); err != nil {
			RespondError(w, domain.ErrValidation("invalid request body"))
			return
		}
		req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
		req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

		engine, ok := engines[req.Provider]
		if !ok {
			RespondError(w, domain.ErrValidation("unknown provider "+req.Provider))
			return
		}
		if err := domain.ValidatePlayID(req.PlayID); err != nil {
			RespondError(w, domain.ErrValidation(err.Error()))
			return
		}

		token, exp, err := tokens.Issue(req.PlayID, req.Provider, req.Currency)
		if err != nil {
			logger.Error("issue launch token", "play_id", req.PlayID, "error", err)
			RespondError(w, domain.ErrInternal("issue token", err))
			return
		}

		player, err := engine.EnsurePlayer(r.Context(), domain.Player{
			PlayID:   req.PlayID,
			Username: req.Username,
			Currency: req.Currency,
			Provider: req.Provider,
			Token:    token,
		})
		if err != nil {
			if domain.CodeOf(err) == domain.CodeInternal {
				logger.Error("launch failed", "play_id", req.PlayID, "provider", req.Provider, "error", err)
			}
			RespondError(w, err)
			return
		}

		logger.Info("player launched", "play_id", player.PlayID, "provider", req.Provider, "currency", player.Currency)
		RespondJSON(w, http.StatusOK, LaunchResponse{
			PlayID:    player.PlayID,
			Provider:  req.Provider,
			Currency:  player.Currency,
			Token:     token,
			ExpiresAt: exp,
		})
	}
}

// launchKey scopes the launch rate limit to one operator key and client address.
func launchKey(r *http.Request) string {
	return r.Header.Get(auth.OperatorKeyHeader) + "|" + clientIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
