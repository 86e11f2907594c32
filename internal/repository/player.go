package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/provgate/gateway/internal/domain"
)

type playerRepo struct{}

// NewPlayerRepository returns a pgx-backed PlayerRepository.
func NewPlayerRepository() PlayerRepository {
	return &playerRepo{}
}

const playerColumns = `play_id, username, currency, provider, status, created_at, updated_at`

func (r *playerRepo) FindByID(ctx context.Context, db DBTX, playID string) (*domain.Player, error) {
	row := db.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE play_id = $1`, playID)
	return scanPlayer(row)
}

// FindByToken reports the provider the token was issued for, which may
// differ from the provider the player was first provisioned under.
func (r *playerRepo) FindByToken(ctx context.Context, db DBTX, token string) (*domain.Player, error) {
	if token == "" {
		return nil, nil
	}
	row := db.QueryRow(ctx, `
		SELECT p.play_id, p.username, p.currency, t.provider, p.status, p.created_at, p.updated_at
		FROM player_tokens t
		JOIN players p ON p.play_id = t.play_id
		WHERE t.token = $1`, token)
	p, err := scanPlayer(row)
	if p != nil {
		p.Token = token
	}
	return p, err
}

// Upsert relies on xmax = 0 to tell a fresh insert from a conflict update.
// A non-empty token replaces the player's token for player.Provider only.
func (r *playerRepo) Upsert(ctx context.Context, db DBTX, player *domain.Player) (*domain.Player, bool, error) {
	status := player.Status
	if status == "" {
		status = domain.PlayerActive
	}

	row := db.QueryRow(ctx, `
		INSERT INTO players (play_id, username, currency, provider, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (play_id) DO UPDATE
		   SET username   = EXCLUDED.username,
		       updated_at = now()
		RETURNING `+playerColumns+`, (xmax = 0) AS inserted`,
		player.PlayID,
		player.Username,
		player.Currency,
		player.Provider,
		string(status),
	)

	var p domain.Player
	var inserted bool
	err := row.Scan(&p.PlayID, &p.Username, &p.Currency, &p.Provider, &p.Status,
		&p.CreatedAt, &p.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("upsert player: %w", err)
	}

	if player.Token != "" {
		if _, err := db.Exec(ctx, `
			INSERT INTO player_tokens (play_id, provider, token)
			VALUES ($1, $2, $3)
			ON CONFLICT (play_id, provider) DO UPDATE
			   SET token = EXCLUDED.token, issued_at = now()`,
			p.PlayID, player.Provider, player.Token); err != nil {
			return nil, false, fmt.Errorf("store %s token for %s: %w", player.Provider, p.PlayID, err)
		}
		p.Token = player.Token
	}
	return &p, inserted, nil
}

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.PlayID, &p.Username, &p.Currency, &p.Provider, &p.Status,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan player: %w", err)
	}
	return &p, nil
}
