package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/provgate/gateway/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PlayerRepository provides access to players.
type PlayerRepository interface {
	// FindByID returns a player by play id.
	FindByID(ctx context.Context, db DBTX, playID string) (*domain.Player, error)

	// FindByToken returns the player holding the given launch token.
	FindByToken(ctx context.Context, db DBTX, token string) (*domain.Player, error)

	// Upsert inserts the player or refreshes username and token of an existing one.
	// The stored currency is never changed. inserted is true for a new row.
	Upsert(ctx context.Context, db DBTX, player *domain.Player) (stored *domain.Player, inserted bool, err error)
}

// TransactionRepository provides access to provider_transactions.
type TransactionRepository interface {
	// FindActive returns the active (status = 1) row for a provider reference.
	FindActive(ctx context.Context, db DBTX, provider, ref string) (*domain.Transaction, error)

	// FindByTrxID returns a row by its wager transaction id, active or not.
	FindByTrxID(ctx context.Context, db DBTX, trxID string) (*domain.Transaction, error)

	// Insert creates a new wager row.
	Insert(ctx context.Context, db DBTX, tx *domain.Transaction) error

	// Supersede marks an active row as superseded (status = 0).
	Supersede(ctx context.Context, db DBTX, trxID string) error

	// ApplySettle writes payout fields and the new flag onto an active row.
	ApplySettle(ctx context.Context, db DBTX, params domain.SettleParams) error

	// MarkRollback flips a settled row to rollback and returns the new rollback count.
	MarkRollback(ctx context.Context, db DBTX, trxID string) (int, error)

	// RollbackCount returns the number of rollbacks applied to a row.
	RollbackCount(ctx context.Context, db DBTX, trxID string) (int, error)

	// SettleCount returns the number of payouts applied to a row.
	SettleCount(ctx context.Context, db DBTX, trxID string) (int, error)

	// CountByRef returns how many rows, superseded included, exist for a reference.
	CountByRef(ctx context.Context, db DBTX, provider, ref string) (int, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the settlement write).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// PendingForPlayer returns a player's unpublished events, oldest first.
	PendingForPlayer(ctx context.Context, db DBTX, playID string, limit int) ([]domain.OutboxRow, error)
}
