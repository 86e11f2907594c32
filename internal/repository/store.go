package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/provgate/gateway/internal/domain"
)

// Beginner is a DBTX that can open a transaction; *pgxpool.Pool satisfies it.
type Beginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the settlement repository backed by Postgres. Every write and its
// outbox event commit in one database transaction.
type Store struct {
	db      Beginner
	players PlayerRepository
	txs     TransactionRepository
	outbox  OutboxRepository
}

// NewStore builds a Store over the given pool.
func NewStore(db Beginner) *Store {
	return &Store{
		db:      db,
		players: NewPlayerRepository(),
		txs:     NewTransactionRepository(),
		outbox:  NewOutboxRepository(),
	}
}

func (s *Store) GetPlayerByID(ctx context.Context, playID string) (*domain.Player, error) {
	return s.players.FindByID(ctx, s.db, playID)
}

func (s *Store) GetPlayerByToken(ctx context.Context, token string) (*domain.Player, error) {
	return s.players.FindByToken(ctx, s.db, token)
}

// CreatePlayer upserts the player and emits a provisioned event on first insert.
func (s *Store) CreatePlayer(ctx context.Context, player *domain.Player) (*domain.Player, error) {
	var stored *domain.Player
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		p, inserted, err := s.players.Upsert(ctx, tx, player)
		if err != nil {
			return err
		}
		if inserted {
			if err := s.outbox.Insert(ctx, tx, domain.NewPlayerProvisionedEvent(p)); err != nil {
				return err
			}
		}
		stored = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, provider, ref string) (*domain.Transaction, error) {
	return s.txs.FindActive(ctx, s.db, provider, ref)
}

func (s *Store) CreateWagerTransaction(ctx context.Context, t *domain.Transaction) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.txs.Insert(ctx, tx, t); err != nil {
			return uniqueViolation(err, t.Ref)
		}
		return s.outbox.Insert(ctx, tx, domain.NewTransactionEvent(domain.EventBetPlaced, t))
	})
}

// IncreaseWagerTransaction supersedes the previous row before inserting the
// next one so the partial unique index on active refs holds at every step.
func (s *Store) IncreaseWagerTransaction(ctx context.Context, params domain.IncreaseParams) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.txs.Supersede(ctx, tx, params.Previous.TrxID); err != nil {
			return err
		}
		if err := s.txs.Insert(ctx, tx, params.Next); err != nil {
			return uniqueViolation(err, params.Next.Ref)
		}
		return s.outbox.Insert(ctx, tx, domain.NewTransactionEvent(domain.EventBetIncreased, params.Next))
	})
}

func (s *Store) CreateSettleTransaction(ctx context.Context, params domain.SettleParams) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.txs.ApplySettle(ctx, tx, params); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewSettleEvent(params))
	})
}

func (s *Store) MarkRollback(ctx context.Context, t *domain.Transaction) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		count, err := s.txs.MarkRollback(ctx, tx, t.TrxID)
		if err != nil {
			return err
		}
		rolled := *t
		rolled.Flag = domain.FlagRollback
		rolled.RollbackCount = count
		return s.outbox.Insert(ctx, tx, domain.NewTransactionEvent(domain.EventBetRolledBack, &rolled))
	})
}

func (s *Store) GetRollbackCount(ctx context.Context, trxID string) (int, error) {
	return s.txs.RollbackCount(ctx, s.db, trxID)
}

func (s *Store) GetSettleCount(ctx context.Context, trxID string) (int, error) {
	return s.txs.SettleCount(ctx, s.db, trxID)
}

func (s *Store) GetWagerCount(ctx context.Context, provider, ref string) (int, error) {
	return s.txs.CountByRef(ctx, s.db, provider, ref)
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// uniqueViolation maps a unique index conflict on insert to the idempotency error.
func uniqueViolation(err error, ref string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrTransactionAlreadyExists(ref)
	}
	return err
}
