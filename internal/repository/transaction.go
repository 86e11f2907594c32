package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/provgate/gateway/internal/domain"
	"github.com/provgate/gateway/internal/infra"
)

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

const transactionColumns = `
	trx_id, provider, ref, play_id, currency, bet_amount, payout_amount,
	bet_time, settle_time, flag, status, payout_trx_id, settle_count, rollback_count,
	details, created_at, updated_at`

func (r *transactionRepo) FindActive(ctx context.Context, db DBTX, provider, ref string) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM provider_transactions
		WHERE provider = $1 AND ref = $2 AND status = 1`, provider, ref)
	return scanTransaction(row)
}

func (r *transactionRepo) FindByTrxID(ctx context.Context, db DBTX, trxID string) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM provider_transactions WHERE trx_id = $1`, trxID)
	return scanTransaction(row)
}

func (r *transactionRepo) Insert(ctx context.Context, db DBTX, tx *domain.Transaction) error {
	_, err := db.Exec(ctx, `
		INSERT INTO provider_transactions
		  (trx_id, provider, ref, play_id, currency, bet_amount, payout_amount,
		   bet_time, flag, status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tx.TrxID,
		tx.Provider,
		tx.Ref,
		tx.PlayID,
		tx.Currency,
		infra.DecimalToNumeric(tx.BetAmount),
		infra.DecimalToNumeric(tx.PayoutAmount),
		tx.BetTime,
		string(tx.Flag),
		tx.Status,
		ensureJSON(tx.Details),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) Supersede(ctx context.Context, db DBTX, trxID string) error {
	tag, err := db.Exec(ctx, `
		UPDATE provider_transactions
		SET status = 0, updated_at = now()
		WHERE trx_id = $1 AND status = 1`, trxID)
	if err != nil {
		return fmt.Errorf("supersede transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("supersede transaction %s: no active row", trxID)
	}
	return nil
}

// ApplySettle merges details into the stored JSONB and advances settle_count
// only for a payout (EventBetSettled).
func (r *transactionRepo) ApplySettle(ctx context.Context, db DBTX, params domain.SettleParams) error {
	settleInc := 0
	if params.Event == domain.EventBetSettled {
		settleInc = 1
	}

	var payoutTrxID *string
	if params.PayoutTrxID != "" {
		payoutTrxID = &params.PayoutTrxID
	}

	tag, err := db.Exec(ctx, `
		UPDATE provider_transactions
		SET payout_amount = $2,
		    settle_time   = $3,
		    flag          = $4,
		    payout_trx_id = COALESCE($5, payout_trx_id),
		    settle_count  = settle_count + $6,
		    details       = details || $7::jsonb,
		    updated_at    = now()
		WHERE trx_id = $1 AND status = 1`,
		params.TrxID,
		infra.DecimalToNumeric(params.PayoutAmount),
		params.SettleTime,
		string(params.Flag),
		payoutTrxID,
		settleInc,
		ensureJSON(params.Details),
	)
	if err != nil {
		return fmt.Errorf("apply settle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("apply settle %s: no active row", params.TrxID)
	}
	return nil
}

func (r *transactionRepo) MarkRollback(ctx context.Context, db DBTX, trxID string) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		UPDATE provider_transactions
		SET flag = 'rollback', rollback_count = rollback_count + 1, updated_at = now()
		WHERE trx_id = $1 AND status = 1 AND flag = 'settled'
		RETURNING rollback_count`, trxID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("mark rollback %s: no settled row", trxID)
		}
		return 0, fmt.Errorf("mark rollback: %w", err)
	}
	return count, nil
}

func (r *transactionRepo) RollbackCount(ctx context.Context, db DBTX, trxID string) (int, error) {
	return r.counter(ctx, db, "rollback_count", trxID)
}

func (r *transactionRepo) SettleCount(ctx context.Context, db DBTX, trxID string) (int, error) {
	return r.counter(ctx, db, "settle_count", trxID)
}

// counter reads one of the fixed counter columns; column is never user input.
func (r *transactionRepo) counter(ctx context.Context, db DBTX, column, trxID string) (int, error) {
	var count int
	err := db.QueryRow(ctx,
		`SELECT `+column+` FROM provider_transactions WHERE trx_id = $1`, trxID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", column, err)
	}
	return count, nil
}

func (r *transactionRepo) CountByRef(ctx context.Context, db DBTX, provider, ref string) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM provider_transactions
		WHERE provider = $1 AND ref = $2`, provider, ref).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by ref: %w", err)
	}
	return count, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var betNum, payoutNum pgtype.Numeric
	err := row.Scan(
		&tx.TrxID, &tx.Provider, &tx.Ref, &tx.PlayID, &tx.Currency,
		&betNum, &payoutNum,
		&tx.BetTime, &tx.SettleTime, &tx.Flag, &tx.Status, &tx.PayoutTrxID,
		&tx.SettleCount, &tx.RollbackCount,
		&tx.Details, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	var convErr error
	tx.BetAmount, convErr = infra.NumericToDecimal(betNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert bet_amount: %w", convErr)
	}
	tx.PayoutAmount, convErr = infra.NumericToDecimal(payoutNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert payout_amount: %w", convErr)
	}

	return &tx, nil
}

func ensureJSON(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage(`{}`)
	}
	return data
}
