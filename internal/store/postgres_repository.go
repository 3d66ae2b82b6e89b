/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * for payment records, balance accumulators, and the ledger entries that make
 * credits idempotent.
 *
 * @notes
 * - `payments.status` transitions are guarded inside the UPDATE itself, so
 *   concurrent webhook deliveries cannot race a record between terminal states.
 * - A credit is one transaction: a ledger entry keyed by (account_key,
 *   payment_id) with conflict-skip, then a balance upsert applied only when the
 *   entry is new. A redelivered charge event therefore credits at most once,
 *   and a record that was credited but not yet marked succeeded is discoverable
 *   through its ledger entry.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/payments-service/internal/domain"
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreatePayment inserts a new payment record keyed by its provider-assigned id.
func (r *PostgresRepository) CreatePayment(ctx context.Context, record *domain.PaymentRecord) error {
	query := `
		INSERT INTO payments (id, amount, currency, status, beneficiary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.Amount,
		record.Currency,
		record.Status,
		record.Beneficiary,
		record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrPaymentExists
		}
		return fmt.Errorf("insert payment %s: %w", record.ID, err)
	}
	return nil
}

// GetPayment retrieves a payment record by its payment-intent id.
func (r *PostgresRepository) GetPayment(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	query := `
		SELECT id, amount, currency, status, beneficiary, created_at, completed_at
		FROM payments
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&record.ID,
		&record.Amount,
		&record.Currency,
		&record.Status,
		&record.Beneficiary,
		&record.CreatedAt,
		&record.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpdatePaymentStatus applies a terminal transition with the guard in the
// UPDATE itself: only a pending record, or one already in the target status,
// matches. completed_at is set once via COALESCE so a replayed event cannot
// move it.
func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, id, status string, completedAt time.Time) error {
	query := `
		UPDATE payments
		SET status = $2,
		    completed_at = COALESCE(completed_at, $3)
		WHERE id = $1 AND (status = $4 OR status = $2)
	`
	tag, err := r.db.Exec(ctx, query, id, status, completedAt, domain.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("update payment %s status: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing matched: distinguish a missing record from an illegal transition.
	var current string
	err = r.db.QueryRow(ctx, "SELECT status FROM payments WHERE id = $1", id).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrPaymentNotFound
		}
		return err
	}
	return fmt.Errorf("%w: %s -> %s for payment %s", ErrInvalidTransition, current, status, id)
}

// CreditBalance credits the accumulator inside a single transaction. The
// ledger entry is the idempotence key; when it already exists the balance is
// left untouched and applied=false is returned.
func (r *PostgresRepository) CreditBalance(ctx context.Context, key string, amount int64, paymentID string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	entryQuery := `
		INSERT INTO ledger_entries (id, account_key, payment_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_key, payment_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, entryQuery, uuid.New(), key, paymentID, amount, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert ledger entry for %s/%s: %w", key, paymentID, err)
	}
	if tag.RowsAffected() == 0 {
		// Already credited by an earlier delivery of the same payment.
		return false, tx.Commit(ctx)
	}

	balanceQuery := `
		INSERT INTO balances (key, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET balance = balances.balance + EXCLUDED.balance, updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, balanceQuery, key, amount); err != nil {
		return false, fmt.Errorf("credit balance %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// GetBalance returns the accumulator for key, or a defined zero value when it
// has never been credited. Callers needing strict existence should use the
// ledger entries instead.
func (r *PostgresRepository) GetBalance(ctx context.Context, key string) (*domain.Balance, error) {
	var balance domain.Balance
	query := `SELECT key, balance, updated_at FROM balances WHERE key = $1`
	err := r.db.QueryRow(ctx, query, key).Scan(&balance.Key, &balance.Balance, &balance.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &domain.Balance{Key: key, Balance: 0}, nil
		}
		return nil, err
	}
	return &balance, nil
}
