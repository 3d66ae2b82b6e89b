/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the payments-service. By defining an
 * interface, we decouple the reconciliation logic from the specific database
 * implementation, making the code more modular and easier to test with
 * in-memory fakes.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/transfa/payments-service/internal/domain"
)

var (
	ErrPaymentNotFound   = errors.New("payment record not found")
	ErrPaymentExists     = errors.New("payment record already exists")
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Payment record methods
	CreatePayment(ctx context.Context, record *domain.PaymentRecord) error
	GetPayment(ctx context.Context, id string) (*domain.PaymentRecord, error)
	// UpdatePaymentStatus transitions a record to the given terminal status.
	// It is an idempotent no-op when the record already carries that status,
	// returns ErrPaymentNotFound when the id is absent, and
	// ErrInvalidTransition when moving between distinct terminal statuses.
	// completed_at is set exactly once, on the first terminal transition.
	UpdatePaymentStatus(ctx context.Context, id, status string, completedAt time.Time) error

	// Balance ledger methods
	// CreditBalance atomically credits the accumulator for `key`, creating it
	// with the credited amount if absent. The credit is keyed by paymentID so
	// redelivered events cannot apply it twice; the returned bool reports
	// whether a credit was applied on this call.
	CreditBalance(ctx context.Context, key string, amount int64, paymentID string) (bool, error)
	// GetBalance returns the current accumulator value, or zero when the key
	// has never been credited.
	GetBalance(ctx context.Context, key string) (*domain.Balance, error)
}
