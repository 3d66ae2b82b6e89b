/**
 * @description
 * This file contains the reconciliation engine: the state machine that consumes
 * decoded webhook events and drives payment records and ledger balances to
 * their final state. It is stateless per invocation and safe to call from
 * concurrent request handlers; all idempotence guarantees live in the store.
 *
 * Key decisions:
 * - Crediting happens on charge.succeeded only. payment_intent.succeeded marks
 *   the record but never touches the ledger, so a transaction firing both
 *   events cannot be credited twice.
 * - A charge for an unknown payment record is surfaced as a retryable error
 *   rather than dropped: with at-least-once delivery the record creation may
 *   simply not be visible yet, and redelivery recovers the race.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For publishing reconciliation outcome events.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/transfa/payments-service/internal/domain"
	"github.com/transfa/payments-service/internal/store"
	"github.com/transfa/payments-service/pkg/rabbitmq"
)

// Reconciler applies decoded payment events against the record store and the
// balance ledger.
type Reconciler struct {
	repo     store.Repository
	producer rabbitmq.Publisher
}

// NewReconciler creates a reconciler. The producer may be nil when the broker
// is unavailable; outcome events are then skipped.
func NewReconciler(repo store.Repository, producer rabbitmq.Publisher) *Reconciler {
	return &Reconciler{repo: repo, producer: producer}
}

// IsPermanent reports whether a processing error should be acknowledged to the
// provider (2xx) to stop redelivery of an event that can never succeed. All
// other errors are retryable and must surface as non-2xx.
func IsPermanent(err error) bool {
	return errors.Is(err, store.ErrInvalidTransition)
}

// ProcessEvent dispatches one decoded event through the state machine.
func (r *Reconciler) ProcessEvent(ctx context.Context, event domain.PaymentEvent) error {
	switch event.Kind {
	case domain.EventPaymentIntentCreated:
		return r.ensureRecord(ctx, event)
	case domain.EventPaymentIntentSucceeded:
		return r.completeIntent(ctx, event, domain.PaymentStatusSucceeded)
	case domain.EventPaymentIntentFailed:
		return r.completeIntent(ctx, event, domain.PaymentStatusFailed)
	case domain.EventChargeSucceeded:
		return r.settleCharge(ctx, event)
	case domain.EventUnhandled:
		log.Printf("level=info component=reconciler msg=\"unhandled event type acknowledged\" event_type=%s event_id=%s", event.RawType, event.EventID)
		return nil
	default:
		return fmt.Errorf("unrecognized event kind %d", event.Kind)
	}
}

// ensureRecord makes a record exist for an intent-created event. In practice
// records are written by the creation endpoint before the provider can emit
// this event, so an existing record is the normal case.
func (r *Reconciler) ensureRecord(ctx context.Context, event domain.PaymentEvent) error {
	record := &domain.PaymentRecord{
		ID:       event.PaymentIntentID,
		Amount:   event.Amount,
		Currency: event.Currency,
		Status:   domain.PaymentStatusPending,
	}
	err := r.repo.CreatePayment(ctx, record)
	if err != nil && !errors.Is(err, store.ErrPaymentExists) {
		return fmt.Errorf("ensure payment record %s: %w", event.PaymentIntentID, err)
	}
	return nil
}

// completeIntent applies a terminal status from an intent-level event. No
// ledger effect: crediting is reserved for the charge-level event.
func (r *Reconciler) completeIntent(ctx context.Context, event domain.PaymentEvent, status string) error {
	err := r.repo.UpdatePaymentStatus(ctx, event.PaymentIntentID, status, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=warn component=reconciler msg=\"no record for intent event; retryable\" event_type=%s payment_intent_id=%s amount=%d", event.RawType, event.PaymentIntentID, event.Amount)
		}
		return fmt.Errorf("complete intent %s as %s: %w", event.PaymentIntentID, status, err)
	}

	r.publishOutcome(ctx, event.PaymentIntentID, status, event.Amount, nil)
	return nil
}

// settleCharge credits the ledger and marks the originating record succeeded.
// Ordering matters: credits land first, so a crash between the two phases
// leaves a discoverable ledger entry and the next redelivery skips re-crediting
// while still completing the record transition.
func (r *Reconciler) settleCharge(ctx context.Context, event domain.PaymentEvent) error {
	record, err := r.repo.GetPayment(ctx, event.PaymentIntentID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=warn component=reconciler msg=\"charge for unknown payment record; retryable\" event_type=%s payment_intent_id=%s amount=%d", event.RawType, event.PaymentIntentID, event.Amount)
		}
		return fmt.Errorf("lookup record for charge %s: %w", event.PaymentIntentID, err)
	}

	if record.Terminal() {
		if record.Status == domain.PaymentStatusSucceeded {
			log.Printf("level=info component=reconciler msg=\"charge already settled; skipping\" payment_intent_id=%s", record.ID)
			return nil
		}
		log.Printf("level=error component=reconciler msg=\"charge succeeded for failed payment; not applied\" event_type=%s payment_intent_id=%s amount=%d", event.RawType, record.ID, event.Amount)
		return fmt.Errorf("%w: charge succeeded for failed payment %s", store.ErrInvalidTransition, record.ID)
	}

	amount := event.Amount
	if amount <= 0 {
		amount = record.Amount
	}

	if _, err := r.repo.CreditBalance(ctx, domain.GlobalBalanceKey, amount, record.ID); err != nil {
		return fmt.Errorf("credit global balance for %s: %w", record.ID, err)
	}
	if record.Beneficiary != nil {
		if _, err := r.repo.CreditBalance(ctx, *record.Beneficiary, amount, record.ID); err != nil {
			return fmt.Errorf("credit beneficiary %s for %s: %w", *record.Beneficiary, record.ID, err)
		}
	}

	if err := r.repo.UpdatePaymentStatus(ctx, record.ID, domain.PaymentStatusSucceeded, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark payment %s succeeded: %w", record.ID, err)
	}

	log.Printf("level=info component=reconciler msg=\"charge settled\" payment_intent_id=%s amount=%d beneficiary=%v", record.ID, amount, record.Beneficiary)
	r.publishOutcome(ctx, record.ID, domain.PaymentStatusSucceeded, amount, record.Beneficiary)
	return nil
}

// publishOutcome emits a reconciliation outcome event. Best effort: the
// webhook has already been applied, so a broker failure must not fail it.
func (r *Reconciler) publishOutcome(ctx context.Context, paymentID, status string, amount int64, beneficiary *string) {
	if r.producer == nil {
		return
	}
	routingKey := "payment." + status
	event := domain.PaymentOutcomeEvent{
		PaymentIntentID: paymentID,
		Status:          status,
		Amount:          amount,
		Beneficiary:     beneficiary,
		Timestamp:       time.Now().UTC(),
	}
	if err := r.producer.Publish(ctx, rabbitmq.PaymentEventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=reconciler msg=\"outcome publish failed\" payment_intent_id=%s routing_key=%s err=%v", paymentID, routingKey, err)
	}
}
