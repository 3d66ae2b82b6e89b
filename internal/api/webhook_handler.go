/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from the
 * payment provider. It acts as the primary entry point for all real-time
 * payment notifications.
 *
 * Key features:
 * - Security: the raw body bytes are read once and handed to the verifier
 *   untouched. Re-encoding the JSON before verification would silently
 *   invalidate every signature.
 * - Delivery semantics: 400 for verification/parse failures (the provider must
 *   not retry those), 200 for processed, ignored, and permanently
 *   unprocessable events, non-2xx for transient failures so the provider
 *   redelivers.
 *
 * @dependencies
 * - io, net/http: Standard Go libraries.
 * - internal/app, internal/webhook: For reconciliation and payload verification.
 */
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/transfa/payments-service/internal/app"
	"github.com/transfa/payments-service/internal/webhook"
)

// WebhookHandler processes incoming webhooks from the payment provider.
type WebhookHandler struct {
	verifier    *webhook.Verifier
	reconciler  *app.Reconciler
	replayGuard app.ReplayGuard
}

// NewWebhookHandler creates a new handler for the webhook endpoint. The replay
// guard may be nil; duplicate suppression then falls back entirely to the
// store-level idempotence guarantees.
func NewWebhookHandler(verifier *webhook.Verifier, reconciler *app.Reconciler, replayGuard app.ReplayGuard) *WebhookHandler {
	return &WebhookHandler{
		verifier:    verifier,
		reconciler:  reconciler,
		replayGuard: replayGuard,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = fmt.Sprintf("req_%d", time.Now().UnixNano())
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("level=warn component=webhook request_id=%s outcome=reject reason=unreadable_body err=%v", requestID, err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	verified, err := h.verifier.Verify(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrSignatureMismatch):
			log.Printf("level=warn component=webhook request_id=%s outcome=reject reason=signature_mismatch err=%v", requestID, err)
			webhookEventsTotal.WithLabelValues("unknown", "signature_mismatch").Inc()
			http.Error(w, "Invalid signature", http.StatusBadRequest)
		default:
			log.Printf("level=warn component=webhook request_id=%s outcome=reject reason=invalid_payload err=%v", requestID, err)
			webhookEventsTotal.WithLabelValues("unknown", "invalid_payload").Inc()
			http.Error(w, "Invalid payload", http.StatusBadRequest)
		}
		return
	}

	event, err := webhook.Decode(verified)
	if err != nil {
		log.Printf("level=warn component=webhook request_id=%s outcome=reject reason=undecodable err=%v", requestID, err)
		webhookEventsTotal.WithLabelValues("unknown", "invalid_payload").Inc()
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	timer := prometheus.NewTimer(webhookDuration.WithLabelValues(event.RawType))
	defer timer.ObserveDuration()

	ctx := r.Context()

	if h.replayGuard != nil {
		seen, guardErr := h.replayGuard.Seen(ctx, event.EventID)
		if guardErr != nil {
			// The store enforces idempotence; proceed without the guard.
			log.Printf("level=warn component=webhook request_id=%s msg=\"replay guard unavailable; continuing\" event_id=%s err=%v", requestID, event.EventID, guardErr)
		} else if seen {
			log.Printf("level=info component=webhook request_id=%s outcome=duplicate event_type=%s event_id=%s", requestID, event.RawType, event.EventID)
			webhookEventsTotal.WithLabelValues(event.RawType, "duplicate").Inc()
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Duplicate event ignored"))
			return
		}
	}

	if err := h.reconciler.ProcessEvent(ctx, event); err != nil {
		if app.IsPermanent(err) {
			// Unprocessable forever; acknowledge so the provider stops redelivering.
			log.Printf("level=error component=webhook request_id=%s outcome=rejected_permanent event_type=%s payment_intent_id=%s amount=%d err=%v", requestID, event.RawType, event.PaymentIntentID, event.Amount, err)
			webhookEventsTotal.WithLabelValues(event.RawType, "rejected_permanent").Inc()
			h.markSeen(ctx, requestID, event.EventID)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Event acknowledged"))
			return
		}
		// Retryable: the event id stays unrecorded so the provider's
		// redelivery is processed rather than shed as a duplicate.
		log.Printf("level=error component=webhook request_id=%s outcome=retryable event_type=%s payment_intent_id=%s amount=%d err=%v", requestID, event.RawType, event.PaymentIntentID, event.Amount, err)
		webhookEventsTotal.WithLabelValues(event.RawType, "retryable_failure").Inc()
		http.Error(w, "Internal server error during event processing", http.StatusInternalServerError)
		return
	}

	webhookEventsTotal.WithLabelValues(event.RawType, "processed").Inc()
	h.markSeen(ctx, requestID, event.EventID)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Webhook received"))
}

// markSeen records a fully processed event id with the replay guard. Best
// effort: a guard failure only costs duplicate work on redelivery.
func (h *WebhookHandler) markSeen(ctx context.Context, requestID, eventID string) {
	if h.replayGuard == nil {
		return
	}
	if err := h.replayGuard.MarkSeen(ctx, eventID); err != nil {
		log.Printf("level=warn component=webhook request_id=%s msg=\"replay guard record failed\" event_id=%s err=%v", requestID, eventID, err)
	}
}
