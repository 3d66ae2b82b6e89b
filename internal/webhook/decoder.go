/**
 * @description
 * This file decodes verified webhook payloads into the closed event set the
 * reconciliation engine understands. Unknown event types decode to an
 * Unhandled variant rather than an error: providers add event types over time
 * and deliveries of types we do not care about must be safely ignorable.
 */
package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/transfa/payments-service/internal/domain"
)

// Decode maps a verified payload to one PaymentEvent variant.
//
// The provider has emitted "payment_intent.failed" historically and
// "payment_intent.payment_failed" in current API versions; both decode to the
// failed variant.
func Decode(body []byte) (domain.PaymentEvent, error) {
	var raw domain.WebhookEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if raw.Type == "" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
	}

	event := domain.PaymentEvent{
		EventID:  raw.ID,
		RawType:  raw.Type,
		Amount:   raw.Data.Object.Amount,
		Currency: raw.Data.Object.Currency,
	}

	switch raw.Type {
	case domain.EventTypePaymentIntentCreated:
		event.Kind = domain.EventPaymentIntentCreated
		event.PaymentIntentID = raw.Data.Object.ID
	case domain.EventTypePaymentIntentSucceeded:
		event.Kind = domain.EventPaymentIntentSucceeded
		event.PaymentIntentID = raw.Data.Object.ID
		if raw.Data.Object.AmountReceived > 0 {
			event.Amount = raw.Data.Object.AmountReceived
		}
	case domain.EventTypePaymentIntentFailed, "payment_intent.failed":
		event.Kind = domain.EventPaymentIntentFailed
		event.PaymentIntentID = raw.Data.Object.ID
	case domain.EventTypeChargeSucceeded:
		event.Kind = domain.EventChargeSucceeded
		// Charge events cross-reference the intent they settle.
		event.PaymentIntentID = raw.Data.Object.PaymentIntent
	default:
		event.Kind = domain.EventUnhandled
	}

	return event, nil
}
