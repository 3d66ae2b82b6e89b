/**
 * @description
 * This file defines the Go structs that model the incoming webhook payloads from
 * the payment provider, plus the closed set of decoded event variants that the
 * reconciliation engine understands.
 *
 * @notes
 * - The wire structs capture only the fields we act on; the provider attaches
 *   many more, and unknown fields must never break decoding.
 * - Decoding into a closed variant set at the boundary keeps loosely-typed
 *   provider documents out of the reconciliation engine.
 */
package domain

// Provider event type strings as they appear on the wire.
const (
	EventTypePaymentIntentCreated   = "payment_intent.created"
	EventTypePaymentIntentSucceeded = "payment_intent.succeeded"
	EventTypePaymentIntentFailed    = "payment_intent.payment_failed"
	EventTypeChargeSucceeded        = "charge.succeeded"
)

// EventKind identifies one decoded variant.
type EventKind int

const (
	EventUnhandled EventKind = iota
	EventPaymentIntentCreated
	EventPaymentIntentSucceeded
	EventPaymentIntentFailed
	EventChargeSucceeded
)

// WebhookEvent is the top-level structure of a provider webhook payload.
type WebhookEvent struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    WebhookEventData `json:"data"`
}

// WebhookEventData wraps the resource object the event pertains to.
type WebhookEventData struct {
	Object WebhookObject `json:"object"`
}

// WebhookObject is the payment-intent or charge carried by the event. For
// charge objects, PaymentIntent holds the id of the originating intent.
type WebhookObject struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	AmountReceived int64  `json:"amount_received"`
	Currency       string `json:"currency"`
	PaymentIntent  string `json:"payment_intent"`
	Status         string `json:"status"`
}

// PaymentEvent is one decoded variant from the closed event set. Exactly one
// of these is produced per verified webhook delivery.
type PaymentEvent struct {
	Kind            EventKind
	EventID         string
	RawType         string // provider type string; meaningful for EventUnhandled
	PaymentIntentID string
	Amount          int64 // in cents
	Currency        string
}
