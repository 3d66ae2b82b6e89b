package webhook

import (
	"errors"
	"testing"

	"github.com/transfa/payments-service/internal/domain"
)

func TestDecode_PaymentIntentVariants(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantKind domain.EventKind
		wantID   string
	}{
		{
			name:     "created",
			body:     `{"id":"evt_1","type":"payment_intent.created","data":{"object":{"id":"pi_1","amount":2500,"currency":"usd"}}}`,
			wantKind: domain.EventPaymentIntentCreated,
			wantID:   "pi_1",
		},
		{
			name:     "succeeded",
			body:     `{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{"id":"pi_2","amount":2500}}}`,
			wantKind: domain.EventPaymentIntentSucceeded,
			wantID:   "pi_2",
		},
		{
			name:     "payment_failed",
			body:     `{"id":"evt_3","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_3"}}}`,
			wantKind: domain.EventPaymentIntentFailed,
			wantID:   "pi_3",
		},
		{
			name:     "legacy failed alias",
			body:     `{"id":"evt_4","type":"payment_intent.failed","data":{"object":{"id":"pi_4"}}}`,
			wantKind: domain.EventPaymentIntentFailed,
			wantID:   "pi_4",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := Decode([]byte(tc.body))
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if event.Kind != tc.wantKind {
				t.Fatalf("expected kind %d, got %d", tc.wantKind, event.Kind)
			}
			if event.PaymentIntentID != tc.wantID {
				t.Fatalf("expected payment intent id %q, got %q", tc.wantID, event.PaymentIntentID)
			}
		})
	}
}

func TestDecode_ChargeSucceededCrossReferencesIntent(t *testing.T) {
	body := `{"id":"evt_5","type":"charge.succeeded","data":{"object":{"id":"ch_1","amount":4200,"currency":"usd","payment_intent":"pi_5"}}}`

	event, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if event.Kind != domain.EventChargeSucceeded {
		t.Fatalf("expected charge.succeeded variant, got %d", event.Kind)
	}
	// The charge object's own id is ch_1; the reconciler needs the intent id.
	if event.PaymentIntentID != "pi_5" {
		t.Fatalf("expected cross-referenced intent id pi_5, got %q", event.PaymentIntentID)
	}
	if event.Amount != 4200 {
		t.Fatalf("expected amount 4200, got %d", event.Amount)
	}
}

func TestDecode_SucceededPrefersAmountReceived(t *testing.T) {
	body := `{"id":"evt_6","type":"payment_intent.succeeded","data":{"object":{"id":"pi_6","amount":5000,"amount_received":4800}}}`

	event, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if event.Amount != 4800 {
		t.Fatalf("expected amount_received to win, got %d", event.Amount)
	}
}

func TestDecode_UnknownTypeIsUnhandledNotError(t *testing.T) {
	body := `{"id":"evt_7","type":"customer.subscription.updated","data":{"object":{"id":"sub_1"}}}`

	event, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("expected unknown event type to decode, got %v", err)
	}
	if event.Kind != domain.EventUnhandled {
		t.Fatalf("expected unhandled variant, got %d", event.Kind)
	}
	if event.RawType != "customer.subscription.updated" {
		t.Fatalf("expected raw type preserved, got %q", event.RawType)
	}
}

func TestDecode_MissingTypeIsInvalidPayload(t *testing.T) {
	if _, err := Decode([]byte(`{"id":"evt_8"}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for missing type, got %v", err)
	}
}

func TestDecode_MalformedJSONIsInvalidPayload(t *testing.T) {
	if _, err := Decode([]byte(`{"id":`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for malformed JSON, got %v", err)
	}
}

func TestDecode_ExtraFieldsAreIgnored(t *testing.T) {
	body := `{"id":"evt_9","type":"charge.succeeded","api_version":"2023-10-16","livemode":false,"pending_webhooks":1,"data":{"object":{"id":"ch_2","payment_intent":"pi_9","amount":100,"receipt_url":"https://example.test/r/1"}}}`

	event, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("expected unknown fields to be ignored, got %v", err)
	}
	if event.PaymentIntentID != "pi_9" {
		t.Fatalf("expected intent id pi_9, got %q", event.PaymentIntentID)
	}
}
