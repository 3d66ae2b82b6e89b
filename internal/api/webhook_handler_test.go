package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/transfa/payments-service/internal/app"
	"github.com/transfa/payments-service/internal/domain"
	"github.com/transfa/payments-service/internal/store"
	"github.com/transfa/payments-service/internal/webhook"
)

const testWebhookSecret = "whsec_handler_test"

// handlerRepoStub is an in-memory Repository backing end-to-end handler tests:
// real verifier, real decoder, real reconciler, fake storage.
type handlerRepoStub struct {
	records  map[string]*domain.PaymentRecord
	balances map[string]int64
	credits  map[string]bool

	failCredit bool
}

func newHandlerRepoStub() *handlerRepoStub {
	return &handlerRepoStub{
		records:  make(map[string]*domain.PaymentRecord),
		balances: make(map[string]int64),
		credits:  make(map[string]bool),
	}
}

func (s *handlerRepoStub) CreatePayment(ctx context.Context, record *domain.PaymentRecord) error {
	if _, ok := s.records[record.ID]; ok {
		return store.ErrPaymentExists
	}
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *handlerRepoStub) GetPayment(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	record, ok := s.records[id]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *handlerRepoStub) UpdatePaymentStatus(ctx context.Context, id, status string, completedAt time.Time) error {
	record, ok := s.records[id]
	if !ok {
		return store.ErrPaymentNotFound
	}
	if record.Terminal() && record.Status != status {
		return store.ErrInvalidTransition
	}
	record.Status = status
	if record.CompletedAt == nil {
		record.CompletedAt = &completedAt
	}
	return nil
}

func (s *handlerRepoStub) CreditBalance(ctx context.Context, key string, amount int64, paymentID string) (bool, error) {
	if s.failCredit {
		return false, errors.New("simulated database outage")
	}
	creditKey := fmt.Sprintf("%s|%s", key, paymentID)
	if s.credits[creditKey] {
		return false, nil
	}
	s.credits[creditKey] = true
	s.balances[key] += amount
	return true, nil
}

func (s *handlerRepoStub) GetBalance(ctx context.Context, key string) (*domain.Balance, error) {
	return &domain.Balance{Key: key, Balance: s.balances[key]}, nil
}

// replayGuardStub is an in-memory app.ReplayGuard.
type replayGuardStub struct {
	seen    map[string]bool
	seenErr error
}

func newReplayGuardStub() *replayGuardStub {
	return &replayGuardStub{seen: make(map[string]bool)}
}

func (s *replayGuardStub) Seen(ctx context.Context, eventID string) (bool, error) {
	if s.seenErr != nil {
		return false, s.seenErr
	}
	return s.seen[eventID], nil
}

func (s *replayGuardStub) MarkSeen(ctx context.Context, eventID string) error {
	s.seen[eventID] = true
	return nil
}

func newTestWebhookHandler(repo store.Repository) *WebhookHandler {
	return newTestWebhookHandlerWithGuard(repo, nil)
}

func newTestWebhookHandlerWithGuard(repo store.Repository, guard app.ReplayGuard) *WebhookHandler {
	verifier := webhook.NewVerifier(testWebhookSecret, webhook.DefaultTolerance)
	reconciler := app.NewReconciler(repo, nil)
	return NewWebhookHandler(verifier, reconciler, guard)
}

func deliverWebhook(t *testing.T, handler *WebhookHandler, body []byte, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler_ValidChargeSettlesPayment(t *testing.T) {
	repo := newHandlerRepoStub()
	repo.records["pi_1"] = &domain.PaymentRecord{ID: "pi_1", Amount: 2500, Currency: "usd", Status: domain.PaymentStatusPending}
	handler := newTestWebhookHandler(repo)

	body := []byte(`{"id":"evt_1","type":"charge.succeeded","data":{"object":{"id":"ch_1","amount":2500,"currency":"usd","payment_intent":"pi_1"}}}`)
	rec := deliverWebhook(t, handler, body, webhook.SignatureHeader(testWebhookSecret, time.Now(), body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.balances[domain.GlobalBalanceKey] != 2500 {
		t.Fatalf("expected global balance 2500, got %d", repo.balances[domain.GlobalBalanceKey])
	}
	if repo.records["pi_1"].Status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected payment succeeded, got %q", repo.records["pi_1"].Status)
	}
}

func TestWebhookHandler_TamperedBodyIsRejectedWithoutSideEffects(t *testing.T) {
	repo := newHandlerRepoStub()
	repo.records["pi_2"] = &domain.PaymentRecord{ID: "pi_2", Amount: 1000, Currency: "usd", Status: domain.PaymentStatusPending}
	handler := newTestWebhookHandler(repo)

	signed := []byte(`{"id":"evt_2","type":"charge.succeeded","data":{"object":{"payment_intent":"pi_2","amount":1000}}}`)
	header := webhook.SignatureHeader(testWebhookSecret, time.Now(), signed)
	tampered := []byte(`{"id":"evt_2","type":"charge.succeeded","data":{"object":{"payment_intent":"pi_2","amount":999999}}}`)

	rec := deliverWebhook(t, handler, tampered, header)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for tampered body, got %d", rec.Code)
	}
	if repo.balances[domain.GlobalBalanceKey] != 0 {
		t.Fatalf("expected no credit for tampered delivery, got %d", repo.balances[domain.GlobalBalanceKey])
	}
	if repo.records["pi_2"].Status != domain.PaymentStatusPending {
		t.Fatalf("expected payment untouched, got %q", repo.records["pi_2"].Status)
	}
}

func TestWebhookHandler_MissingSignatureHeaderIsBadRequest(t *testing.T) {
	handler := newTestWebhookHandler(newHandlerRepoStub())

	body := []byte(`{"id":"evt_3","type":"charge.succeeded","data":{"object":{"payment_intent":"pi_3"}}}`)
	rec := deliverWebhook(t, handler, body, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature header, got %d", rec.Code)
	}
}

func TestWebhookHandler_UnknownEventTypeIsAcknowledged(t *testing.T) {
	repo := newHandlerRepoStub()
	handler := newTestWebhookHandler(repo)

	body := []byte(`{"id":"evt_4","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	rec := deliverWebhook(t, handler, body, webhook.SignatureHeader(testWebhookSecret, time.Now(), body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unhandled event type, got %d", rec.Code)
	}
	if len(repo.records) != 0 {
		t.Fatal("expected no repository activity for unhandled event")
	}
}

func TestWebhookHandler_StoreFailureReturns500ForRedelivery(t *testing.T) {
	repo := newHandlerRepoStub()
	repo.records["pi_5"] = &domain.PaymentRecord{ID: "pi_5", Amount: 1000, Currency: "usd", Status: domain.PaymentStatusPending}
	repo.failCredit = true
	handler := newTestWebhookHandler(repo)

	body := []byte(`{"id":"evt_5","type":"charge.succeeded","data":{"object":{"payment_intent":"pi_5","amount":1000}}}`)
	rec := deliverWebhook(t, handler, body, webhook.SignatureHeader(testWebhookSecret, time.Now(), body))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the provider redelivers, got %d", rec.Code)
	}
}

func TestWebhookHandler_ChargeForFailedPaymentIsAcknowledged(t *testing.T) {
	repo := newHandlerRepoStub()
	repo.records["pi_6"] = &domain.PaymentRecord{ID: "pi_6", Amount: 1000, Currency: "usd", Status: domain.PaymentStatusFailed}
	handler := newTestWebhookHandler(repo)

	body := []byte(`{"id":"evt_6","type":"charge.succeeded","data":{"object":{"payment_intent":"pi_6","amount":1000}}}`)
	rec := deliverWebhook(t, handler, body, webhook.SignatureHeader(testWebhookSecret, time.Now(), body))

	// Permanently unprocessable: redelivery can never succeed, so acknowledge.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 acknowledgement, got %d", rec.Code)
	}
	if repo.balances[domain.GlobalBalanceKey] != 0 {
		t.Fatalf("expected no credit, got %d", repo.balances[domain.GlobalBalanceKey])
	}
}

func TestWebhookHandler_RetryableFailureLeavesEventEligibleForRedelivery(t *testing.T) {
	repo := newHandlerRepoStub()
	repo.records["pi_r1"] = &domain.PaymentRecord{ID: "pi_r1", Amount: 1500, Currency: "usd", Status: domain.PaymentStatusPending}
	guard := newReplayGuardStub()
	handler := newTestWebhookHandlerWithGuard(repo, guard)

	body := []byte(`{"id":"evt_r1","type":"charge.succeeded","data":{"object":{"payment_intent":"pi_r1","amount":1500}}}`)

	// First delivery hits a store outage and must not record the event id.
	repo.failCredit = true
	rec := deliverWebhook(t, handler, body, webhook.SignatureHeader(testWebhookSecret, time.Now(), body))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 during outage, got %d", rec.Code)
	}
	if guard.seen["evt_r1"] {
		t.Fatal("expected failed delivery to stay unrecorded with the replay guard")
	}

	// Redelivery after the outage must be processed, not shed as a duplicate.
	repo.failCredit = false
	rec = deliverWebhook(t, handler, body, webhook.SignatureHeader(testWebhookSecret, time.Now(), body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "Duplicate") {
		t.Fatalf("expected redelivery to be processed, got %q", rec.Body.String())
	}
	if repo.balances[domain.GlobalBalanceKey] != 1500 {
		t.Fatalf("expected redelivery to apply the credit, got %d", repo.balances[domain.GlobalBalanceKey])
	}
	if repo.records["pi_r1"].Status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected payment succeeded after redelivery, got %q", repo.records["pi_r1"].Status)
	}
}

func TestWebhookHandler_ProcessedEventIsShedAsDuplicate(t *testing.T) {
	repo := newHandlerRepoStub()
	repo.records["pi_r2"] = &domain.PaymentRecord{ID: "pi_r2", Amount: 800, Currency: "usd", Status: domain.PaymentStatusPending}
	guard := newReplayGuardStub()
	handler := newTestWebhookHandlerWithGuard(repo, guard)

	body := []byte(`{"id":"evt_r2","type":"charge.succeeded","data":{"object":{"payment_intent":"pi_r2","amount":800}}}`)

	rec := deliverWebhook(t, handler, body, webhook.SignatureHeader(testWebhookSecret, time.Now(), body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on first delivery, got %d", rec.Code)
	}
	if !guard.seen["evt_r2"] {
		t.Fatal("expected processed delivery to be recorded with the replay guard")
	}

	rec = deliverWebhook(t, handler, body, webhook.SignatureHeader(testWebhookSecret, time.Now(), body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Duplicate") {
		t.Fatalf("expected duplicate to be shed before processing, got %q", rec.Body.String())
	}
	if repo.balances[domain.GlobalBalanceKey] != 800 {
		t.Fatalf("expected a single credit of 800, got %d", repo.balances[domain.GlobalBalanceKey])
	}
}

func TestWebhookHandler_GuardFailureDoesNotBlockProcessing(t *testing.T) {
	repo := newHandlerRepoStub()
	repo.records["pi_r3"] = &domain.PaymentRecord{ID: "pi_r3", Amount: 600, Currency: "usd", Status: domain.PaymentStatusPending}
	guard := newReplayGuardStub()
	guard.seenErr = errors.New("redis unavailable")
	handler := newTestWebhookHandlerWithGuard(repo, guard)

	body := []byte(`{"id":"evt_r3","type":"charge.succeeded","data":{"object":{"payment_intent":"pi_r3","amount":600}}}`)
	rec := deliverWebhook(t, handler, body, webhook.SignatureHeader(testWebhookSecret, time.Now(), body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected delivery to be processed despite guard failure, got %d", rec.Code)
	}
	if repo.balances[domain.GlobalBalanceKey] != 600 {
		t.Fatalf("expected credit applied, got %d", repo.balances[domain.GlobalBalanceKey])
	}
}

func TestWebhookHandler_StaleSignatureIsRejected(t *testing.T) {
	handler := newTestWebhookHandler(newHandlerRepoStub())

	body := []byte(`{"id":"evt_7","type":"charge.succeeded","data":{"object":{"payment_intent":"pi_7"}}}`)
	header := webhook.SignatureHeader(testWebhookSecret, time.Now().Add(-time.Hour), body)

	rec := deliverWebhook(t, handler, body, header)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for stale signature, got %d", rec.Code)
	}
}
