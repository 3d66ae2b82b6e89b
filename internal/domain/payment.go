/**
 * @description
 * This file defines the core domain models for the payments-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (cents), which avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"time"
)

// Payment status values. Transitions are forward-only: a record leaves
// "pending" exactly once and never moves between terminal states.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// GlobalBalanceKey is the accumulator credited for every successful charge,
// regardless of beneficiary.
const GlobalBalanceKey = "global"

// PaymentRecord is the central record for a card payment. It maps directly to
// the `payments` table and is keyed by the provider-assigned payment-intent id.
type PaymentRecord struct {
	ID          string     `json:"id"`
	Amount      int64      `json:"amount"`   // in cents
	Currency    string     `json:"currency"` // ISO code, lowercase
	Status      string     `json:"status"`
	Beneficiary *string    `json:"beneficiary,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the record has reached a final status.
func (p *PaymentRecord) Terminal() bool {
	return p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusFailed
}

// Balance represents one named accumulator in the ledger: the "global" key or
// a beneficiary identifier. Balances are only ever credited by this service.
type Balance struct {
	Key       string    `json:"key"`
	Balance   int64     `json:"balance"` // in cents
	UpdatedAt time.Time `json:"updated_at"`
}

// CreatePaymentIntentRequest is the DTO for incoming payment-intent creation
// API requests. Amount is a pointer so that a missing field is distinguishable
// from an explicit zero during validation.
type CreatePaymentIntentRequest struct {
	Amount      *int64  `json:"amount"` // in cents
	Currency    string  `json:"currency"`
	Beneficiary *string `json:"beneficiary,omitempty"`
}

// CreatePaymentIntentResponse is returned to the client after the upstream
// provider has accepted the intent. The client secret is what the frontend
// hands to the provider's card widget.
type CreatePaymentIntentResponse struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// PaymentOutcomeEvent is the message payload published to RabbitMQ after the
// reconciler applies a terminal transition or a ledger credit.
type PaymentOutcomeEvent struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	Beneficiary     *string   `json:"beneficiary,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
