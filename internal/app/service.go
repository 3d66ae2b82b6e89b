/**
 * @description
 * This file contains the API-facing business logic for the payments-service.
 * The `Service` struct handles payment-intent creation against the upstream
 * card-payment provider and read access to records and balances. Webhook-driven
 * mutations live in the Reconciler.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/stripeclient: For the upstream provider API.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/transfa/payments-service/internal/domain"
	"github.com/transfa/payments-service/internal/store"
	"github.com/transfa/payments-service/pkg/stripeclient"
)

var (
	ErrInvalidAmount       = errors.New("amount must be a positive integer in minor units")
	ErrProviderUnavailable = errors.New("payment provider request failed")
)

// PaymentIntentCreator is the slice of the provider client the service needs.
// Declared here so tests can substitute a fake provider.
type PaymentIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*stripeclient.PaymentIntent, error)
}

// Service provides the core business logic for payment-intent creation and reads.
type Service struct {
	repo            store.Repository
	provider        PaymentIntentCreator
	defaultCurrency string
}

// NewService creates a new payments service instance.
func NewService(repo store.Repository, provider PaymentIntentCreator, defaultCurrency string) *Service {
	if strings.TrimSpace(defaultCurrency) == "" {
		defaultCurrency = "usd"
	}
	return &Service{
		repo:            repo,
		provider:        provider,
		defaultCurrency: defaultCurrency,
	}
}

// CreatePaymentIntent validates the request, creates the intent with the
// provider, and persists the initial pending record. Nothing is persisted when
// validation or the provider call fails.
func (s *Service) CreatePaymentIntent(ctx context.Context, req domain.CreatePaymentIntentRequest) (*domain.CreatePaymentIntentResponse, error) {
	if req.Amount == nil || *req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	intent, err := s.provider.CreatePaymentIntent(ctx, *req.Amount, currency)
	if err != nil {
		log.Printf("level=warn component=service op=create_payment_intent outcome=provider_failure amount=%d currency=%s err=%v", *req.Amount, currency, err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	record := &domain.PaymentRecord{
		ID:          intent.ID,
		Amount:      *req.Amount,
		Currency:    currency,
		Status:      domain.PaymentStatusPending,
		Beneficiary: normalizeBeneficiary(req.Beneficiary),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreatePayment(ctx, record); err != nil {
		return nil, fmt.Errorf("persist payment record %s: %w", intent.ID, err)
	}

	log.Printf("level=info component=service op=create_payment_intent outcome=created payment_intent_id=%s amount=%d currency=%s", intent.ID, *req.Amount, currency)

	return &domain.CreatePaymentIntentResponse{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          *req.Amount,
		Currency:        currency,
	}, nil
}

// GetPayment returns one payment record by its payment-intent id.
func (s *Service) GetPayment(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	return s.repo.GetPayment(ctx, id)
}

// GetBalance returns the current value of a balance accumulator; absent keys
// read as zero.
func (s *Service) GetBalance(ctx context.Context, key string) (*domain.Balance, error) {
	return s.repo.GetBalance(ctx, key)
}

func normalizeBeneficiary(beneficiary *string) *string {
	if beneficiary == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*beneficiary)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
