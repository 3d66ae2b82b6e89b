/**
 * @description
 * This file contains the HTTP handlers for the payments-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/transfa/payments-service/internal/app"
	"github.com/transfa/payments-service/internal/domain"
	"github.com/transfa/payments-service/internal/store"
)

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service *app.Service
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service) *PaymentHandlers {
	return &PaymentHandlers{service: service}
}

// CreatePaymentIntentHandler handles requests to create a new payment intent
// with the upstream provider and persist the initial pending record.
func (h *PaymentHandlers) CreatePaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_payment_intent outcome=reject reason=invalid_json err=%v", err)
		paymentIntentsCreatedTotal.WithLabelValues("invalid_request").Inc()
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.CreatePaymentIntent(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			log.Printf("level=warn component=api endpoint=create_payment_intent outcome=reject reason=invalid_amount")
			paymentIntentsCreatedTotal.WithLabelValues("invalid_request").Inc()
			h.writeError(w, http.StatusBadRequest, "Amount is required and must be a positive integer")
		case errors.Is(err, app.ErrProviderUnavailable):
			paymentIntentsCreatedTotal.WithLabelValues("provider_failure").Inc()
			h.writeError(w, http.StatusBadGateway, "Payment provider request failed")
		case errors.Is(err, store.ErrPaymentExists):
			paymentIntentsCreatedTotal.WithLabelValues("conflict").Inc()
			h.writeError(w, http.StatusConflict, "Payment intent already exists")
		default:
			log.Printf("level=error component=api endpoint=create_payment_intent outcome=failed err=%v", err)
			paymentIntentsCreatedTotal.WithLabelValues("error").Inc()
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	paymentIntentsCreatedTotal.WithLabelValues("created").Inc()
	h.writeJSON(w, http.StatusCreated, resp)
}

// GetPaymentHandler returns one payment record by payment-intent id.
func (h *PaymentHandlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			h.writeError(w, http.StatusNotFound, "Payment not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_payment outcome=failed payment_intent_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// GetBalanceHandler returns the current value of a balance accumulator. An
// accumulator that has never been credited reads as zero.
func (h *PaymentHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	balance, err := h.service.GetBalance(r.Context(), key)
	if err != nil {
		log.Printf("level=error component=api endpoint=get_balance outcome=failed key=%s err=%v", key, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
