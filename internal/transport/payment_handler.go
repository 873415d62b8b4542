package transport

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// CreateIntentRequest starts a charge for an order
type CreateIntentRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

// ConfirmPaymentRequest reports a client-side confirmed charge
type ConfirmPaymentRequest struct {
	OrderID         string `json:"order_id" validate:"required,uuid"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

// PaymentHandler serves payment intents and the processor webhook
type PaymentHandler struct {
	payments service.PaymentService
	logger   *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// CreateIntent opens a payment intent for the order total
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	var req CreateIntentRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	intent, err := h.payments.CreateIntent(r.Context(), actor, uuid.MustParse(req.OrderID))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "create payment intent")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, intent)
}

// ConfirmPayment marks the order paid once the processor reports success
func (h *PaymentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	var req ConfirmPaymentRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	order, err := h.payments.ConfirmPayment(r.Context(), actor, uuid.MustParse(req.OrderID), req.PaymentIntentID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "confirm payment")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// Webhook receives signed processor events. The raw body is needed for the signature check.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			h.logger.Warn("Rejected webhook with invalid signature")
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		// Non-2xx makes the processor retry delivery
		respondWithServiceError(w, h.logger, err, "process webhook")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
