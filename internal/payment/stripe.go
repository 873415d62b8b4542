package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// StripeGateway implements Gateway on top of the Stripe API
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeGateway creates a gateway for the configured Stripe account
func NewStripeGateway(cfg config.PaymentConfig, logger *zap.Logger) *StripeGateway {
	return newStripeGateway(cfg, nil, logger)
}

func newStripeGateway(cfg config.PaymentConfig, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.StripeSecretKey, backends)
	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.StripeWebhookSecret,
		logger:        logger,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.logger.Error("Failed to create payment intent", zap.Error(err))
		return nil, fmt.Errorf("%w: create intent: %v", ErrGateway, err)
	}

	return toIntent(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		g.logger.Error("Failed to retrieve payment intent", zap.String("intent_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: retrieve intent: %v", ErrGateway, err)
	}

	return toIntent(pi), nil
}

// Refund returns the full captured amount of an intent
func (g *StripeGateway) Refund(ctx context.Context, intentID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx

	if _, err := g.api.Refunds.New(params); err != nil {
		g.logger.Error("Failed to refund payment intent", zap.String("intent_id", intentID), zap.Error(err))
		return fmt.Errorf("%w: refund: %v", ErrGateway, err)
	}
	return nil
}

// stripeIntentObject and stripeDisputeObject hold the fields read from event payloads
type stripeIntentObject struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeDisputeObject struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
	PaymentIntent string `json:"payment_intent"`
}

// ParseWebhook verifies the Stripe-Signature header over the raw payload and
// normalises the event
func (g *StripeGateway) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type), Kind: EventIgnored}
	if event.Data == nil {
		return out, nil
	}

	switch string(event.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var obj stripeIntentObject
		if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: payment intent %s: %v", ErrMalformedEvent, event.ID, err)
		}
		out.Kind = EventPaymentSucceeded
		if event.Type == "payment_intent.payment_failed" {
			out.Kind = EventPaymentFailed
		}
		out.IntentID = obj.ID
		out.OrderID = obj.Metadata[MetadataOrderID]
		out.Amount = FromMinorUnits(obj.Amount)
		out.Currency = obj.Currency
		if obj.LastPaymentError != nil {
			out.FailureMessage = obj.LastPaymentError.Message
		}

	case "charge.dispute.created":
		var obj stripeDisputeObject
		if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: dispute %s: %v", ErrMalformedEvent, event.ID, err)
		}
		out.Kind = EventDisputeCreated
		out.DisputeID = obj.ID
		out.DisputeReason = obj.Reason
		out.IntentID = obj.PaymentIntent
		out.Amount = FromMinorUnits(obj.Amount)
		out.Currency = obj.Currency
	}

	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		Amount:       FromMinorUnits(pi.Amount),
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
