// Package payment adapts the external payment processor to the order workflow.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrGateway          = errors.New("payment gateway error")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// IntentStatus mirrors the processor's view of a charge attempt
type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentCanceled              IntentStatus = "canceled"
)

// Intent is an in-progress charge attempt
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Status       IntentStatus      `json:"status"`
	Amount       decimal.Decimal   `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"-"`
}

// OrderID returns the order identifier the intent was created for
func (i *Intent) OrderID() string {
	return i.Metadata[MetadataOrderID]
}

// Metadata keys written on every intent
const (
	MetadataOrderID     = "order_id"
	MetadataOrderNumber = "order_number"
	MetadataUserID      = "user_id"
)

// EventKind is the normalised type of a webhook event
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment.succeeded"
	EventPaymentFailed    EventKind = "payment.failed"
	EventDisputeCreated   EventKind = "dispute.created"
	EventIgnored          EventKind = "ignored"
)

// Event is a verified webhook notification
type Event struct {
	ID             string
	Kind           EventKind
	Type           string
	IntentID       string
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	FailureMessage string
	DisputeID      string
	DisputeReason  string
}

// Gateway is the payment processor as seen by the services
type Gateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	Refund(ctx context.Context, intentID string) error
	ParseWebhook(payload []byte, signatureHeader string) (*Event, error)
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a two-decimal amount into cents
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts cents into a two-decimal amount
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
