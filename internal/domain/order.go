package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when an order cannot move to the requested status
var ErrInvalidTransition = errors.New("invalid order status transition")

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {OrderStatusRefunded},
}

// ParseOrderStatus validates a status name
func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return status, true
	}
	return "", false
}

// CanTransition reports whether from -> to is an edge of the lifecycle
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(orderTransitions[from], to)
}

// IsTerminal reports whether no further fulfilment happens in this status
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// ShippingAddress is copied onto the order at placement
type ShippingAddress struct {
	FullName   string `json:"full_name" validate:"required"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone"`
}

// PaymentInfo records how and when an order was paid
type PaymentInfo struct {
	Method        string     `json:"method" db:"payment_method"`
	IntentID      string     `json:"intent_id,omitempty" db:"payment_intent_id"`
	TransactionID string     `json:"transaction_id,omitempty" db:"transaction_id"`
	PaidAt        *time.Time `json:"paid_at,omitempty" db:"paid_at"`
}

// OrderItem is an immutable snapshot of a purchased line
type OrderItem struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	SKU       string          `json:"sku" db:"sku"`
	ImageURL  string          `json:"image_url" db:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Quantity  int             `json:"quantity" db:"quantity"`
	LineTotal decimal.Decimal `json:"line_total" db:"line_total"`
}

// StatusHistoryEntry is one append-only record of a status change
type StatusHistoryEntry struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	Status    OrderStatus `json:"status" db:"status"`
	Note      string      `json:"note,omitempty" db:"note"`
	ChangedBy *uuid.UUID  `json:"changed_by,omitempty" db:"changed_by"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// Order is the durable record of a placed purchase
type Order struct {
	ID                uuid.UUID            `json:"id" db:"id"`
	OrderNumber       string               `json:"order_number" db:"order_number"`
	UserID            uuid.UUID            `json:"user_id" db:"user_id"`
	Items             []OrderItem          `json:"items"`
	ShippingAddress   ShippingAddress      `json:"shipping_address" db:"shipping_address"`
	Payment           PaymentInfo          `json:"payment"`
	Pricing           PriceBreakdown       `json:"pricing"`
	Status            OrderStatus          `json:"status" db:"status"`
	IsPaid            bool                 `json:"is_paid" db:"is_paid"`
	IsDelivered       bool                 `json:"is_delivered" db:"is_delivered"`
	DeliveredAt       *time.Time           `json:"delivered_at,omitempty" db:"delivered_at"`
	CancelledAt       *time.Time           `json:"cancelled_at,omitempty" db:"cancelled_at"`
	TrackingNumber    string               `json:"tracking_number,omitempty" db:"tracking_number"`
	EstimatedDelivery *time.Time           `json:"estimated_delivery,omitempty" db:"estimated_delivery"`
	Notes             string               `json:"notes,omitempty" db:"notes"`
	StatusHistory     []StatusHistoryEntry `json:"status_history"`
	CreatedAt         time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at" db:"updated_at"`
}

// NewOrderNumber generates the human-readable order number
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// Cancellable reports whether the owning account may still cancel the order
func (o *Order) Cancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// ApplyStatus moves the order to next and appends one history entry. Moving to the
// current status is not a transition: nothing is appended and the entry is nil.
func (o *Order) ApplyStatus(next OrderStatus, note string, changedBy *uuid.UUID, now time.Time) (*StatusHistoryEntry, error) {
	if next == o.Status {
		return nil, nil
	}
	if !CanTransition(o.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}

	o.Status = next
	o.UpdatedAt = now

	switch next {
	case OrderStatusDelivered:
		if !o.IsDelivered {
			o.IsDelivered = true
			o.DeliveredAt = &now
		}
	case OrderStatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
	}

	entry := StatusHistoryEntry{
		ID:        uuid.New(),
		Status:    next,
		Note:      note,
		ChangedBy: changedBy,
		CreatedAt: now,
	}
	o.StatusHistory = append(o.StatusHistory, entry)
	return &entry, nil
}

// MarkPaid records a successful payment. It is a no-op returning false when the order
// is already paid, so repeated gateway notifications converge on the same state. The
// returned entry is non-nil when payment also advanced a pending order to confirmed.
func (o *Order) MarkPaid(transactionID string, now time.Time) (bool, *StatusHistoryEntry) {
	if o.IsPaid {
		return false, nil
	}
	o.IsPaid = true
	o.Payment.TransactionID = transactionID
	o.Payment.PaidAt = &now
	o.UpdatedAt = now

	if o.Status != OrderStatusPending {
		return true, nil
	}
	entry, _ := o.ApplyStatus(OrderStatusConfirmed, "Payment received", nil, now)
	return true, entry
}
