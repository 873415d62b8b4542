package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	paymentSourceClient  = "client"
	paymentSourceWebhook = "webhook"

	markPaidAttempts = 3
)

// PaymentService reconciles gateway payments with orders. The client confirmation and
// the webhook both end in the same idempotent state update.
type PaymentService interface {
	CreateIntent(ctx context.Context, actor Actor, orderID uuid.UUID) (*payment.Intent, error)
	ConfirmPayment(ctx context.Context, actor Actor, orderID uuid.UUID, intentID string) (*domain.Order, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

type paymentService struct {
	orderRepo repository.OrderRepository
	gateway   payment.Gateway
	currency  string
	notify    *dispatcher
	logger    *zap.Logger
}

// NewPaymentService creates a new instance of PaymentService
func NewPaymentService(
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	gateway payment.Gateway,
	notifier notification.Notifier,
	currency string,
	adminEmail string,
	logger *zap.Logger,
) PaymentService {
	if currency == "" {
		currency = "usd"
	}
	return &paymentService{
		orderRepo: orderRepo,
		gateway:   gateway,
		currency:  currency,
		notify:    newDispatcher(notifier, userRepo, adminEmail, logger),
		logger:    logger,
	}
}

// CreateIntent opens a charge for the order total. Only the owner of an unpaid order
// that is still alive can start a payment.
func (s *paymentService) CreateIntent(ctx context.Context, actor Actor, orderID uuid.UUID) (*payment.Intent, error) {
	order, err := s.ownedOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	if order.IsPaid {
		return nil, fmt.Errorf("%w: order is already paid", ErrOrderNotPayable)
	}
	if order.Status == domain.OrderStatusCancelled || order.Status == domain.OrderStatusRefunded {
		return nil, fmt.Errorf("%w: order is %s", ErrOrderNotPayable, order.Status)
	}

	intent, err := s.gateway.CreateIntent(ctx, order.Pricing.TotalPrice, s.currency, map[string]string{
		payment.MetadataOrderID:     order.ID.String(),
		payment.MetadataOrderNumber: order.OrderNumber,
		payment.MetadataUserID:      order.UserID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	if err := s.orderRepo.SetPaymentIntent(ctx, order.ID, order.Payment.Method, intent.ID); err != nil {
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}

	s.logger.Info("Payment intent created",
		zap.String("order_id", order.ID.String()),
		zap.String("intent_id", intent.ID),
		zap.String("amount", intent.Amount.StringFixed(2)),
	)
	return intent, nil
}

// ConfirmPayment checks the intent with the gateway and records the payment once it succeeded
func (s *paymentService) ConfirmPayment(ctx context.Context, actor Actor, orderID uuid.UUID, intentID string) (*domain.Order, error) {
	order, err := s.ownedOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return order, nil
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	if intent.OrderID() != order.ID.String() {
		return nil, ErrPaymentMismatch
	}
	if intent.Status != payment.IntentSucceeded {
		return nil, fmt.Errorf("%w: intent is %s", ErrPaymentNotSucceeded, intent.Status)
	}

	order, _, err = s.applyPayment(ctx, order.ID, intent.ID, paymentSourceClient)
	return order, err
}

// HandleWebhook processes a signed gateway event. Events that cannot be decoded or matched
// to an order are acknowledged and logged so the gateway does not redeliver them forever.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.gateway.ParseWebhook(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, payment.ErrMalformedEvent) {
			webhookEventsTotal.WithLabelValues("malformed").Inc()
			s.logger.Warn("Acknowledging webhook event that cannot be decoded", zap.Error(err))
			return nil
		}
		return err
	}

	webhookEventsTotal.WithLabelValues(string(event.Kind)).Inc()
	logger := s.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("intent_id", event.IntentID),
	)

	switch event.Kind {
	case payment.EventPaymentSucceeded:
		orderID, ok := s.eventOrderID(event, logger)
		if !ok {
			return nil
		}
		_, applied, err := s.applyPayment(ctx, orderID, event.IntentID, paymentSourceWebhook)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				logger.Warn("Payment succeeded for an unknown order", zap.String("order_id", orderID.String()))
				return nil
			}
			return err
		}
		if !applied {
			logger.Info("Duplicate payment notification ignored", zap.String("order_id", orderID.String()))
		}

	case payment.EventPaymentFailed:
		orderID, ok := s.eventOrderID(event, logger)
		if !ok {
			return nil
		}
		order, err := s.orderRepo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				logger.Warn("Payment failed for an unknown order", zap.String("order_id", orderID.String()))
				return nil
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		logger.Info("Payment failed", zap.String("order_id", orderID.String()), zap.String("reason", event.FailureMessage))
		data := orderData(order)
		data["reason"] = event.FailureMessage
		s.notify.toUser(ctx, order.UserID, notification.Message{
			Kind:    notification.KindPaymentFailed,
			Subject: fmt.Sprintf("Payment for order %s failed", order.OrderNumber),
			Body:    "Your payment could not be completed. The order is still open and can be paid again.",
			Data:    data,
		})

	case payment.EventDisputeCreated:
		logger.Warn("Payment dispute opened", zap.String("dispute_id", event.DisputeID), zap.String("reason", event.DisputeReason))
		s.notify.toAdmin(ctx, notification.Message{
			Kind:    notification.KindDisputeAlert,
			Subject: "Payment dispute opened",
			Body:    fmt.Sprintf("Dispute %s was opened for payment %s (%s).", event.DisputeID, event.IntentID, event.DisputeReason),
			Data: map[string]string{
				"dispute_id": event.DisputeID,
				"intent_id":  event.IntentID,
				"reason":     event.DisputeReason,
				"amount":     event.Amount.StringFixed(2),
				"currency":   event.Currency,
			},
		})

	default:
		logger.Debug("Ignoring webhook event")
	}

	return nil
}

// applyPayment marks the order paid unless it already is. The write is conditional on the
// status that was read, so a concurrent change is retried against the fresh order.
func (s *paymentService) applyPayment(ctx context.Context, orderID uuid.UUID, transactionID, source string) (*domain.Order, bool, error) {
	for attempt := 0; attempt < markPaidAttempts; attempt++ {
		order, err := s.orderRepo.FindByID(ctx, orderID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load order: %w", err)
		}

		prev := order.Status
		applied, entry := order.MarkPaid(transactionID, time.Now().UTC())
		if !applied {
			paymentsAppliedTotal.WithLabelValues(source, "duplicate").Inc()
			return order, false, nil
		}

		if err := s.orderRepo.MarkPaid(ctx, order, prev, entry); err != nil {
			if errors.Is(err, repository.ErrOrderConflict) {
				continue
			}
			return nil, false, fmt.Errorf("failed to record payment: %w", err)
		}

		paymentsAppliedTotal.WithLabelValues(source, "applied").Inc()
		if prev == domain.OrderStatusCancelled || prev == domain.OrderStatusRefunded {
			s.logger.Warn("Payment received for an order that is no longer active",
				zap.String("order_id", order.ID.String()),
				zap.String("status", string(prev)),
			)
			data := orderData(order)
			data["transaction_id"] = transactionID
			data["source"] = source
			s.notify.toAdmin(ctx, notification.Message{
				Kind:    notification.KindPaymentAlert,
				Subject: fmt.Sprintf("Payment received for %s order %s", prev, order.OrderNumber),
				Body: fmt.Sprintf("A payment of %s arrived after order %s was %s. Refund or reinstate it.",
					order.Pricing.TotalPrice.StringFixed(2), order.OrderNumber, prev),
				Data: data,
			})
		}
		s.logger.Info("Payment recorded",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", transactionID),
			zap.String("source", source),
		)

		s.notify.toUser(ctx, order.UserID, notification.Message{
			Kind:    notification.KindPaymentSuccess,
			Subject: fmt.Sprintf("Payment received for order %s", order.OrderNumber),
			Body:    fmt.Sprintf("We received your payment of %s.", order.Pricing.TotalPrice.StringFixed(2)),
			Data:    orderData(order),
		})
		return order, true, nil
	}

	return nil, false, repository.ErrOrderConflict
}

func (s *paymentService) ownedOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *paymentService) eventOrderID(event *payment.Event, logger *zap.Logger) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		logger.Warn("Webhook event carries no usable order id", zap.String("order_id", event.OrderID))
		return uuid.Nil, false
	}
	return orderID, true
}
