package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/notification"
	"storefront/internal/payment"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidEvent(order *domain.Order, intentID string) payment.Event {
	return payment.Event{
		ID:       "evt_" + uuid.NewString()[:8],
		Kind:     payment.EventPaymentSucceeded,
		Type:     "payment_intent.succeeded",
		IntentID: intentID,
		OrderID:  order.ID.String(),
		Amount:   order.Pricing.TotalPrice,
		Currency: "usd",
	}
}

func TestPaymentService_CreateIntentForOwnUnpaidOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("12.50", 5)
	order := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 2})

	_, err := env.payments.CreateIntent(ctx, env.customer(), order.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	intent, err := env.payments.CreateIntent(ctx, actor, order.ID)
	require.NoError(t, err)
	assert.True(t, intent.Amount.Equal(order.Pricing.TotalPrice))
	assert.Equal(t, "usd", intent.Currency)
	assert.Equal(t, order.ID.String(), intent.OrderID())
	assert.Equal(t, order.OrderNumber, intent.Metadata[payment.MetadataOrderNumber])
	assert.Equal(t, intent.ID, env.storedOrder(order.ID).Payment.IntentID)

	env.gateway.createErr = errors.New("processor unavailable")
	_, err = env.payments.CreateIntent(ctx, actor, order.ID)
	assert.Error(t, err)
}

func TestPaymentService_CreateIntentRejectsClosedOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("3.00", 5)

	paid := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})
	intent, err := env.payments.CreateIntent(ctx, actor, paid.ID)
	require.NoError(t, err)
	env.gateway.succeed(intent.ID)
	_, err = env.payments.ConfirmPayment(ctx, actor, paid.ID, intent.ID)
	require.NoError(t, err)

	_, err = env.payments.CreateIntent(ctx, actor, paid.ID)
	assert.ErrorIs(t, err, ErrOrderNotPayable)

	cancelled := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})
	_, err = env.orders.CancelOrder(ctx, actor, cancelled.ID, "")
	require.NoError(t, err)

	_, err = env.payments.CreateIntent(ctx, actor, cancelled.ID)
	assert.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestPaymentService_ConfirmRequiresSucceededMatchingIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("8.00", 5)
	order := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})
	other := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})

	intent, err := env.payments.CreateIntent(ctx, actor, order.ID)
	require.NoError(t, err)
	otherIntent, err := env.payments.CreateIntent(ctx, actor, other.ID)
	require.NoError(t, err)

	_, err = env.payments.ConfirmPayment(ctx, actor, order.ID, intent.ID)
	assert.ErrorIs(t, err, ErrPaymentNotSucceeded)
	assert.False(t, env.storedOrder(order.ID).IsPaid)

	env.gateway.succeed(otherIntent.ID)
	_, err = env.payments.ConfirmPayment(ctx, actor, order.ID, otherIntent.ID)
	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.False(t, env.storedOrder(order.ID).IsPaid)

	env.gateway.succeed(intent.ID)
	confirmed, err := env.payments.ConfirmPayment(ctx, actor, order.ID, intent.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.IsPaid)
	assert.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)
	assert.Equal(t, intent.ID, confirmed.Payment.TransactionID)
	require.NotNil(t, confirmed.Payment.PaidAt)

	stored := env.storedOrder(order.ID)
	require.Len(t, stored.StatusHistory, 1)
	assert.Equal(t, domain.OrderStatusConfirmed, stored.StatusHistory[0].Status)
	assert.Nil(t, stored.StatusHistory[0].ChangedBy)

	again, err := env.payments.ConfirmPayment(ctx, actor, order.ID, intent.ID)
	require.NoError(t, err)
	assert.True(t, again.Payment.PaidAt.Equal(*confirmed.Payment.PaidAt))
	assert.Len(t, env.notifier.ofKind(notification.KindPaymentSuccess), 1)
}

// Feature: storefront, Property: payment notifications are idempotent
func TestProperty_DuplicatePaymentNotificationsConverge(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("any mix of repeated webhooks and confirmations pays the order once", prop.ForAll(
		func(sources []bool) bool {
			env := newTestEnv(t)
			ctx := context.Background()
			actor := env.customer()
			product := env.newProduct("9.99", 50)
			order := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})

			intent, err := env.payments.CreateIntent(ctx, actor, order.ID)
			if err != nil {
				return false
			}
			env.gateway.succeed(intent.ID)
			payload := webhookPayload(t, paidEvent(order, intent.ID))

			for _, viaWebhook := range sources {
				if viaWebhook {
					err = env.payments.HandleWebhook(ctx, payload, validSignature)
				} else {
					_, err = env.payments.ConfirmPayment(ctx, actor, order.ID, intent.ID)
				}
				if err != nil {
					t.Logf("FAIL: %v", err)
					return false
				}
			}

			stored := env.storedOrder(order.ID)
			return stored.IsPaid &&
				stored.Status == domain.OrderStatusConfirmed &&
				len(stored.StatusHistory) == 1 &&
				len(env.notifier.ofKind(notification.KindPaymentSuccess)) == 1
		},
		gen.SliceOfN(4, gen.Bool()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestPaymentService_WebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("9.99", 5)
	order := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})

	payload := webhookPayload(t, paidEvent(order, "pi_forged"))
	err := env.payments.HandleWebhook(ctx, payload, "t=1,v1=forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.False(t, env.storedOrder(order.ID).IsPaid)
}

func TestPaymentService_WebhookForUnknownOrderIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unknown := paidEvent(&domain.Order{ID: uuid.New()}, "pi_unknown")
	assert.NoError(t, env.payments.HandleWebhook(ctx, webhookPayload(t, unknown), validSignature))

	garbled := unknown
	garbled.OrderID = "not-a-uuid"
	assert.NoError(t, env.payments.HandleWebhook(ctx, webhookPayload(t, garbled), validSignature))

	ignored := payment.Event{ID: "evt_1", Kind: payment.EventIgnored, Type: "charge.updated"}
	assert.NoError(t, env.payments.HandleWebhook(ctx, webhookPayload(t, ignored), validSignature))
	assert.Empty(t, env.notifier.messages)
}

func TestPaymentService_FailedPaymentNotifiesWithoutMutating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("9.99", 5)
	order := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})
	before := env.storedOrder(order.ID)

	event := payment.Event{
		ID:             "evt_failed",
		Kind:           payment.EventPaymentFailed,
		Type:           "payment_intent.payment_failed",
		IntentID:       "pi_declined",
		OrderID:        order.ID.String(),
		FailureMessage: "card declined",
	}
	require.NoError(t, env.payments.HandleWebhook(ctx, webhookPayload(t, event), validSignature))

	after := env.storedOrder(order.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.False(t, after.IsPaid)
	assert.Len(t, after.StatusHistory, len(before.StatusHistory))

	failed := env.notifier.ofKind(notification.KindPaymentFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "card declined", failed[0].Data["reason"])
}

func TestPaymentService_DisputeAlertsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("9.99", 5)
	order := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})
	before := env.storedOrder(order.ID)

	event := payment.Event{
		ID:            "evt_dispute",
		Kind:          payment.EventDisputeCreated,
		Type:          "charge.dispute.created",
		IntentID:      "pi_disputed",
		DisputeID:     "dp_123",
		DisputeReason: "fraudulent",
		Currency:      "usd",
	}
	require.NoError(t, env.payments.HandleWebhook(ctx, webhookPayload(t, event), validSignature))

	alerts := env.notifier.ofKind(notification.KindDisputeAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "ops@example.com", alerts[0].Recipient)
	assert.Equal(t, "dp_123", alerts[0].Data["dispute_id"])
	assert.Equal(t, before.Status, env.storedOrder(order.ID).Status)
}

func TestPaymentService_PaymentAfterCancellationIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("9.99", 5)
	order := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})

	intent, err := env.payments.CreateIntent(ctx, actor, order.ID)
	require.NoError(t, err)
	_, err = env.orders.CancelOrder(ctx, actor, order.ID, "")
	require.NoError(t, err)

	env.gateway.succeed(intent.ID)
	require.NoError(t, env.payments.HandleWebhook(ctx, webhookPayload(t, paidEvent(order, intent.ID)), validSignature))

	stored := env.storedOrder(order.ID)
	assert.True(t, stored.IsPaid)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status, "a late payment never revives a cancelled order")

	alerts := env.notifier.ofKind(notification.KindPaymentAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "ops@example.com", alerts[0].Recipient)
	assert.Equal(t, intent.ID, alerts[0].Data["transaction_id"])
	assert.Equal(t, order.OrderNumber, alerts[0].Data["order_number"])
}

func TestPaymentService_PaymentOnActiveOrderDoesNotAlertAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("9.99", 5)
	order := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})

	intent, err := env.payments.CreateIntent(ctx, actor, order.ID)
	require.NoError(t, err)
	env.gateway.succeed(intent.ID)
	require.NoError(t, env.payments.HandleWebhook(ctx, webhookPayload(t, paidEvent(order, intent.ID)), validSignature))

	assert.True(t, env.storedOrder(order.ID).IsPaid)
	assert.Empty(t, env.notifier.ofKind(notification.KindPaymentAlert))
}

func TestPaymentService_UndecodableSignedEventIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("9.99", 5)
	order := env.placeOrder(t, actor, map[uuid.UUID]int{product.ID: 1})

	env.gateway.parseErr = fmt.Errorf("%w: payment intent evt_bad: cannot decode amount", payment.ErrMalformedEvent)
	assert.NoError(t, env.payments.HandleWebhook(ctx, webhookPayload(t, paidEvent(order, "pi_bad")), validSignature))
	assert.False(t, env.storedOrder(order.ID).IsPaid)
	assert.Empty(t, env.notifier.messages)

	env.gateway.parseErr = nil
	err := env.payments.HandleWebhook(ctx, webhookPayload(t, paidEvent(order, "pi_bad")), "t=1,v1=forged")
	assert.ErrorIs(t, err, ErrInvalidSignature, "bad signatures are still rejected")
}
