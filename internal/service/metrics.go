package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ordersPlacedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed",
		},
	)

	orderPlacementFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_placement_failures_total",
			Help: "Order placements rejected, by reason",
		},
		[]string{"reason"},
	)

	orderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Order status transitions, by target status",
		},
		[]string{"status"},
	)

	paymentsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payments_applied_total",
			Help: "Payments recorded on orders, by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_webhook_events_total",
			Help: "Verified payment webhook events, by kind",
		},
		[]string{"kind"},
	)

	notificationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_notification_failures_total",
			Help: "Notifications that could not be sent",
		},
	)
)

func init() {
	prometheus.MustRegister(ordersPlacedTotal)
	prometheus.MustRegister(orderPlacementFailuresTotal)
	prometheus.MustRegister(orderTransitionsTotal)
	prometheus.MustRegister(paymentsAppliedTotal)
	prometheus.MustRegister(webhookEventsTotal)
	prometheus.MustRegister(notificationFailuresTotal)
}
