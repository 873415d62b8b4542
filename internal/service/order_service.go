package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlaceOrderInput is what the account supplies at checkout besides its cart
type PlaceOrderInput struct {
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	Notes           string
}

// StatusUpdate is an admin change of an order. Tracking fields are optional and may be
// set with any status, including the current one.
type StatusUpdate struct {
	Status            domain.OrderStatus
	Note              string
	TrackingNumber    *string
	EstimatedDelivery *time.Time
}

// OrderQuery selects orders for a listing. AllAccounts is honoured for admins only.
type OrderQuery struct {
	Status      domain.OrderStatus
	Page        int
	PageSize    int
	AllAccounts bool
}

// OrderService places orders and drives their lifecycle
type OrderService interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, in PlaceOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, actor Actor, query OrderQuery) ([]*domain.Order, int, error)
	CancelOrder(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, update StatusUpdate) (*domain.Order, error)
}

type orderService struct {
	tx          repository.Transactor
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	gateway     payment.Gateway
	pricer      domain.Pricer
	cache       *cache.ProductCache
	notify      *dispatcher
	logger      *zap.Logger
}

// OrderDeps groups the collaborators of the order workflow
type OrderDeps struct {
	Transactor repository.Transactor
	Orders     repository.OrderRepository
	Carts      repository.CartRepository
	Products   repository.ProductRepository
	Users      repository.UserRepository
	Gateway    payment.Gateway
	Pricer     domain.Pricer
	Cache      *cache.ProductCache
	Notifier   notification.Notifier
	AdminEmail string
	Logger     *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(deps OrderDeps) OrderService {
	return &orderService{
		tx:          deps.Transactor,
		orderRepo:   deps.Orders,
		cartRepo:    deps.Carts,
		productRepo: deps.Products,
		gateway:     deps.Gateway,
		pricer:      deps.Pricer,
		cache:       deps.Cache,
		notify:      newDispatcher(deps.Notifier, deps.Users, deps.AdminEmail, deps.Logger),
		logger:      deps.Logger,
	}
}

// PlaceOrder turns the account's cart into a pending order. Every line is validated before
// anything is written; the order insert, the conditional stock decrements and the cart
// clear then commit or roll back together.
func (s *orderService) PlaceOrder(ctx context.Context, userID uuid.UUID, in PlaceOrderInput) (*domain.Order, error) {
	order, err := s.placeOrder(ctx, userID, in)
	if err != nil {
		orderPlacementFailuresTotal.WithLabelValues(placementFailureReason(err)).Inc()
		return nil, err
	}

	ordersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID.String()),
		zap.String("total", order.Pricing.TotalPrice.StringFixed(2)),
	)

	s.notify.toUser(ctx, userID, notification.Message{
		Kind:    notification.KindOrderPlaced,
		Subject: fmt.Sprintf("Order %s confirmed", order.OrderNumber),
		Body:    fmt.Sprintf("We received your order %s totalling %s.", order.OrderNumber, order.Pricing.TotalPrice.StringFixed(2)),
		Data:    orderData(order),
	})
	return order, nil
}

func (s *orderService) placeOrder(ctx context.Context, userID uuid.UUID, in PlaceOrderInput) (*domain.Order, error) {
	cart, err := s.cartRepo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	ids := make([]uuid.UUID, len(cart.Items))
	for i, item := range cart.Items {
		ids[i] = item.ProductID
	}
	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	for _, line := range cart.Items {
		product := products[line.ProductID]
		if !product.Purchasable() {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, line.ProductID)
		}
		if !product.HasStockFor(line.Quantity) {
			return nil, insufficientStock(product, line.Quantity)
		}
	}

	now := time.Now().UTC()
	items := make([]domain.OrderItem, len(cart.Items))
	totalWeight := decimal.Zero
	for i, line := range cart.Items {
		product := products[line.ProductID]
		quantity := decimal.NewFromInt(int64(line.Quantity))
		items[i] = domain.OrderItem{
			ID:        uuid.New(),
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			ImageURL:  product.ImageURL,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
			LineTotal: product.Price.Mul(quantity),
		}
		totalWeight = totalWeight.Add(product.Weight.Mul(quantity))
	}

	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = "card"
	}

	order := &domain.Order{
		ID:              uuid.New(),
		OrderNumber:     domain.NewOrderNumber(now),
		UserID:          userID,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		Payment:         domain.PaymentInfo{Method: method},
		Pricing:         s.pricer.Price(items, totalWeight, in.ShippingAddress),
		Status:          domain.OrderStatusPending,
		Notes:           strings.TrimSpace(in.Notes),
		StatusHistory:   []domain.StatusHistoryEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.orderRepo.Create(ctx, order); err != nil {
			return err
		}

		// Tracking is decided by the stored row, not by the snapshot validated above.
		for _, item := range order.Items {
			if err := s.productRepo.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					return fmt.Errorf("%w: %s sold out while placing the order", ErrInsufficientStock, item.Name)
				}
				return err
			}
		}

		cart.Clear()
		cart.UpdatedAt = now
		return s.cartRepo.Save(ctx, cart)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	s.cache.Invalidate(ctx, ids...)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if !actor.CanAccess(order.UserID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor Actor, query OrderQuery) ([]*domain.Order, int, error) {
	if query.AllAccounts && !actor.IsAdmin() {
		return nil, 0, ErrForbidden
	}

	filter := repository.OrderFilter{Status: query.Status}
	filter.Page, filter.PageSize = normalizePage(query.Page, query.PageSize)
	if !query.AllAccounts {
		userID := actor.UserID
		filter.UserID = &userID
	}

	orders, total, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// CancelOrder cancels an order and puts its stock back. Account holders may only cancel
// before processing starts; admins follow the transition table.
func (s *orderService) CancelOrder(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin() && !order.Cancellable() {
		return nil, fmt.Errorf("%w: %s orders can no longer be cancelled", ErrInvalidTransition, order.Status)
	}

	note := strings.TrimSpace(reason)
	if note == "" {
		note = "Cancelled"
	}

	changedBy := actor.UserID
	return s.transition(ctx, order, domain.OrderStatusCancelled, note, &changedBy, nil)
}

func (s *orderService) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, update StatusUpdate) (*domain.Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	changedBy := actor.UserID
	return s.transition(ctx, order, update.Status, update.Note, &changedBy, func(o *domain.Order) bool {
		changed := false
		if update.TrackingNumber != nil {
			if tracking := strings.TrimSpace(*update.TrackingNumber); tracking != o.TrackingNumber {
				o.TrackingNumber = tracking
				changed = true
			}
		}
		if update.EstimatedDelivery != nil {
			estimated := update.EstimatedDelivery.UTC()
			o.EstimatedDelivery = &estimated
			changed = true
		}
		return changed
	})
}

// transition moves order to next, applies the optional field changes and persists both
// with a compare-and-set on the previous status. Stock is restored in the same transaction
// when the goods go back on the shelf.
func (s *orderService) transition(
	ctx context.Context,
	order *domain.Order,
	next domain.OrderStatus,
	note string,
	changedBy *uuid.UUID,
	apply func(*domain.Order) bool,
) (*domain.Order, error) {
	prev := order.Status
	now := time.Now().UTC()

	entry, err := order.ApplyStatus(next, note, changedBy, now)
	if err != nil {
		return nil, err
	}

	fieldsChanged := apply != nil && apply(order)
	if entry == nil && !fieldsChanged {
		return order, nil
	}
	order.UpdatedAt = now

	restock := entry != nil && restocks(prev, next)
	refund := entry != nil && next == domain.OrderStatusRefunded
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.orderRepo.UpdateStatus(ctx, order, prev, entry); err != nil {
			return err
		}
		if restock {
			for _, item := range order.Items {
				if err := s.productRepo.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		// The status row is already ours; a failed refund rolls the write back.
		if refund {
			return s.refund(ctx, order)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrOrderConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	if restock {
		ids := make([]uuid.UUID, len(order.Items))
		for i, item := range order.Items {
			ids[i] = item.ProductID
		}
		s.cache.Invalidate(ctx, ids...)
	}

	if entry != nil {
		orderTransitionsTotal.WithLabelValues(string(next)).Inc()
		s.logger.Info("Order status changed",
			zap.String("order_id", order.ID.String()),
			zap.String("from", string(prev)),
			zap.String("to", string(next)),
			zap.Bool("restocked", restock),
		)

		data := orderData(order)
		data["previous_status"] = string(prev)
		s.notify.toUser(ctx, order.UserID, notification.Message{
			Kind:    notification.KindOrderStatus,
			Subject: fmt.Sprintf("Order %s is now %s", order.OrderNumber, next),
			Body:    statusBody(order),
			Data:    data,
		})
	}

	return order, nil
}

// refund returns the money of a paid order through the gateway. It runs inside the
// transaction after the conditional status write, so a lost race never refunds.
func (s *orderService) refund(ctx context.Context, order *domain.Order) error {
	if !order.IsPaid {
		return nil
	}
	if order.Payment.IntentID == "" {
		s.logger.Warn("Paid order has no payment intent, refund must be issued manually",
			zap.String("order_id", order.ID.String()),
		)
		return nil
	}
	if s.gateway == nil {
		return fmt.Errorf("%w: no payment gateway configured", ErrGateway)
	}
	if err := s.gateway.Refund(ctx, order.Payment.IntentID); err != nil {
		return fmt.Errorf("failed to refund order %s: %w", order.OrderNumber, err)
	}
	return nil
}

// restocks reports whether moving from prev to next returns the ordered goods to stock.
// Goods that left the warehouse are not restocked, and a cancelled order already was.
func restocks(prev, next domain.OrderStatus) bool {
	switch next {
	case domain.OrderStatusCancelled:
		return true
	case domain.OrderStatusRefunded:
		return prev == domain.OrderStatusConfirmed || prev == domain.OrderStatusProcessing
	}
	return false
}

func placementFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	}
	return "error"
}

func orderData(order *domain.Order) map[string]string {
	return map[string]string{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"status":       string(order.Status),
		"total":        order.Pricing.TotalPrice.StringFixed(2),
	}
}

func statusBody(order *domain.Order) string {
	body := fmt.Sprintf("Your order %s is now %s.", order.OrderNumber, order.Status)
	if order.TrackingNumber != "" {
		body += " Tracking number: " + order.TrackingNumber + "."
	}
	return body
}
