package transport

import (
	"net/http"
	"time"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"go.uber.org/zap"
)

// PlaceOrderRequest is the checkout payload; the lines come from the caller's cart
type PlaceOrderRequest struct {
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method" validate:"required,max=50"`
	Notes           string                 `json:"notes" validate:"max=1000"`
}

// CancelOrderRequest optionally explains a cancellation
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// UpdateStatusRequest is an admin status change, optionally with tracking details
type UpdateStatusRequest struct {
	Status            string     `json:"status" validate:"required,oneof=pending confirmed processing shipped delivered cancelled refunded"`
	Note              string     `json:"note" validate:"max=500"`
	TrackingNumber    *string    `json:"tracking_number" validate:"omitnil,max=100"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

// OrderHandler serves checkout and the order lifecycle
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// PlaceOrder turns the caller's cart into an order
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	var req PlaceOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), actor.UserID, service.PlaceOrderInput{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err, "place order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

// ListOrders pages through the caller's orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// ListAllOrders pages through every account's orders
func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request, allAccounts bool) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	page, limit := pageParams(r)
	query := service.OrderQuery{Page: page, PageSize: limit, AllAccounts: allAccounts}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid order status")
			return
		}
		query.Status = status
	}

	orders, total, err := h.orders.ListOrders(r.Context(), actor, query)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "list orders")
		return
	}
	middleware.RespondWithPage(w, orders, middleware.NewPagination(page, limit, total))
}

// GetOrder returns an order the caller owns, or any order for admins
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "get order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// CancelOrder cancels an order and restores its stock
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req CancelOrderRequest
	if r.ContentLength != 0 {
		if err := middleware.DecodeAndValidate(r, &req); err != nil {
			middleware.RespondWithDecodeError(w, err)
			return
		}
	}

	order, err := h.orders.CancelOrder(r.Context(), actor, id, req.Reason)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "cancel order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// UpdateStatus moves an order along its lifecycle
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}
	status, _ := domain.ParseOrderStatus(req.Status)

	order, err := h.orders.UpdateStatus(r.Context(), actor, id, service.StatusUpdate{
		Status:            status,
		Note:              req.Note,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err, "update order status")
		return
	}
	h.logger.Info("Order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
		zap.String("changed_by", actor.UserID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusOK, order)
}
