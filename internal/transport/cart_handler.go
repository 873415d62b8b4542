package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddItemRequest adds quantity units of a product to the cart
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

// UpdateItemRequest sets the quantity of a cart line
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=1"`
}

// SyncItem is one line of a client-side cart. Bad quantities are reported per line, not rejected.
type SyncItem struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity"`
}

// SyncRequest replaces the cart with the lines a client kept offline
type SyncRequest struct {
	Items []SyncItem `json:"items" validate:"max=100,dive"`
}

// SyncResponse is the reconciled cart plus a note per dropped or trimmed line
type SyncResponse struct {
	Cart     *domain.Cart `json:"cart"`
	Warnings []string     `json:"warnings"`
}

// CartHandler serves the caller's cart
type CartHandler struct {
	carts  service.CartService
	logger *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(carts service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

// Get returns the caller's cart, creating an empty one if needed
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	cart, err := h.carts.Get(r.Context(), actor.UserID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "get cart")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

// AddItem adds units of a product, merging with an existing line
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	var req AddItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	cart, err := h.carts.AddItem(r.Context(), actor.UserID, uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "add item to cart")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

// UpdateItem sets the quantity of an existing line
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	productID, ok := pathUUID(w, r, "productID")
	if !ok {
		return
	}
	var req UpdateItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	cart, err := h.carts.UpdateItem(r.Context(), actor.UserID, productID, req.Quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "update cart item")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

// RemoveItem drops a line from the cart
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	productID, ok := pathUUID(w, r, "productID")
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(r.Context(), actor.UserID, productID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "remove cart item")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

// Clear empties the cart
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	cart, err := h.carts.Clear(r.Context(), actor.UserID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "clear cart")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

// Sync replaces the cart with a client-side copy
func (h *CartHandler) Sync(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	var req SyncRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	lines := make([]service.SyncLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = service.SyncLine{ProductID: uuid.MustParse(item.ProductID), Quantity: item.Quantity}
	}

	cart, warnings, err := h.carts.Sync(r.Context(), actor.UserID, lines)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "sync cart")
		return
	}
	if warnings == nil {
		warnings = []string{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, SyncResponse{Cart: cart, Warnings: warnings})
}
