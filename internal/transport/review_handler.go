package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"go.uber.org/zap"
)

// ReviewRequest is the payload for writing a review
type ReviewRequest struct {
	Rating  int    `json:"rating" validate:"gte=1,lte=5"`
	Title   string `json:"title" validate:"max=200"`
	Comment string `json:"comment" validate:"max=5000"`
}

// ReviewHandler serves product reviews
type ReviewHandler struct {
	reviews service.ReviewService
	logger  *zap.Logger
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(reviews service.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

// ListByProduct pages through a product's reviews, newest first
func (h *ReviewHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	page, limit := pageParams(r)

	reviews, total, err := h.reviews.ListByProduct(r.Context(), productID, page, limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "list reviews")
		return
	}
	middleware.RespondWithPage(w, reviews, middleware.NewPagination(page, limit, total))
}

// Create adds the caller's review of a product
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	productID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	review, err := h.reviews.Create(r.Context(), actor.UserID, productID, service.ReviewInput(req))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "create review")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, review)
}

// Update edits a review; only its author may
func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	review, err := h.reviews.Update(r.Context(), actor, id, service.ReviewInput(req))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "update review")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, review)
}

// Delete removes a review; its author or an admin may
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.reviews.Delete(r.Context(), actor, id); err != nil {
		respondWithServiceError(w, h.logger, err, "delete review")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, messageResponse{Message: "review deleted"})
}
