package transport

import (
	"net/http"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CategoryRequest is the payload for creating or replacing a category
type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
	IsActive    *bool  `json:"is_active"`
}

// StockRequest is the inventory block of a product payload
type StockRequest struct {
	Quantity          int   `json:"quantity" validate:"gte=0"`
	LowStockThreshold int   `json:"low_stock_threshold" validate:"gte=0"`
	TrackQuantity     *bool `json:"track_quantity"`
}

func (s StockRequest) toDomain() domain.Stock {
	track := true
	if s.TrackQuantity != nil {
		track = *s.TrackQuantity
	}
	return domain.Stock{
		Quantity:          s.Quantity,
		LowStockThreshold: s.LowStockThreshold,
		TrackQuantity:     track,
	}
}

// ProductRequest is the payload for creating or replacing a product
type ProductRequest struct {
	SKU         string          `json:"sku" validate:"required,max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  string          `json:"category_id" validate:"required,uuid"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	Weight      decimal.Decimal `json:"weight"`
	Stock       StockRequest    `json:"stock"`
	IsActive    *bool           `json:"is_active"`
}

// CatalogHandler serves categories and products
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// ListCategories returns every category
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "list categories")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, categories)
}

// GetCategory returns one category
func (h *CatalogHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	category, err := h.catalog.GetCategory(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "get category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, category)
}

// CreateCategory adds a category
func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), service.CategoryInput(req))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "create category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, category)
}

// UpdateCategory replaces a category's fields
func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req CategoryRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	category, err := h.catalog.UpdateCategory(r.Context(), id, service.CategoryInput(req))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "update category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, category)
}

// DeleteCategory removes a category with no products
func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteCategory(r.Context(), id); err != nil {
		respondWithServiceError(w, h.logger, err, "delete category")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, messageResponse{Message: "category deleted"})
}

// ListProducts pages through the catalog. Only admins see inactive products.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	q := r.URL.Query()

	filter := repository.ProductFilter{
		Query:     q.Get("q"),
		Page:      page,
		PageSize:  limit,
		SortBy:    q.Get("sort"),
		SortOrder: repository.SortOrder(strings.ToUpper(q.Get("order"))),
	}
	if raw := q.Get("category"); raw != "" {
		categoryID, err := uuid.Parse(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
			return
		}
		filter.CategoryID = &categoryID
	}
	if actor, ok := actorFrom(r); ok && actor.IsAdmin() {
		filter.IncludeInactive = true
	}

	products, total, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "list products")
		return
	}
	middleware.RespondWithPage(w, products, middleware.NewPagination(page, limit, total))
}

// GetProduct returns one product
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := actorFrom(r)

	product, err := h.catalog.GetProduct(r.Context(), id, actor.IsAdmin())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "get product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// CreateProduct adds a product to the catalog
func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), in)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "create product")
		return
	}
	h.logger.Info("Product created", zap.String("product_id", product.ID.String()), zap.String("sku", product.SKU))
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// UpdateProduct replaces a product's descriptive fields
func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id, in)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "update product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// DeleteProduct removes a product no open order references
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		respondWithServiceError(w, h.logger, err, "delete product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, messageResponse{Message: "product deleted"})
}

// SetStock overwrites a product's inventory block
func (h *CatalogHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req StockRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	product, err := h.catalog.SetStock(r.Context(), id, req.toDomain())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "update stock")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// ListLowStock returns tracked products at or below their threshold
func (h *CatalogHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	_, limit := pageParams(r)
	products, err := h.catalog.ListLowStock(r.Context(), limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "list low stock products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *CatalogHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (service.ProductInput, bool) {
	var req ProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return service.ProductInput{}, false
	}
	return service.ProductInput{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		CategoryID:  uuid.MustParse(req.CategoryID),
		ImageURL:    req.ImageURL,
		Weight:      req.Weight,
		Stock:       req.Stock.toDomain(),
		IsActive:    req.IsActive,
	}, true
}
