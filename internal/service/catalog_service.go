package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CategoryInput holds the writable fields of a category
type CategoryInput struct {
	Name        string
	Description string
	IsActive    *bool
}

// ProductInput holds the writable fields of a product. Stock is only taken into
// account on creation; afterwards it changes through SetStock and orders.
type ProductInput struct {
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  uuid.UUID
	ImageURL    string
	Weight      decimal.Decimal
	Stock       domain.Stock
	IsActive    *bool
}

func (in ProductInput) validate() error {
	var problems []string
	if strings.TrimSpace(in.SKU) == "" {
		problems = append(problems, "sku is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if in.Price.IsNegative() {
		problems = append(problems, "price must not be negative")
	}
	if in.Weight.IsNegative() {
		problems = append(problems, "weight must not be negative")
	}
	if err := validateStock(in.Stock); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func validateStock(stock domain.Stock) error {
	if stock.Quantity < 0 {
		return errors.New("stock quantity must not be negative")
	}
	if stock.LowStockThreshold < 0 {
		return errors.New("low stock threshold must not be negative")
	}
	return nil
}

// CatalogService manages categories, products and their stock records
type CatalogService interface {
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	CreateCategory(ctx context.Context, in CategoryInput) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryInput) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	ListProducts(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error)
	GetProduct(ctx context.Context, id uuid.UUID, includeInactive bool) (*domain.Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	SetStock(ctx context.Context, id uuid.UUID, stock domain.Stock) (*domain.Product, error)
	ListLowStock(ctx context.Context, limit int) ([]*domain.Product, error)
}

type catalogService struct {
	categoryRepo repository.CategoryRepository
	productRepo  repository.ProductRepository
	orderRepo    repository.OrderRepository
	cache        *cache.ProductCache
	logger       *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService. A nil cache reads straight from the store.
func NewCatalogService(
	categoryRepo repository.CategoryRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	productCache *cache.ProductCache,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		categoryRepo: categoryRepo,
		productRepo:  productRepo,
		orderRepo:    orderRepo,
		cache:        productCache,
		logger:       logger,
	}
}

func (s *catalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (s *catalogService) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	category, err := s.categoryRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return category, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, in CategoryInput) (*domain.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || domain.Slugify(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	now := time.Now().UTC()
	category := &domain.Category{
		ID:          uuid.New(),
		Name:        name,
		Slug:        domain.Slugify(name),
		Description: strings.TrimSpace(in.Description),
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryInput) (*domain.Category, error) {
	category, err := s.categoryRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		category.Name = name
		category.Slug = domain.Slugify(name)
	}
	category.Description = strings.TrimSpace(in.Description)
	if in.IsActive != nil {
		category.IsActive = *in.IsActive
	}
	category.UpdatedAt = time.Now().UTC()

	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if err := s.categoryRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)

	products, total, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// GetProduct reads through the cache. Inactive products are hidden unless includeInactive is set.
func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID, includeInactive bool) (*domain.Product, error) {
	product, ok := s.cache.Get(ctx, id)
	if !ok {
		var err error
		product, err = s.productRepo.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get product: %w", err)
		}
		s.cache.Set(ctx, product)
	}

	if !product.IsActive && !includeInactive {
		return nil, repository.ErrProductNotFound
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.categoryRepo.FindByID(ctx, in.CategoryID); err != nil {
		return nil, fmt.Errorf("failed to resolve category: %w", err)
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:          uuid.New(),
		SKU:         strings.ToUpper(strings.TrimSpace(in.SKU)),
		Name:        strings.TrimSpace(in.Name),
		Slug:        domain.Slugify(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price.Round(2),
		CategoryID:  in.CategoryID,
		ImageURL:    in.ImageURL,
		Weight:      in.Weight,
		Stock:       in.Stock,
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.String("product_id", product.ID.String()), zap.String("sku", product.SKU))
	return product, nil
}

// UpdateProduct replaces the descriptive fields and price. Existing cart lines pick up the
// new price on their next mutation; placed orders keep their snapshot.
func (s *catalogService) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	in.Stock = product.Stock
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.CategoryID != product.CategoryID {
		if _, err := s.categoryRepo.FindByID(ctx, in.CategoryID); err != nil {
			return nil, fmt.Errorf("failed to resolve category: %w", err)
		}
	}

	product.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	product.Name = strings.TrimSpace(in.Name)
	product.Slug = domain.Slugify(in.Name)
	product.Description = strings.TrimSpace(in.Description)
	product.Price = in.Price.Round(2)
	product.CategoryID = in.CategoryID
	product.ImageURL = in.ImageURL
	product.Weight = in.Weight
	if in.IsActive != nil {
		product.IsActive = *in.IsActive
	}
	product.UpdatedAt = time.Now().UTC()

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	s.cache.Invalidate(ctx, id)

	return product, nil
}

// DeleteProduct removes a product that no order in fulfilment still references.
// Deactivating it is the alternative when it must disappear from the storefront now.
func (s *catalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	open, err := s.orderRepo.HasOpenOrderWithProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check open orders: %w", err)
	}
	if open {
		return ErrProductInUse
	}

	if err := s.productRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	s.cache.Invalidate(ctx, id)

	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

// SetStock is the admin override of the stock record
func (s *catalogService) SetStock(ctx context.Context, id uuid.UUID, stock domain.Stock) (*domain.Product, error) {
	if err := validateStock(stock); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := s.productRepo.SetStock(ctx, id, stock); err != nil {
		return nil, fmt.Errorf("failed to set stock: %w", err)
	}
	s.cache.Invalidate(ctx, id)

	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product.IsLowStock() {
		s.logger.Warn("Product stock is low",
			zap.String("product_id", id.String()),
			zap.Int("quantity", product.Stock.Quantity),
			zap.Int("threshold", product.Stock.LowStockThreshold),
		)
	}
	return product, nil
}

func (s *catalogService) ListLowStock(ctx context.Context, limit int) ([]*domain.Product, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}

	products, err := s.productRepo.ListLowStock(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}
	return products, nil
}
