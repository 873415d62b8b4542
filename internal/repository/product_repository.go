package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrProductAlreadyExists = errors.New("product with this SKU already exists")
	ErrInsufficientStock    = errors.New("insufficient stock")
)

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// ProductFilter narrows and pages a product listing
type ProductFilter struct {
	CategoryID      *uuid.UUID
	Query           string
	IncludeInactive bool
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       SortOrder
}

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]*domain.Product, int, error)
	ListLowStock(ctx context.Context, limit int) ([]*domain.Product, error)
	SetStock(ctx context.Context, id uuid.UUID, stock domain.Stock) error
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, sku, name, slug, description, price, category_id, image_url, weight,
	stock_quantity, low_stock_threshold, track_quantity, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Slug,
		&product.Description,
		&product.Price,
		&product.CategoryID,
		&product.ImageURL,
		&product.Weight,
		&product.Stock.Quantity,
		&product.Stock.LowStockThreshold,
		&product.Stock.TrackQuantity,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	return product, err
}

func scanProducts(rows *sql.Rows) ([]*domain.Product, error) {
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// Create inserts a new product into the database using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		product.ID,
		product.SKU,
		product.Name,
		product.Slug,
		product.Description,
		product.Price,
		product.CategoryID,
		product.ImageURL,
		product.Weight,
		product.Stock.Quantity,
		product.Stock.LowStockThreshold,
		product.Stock.TrackQuantity,
		product.IsActive,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "products_sku_key") {
			return ErrProductAlreadyExists
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update updates the descriptive fields of a product. Stock is only changed through
// SetStock and the conditional increment/decrement.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET sku = $2, name = $3, slug = $4, description = $5, price = $6, category_id = $7,
		    image_url = $8, weight = $9, is_active = $10, updated_at = $11
		WHERE id = $1
	`

	result, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		product.ID,
		product.SKU,
		product.Name,
		product.Slug,
		product.Description,
		product.Price,
		product.CategoryID,
		product.ImageURL,
		product.Weight,
		product.IsActive,
		product.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "products_sku_key") {
			return ErrProductAlreadyExists
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	return requireAffected(result, ErrProductNotFound)
}

// Delete removes a product from the database using parameterized queries
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	return requireAffected(result, ErrProductNotFound)
}

// FindByID retrieves a product by ID using parameterized queries
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// FindByIDs loads several products at once; missing ids are absent from the map
func (r *productRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	found := make(map[uuid.UUID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT %s FROM products WHERE id IN (%s)`, productColumns, strings.Join(placeholders, ", "))
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find products by IDs: %w", err)
	}

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	for _, product := range products {
		found[product.ID] = product
	}

	return found, nil
}

// List retrieves products with optional category and text filtering, pagination, and sorting
func (r *productRepository) List(ctx context.Context, filter ProductFilter) ([]*domain.Product, int, error) {
	// Validate sort field to prevent SQL injection
	validSortFields := map[string]bool{
		"name":           true,
		"price":          true,
		"created_at":     true,
		"stock_quantity": true,
	}

	sortBy := filter.SortBy
	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := filter.SortOrder
	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc
	}

	conditions := []string{}
	args := []any{}

	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR sku ILIKE $%d)", len(args), len(args), len(args)))
	}
	if !filter.IncludeInactive {
		conditions = append(conditions, "is_active = TRUE")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	if err := conn(ctx, r.db).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, productColumns, whereClause, sortBy, sortOrder, len(args)+1, len(args)+2)

	args = append(args, filter.PageSize, offset)

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	products, err := scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// ListLowStock returns tracked products at or below their low-stock threshold
func (r *productRepository) ListLowStock(ctx context.Context, limit int) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE track_quantity = TRUE AND stock_quantity <= low_stock_threshold
		ORDER BY stock_quantity ASC, name ASC
		LIMIT $1
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}

	return scanProducts(rows)
}

// SetStock overwrites the stock sub-record (admin restock)
func (r *productRepository) SetStock(ctx context.Context, id uuid.UUID, stock domain.Stock) error {
	query := `
		UPDATE products
		SET stock_quantity = $2, low_stock_threshold = $3, track_quantity = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, id, stock.Quantity, stock.LowStockThreshold, stock.TrackQuantity)
	if err != nil {
		return fmt.Errorf("failed to set product stock: %w", err)
	}

	return requireAffected(result, ErrProductNotFound)
}

// DecrementStock removes quantity units in a single conditional statement. It fails with
// ErrInsufficientStock instead of driving the counter negative, so concurrent callers
// racing for the last units cannot both succeed. Untracked products match and keep
// their counter, whatever the caller last read about tracking.
func (r *productRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock_quantity = CASE WHEN track_quantity THEN stock_quantity - $2 ELSE stock_quantity END,
			updated_at = NOW()
		WHERE id = $1 AND (track_quantity = FALSE OR stock_quantity >= $2)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement product stock: %w", err)
	}

	return requireAffected(result, ErrInsufficientStock)
}

// IncrementStock returns quantity units to a tracked product. Missing or untracked
// products are left alone.
func (r *productRepository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND track_quantity = TRUE
	`

	if _, err := conn(ctx, r.db).ExecContext(ctx, query, id, quantity); err != nil {
		return fmt.Errorf("failed to increment product stock: %w", err)
	}

	return nil
}
