package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCartNotFound      = errors.New("cart not found")
	ErrCartAlreadyExists = errors.New("cart already exists for this user")
)

// CartRepository defines the interface for cart data access
type CartRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	Create(ctx context.Context, cart *domain.Cart) error
	Save(ctx context.Context, cart *domain.Cart) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db *sql.DB) CartRepository {
	return &cartRepository{db: db}
}

// FindByUserID loads the cart of a user with its lines in insertion order
func (r *cartRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	q := conn(ctx, r.db)

	cart := &domain.Cart{}
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, total_items, total_amount, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.TotalItems,
		&cart.TotalAmount,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, line_total
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY position ASC
	`, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return cart, nil
}

// Create inserts an empty cart. A second cart for the same user fails with ErrCartAlreadyExists.
func (r *cartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	query := `
		INSERT INTO carts (id, user_id, total_items, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		cart.ID,
		cart.UserID,
		cart.TotalItems,
		cart.TotalAmount,
		cart.CreatedAt,
		cart.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "carts_user_id_key") {
			return ErrCartAlreadyExists
		}
		return fmt.Errorf("failed to create cart: %w", err)
	}

	return nil
}

// Save replaces the lines of a cart and stores the derived totals. Totals are recomputed
// from the lines before writing, so callers cannot persist inconsistent figures.
func (r *cartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	cart.Recalculate()

	return inTx(ctx, r.db, func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE carts
			SET total_items = $2, total_amount = $3, updated_at = $4
			WHERE id = $1
		`, cart.ID, cart.TotalItems, cart.TotalAmount, cart.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update cart: %w", err)
		}
		if err := requireAffected(result, ErrCartNotFound); err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
			return fmt.Errorf("failed to clear cart items: %w", err)
		}

		for i, item := range cart.Items {
			_, err := q.ExecContext(ctx, `
				INSERT INTO cart_items (cart_id, product_id, position, quantity, unit_price, line_total)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, cart.ID, item.ProductID, i, item.Quantity, item.UnitPrice, item.LineTotal)
			if err != nil {
				return fmt.Errorf("failed to insert cart item: %w", err)
			}
		}

		return nil
	})
}

// DeleteByUserID removes the cart of a user; deleting a missing cart is not an error
func (r *cartRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}
