package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderConflict is returned when a conditional update lost against a concurrent writer
	ErrOrderConflict = errors.New("order was modified concurrently")
)

// OrderFilter narrows and pages an order listing. A nil UserID lists every account.
type OrderFilter struct {
	UserID   *uuid.UUID
	Status   domain.OrderStatus
	Page     int
	PageSize int
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, int, error)
	UpdateStatus(ctx context.Context, order *domain.Order, prev domain.OrderStatus, entry *domain.StatusHistoryEntry) error
	MarkPaid(ctx context.Context, order *domain.Order, prev domain.OrderStatus, entry *domain.StatusHistoryEntry) error
	SetPaymentIntent(ctx context.Context, id uuid.UUID, method, intentID string) error
	HasDeliveredOrderWithProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	HasOpenOrderWithProduct(ctx context.Context, productID uuid.UUID) (bool, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_number, user_id, shipping_address, payment_method, payment_intent_id,
	transaction_id, paid_at, items_price, tax_price, shipping_price, total_price, status, is_paid,
	is_delivered, delivered_at, cancelled_at, tracking_number, estimated_delivery, notes, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	var address []byte
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&address,
		&order.Payment.Method,
		&order.Payment.IntentID,
		&order.Payment.TransactionID,
		&order.Payment.PaidAt,
		&order.Pricing.ItemsPrice,
		&order.Pricing.TaxPrice,
		&order.Pricing.ShippingPrice,
		&order.Pricing.TotalPrice,
		&order.Status,
		&order.IsPaid,
		&order.IsDelivered,
		&order.DeliveredAt,
		&order.CancelledAt,
		&order.TrackingNumber,
		&order.EstimatedDelivery,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}

	return order, nil
}

// Create inserts the order together with its line snapshot
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}

	return inTx(ctx, r.db, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		`,
			order.ID,
			order.OrderNumber,
			order.UserID,
			string(address),
			order.Payment.Method,
			order.Payment.IntentID,
			order.Payment.TransactionID,
			order.Payment.PaidAt,
			order.Pricing.ItemsPrice,
			order.Pricing.TaxPrice,
			order.Pricing.ShippingPrice,
			order.Pricing.TotalPrice,
			order.Status,
			order.IsPaid,
			order.IsDelivered,
			order.DeliveredAt,
			order.CancelledAt,
			order.TrackingNumber,
			order.EstimatedDelivery,
			order.Notes,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, "orders_order_number_key") {
				return fmt.Errorf("failed to create order: duplicate order number %s", order.OrderNumber)
			}
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i, item := range order.Items {
			_, err := q.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, product_id, position, name, sku, image_url, unit_price, quantity, line_total)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, item.ID, order.ID, item.ProductID, i, item.Name, item.SKU, item.ImageURL, item.UnitPrice, item.Quantity, item.LineTotal)
			if err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		for _, entry := range order.StatusHistory {
			if err := insertHistory(ctx, q, order.ID, &entry); err != nil {
				return err
			}
		}

		return nil
	})
}

// FindByID loads an order with its lines and status history
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	q := conn(ctx, r.db)

	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	items, err := loadOrderItems(ctx, q, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}

	history, err := loadHistory(ctx, q, order.ID)
	if err != nil {
		return nil, err
	}
	order.StatusHistory = history

	return order, nil
}

// List retrieves orders newest first with their lines. Status history is only loaded by FindByID.
func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]*domain.Order, int, error) {
	q := conn(ctx, r.db)

	conditions := []string{}
	args := []any{}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, orderColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	ids := []uuid.UUID{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	items, err := loadOrderItems(ctx, q, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, order := range orders {
		order.Items = items[order.ID]
		if order.Items == nil {
			order.Items = []domain.OrderItem{}
		}
		order.StatusHistory = []domain.StatusHistoryEntry{}
	}

	return orders, total, nil
}

// UpdateStatus writes the lifecycle fields of order only if the stored status still equals
// prev, then appends entry when it is non-nil.
func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order, prev domain.OrderStatus, entry *domain.StatusHistoryEntry) error {
	return inTx(ctx, r.db, func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE orders
			SET status = $3, is_delivered = $4, delivered_at = $5, cancelled_at = $6,
			    tracking_number = $7, estimated_delivery = $8, updated_at = $9
			WHERE id = $1 AND status = $2
		`,
			order.ID,
			prev,
			order.Status,
			order.IsDelivered,
			order.DeliveredAt,
			order.CancelledAt,
			order.TrackingNumber,
			order.EstimatedDelivery,
			order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if err := requireAffected(result, ErrOrderConflict); err != nil {
			return err
		}

		if entry != nil {
			return insertHistory(ctx, q, order.ID, entry)
		}
		return nil
	})
}

// MarkPaid records the payment only while the stored order is unpaid and still in prev.
// A lost race surfaces as ErrOrderConflict; callers reload to tell "already paid" apart.
func (r *orderRepository) MarkPaid(ctx context.Context, order *domain.Order, prev domain.OrderStatus, entry *domain.StatusHistoryEntry) error {
	return inTx(ctx, r.db, func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE orders
			SET is_paid = TRUE, transaction_id = $3, paid_at = $4, status = $5, updated_at = $6
			WHERE id = $1 AND status = $2 AND is_paid = FALSE
		`,
			order.ID,
			prev,
			order.Payment.TransactionID,
			order.Payment.PaidAt,
			order.Status,
			order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		if err := requireAffected(result, ErrOrderConflict); err != nil {
			return err
		}

		if entry != nil {
			return insertHistory(ctx, q, order.ID, entry)
		}
		return nil
	})
}

// SetPaymentIntent remembers the gateway intent created for an order
func (r *orderRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, method, intentID string) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE orders SET payment_method = $2, payment_intent_id = $3, updated_at = NOW()
		WHERE id = $1
	`, id, method, intentID)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}

	return requireAffected(result, ErrOrderNotFound)
}

// HasDeliveredOrderWithProduct reports whether userID received an order containing productID
func (r *orderRepository) HasDeliveredOrderWithProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			WHERE o.user_id = $1 AND oi.product_id = $2 AND o.is_delivered = TRUE
		)
	`, userID, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check delivered orders: %w", err)
	}
	return exists, nil
}

// HasOpenOrderWithProduct reports whether an order still in fulfilment references productID
func (r *orderRepository) HasOpenOrderWithProduct(ctx context.Context, productID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			WHERE oi.product_id = $1 AND o.status NOT IN ('delivered', 'cancelled', 'refunded')
		)
	`, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check open orders: %w", err)
	}
	return exists, nil
}

func insertHistory(ctx context.Context, q querier, orderID uuid.UUID, entry *domain.StatusHistoryEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, status, note, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, orderID, entry.Status, entry.Note, entry.ChangedBy, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

func loadOrderItems(ctx context.Context, q querier, orderIDs []uuid.UUID) (map[uuid.UUID][]domain.OrderItem, error) {
	items := make(map[uuid.UUID][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return items, nil
	}

	placeholders := make([]string, len(orderIDs))
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT order_id, id, product_id, name, sku, image_url, unit_price, quantity, line_total
		FROM order_items
		WHERE order_id IN (%s)
		ORDER BY order_id, position ASC
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		if err := rows.Scan(
			&orderID,
			&item.ID,
			&item.ProductID,
			&item.Name,
			&item.SKU,
			&item.ImageURL,
			&item.UnitPrice,
			&item.Quantity,
			&item.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

func loadHistory(ctx context.Context, q querier, orderID uuid.UUID) ([]domain.StatusHistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, status, note, changed_by, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	defer rows.Close()

	history := []domain.StatusHistoryEntry{}
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.Status, &entry.Note, &entry.ChangedBy, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status history: %w", err)
	}

	return history, nil
}
