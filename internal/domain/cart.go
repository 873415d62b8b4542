package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is a line of a cart. UnitPrice is refreshed from the catalog on every
// mutation of the line; only order lines freeze prices.
type CartItem struct {
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total" db:"line_total"`

	// Product is populated on reads and never persisted.
	Product *ProductSummary `json:"product,omitempty"`
}

// ProductSummary is the catalog view embedded in cart reads
type ProductSummary struct {
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	ImageURL  string `json:"image_url"`
	Available *int   `json:"available,omitempty"`
}

// Cart is the per-account staging area for an order
type Cart struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	Items       []CartItem      `json:"items"`
	TotalItems  int             `json:"total_items" db:"total_items"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// NewCart returns an empty cart owned by userID
func NewCart(userID uuid.UUID, now time.Time) *Cart {
	return &Cart{
		ID:          uuid.New(),
		UserID:      userID,
		Items:       []CartItem{},
		TotalAmount: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Recalculate derives every line total and the cart totals from quantities and prices
func (c *Cart) Recalculate() {
	totalItems := 0
	totalAmount := decimal.Zero
	for i := range c.Items {
		item := &c.Items[i]
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		totalItems += item.Quantity
		totalAmount = totalAmount.Add(item.LineTotal)
	}
	c.TotalItems = totalItems
	c.TotalAmount = totalAmount
}

// Line returns the line for productID, or nil
func (c *Cart) Line(productID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// QuantityOf returns the quantity of productID already in the cart
func (c *Cart) QuantityOf(productID uuid.UUID) int {
	if line := c.Line(productID); line != nil {
		return line.Quantity
	}
	return 0
}

// Upsert adds quantity to an existing line or appends a new one, refreshing the price
func (c *Cart) Upsert(productID uuid.UUID, quantity int, unitPrice decimal.Decimal) {
	if line := c.Line(productID); line != nil {
		line.Quantity += quantity
		line.UnitPrice = unitPrice
	} else {
		c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity, UnitPrice: unitPrice})
	}
	c.Recalculate()
}

// SetQuantity replaces the quantity of an existing line. It reports false when the line is absent.
func (c *Cart) SetQuantity(productID uuid.UUID, quantity int, unitPrice decimal.Decimal) bool {
	line := c.Line(productID)
	if line == nil {
		return false
	}
	line.Quantity = quantity
	line.UnitPrice = unitPrice
	c.Recalculate()
	return true
}

// Remove drops the line for productID if present
func (c *Cart) Remove(productID uuid.UUID) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.Recalculate()
			return true
		}
	}
	return false
}

// Retain keeps only the lines for which keep returns true and reports whether any were dropped
func (c *Cart) Retain(keep func(CartItem) bool) bool {
	kept := c.Items[:0]
	for _, item := range c.Items {
		if keep(item) {
			kept = append(kept, item)
		}
	}
	dropped := len(kept) != len(c.Items)
	c.Items = kept
	c.Recalculate()
	return dropped
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.Recalculate()
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
