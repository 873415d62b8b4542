package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stock is the inventory sub-record of a product
type Stock struct {
	Quantity          int  `json:"quantity" db:"stock_quantity"`
	LowStockThreshold int  `json:"low_stock_threshold" db:"low_stock_threshold"`
	TrackQuantity     bool `json:"track_quantity" db:"track_quantity"`
}

// Product represents a product in the catalog
type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	SKU         string          `json:"sku" db:"sku"`
	Name        string          `json:"name" db:"name"`
	Slug        string          `json:"slug" db:"slug"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CategoryID  uuid.UUID       `json:"category_id" db:"category_id"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	Weight      decimal.Decimal `json:"weight" db:"weight"`
	Stock       Stock           `json:"stock"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Purchasable reports whether the product may enter a cart or an order
func (p *Product) Purchasable() bool {
	return p != nil && p.IsActive
}

// HasStockFor reports whether quantity units can be sold. Untracked products always can.
func (p *Product) HasStockFor(quantity int) bool {
	if !p.Stock.TrackQuantity {
		return true
	}
	return p.Stock.Quantity >= quantity
}

// IsLowStock reports whether a tracked product is at or below its threshold
func (p *Product) IsLowStock() bool {
	return p.Stock.TrackQuantity && p.Stock.Quantity <= p.Stock.LowStockThreshold
}

// Category represents a product category
type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a display name into a URL-safe slug
func Slugify(name string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(slug, "-")
}
