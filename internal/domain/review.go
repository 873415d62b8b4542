package domain

import (
	"time"

	"github.com/google/uuid"
)

// Review is a rating left by an account on a product. IsVerifiedPurchase is
// computed once at creation and never re-verified.
type Review struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	ProductID          uuid.UUID `json:"product_id" db:"product_id"`
	UserID             uuid.UUID `json:"user_id" db:"user_id"`
	Rating             int       `json:"rating" db:"rating"`
	Title              string    `json:"title" db:"title"`
	Comment            string    `json:"comment" db:"comment"`
	IsVerifiedPurchase bool      `json:"is_verified_purchase" db:"is_verified_purchase"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
