package service

import (
	"errors"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("access denied")
	ErrAccountInactive     = errors.New("account is deactivated")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrCartItemNotFound    = errors.New("item is not in the cart")
	ErrProductUnavailable  = errors.New("product is unavailable")
	ErrProductInUse        = errors.New("product is referenced by orders in fulfilment")
	ErrOrderNotPayable     = errors.New("order cannot be paid")
	ErrPaymentNotSucceeded = errors.New("payment has not succeeded")
	ErrPaymentMismatch     = errors.New("payment intent does not belong to this order")

	// Re-exported so handlers only need this package for classification
	ErrInsufficientStock = repository.ErrInsufficientStock
	ErrInvalidTransition = domain.ErrInvalidTransition
	ErrOrderConflict     = repository.ErrOrderConflict
	ErrInvalidSignature  = payment.ErrInvalidSignature
	ErrGateway           = payment.ErrGateway
)

var notFoundErrors = []error{
	repository.ErrUserNotFound,
	repository.ErrCategoryNotFound,
	repository.ErrProductNotFound,
	repository.ErrCartNotFound,
	repository.ErrOrderNotFound,
	repository.ErrReviewNotFound,
	ErrCartItemNotFound,
}

var conflictErrors = []error{
	repository.ErrUserAlreadyExists,
	repository.ErrCategoryAlreadyExists,
	repository.ErrCategoryInUse,
	repository.ErrProductAlreadyExists,
	repository.ErrReviewAlreadyExists,
	repository.ErrOrderConflict,
	ErrProductInUse,
}

// IsNotFound reports whether err means a referenced record does not exist
func IsNotFound(err error) bool {
	return isAny(err, notFoundErrors)
}

// IsConflict reports whether err is a uniqueness or concurrent-modification conflict
func IsConflict(err error) bool {
	return isAny(err, conflictErrors)
}

// IsBusinessRule reports whether err is a rule violation detected before any mutation
func IsBusinessRule(err error) bool {
	return isAny(err, []error{
		ErrEmptyCart,
		ErrProductUnavailable,
		ErrInsufficientStock,
		ErrInvalidTransition,
		ErrOrderNotPayable,
		ErrPaymentNotSucceeded,
		ErrPaymentMismatch,
		ErrInvalidSignature,
	})
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
