package service

import (
	"storefront/internal/domain"

	"github.com/google/uuid"
)

// Actor is the authenticated caller as established by the auth middleware
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

// CanAccess reports whether the actor may act on a record owned by ownerID
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	return a.IsAdmin() || a.UserID == ownerID
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
