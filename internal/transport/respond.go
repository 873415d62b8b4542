package transport

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondWithServiceError maps a service error onto the HTTP error taxonomy.
// Anything unclassified is logged and answered with a generic 500.
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, err error, action string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired):
		middleware.RespondWithError(w, http.StatusUnauthorized, lastSegment(err))
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrAccountInactive):
		middleware.RespondWithError(w, http.StatusForbidden, lastSegment(err))
	case service.IsNotFound(err):
		middleware.RespondWithError(w, http.StatusNotFound, lastSegment(err))
	case service.IsConflict(err):
		middleware.RespondWithError(w, http.StatusConflict, lastSegment(err))
	case service.IsBusinessRule(err):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrGateway):
		logger.Error("Payment gateway failure", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		logger.Error("Request failed", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// lastSegment strips the "failed to ..." context callers wrap around sentinel errors
func lastSegment(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

// actorFrom builds the service actor from the identity the auth middleware stored
func actorFrom(r *http.Request) (service.Actor, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		return service.Actor{}, false
	}
	role, _ := middleware.GetUserRole(r.Context())
	return service.Actor{UserID: userID, Role: role}, true
}

// requireActor writes a 401 when the request carries no identity
func requireActor(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (service.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		logger.Error("User ID not found in context")
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
	}
	return actor, ok
}

// pathUUID parses a UUID route parameter, answering 400 when it is malformed
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid "+strings.ReplaceAll(name, "ID", " id"))
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads page and limit, clamping them to 1..100 with a default of 20
func pageParams(r *http.Request) (page, limit int) {
	page = queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit = queryInt(r, "limit", 20)
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

type messageResponse struct {
	Message string `json:"message"`
}
