package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
)

// AuthMiddleware validates JWT access tokens and puts the account id and role in the context
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing authorization header")
				RespondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			ctx, reason := authenticate(r.Context(), authHeader, jwtSecret, logger)
			if reason != "" {
				RespondWithError(w, http.StatusUnauthorized, reason)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware lets anonymous requests through but still rejects a bad token
func OptionalAuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, reason := authenticate(r.Context(), authHeader, jwtSecret, logger)
			if reason != "" {
				RespondWithError(w, http.StatusUnauthorized, reason)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate returns the context carrying the token's identity, or a rejection reason
func authenticate(ctx context.Context, authHeader, jwtSecret string, logger *zap.Logger) (context.Context, string) {
	// Check for Bearer token format
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		logger.Debug("Invalid authorization header format")
		return ctx, "invalid authorization header format"
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		logger.Debug("Token validation failed", zap.Error(err))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ctx, "token expired"
		}
		return ctx, "invalid token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		logger.Debug("Invalid token")
		return ctx, "invalid token"
	}

	rawID, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		logger.Warn("Token carries no usable user_id claim")
		return ctx, "invalid token claims"
	}

	role, ok := claims["role"].(string)
	if !ok || role == "" {
		logger.Warn("Missing role in token claims")
		return ctx, "invalid token claims"
	}

	return WithIdentity(ctx, userID, role), ""
}

// WithIdentity stores the authenticated account in ctx
func WithIdentity(ctx context.Context, userID uuid.UUID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRoleKey, role)
}

// GetUserID extracts the authenticated account id from the request context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetUserRole extracts the authenticated role from the request context
func GetUserRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleKey).(string)
	return role, ok
}
