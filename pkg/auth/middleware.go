package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey contextKey = "user_id"
	// UserEmailKey is the context key for user email
	UserEmailKey contextKey = "user_email"
	// UserRoleKey is the context key for user role
	UserRoleKey contextKey = "user_role"
	// AuthMethodKey is the context key for authentication method
	AuthMethodKey contextKey = "auth_method"
)

// Middleware authenticates requests with either a Bearer JWT or an
// X-API-Key header. When optional is set, unauthenticated requests
// pass through without identity.
type Middleware struct {
	jwtManager    *JWTManager
	apiKeyManager *APIKeyManager
	optional      bool
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(jwtManager *JWTManager, apiKeyManager *APIKeyManager, optional bool) *Middleware {
	return &Middleware{
		jwtManager:    jwtManager,
		apiKeyManager: apiKeyManager,
		optional:      optional,
	}
}

// Handler returns the HTTP middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok && m.jwtManager != nil {
			claims, err := m.jwtManager.Verify(token)
			if err == nil {
				ctx := r.Context()
				ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
				ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
				ctx = context.WithValue(ctx, UserRoleKey, claims.Role)
				ctx = context.WithValue(ctx, AuthMethodKey, "jwt")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if !m.optional {
				http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
				return
			}
		}

		if key := r.Header.Get("X-API-Key"); key != "" && m.apiKeyManager != nil {
			apiKey, err := m.apiKeyManager.Verify(key)
			if err == nil {
				ctx := r.Context()
				ctx = context.WithValue(ctx, UserIDKey, apiKey.UserID)
				ctx = context.WithValue(ctx, AuthMethodKey, "apikey")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if !m.optional {
				http.Error(w, "Unauthorized: Invalid or revoked API key", http.StatusUnauthorized)
				return
			}
		}

		if m.optional {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Unauthorized: No valid authentication provided", http.StatusUnauthorized)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	return token, found && token != ""
}

// GetUserID extracts user ID from request context
func GetUserID(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value(UserIDKey).(string)
	return userID, ok
}

// GetUserEmail extracts user email from request context
func GetUserEmail(r *http.Request) (string, bool) {
	email, ok := r.Context().Value(UserEmailKey).(string)
	return email, ok
}

// GetUserRole extracts user role from request context
func GetUserRole(r *http.Request) (string, bool) {
	role, ok := r.Context().Value(UserRoleKey).(string)
	return role, ok
}

// GetAuthMethod extracts authentication method from request context
func GetAuthMethod(r *http.Request) (string, bool) {
	method, ok := r.Context().Value(AuthMethodKey).(string)
	return method, ok
}

// RequireRole is a middleware that requires a specific role
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole, ok := GetUserRole(r)
			if !ok || userRole != role {
				http.Error(w, "Forbidden: Insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
