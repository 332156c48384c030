package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const UserKey contextKey = "user"

// TokenVerifier resolves a bearer token to the user it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// BearerAuth validates the token from the Authorization header and stores the
// verified user in the request context.
func BearerAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				JSONError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			// Support both "Bearer <token>" and "<token>" formats
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				JSONError(w, http.StatusUnauthorized, "invalid Authorization header format")
				return
			}

			userID, err := v.Verify(r.Context(), token)
			if err != nil || userID == "" {
				zap.L().Debug("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				JSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

// WithUser stores a verified user id in ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	if h, ok := ctx.Value(userHolderKey{}).(*userHolder); ok {
		h.userID = userID
	}
	return context.WithValue(ctx, UserKey, userID)
}

type userHolderKey struct{}

// userHolder lets an outer middleware see the user authenticated further in.
type userHolder struct {
	userID string
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, userHolderKey{}, h)
}

// GetUserFromContext extracts the verified user
func GetUserFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(UserKey).(string); ok {
		return u
	}
	return ""
}
