package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/and161185/imagify/internal/auth"
	"github.com/and161185/imagify/internal/errs"
	"github.com/and161185/imagify/internal/model"
)

type Storage interface {
	GetUserByID(ctx context.Context, id int) (model.User, error)
}

type contextKey string

const UserContextKey contextKey = "user"

const notAuthorized = "Not Authorized. Login Again"

func AuthMiddleware(store Storage, tm *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || tokenStr == "" {
				WriteError(w, http.StatusUnauthorized, notAuthorized)
				return
			}

			userID, err := tm.ParseToken(tokenStr)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, notAuthorized)
				return
			}

			user, err := store.GetUserByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, errs.ErrUserNotFound) {
					WriteError(w, http.StatusUnauthorized, notAuthorized)
					return
				}
				WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user AuthMiddleware attached to the request.
func UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(UserContextKey).(model.User)
	return user, ok
}
