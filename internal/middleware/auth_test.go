package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/and161185/imagify/internal/auth"
	"github.com/and161185/imagify/internal/errs"
	"github.com/and161185/imagify/internal/model"
	"github.com/stretchr/testify/require"
)

type mockStorage struct {
	GetUserFunc func(ctx context.Context, id int) (model.User, error)
}

func (m *mockStorage) GetUserByID(ctx context.Context, id int) (model.User, error) {
	return m.GetUserFunc(ctx, id)
}

func TestAuthMiddleware(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)
	validToken, err := tm.GenerateToken(1)
	require.NoError(t, err)

	tests := []struct {
		name           string
		authHeader     string
		storage        Storage
		expectedStatus int
	}{
		{
			name:           "no header",
			authHeader:     "",
			storage:        &mockStorage{},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "not a bearer token",
			authHeader:     "Basic dXNlcjpwYXNz",
			storage:        &mockStorage{},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid token",
			authHeader:     "Bearer invalidtoken",
			storage:        &mockStorage{},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:       "user not found",
			authHeader: "Bearer " + validToken,
			storage: &mockStorage{
				GetUserFunc: func(ctx context.Context, id int) (model.User, error) {
					return model.User{}, errs.ErrUserNotFound
				},
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:       "storage error",
			authHeader: "Bearer " + validToken,
			storage: &mockStorage{
				GetUserFunc: func(ctx context.Context, id int) (model.User, error) {
					return model.User{}, errors.New("some db error")
				},
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:       "ok",
			authHeader: "Bearer " + validToken,
			storage: &mockStorage{
				GetUserFunc: func(ctx context.Context, id int) (model.User, error) {
					return model.User{ID: 1, Name: "test"}, nil
				},
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rr := httptest.NewRecorder()
			mw := AuthMiddleware(tt.storage, tm)
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user, ok := UserFromContext(r.Context())
				require.True(t, ok)
				require.Equal(t, 1, user.ID)
				w.WriteHeader(http.StatusOK)
			}))

			handler.ServeHTTP(rr, req)

			require.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus != http.StatusOK {
				require.JSONEq(t, `{"success":false,"message":"`+messageFor(tt.expectedStatus)+`"}`, rr.Body.String())
			}
		})
	}
}

func messageFor(status int) string {
	if status == http.StatusUnauthorized {
		return notAuthorized
	}
	return "internal error"
}
