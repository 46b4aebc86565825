package user

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/taskflow-auth/internal/api/auth"
	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

// MockUserService is a mock implementation of the UserService interface
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) ListUsers(ctx context.Context) ([]types.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.User), args.Error(1)
}

func (m *MockUserService) GetUser(ctx context.Context, userID string) (*types.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserService) DeleteUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	ctx = auth.ContextWithIdentity(ctx, types.Identity{UserID: "admin-1", Role: types.RoleAdmin})
	return r.WithContext(ctx)
}

func TestListUsers(t *testing.T) {
	mockService := new(MockUserService)
	h := NewHandlerImpl(mockService, slog.Default())

	t.Run("Success", func(t *testing.T) {
		mockService.On("ListUsers", mock.Anything).Return([]types.User{
			{ID: "u1", Email: "a@example.com", SecretHash: "$2a$hidden", Role: types.RoleUser},
		}, nil).Once()

		w := httptest.NewRecorder()
		h.ListUsers(w, httptest.NewRequest(http.MethodGet, "/users", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "$2a$hidden")
		var users []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
		require.Len(t, users, 1)
		assert.Equal(t, "u1", users[0]["id"])
		mockService.AssertExpectations(t)
	})

	t.Run("Unavailable", func(t *testing.T) {
		mockService.On("ListUsers", mock.Anything).
			Return(nil, fmt.Errorf("list users: %w", types.ErrUnavailable)).Once()

		w := httptest.NewRecorder()
		h.ListUsers(w, httptest.NewRequest(http.MethodGet, "/users", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestGetUser(t *testing.T) {
	mockService := new(MockUserService)
	h := NewHandlerImpl(mockService, slog.Default())

	t.Run("Found", func(t *testing.T) {
		mockService.On("GetUser", mock.Anything, "u1").
			Return(&types.User{ID: "u1", DisplayName: "Bob", Role: types.RoleUser}, nil).Once()

		w := httptest.NewRecorder()
		h.GetUser(w, withURLParam(httptest.NewRequest(http.MethodGet, "/users/u1", nil), "id", "u1"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"displayName":"Bob"`)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService.On("GetUser", mock.Anything, "nope").Return(nil, types.ErrNotFound).Once()

		w := httptest.NewRecorder()
		h.GetUser(w, withURLParam(httptest.NewRequest(http.MethodGet, "/users/nope", nil), "id", "nope"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
	mockService.AssertExpectations(t)
}

func TestDeleteUser(t *testing.T) {
	mockService := new(MockUserService)
	h := NewHandlerImpl(mockService, slog.Default())

	mockService.On("DeleteUser", mock.Anything, "u1").Return(nil).Once()
	mockService.On("DeleteUser", mock.Anything, "u1").Return(types.ErrNotFound).Once()

	w := httptest.NewRecorder()
	h.DeleteUser(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/users/u1", nil), "id", "u1"))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.DeleteUser(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/users/u1", nil), "id", "u1"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	mockService.AssertExpectations(t)
}

func TestUserService_OverMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryCredentialStore()
	svc := NewUserService(store, slog.Default())

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	u, err := store.Create(ctx, types.NewUserParams{Email: "bob@example.com", DisplayName: "Bob", SecretHash: "h", Role: types.RoleUser})
	require.NoError(t, err)

	got, err := svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.DisplayName)

	require.NoError(t, svc.DeleteUser(ctx, u.ID))
	_, err = svc.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
