package user

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/taskflow-auth/internal/api"
	"github.com/FACorreiaa/taskflow-auth/internal/api/auth"
	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	ListUsers(w http.ResponseWriter, r *http.Request)
	GetUser(w http.ResponseWriter, r *http.Request)
	DeleteUser(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	userService UserService
	logger      *slog.Logger
}

// NewHandlerImpl creates a new user HandlerImpl instance.
func NewHandlerImpl(userService UserService, logger *slog.Logger) *HandlerImpl {
	if logger == nil {
		panic("PANIC: Attempting to create HandlerImpl with nil logger!")
	}
	return &HandlerImpl{
		userService: userService,
		logger:      logger,
	}
}

func (h *HandlerImpl) serviceError(w http.ResponseWriter, r *http.Request, l *slog.Logger, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		api.ErrorResponse(w, r, http.StatusNotFound, "User not found")
	case errors.Is(err, types.ErrUnavailable):
		l.ErrorContext(r.Context(), "Store unavailable", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		l.ErrorContext(r.Context(), "Unexpected error", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// ListUsers godoc
// @Summary      List Users
// @Description  Lists every account. Admin only.
// @Tags         Users
// @Produce      json
// @Success      200 {array} types.User "Users"
// @Failure      401 {object} api.ErrorBody "Unauthorized"
// @Failure      403 {object} api.ErrorBody "Insufficient permissions"
// @Failure      503 {object} api.ErrorBody "Store unavailable"
// @Security     BearerAuth
// @Router       /users [get]
func (h *HandlerImpl) ListUsers(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "ListUsers"))

	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		h.serviceError(w, r, l, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, users)
}

// GetUser godoc
// @Summary      Get User
// @Description  Returns one account by id.
// @Tags         Users
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200 {object} types.User "User"
// @Failure      401 {object} api.ErrorBody "Unauthorized"
// @Failure      404 {object} api.ErrorBody "User not found"
// @Security     BearerAuth
// @Router       /users/{id} [get]
func (h *HandlerImpl) GetUser(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "GetUser"))

	userID := chi.URLParam(r, "id")
	if userID == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "User id is required")
		return
	}
	u, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		h.serviceError(w, r, l, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, u)
}

// DeleteUser godoc
// @Summary      Delete User
// @Description  Removes an account. Admin only.
// @Tags         Users
// @Produce      json
// @Param        id path string true "User ID"
// @Success      204 "Deleted"
// @Failure      401 {object} api.ErrorBody "Unauthorized"
// @Failure      403 {object} api.ErrorBody "Insufficient permissions"
// @Failure      404 {object} api.ErrorBody "User not found"
// @Security     BearerAuth
// @Router       /users/{id} [delete]
func (h *HandlerImpl) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "DeleteUser"))

	userID := chi.URLParam(r, "id")
	if userID == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "User id is required")
		return
	}
	if err := h.userService.DeleteUser(ctx, userID); err != nil {
		h.serviceError(w, r, l, err)
		return
	}
	adminID, _ := auth.GetUserIDFromContext(ctx)
	l.InfoContext(ctx, "User removed", slog.String("userID", userID), slog.String("by", adminID))
	w.WriteHeader(http.StatusNoContent)
}
