package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/taskflow-auth/internal/api"
	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

const invalidResetMessage = "Invalid or expired reset token"

type AuthHandler struct {
	AuthService AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		AuthService: authService,
	}
}

// writeServiceError maps service errors onto HTTP statuses. Unknown errors
// are logged and answered with a bare 500.
func (h *AuthHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrUnauthenticated):
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid email or secret")
	case errors.Is(err, types.ErrForbidden):
		api.ErrorResponse(w, r, http.StatusForbidden, "Insufficient permissions")
	case errors.Is(err, types.ErrConflict):
		api.ErrorResponse(w, r, http.StatusConflict, "Email already registered")
	case errors.Is(err, types.ErrUnavailable):
		h.logger.ErrorContext(r.Context(), "Store unavailable", slog.String("op", op), slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "Unexpected error", slog.String("op", op), slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// decode reads the JSON body into dst and checks its validate tags.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := api.DecodeJSONBody(w, r, dst); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := validateStruct(dst); err != nil {
		h.logger.InfoContext(r.Context(), "Request failed validation", slog.Any("error", err))
		h.writeServiceError(w, r, err, "decode")
		return false
	}
	return true
}

func authResponse(res *AuthResult) AuthResponse {
	return AuthResponse{Token: res.Token, Role: res.User.Role, UserID: res.User.ID}
}

// Login godoc
// @Summary      Log In
// @Description  Authenticates with email and secret and returns a bearer token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        credentials body LoginRequest true "User Credentials"
// @Success      200 {object} AuthResponse "Bearer token"
// @Failure      400 {object} api.ErrorBody "Invalid Input"
// @Failure      401 {object} api.ErrorBody "Invalid email or secret"
// @Failure      503 {object} api.ErrorBody "Store unavailable"
// @Router       /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.AuthService.Login(r.Context(), req.Email, req.Secret)
	if err != nil {
		h.writeServiceError(w, r, err, "Login")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, authResponse(res))
}

// Register godoc
// @Summary      Register User
// @Description  Creates an account. A valid invite token grants the admin role.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        registration body RegisterRequest true "Registration Details"
// @Success      200 {object} AuthResponse "Bearer token"
// @Failure      400 {object} api.ErrorBody "Invalid Input"
// @Failure      409 {object} api.ErrorBody "Email already registered"
// @Failure      503 {object} api.ErrorBody "Store unavailable"
// @Router       /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.AuthService.Register(r.Context(), RegisterParams{
		Email:           req.Email,
		Secret:          req.Secret,
		DisplayName:     req.DisplayName,
		ProfileImageRef: req.ProfileImageRef,
		InviteToken:     req.InviteToken,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Register")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, authResponse(res))
}

// GetProfile godoc
// @Summary      Get Profile
// @Description  Returns the authenticated user's profile.
// @Tags         Auth
// @Produce      json
// @Success      200 {object} types.User "User Profile"
// @Failure      401 {object} api.ErrorBody "Unauthorized"
// @Failure      503 {object} api.ErrorBody "Store unavailable"
// @Security     BearerAuth
// @Router       /auth/profile [get]
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	user, err := h.AuthService.GetProfile(r.Context(), userID)
	if err != nil {
		// The token outlived its account.
		if errors.Is(err, types.ErrNotFound) {
			unauthorized(w, r)
			return
		}
		h.writeServiceError(w, r, err, "GetProfile")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

// UpdateProfile godoc
// @Summary      Update Profile
// @Description  Changes display name, email, secret or profile image. Absent fields are left untouched.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        profile body UpdateProfileRequest true "Profile Update"
// @Success      200 {object} types.User "Updated Profile"
// @Failure      400 {object} api.ErrorBody "Invalid Input"
// @Failure      401 {object} api.ErrorBody "Unauthorized"
// @Failure      409 {object} api.ErrorBody "Email already registered"
// @Security     BearerAuth
// @Router       /auth/profile [put]
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.AuthService.UpdateProfile(r.Context(), userID, ProfileUpdate{
		DisplayName:     req.DisplayName,
		Email:           req.Email,
		Secret:          req.Secret,
		ProfileImageRef: req.ProfileImageRef,
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			unauthorized(w, r)
			return
		}
		h.writeServiceError(w, r, err, "UpdateProfile")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

// RequestPasswordReset godoc
// @Summary      Request Password Reset
// @Description  Emails a reset link if the account exists. Always answers 202 for a well-formed request so the response does not reveal whether the email is registered.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body PasswordResetRequest true "Account Email"
// @Success      202 {object} object "Accepted"
// @Failure      400 {object} api.ErrorBody "Invalid Input"
// @Failure      503 {object} api.ErrorBody "Store unavailable"
// @Router       /auth/password-reset/request [post]
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.AuthService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, r, err, "RequestPasswordReset")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusAccepted, struct{}{})
}

// ConfirmPasswordReset godoc
// @Summary      Confirm Password Reset
// @Description  Consumes a reset token and sets a new secret.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        confirmation body PasswordResetConfirmRequest true "Token and New Secret"
// @Success      200 {object} object "Secret changed"
// @Failure      400 {object} api.ErrorBody "Invalid or expired reset token"
// @Failure      503 {object} api.ErrorBody "Store unavailable"
// @Router       /auth/password-reset/confirm [post]
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.AuthService.ConfirmPasswordReset(r.Context(), req.Token, req.NewSecret)
	switch {
	case err == nil:
		api.WriteJSONResponse(w, r, http.StatusOK, struct{}{})
	case errors.Is(err, types.ErrResetNotFound),
		errors.Is(err, types.ErrResetExpired),
		errors.Is(err, types.ErrResetMismatch):
		api.ErrorResponse(w, r, http.StatusBadRequest, invalidResetMessage)
	default:
		h.writeServiceError(w, r, err, "ConfirmPasswordReset")
	}
}
