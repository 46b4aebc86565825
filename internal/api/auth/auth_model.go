package auth

import "github.com/FACorreiaa/taskflow-auth/internal/types"

// MinSecretLength is the shortest secret accepted on register, profile
// update and password reset.
const MinSecretLength = 6

// Validation rules shared by request tags and service checks.
const (
	emailRules  = "required,email,max=254"
	secretRules = "required,min=6,max=72"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Email  string `json:"email" validate:"required,email" example:"user@example.com"`
	Secret string `json:"secret" validate:"required" example:"secret123"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email           string  `json:"email" validate:"required,email,max=254" example:"newuser@example.com"`
	Secret          string  `json:"secret" validate:"required,min=6,max=72" example:"secret123"`
	DisplayName     string  `json:"displayName" validate:"required,max=100" example:"Bob"`
	ProfileImageRef *string `json:"profileImageRef,omitempty"`
	InviteToken     string  `json:"inviteToken,omitempty"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token  string     `json:"token"`
	Role   types.Role `json:"role"`
	UserID string     `json:"userId"`
}

// UpdateProfileRequest carries optional profile fields; absent fields are
// left untouched.
type UpdateProfileRequest struct {
	DisplayName     *string `json:"displayName,omitempty" validate:"omitempty,min=1,max=100"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Secret          *string `json:"secret,omitempty" validate:"omitempty,min=6,max=72"`
	ProfileImageRef *string `json:"profileImageRef,omitempty"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Token     string `json:"token" validate:"required"`
	NewSecret string `json:"newSecret" validate:"required,min=6,max=72"`
}

// RegisterParams is the service-level registration input.
type RegisterParams struct {
	Email           string
	Secret          string
	DisplayName     string
	ProfileImageRef *string
	InviteToken     string
}

// ProfileUpdate is the service-level profile update input. Secret is
// plaintext and hashed by the service.
type ProfileUpdate struct {
	DisplayName     *string
	Email           *string
	Secret          *string
	ProfileImageRef *string
}

// AuthResult is a freshly issued bearer token and the user it belongs to.
type AuthResult struct {
	Token string
	User  *types.User
}
