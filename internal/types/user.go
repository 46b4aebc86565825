package types

import (
	"strings"
	"time"
)

// User is the durable credential record owned by the credential store.
type User struct {
	ID              string      `json:"id" example:"d290f1ee-6c54-4b01-90e6-d701748f0851"`
	Email           string      `json:"email" example:"john.doe@example.com"`
	DisplayName     string      `json:"displayName" example:"John Doe"`
	SecretHash      string      `json:"-"` // bcrypt digest, never exposed
	Role            Role        `json:"role" example:"user"`
	ProfileImageRef *string     `json:"profileImageRef,omitempty"`
	ResetToken      *ResetToken `json:"-"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// ResetToken is the pending password-reset state stored on a user.
// Only the digest of the plaintext token is kept.
type ResetToken struct {
	TokenHash string
	ExpiresAt time.Time
}

// NewUserParams carries the fields needed to create a user.
type NewUserParams struct {
	Email           string
	DisplayName     string
	SecretHash      string
	Role            Role
	ProfileImageRef *string
}

// UpdateProfileParams defines the fields allowed for profile updates.
// Nil pointers are left untouched.
type UpdateProfileParams struct {
	DisplayName     *string
	Email           *string
	SecretHash      *string
	ProfileImageRef *string
}

// IsEmpty reports whether no field would change.
func (p UpdateProfileParams) IsEmpty() bool {
	return p.DisplayName == nil && p.Email == nil && p.SecretHash == nil && p.ProfileImageRef == nil
}

// NormalizeEmail is the canonical form used for uniqueness and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
