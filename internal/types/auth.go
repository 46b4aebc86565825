package types

import "fmt"

// Role is the closed set of privilege levels.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// ParseRole converts a stored or transported role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q: %w", s, ErrInvalidInput)
	}
	return r, nil
}

// Identity is what a verified bearer token resolves to.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}
