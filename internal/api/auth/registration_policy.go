package auth

import (
	"crypto/subtle"

	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

// PolicyConfig holds the shared admin invite secret. Empty disables
// self-elevation entirely.
type PolicyConfig struct {
	AdminInviteToken string
}

// RegistrationPolicy decides the role granted at sign-up.
//
// The invite token is one shared secret: it is not per-invite, cannot be
// revoked without a restart, and its uses are not tracked.
type RegistrationPolicy struct {
	inviteToken []byte
}

func NewRegistrationPolicy(cfg PolicyConfig) *RegistrationPolicy {
	return &RegistrationPolicy{inviteToken: []byte(cfg.AdminInviteToken)}
}

// ResolveRole returns admin iff provided is non-empty and equals the
// configured invite token.
func (p *RegistrationPolicy) ResolveRole(provided string) types.Role {
	if provided == "" || len(p.inviteToken) == 0 {
		return types.RoleUser
	}
	if subtle.ConstantTimeCompare([]byte(provided), p.inviteToken) == 1 {
		return types.RoleAdmin
	}
	return types.RoleUser
}
