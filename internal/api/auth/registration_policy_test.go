package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

func TestRegistrationPolicy_ResolveRole(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		provided   string
		want       types.Role
	}{
		{name: "no invite", configured: "open-sesame", provided: "", want: types.RoleUser},
		{name: "matching invite", configured: "open-sesame", provided: "open-sesame", want: types.RoleAdmin},
		{name: "wrong invite", configured: "open-sesame", provided: "open-sesam", want: types.RoleUser},
		{name: "prefix is not enough", configured: "open-sesame", provided: "open-sesame-extra", want: types.RoleUser},
		{name: "nothing configured", configured: "", provided: "", want: types.RoleUser},
		{name: "nothing configured but invite sent", configured: "", provided: "anything", want: types.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewRegistrationPolicy(PolicyConfig{AdminInviteToken: tt.configured})
			assert.Equal(t, tt.want, p.ResolveRole(tt.provided))
		})
	}
}
