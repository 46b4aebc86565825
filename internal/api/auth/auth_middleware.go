package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/taskflow-auth/app/observability/metrics"
	"github.com/FACorreiaa/taskflow-auth/internal/api"
	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

// Define typed context keys
type contextKey string

const identityKey contextKey = "identity"

// ContextWithIdentity attaches an authenticated identity to ctx.
func ContextWithIdentity(ctx context.Context, id types.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity set by Authenticate.
func IdentityFromContext(ctx context.Context) (types.Identity, bool) {
	id, ok := ctx.Value(identityKey).(types.Identity)
	return id, ok
}

// Helper functions to get claims from context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserID, ok && id.UserID != ""
}

func GetUserRoleFromContext(ctx context.Context) (types.Role, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.Role, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="taskflow"`)
	api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
}

// Authenticate is middleware that validates the bearer token and binds the
// caller's identity to the request context. Every failure collapses into the
// same 401 response; the reason is only logged.
func Authenticate(logger *slog.Logger, tokens TokenService, m *metrics.AppMetrics) func(next http.Handler) http.Handler {
	if m == nil {
		m = metrics.Noop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				l.DebugContext(ctx, "Missing or malformed Authorization header")
				metrics.Outcome(ctx, m.AuthorizationRejections, "missing", attribute.Int("status", http.StatusUnauthorized))
				unauthorized(w, r)
				return
			}

			identity, err := tokens.Verify(token)
			if err != nil {
				reason := "malformed"
				switch {
				case errors.Is(err, types.ErrTokenExpired):
					reason = "expired"
				case errors.Is(err, types.ErrTokenInvalidSignature):
					reason = "signature"
				}
				l.WarnContext(ctx, "Token rejected", slog.String("reason", reason))
				metrics.Outcome(ctx, m.AuthorizationRejections, reason, attribute.Int("status", http.StatusUnauthorized))
				unauthorized(w, r)
				return
			}

			l.DebugContext(ctx, "Authentication successful", slog.String("userID", identity.UserID))
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(ctx, identity)))
		})
	}
}

// RequireRole lets a request through only if the authenticated identity has
// one of roles. It runs AFTER Authenticate.
func RequireRole(logger *slog.Logger, m *metrics.AppMetrics, roles ...types.Role) func(next http.Handler) http.Handler {
	if m == nil {
		m = metrics.Noop()
	}
	allowed := make(map[types.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := IdentityFromContext(ctx)
			if !ok {
				metrics.Outcome(ctx, m.AuthorizationRejections, "missing", attribute.Int("status", http.StatusUnauthorized))
				unauthorized(w, r)
				return
			}
			if _, ok := allowed[identity.Role]; !ok {
				logger.WarnContext(ctx, "Role check failed",
					slog.String("userID", identity.UserID),
					slog.String("role", identity.Role.String()),
				)
				metrics.Outcome(ctx, m.AuthorizationRejections, "role", attribute.Int("status", http.StatusForbidden))
				api.ErrorResponse(w, r, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
