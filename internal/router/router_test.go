package router

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/taskflow-auth/app/observability/metrics"
	"github.com/FACorreiaa/taskflow-auth/internal/api/auth"
	"github.com/FACorreiaa/taskflow-auth/internal/api/user"
	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

const adminInvite = "ops-invite"

// outbox keeps the last reset link sent to each address.
type outbox struct {
	mu    sync.Mutex
	links map[string]string
}

func (o *outbox) SendPasswordReset(_ context.Context, to, resetLink string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links[to] = resetLink
	return nil
}

func (o *outbox) token(t *testing.T, to string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	link, ok := o.links[to]
	require.True(t, ok, "no reset mail for %s", to)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type testServer struct {
	*httptest.Server
	mail *outbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.Default()
	m := metrics.Noop()
	store := auth.NewMemoryCredentialStore()

	hasher, err := auth.NewBcryptHasher(auth.HasherConfig{Cost: bcrypt.MinCost, Concurrency: 4}, m)
	require.NoError(t, err)
	tokens, err := auth.NewJWTTokenService(auth.TokenConfig{
		SecretKey: []byte("router-test-key"),
		Issuer:    "taskflow",
		TTL:       time.Hour,
	}, nil)
	require.NoError(t, err)

	mail := &outbox{links: map[string]string{}}
	svc := auth.NewAuthService(auth.ServiceDeps{
		Store:    store,
		Hasher:   hasher,
		Tokens:   tokens,
		Resets:   auth.NewResetTokenService(store, hasher, auth.ResetConfig{TTL: time.Hour}, nil),
		Policy:   auth.NewRegistrationPolicy(auth.PolicyConfig{AdminInviteToken: adminInvite}),
		Throttle: auth.NewMemoryThrottle(0),
		Mailer:   mail,
		ResetURL: "http://app.example.com/reset-password",
		Metrics:  m,
	}, logger)

	r := SetupRouter(&Config{
		AuthHandler:            auth.NewAuthHandler(svc, logger),
		UserHandler:            user.NewHandlerImpl(user.NewUserService(store, logger), logger),
		AuthenticateMiddleware: auth.Authenticate(logger, tokens, m),
		RequireAdmin:           auth.RequireRole(logger, m, types.RoleAdmin),
		AllowedOrigins:         []string{"http://localhost:5173"},
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, mail: mail}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func (s *testServer) register(t *testing.T, email, secret, name, invite string) auth.AuthResponse {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", auth.RegisterRequest{
		Email: email, Secret: secret, DisplayName: name, InviteToken: invite,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out auth.AuthResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestUserLifecycle(t *testing.T) {
	s := newTestServer(t)

	bob := s.register(t, "bob@example.com", "secret1", "Bob", "")
	assert.Equal(t, types.RoleUser, bob.Role)
	alice := s.register(t, "alice@example.com", "secret2", "Alice", adminInvite)
	assert.Equal(t, types.RoleAdmin, alice.Role)

	t.Run("DuplicateEmail", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", auth.RegisterRequest{
			Email: "BOB@example.com", Secret: "secret3", DisplayName: "Other Bob",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("Login", func(t *testing.T) {
		resp, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", auth.LoginRequest{Email: "bob@example.com", Secret: "secret1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out auth.AuthResponse
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, bob.UserID, out.UserID)

		resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", auth.LoginRequest{Email: "bob@example.com", Secret: "wrong1"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Profile", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodGet, "/api/v1/auth/profile", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

		resp, body := s.do(t, http.MethodGet, "/api/v1/auth/profile", bob.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var u types.User
		require.NoError(t, json.Unmarshal(body, &u))
		assert.Equal(t, "Bob", u.DisplayName)
		assert.NotContains(t, string(body), "$2a$")

		name := "Robert"
		resp, body = s.do(t, http.MethodPut, "/api/v1/auth/profile", bob.Token, auth.UpdateProfileRequest{DisplayName: &name})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "Robert")
	})

	t.Run("AdminRoutes", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodGet, "/api/v1/users", bob.Token, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, body := s.do(t, http.MethodGet, "/api/v1/users", alice.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var users []types.User
		require.NoError(t, json.Unmarshal(body, &users))
		assert.Len(t, users, 2)

		resp, _ = s.do(t, http.MethodGet, "/api/v1/users/"+alice.UserID, bob.Token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("PasswordReset", func(t *testing.T) {
		resp, body := s.do(t, http.MethodPost, "/api/v1/auth/password-reset/request", "", auth.PasswordResetRequest{Email: "nobody@example.com"})
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.JSONEq(t, `{}`, string(body))

		resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/password-reset/request", "", auth.PasswordResetRequest{Email: "bob@example.com"})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		token := s.mail.token(t, "bob@example.com")

		confirm := auth.PasswordResetConfirmRequest{Token: token, NewSecret: "secret7"}
		resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/password-reset/confirm", "", confirm)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body = s.do(t, http.MethodPost, "/api/v1/auth/password-reset/confirm", "", confirm)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(body), "Invalid or expired reset token")

		resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", auth.LoginRequest{Email: "bob@example.com", Secret: "secret1"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", auth.LoginRequest{Email: "bob@example.com", Secret: "secret7"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("DeleteUser", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodDelete, "/api/v1/users/"+bob.UserID, alice.Token, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		// Bob's token is still signed, but the account is gone.
		resp, _ = s.do(t, http.MethodGet, "/api/v1/auth/profile", bob.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
