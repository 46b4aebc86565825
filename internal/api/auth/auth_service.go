package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/taskflow-auth/app/observability/metrics"
	"github.com/FACorreiaa/taskflow-auth/internal/mailer"
	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService defines the credential and session operations exposed over HTTP.
type AuthService interface {
	// Login checks the credentials and issues a bearer token.
	Login(ctx context.Context, email, secret string) (*AuthResult, error)
	// Register creates a user, resolving its role from the invite token.
	Register(ctx context.Context, params RegisterParams) (*AuthResult, error)
	// GetProfile returns the user behind an authenticated request.
	GetProfile(ctx context.Context, userID string) (*types.User, error)
	// UpdateProfile changes name, email, secret or image of a user.
	UpdateProfile(ctx context.Context, userID string, params ProfileUpdate) (*types.User, error)
	// RequestPasswordReset emails a reset link if the account exists. It
	// succeeds whether or not it does.
	RequestPasswordReset(ctx context.Context, email string) error
	// ConfirmPasswordReset consumes a reset token and sets a new secret.
	ConfirmPasswordReset(ctx context.Context, token, newSecret string) error
}

// ServiceDeps bundles the collaborators of AuthServiceImpl.
type ServiceDeps struct {
	Store    CredentialStore
	Hasher   PasswordHasher
	Tokens   TokenService
	Resets   *ResetTokenService
	Policy   *RegistrationPolicy
	Throttle ResetThrottle
	Mailer   mailer.Mailer
	// ResetURL is the front-end page that receives ?token=...
	ResetURL string
	Metrics  *metrics.AppMetrics
}

type AuthServiceImpl struct {
	logger   *slog.Logger
	store    CredentialStore
	hasher   PasswordHasher
	tokens   TokenService
	resets   *ResetTokenService
	policy   *RegistrationPolicy
	throttle ResetThrottle
	mailer   mailer.Mailer
	resetURL string
	metrics  *metrics.AppMetrics

	dummyMu   sync.Mutex
	dummyHash string
}

const timingEqualizerSecret = "taskflow-timing-equalizer"

func NewAuthService(deps ServiceDeps, logger *slog.Logger) *AuthServiceImpl {
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop()
	}
	throttle := deps.Throttle
	if throttle == nil {
		throttle = NewMemoryThrottle(0)
	}
	svc := &AuthServiceImpl{
		logger:   logger,
		store:    deps.Store,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		resets:   deps.Resets,
		policy:   deps.Policy,
		throttle: throttle,
		mailer:   deps.Mailer,
		resetURL: deps.ResetURL,
		metrics:  m,
	}
	if svc.hasher != nil {
		svc.timingHash()
	}
	return svc
}

func validateEmail(email string) error {
	return validateValue("email", email, emailRules)
}

func validateSecret(secret string) error {
	return validateValue("secret", secret, secretRules)
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// timingHash returns the digest unknown-email logins are checked against.
// It is built outside any request so a cancelled caller cannot leave it
// unset; a failed attempt is retried on the next call.
func (s *AuthServiceImpl) timingHash() string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash == "" {
		h, err := s.hasher.Hash(context.Background(), timingEqualizerSecret)
		if err != nil {
			s.logger.Warn("Failed to build timing equalizer hash", slog.Any("error", err))
			return ""
		}
		s.dummyHash = h
	}
	return s.dummyHash
}

// equalizeTiming spends one bcrypt comparison so that logins for unknown
// emails take as long as logins with a wrong secret.
func (s *AuthServiceImpl) equalizeTiming(ctx context.Context, secret string) {
	if h := s.timingHash(); h != "" {
		_, _ = s.hasher.Verify(ctx, secret, h)
	}
}

func (s *AuthServiceImpl) Login(ctx context.Context, email, secret string) (*AuthResult, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login")
	defer span.End()
	l := s.logger.With(slog.String("method", "Login"))

	email = strings.TrimSpace(email)
	if email == "" || secret == "" {
		return nil, fmt.Errorf("email and secret are required: %w", types.ErrInvalidInput)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			s.equalizeTiming(ctx, secret)
			metrics.Outcome(ctx, s.metrics.LoginTotal, "unknown_email")
			l.InfoContext(ctx, "Login failed")
			return nil, types.ErrUnauthenticated
		}
		spanError(span, err)
		return nil, err
	}

	ok, err := s.hasher.Verify(ctx, secret, user.SecretHash)
	if err != nil {
		spanError(span, err)
		l.ErrorContext(ctx, "Secret verification failed", slog.String("userID", user.ID), slog.Any("error", err))
		return nil, err
	}
	if !ok {
		metrics.Outcome(ctx, s.metrics.LoginTotal, "bad_secret")
		l.InfoContext(ctx, "Login failed", slog.String("userID", user.ID))
		return nil, types.ErrUnauthenticated
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID), attribute.String("user.role", user.Role.String()))
	metrics.Outcome(ctx, s.metrics.LoginTotal, "success")
	l.InfoContext(ctx, "Login successful", slog.String("userID", user.ID))
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthServiceImpl) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Register")
	defer span.End()
	l := s.logger.With(slog.String("method", "Register"))

	email := strings.TrimSpace(params.Email)
	displayName := strings.TrimSpace(params.DisplayName)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if displayName == "" {
		return nil, fmt.Errorf("display name is required: %w", types.ErrInvalidInput)
	}
	if err := validateSecret(params.Secret); err != nil {
		return nil, err
	}

	role := s.policy.ResolveRole(params.InviteToken)
	if params.InviteToken != "" && role != types.RoleAdmin {
		l.WarnContext(ctx, "Registration presented a wrong admin invite token")
	}

	secretHash, err := s.hasher.Hash(ctx, params.Secret)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	user, err := s.store.Create(ctx, types.NewUserParams{
		Email:           email,
		DisplayName:     displayName,
		SecretHash:      secretHash,
		Role:            role,
		ProfileImageRef: params.ProfileImageRef,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, types.ErrConflict) {
			outcome = "conflict"
		}
		metrics.Outcome(ctx, s.metrics.RegisterTotal, outcome)
		spanError(span, err)
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	metrics.Outcome(ctx, s.metrics.RegisterTotal, "success", attribute.String("role", role.String()))
	l.InfoContext(ctx, "User registered", slog.String("userID", user.ID), slog.String("role", role.String()))
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthServiceImpl) GetProfile(ctx context.Context, userID string) (*types.User, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "GetProfile", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	return user, nil
}

func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, userID string, params ProfileUpdate) (*types.User, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "UpdateProfile", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()
	l := s.logger.With(slog.String("method", "UpdateProfile"), slog.String("userID", userID))

	update := types.UpdateProfileParams{ProfileImageRef: params.ProfileImageRef}
	if params.DisplayName != nil {
		name := strings.TrimSpace(*params.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("display name cannot be empty: %w", types.ErrInvalidInput)
		}
		update.DisplayName = &name
	}
	if params.Email != nil {
		email := strings.TrimSpace(*params.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		update.Email = &email
	}
	if params.Secret != nil {
		if err := validateSecret(*params.Secret); err != nil {
			return nil, err
		}
		secretHash, err := s.hasher.Hash(ctx, *params.Secret)
		if err != nil {
			spanError(span, err)
			return nil, err
		}
		update.SecretHash = &secretHash
	}

	user, err := s.store.UpdateProfile(ctx, userID, update)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	l.InfoContext(ctx, "Profile updated",
		slog.Bool("email_changed", update.Email != nil),
		slog.Bool("secret_changed", update.SecretHash != nil),
	)
	return user, nil
}

func (s *AuthServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "RequestPasswordReset")
	defer span.End()
	l := s.logger.With(slog.String("method", "RequestPasswordReset"))

	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required: %w", types.ErrInvalidInput)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			metrics.Outcome(ctx, s.metrics.PasswordResetTotal, "unknown_email", attribute.String("stage", "request"))
			l.DebugContext(ctx, "Password reset requested for unknown email")
			return nil
		}
		spanError(span, err)
		return err
	}

	allowed, err := s.throttle.Allow(ctx, user.ID)
	if err != nil {
		l.WarnContext(ctx, "Reset throttle unavailable, allowing request", slog.Any("error", err))
	}
	if !allowed {
		metrics.Outcome(ctx, s.metrics.PasswordResetTotal, "throttled", attribute.String("stage", "request"))
		l.InfoContext(ctx, "Password reset throttled", slog.String("userID", user.ID))
		return nil
	}

	token, err := s.resets.Issue(ctx, user)
	if err != nil {
		spanError(span, err)
		return err
	}

	link, err := buildResetLink(s.resetURL, token)
	if err != nil {
		spanError(span, err)
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		// The caller still gets 202; delivery problems are ours to chase.
		l.ErrorContext(ctx, "Failed to deliver reset email", slog.String("userID", user.ID), slog.Any("error", err))
		metrics.Outcome(ctx, s.metrics.PasswordResetTotal, "delivery_failed", attribute.String("stage", "request"))
		return nil
	}
	metrics.Outcome(ctx, s.metrics.PasswordResetTotal, "sent", attribute.String("stage", "request"))
	l.InfoContext(ctx, "Password reset issued", slog.String("userID", user.ID))
	return nil
}

func (s *AuthServiceImpl) ConfirmPasswordReset(ctx context.Context, token, newSecret string) error {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "ConfirmPasswordReset")
	defer span.End()
	l := s.logger.With(slog.String("method", "ConfirmPasswordReset"))

	if token == "" || newSecret == "" {
		return fmt.Errorf("token and new secret are required: %w", types.ErrInvalidInput)
	}
	if err := validateSecret(newSecret); err != nil {
		return err
	}

	userID, err := ParseResetToken(token)
	if err != nil {
		metrics.Outcome(ctx, s.metrics.PasswordResetTotal, "malformed", attribute.String("stage", "confirm"))
		return types.ErrResetMismatch
	}

	if err := s.resets.Consume(ctx, userID, token, newSecret); err != nil {
		var outcome string
		switch {
		case errors.Is(err, types.ErrResetNotFound):
			outcome = "not_found"
		case errors.Is(err, types.ErrResetExpired):
			outcome = "expired"
		case errors.Is(err, types.ErrResetMismatch):
			outcome = "mismatch"
		default:
			outcome = "error"
			spanError(span, err)
		}
		metrics.Outcome(ctx, s.metrics.PasswordResetTotal, outcome, attribute.String("stage", "confirm"))
		l.InfoContext(ctx, "Password reset rejected", slog.String("outcome", outcome))
		return err
	}

	metrics.Outcome(ctx, s.metrics.PasswordResetTotal, "success", attribute.String("stage", "confirm"))
	l.InfoContext(ctx, "Password reset completed", slog.String("userID", userID))
	return nil
}

func buildResetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid reset URL %q: %w", base, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
