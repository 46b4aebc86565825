package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

var _ TokenService = (*JWTTokenService)(nil)

// Clock returns the current time. Tests swap it to move time forward.
type Clock func() time.Time

// TokenService issues and verifies stateless bearer tokens.
//
// Verify trusts the embedded claims and never looks at the credential
// store, so a role change or account removal only takes effect once tokens
// issued before it expire.
type TokenService interface {
	Issue(userID string, role types.Role) (string, error)
	Verify(token string) (types.Identity, error)
}

// TokenConfig is the immutable signing configuration.
type TokenConfig struct {
	SecretKey []byte
	Issuer    string
	TTL       time.Duration
}

// Claims is the JWT payload: the subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type JWTTokenService struct {
	cfg TokenConfig
	now Clock
}

// NewJWTTokenService returns an HS256 token service. now may be nil.
func NewJWTTokenService(cfg TokenConfig, now Clock) (*JWTTokenService, error) {
	if len(cfg.SecretKey) == 0 {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive, got %s", cfg.TTL)
	}
	if now == nil {
		now = time.Now
	}
	return &JWTTokenService{cfg: cfg, now: now}, nil
}

func (s *JWTTokenService) Issue(userID string, role types.Role) (string, error) {
	if userID == "" || !role.Valid() {
		return "", fmt.Errorf("issue token for %q/%q: %w", userID, role, types.ErrInvalidInput)
	}
	now := s.now()
	claims := Claims{
		Role: role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.SecretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the identity bound in token or one of
// types.ErrTokenMalformed, types.ErrTokenInvalidSignature, types.ErrTokenExpired.
func (s *JWTTokenService) Verify(token string) (types.Identity, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.cfg.SecretKey, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return types.Identity{}, fmt.Errorf("%w: %v", types.ErrTokenInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return types.Identity{}, fmt.Errorf("%w: %v", types.ErrTokenExpired, err)
	default:
		return types.Identity{}, fmt.Errorf("%w: %v", types.ErrTokenMalformed, err)
	}

	role, err := types.ParseRole(claims.Role)
	if err != nil || claims.Subject == "" {
		return types.Identity{}, fmt.Errorf("%w: missing subject or role", types.ErrTokenMalformed)
	}
	return types.Identity{UserID: claims.Subject, Role: role}, nil
}
