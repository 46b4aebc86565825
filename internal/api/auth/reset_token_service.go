package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

// DefaultResetTokenTTL bounds how long a reset link stays usable.
const DefaultResetTokenTTL = time.Hour

const resetTokenBytes = 32

// ResetConfig is the immutable reset-token configuration.
type ResetConfig struct {
	TTL time.Duration
}

// ResetTokenService issues single-use password recovery tokens and
// consumes them. Only a SHA-256 digest of each token is persisted.
//
// A plaintext token has the form "<userID>.<random>" so that the confirm
// endpoint, which receives nothing but the token, can find its record.
type ResetTokenService struct {
	store  CredentialStore
	hasher PasswordHasher
	ttl    time.Duration
	now    Clock
	random io.Reader
}

func NewResetTokenService(store CredentialStore, hasher PasswordHasher, cfg ResetConfig, now Clock) *ResetTokenService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &ResetTokenService{
		store:  store,
		hasher: hasher,
		ttl:    ttl,
		now:    now,
		random: rand.Reader,
	}
}

// Issue generates a fresh token for user, replacing any pending one, and
// returns the plaintext for out-of-band delivery.
func (s *ResetTokenService) Issue(ctx context.Context, user *types.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("issue reset token: %w", types.ErrInvalidInput)
	}
	buf := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	plaintext := user.ID + "." + base64.RawURLEncoding.EncodeToString(buf)

	expiresAt := s.now().Add(s.ttl)
	if err := s.store.SetResetToken(ctx, user.ID, hashResetToken(plaintext), expiresAt); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}
	return plaintext, nil
}

// Consume checks plaintext against the pending token of userID and, on
// success, replaces the user's secret with newSecret. It fails with
// types.ErrResetNotFound, types.ErrResetExpired or types.ErrResetMismatch.
func (s *ResetTokenService) Consume(ctx context.Context, userID, plaintext, newSecret string) error {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.ErrResetNotFound
		}
		return err
	}
	pending := user.ResetToken
	if pending == nil {
		return types.ErrResetNotFound
	}

	now := s.now()
	if now.After(pending.ExpiresAt) {
		if err := s.store.ClearExpiredResetToken(ctx, user.ID, now); err != nil {
			return fmt.Errorf("failed to clear expired reset token: %w", err)
		}
		return types.ErrResetExpired
	}

	presented := hashResetToken(plaintext)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(pending.TokenHash)) != 1 {
		return types.ErrResetMismatch
	}

	// Hash before consuming so a rejected secret leaves the token usable.
	secretHash, err := s.hasher.Hash(ctx, newSecret)
	if err != nil {
		return err
	}

	cleared, err := s.store.ConsumeResetToken(ctx, user.ID, pending.TokenHash)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if !cleared {
		// A concurrent confirm won the race.
		return types.ErrResetNotFound
	}

	if _, err := s.store.UpdateProfile(ctx, user.ID, types.UpdateProfileParams{SecretHash: &secretHash}); err != nil {
		return fmt.Errorf("failed to store new secret: %w", err)
	}
	return nil
}

// ParseResetToken extracts the user id prefix of a plaintext reset token.
func ParseResetToken(token string) (string, error) {
	userID, random, ok := strings.Cut(token, ".")
	if !ok || userID == "" || random == "" {
		return "", fmt.Errorf("malformed reset token: %w", types.ErrInvalidInput)
	}
	return userID, nil
}

func hashResetToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
