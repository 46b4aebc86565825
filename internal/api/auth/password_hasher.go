package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/FACorreiaa/taskflow-auth/app/observability/metrics"
	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

var _ PasswordHasher = (*BcryptHasher)(nil)

// PasswordHasher produces and checks salted one-way digests of secrets.
type PasswordHasher interface {
	// Hash returns a self-describing bcrypt digest of secret.
	Hash(ctx context.Context, secret string) (string, error)
	// Verify reports whether secret reproduces hash. The comparison is
	// constant-time.
	Verify(ctx context.Context, secret, hash string) (bool, error)
}

// HasherConfig tunes the work factor and how many hashes may run at once.
type HasherConfig struct {
	Cost        int
	Concurrency int
}

type BcryptHasher struct {
	cost    int
	sem     *semaphore.Weighted
	metrics *metrics.AppMetrics
}

// NewBcryptHasher validates cfg and builds a hasher. A zero Cost means
// bcrypt.DefaultCost and a zero Concurrency means GOMAXPROCS.
func NewBcryptHasher(cfg HasherConfig, m *metrics.AppMetrics) (*BcryptHasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &BcryptHasher{
		cost:    cost,
		sem:     semaphore.NewWeighted(int64(workers)),
		metrics: m,
	}, nil
}

func (h *BcryptHasher) Hash(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret is empty: %w", types.ErrInvalidInput)
	}
	// Waiting for a slot honors ctx; once started the hash runs to completion.
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for hash worker: %w", err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	h.observe(ctx, "hash", start)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("secret longer than 72 bytes: %w", types.ErrInvalidInput)
		}
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(ctx context.Context, secret, hash string) (bool, error) {
	if secret == "" {
		return false, fmt.Errorf("secret is empty: %w", types.ErrInvalidInput)
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("wait for hash worker: %w", err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	h.observe(ctx, "verify", start)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("failed to verify secret: %w", err)
	}
}

func (h *BcryptHasher) observe(ctx context.Context, op string, start time.Time) {
	if h.metrics == nil || h.metrics.PasswordHashDuration == nil {
		return
	}
	h.metrics.PasswordHashDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("op", op)))
}
