package metrics

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	LoginTotal              metric.Int64Counter
	RegisterTotal           metric.Int64Counter
	PasswordResetTotal      metric.Int64Counter
	PasswordHashDuration    metric.Float64Histogram
	AuthorizationRejections metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// NewAppMetrics builds the instruments from the given meter.
func NewAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var err error
	m := &AppMetrics{}

	m.LoginTotal, err = meter.Int64Counter(
		"auth_login_total",
		metric.WithDescription("Total number of login attempts by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create auth_login_total: %w", err)
	}

	m.RegisterTotal, err = meter.Int64Counter(
		"auth_register_total",
		metric.WithDescription("Total number of registrations by outcome and granted role"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create auth_register_total: %w", err)
	}

	m.PasswordResetTotal, err = meter.Int64Counter(
		"auth_password_reset_total",
		metric.WithDescription("Password reset requests and confirmations by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create auth_password_reset_total: %w", err)
	}

	m.PasswordHashDuration, err = meter.Float64Histogram(
		"password_hash_duration_seconds",
		metric.WithDescription("Duration of bcrypt hash and verify operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create password_hash_duration_seconds: %w", err)
	}

	m.AuthorizationRejections, err = meter.Int64Counter(
		"auth_rejections_total",
		metric.WithDescription("Requests rejected by the authorization middleware"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create auth_rejections_total: %w", err)
	}

	return m, nil
}

// Noop returns instruments that record nothing.
func Noop() *AppMetrics {
	m, err := NewAppMetrics(noop.NewMeterProvider().Meter("noop"))
	if err != nil {
		panic(err)
	}
	return m
}

// InitAppMetrics initializes the global metrics instruments ONLY ONCE,
// from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("taskflow-auth")
		m, err := NewAppMetrics(meter)
		if err != nil {
			log.Fatalf("Metrics: %v", err)
		}
		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}

// Outcome records a single counter increment tagged with an outcome.
// A nil AppMetrics or counter is a no-op.
func Outcome(ctx context.Context, c metric.Int64Counter, outcome string, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	attrs = append(attrs, attribute.String("outcome", outcome))
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}
