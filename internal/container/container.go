package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/FACorreiaa/taskflow-auth/app/db"
	"github.com/FACorreiaa/taskflow-auth/app/observability/metrics"
	"github.com/FACorreiaa/taskflow-auth/config"
	"github.com/FACorreiaa/taskflow-auth/internal/api/auth"
	"github.com/FACorreiaa/taskflow-auth/internal/api/upload"
	"github.com/FACorreiaa/taskflow-auth/internal/api/user"
	"github.com/FACorreiaa/taskflow-auth/internal/mailer"
	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

// Container holds all application dependencies
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *metrics.AppMetrics

	Store         auth.CredentialStore
	Tokens        auth.TokenService
	AuthService   auth.AuthService
	AuthHandler   *auth.AuthHandler
	UserHandler   *user.HandlerImpl
	UploadHandler *upload.HandlerImpl
	// UploadsDir is set when images live on local disk.
	UploadsDir string

	Authenticate func(next http.Handler) http.Handler
	RequireAdmin func(next http.Handler) http.Handler
}

// NewContainer initializes and returns a new dependency container. A nil
// metrics argument records nothing.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.AppMetrics) (*Container, error) {
	if m == nil {
		m = metrics.Noop()
	}
	c := &Container{Config: cfg, Logger: logger, Metrics: m}

	store, err := c.newStore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store = store

	hasher, err := auth.NewBcryptHasher(auth.HasherConfig{
		Cost:        cfg.Auth.PasswordCost,
		Concurrency: cfg.Auth.HashConcurrency,
	}, m)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	tokens, err := auth.NewJWTTokenService(auth.TokenConfig{
		SecretKey: []byte(cfg.Auth.JWT.SecretKey),
		Issuer:    cfg.Auth.JWT.Issuer,
		TTL:       cfg.Auth.JWT.AccessTokenTTL,
	}, time.Now)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("token service: %w", err)
	}
	c.Tokens = tokens

	mail, err := c.newMailer()
	if err != nil {
		c.Close()
		return nil, err
	}

	c.AuthService = auth.NewAuthService(auth.ServiceDeps{
		Store:    store,
		Hasher:   hasher,
		Tokens:   tokens,
		Resets:   auth.NewResetTokenService(store, hasher, auth.ResetConfig{TTL: cfg.Auth.ResetTokenTTL}, time.Now),
		Policy:   auth.NewRegistrationPolicy(auth.PolicyConfig{AdminInviteToken: cfg.Auth.AdminInviteToken}),
		Throttle: c.newThrottle(),
		Mailer:   mail,
		ResetURL: cfg.Auth.ResetURL,
		Metrics:  m,
	}, logger)
	c.AuthHandler = auth.NewAuthHandler(c.AuthService, logger)
	c.UserHandler = user.NewHandlerImpl(user.NewUserService(store, logger), logger)

	images, err := c.newImageStore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.UploadHandler = upload.NewHandlerImpl(images, cfg.Upload.MaxBytes, logger)

	c.Authenticate = auth.Authenticate(logger, tokens, m)
	c.RequireAdmin = auth.RequireRole(logger, m, types.RoleAdmin)
	return c, nil
}

func (c *Container) newStore(ctx context.Context) (auth.CredentialStore, error) {
	if c.Config.Repositories.Driver == "memory" {
		c.Logger.Warn("Using in-memory credential store; users are lost on restart")
		return auth.NewMemoryCredentialStore(), nil
	}

	dbConfig, err := database.NewDatabaseConfig(c.Config, c.Logger)
	if err != nil {
		return nil, err
	}

	// Run migrations *before* initializing the main pool
	if err := database.RunMigrations(dbConfig.ConnectionURL, c.Logger); err != nil {
		return nil, fmt.Errorf("database migrations: %w", err)
	}

	maxWait := time.Duration(c.Config.Repositories.Postgres.MAXCONWAITINGTIME) * time.Second
	pool, err := database.Init(ctx, dbConfig.ConnectionURL, maxWait, c.Logger)
	if err != nil {
		return nil, err
	}
	c.Pool = pool

	if !database.WaitForDB(ctx, pool, c.Logger) {
		return nil, errors.New("database not ready after waiting")
	}
	return auth.NewPostgresCredentialStore(pool, c.Logger), nil
}

func (c *Container) newThrottle() auth.ResetThrottle {
	cooldown := c.Config.Auth.ResetRequestCooldown
	if c.Config.Auth.Throttle != "redis" {
		return auth.NewMemoryThrottle(cooldown)
	}
	redisCfg := c.Config.Repositories.Redis
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	c.Logger.Info("Reset throttle backed by Redis", slog.String("addr", redisCfg.Addr))
	return auth.NewRedisThrottle(c.Redis, cooldown, "")
}

func (c *Container) newMailer() (mailer.Mailer, error) {
	mc := c.Config.Mail
	if mc.Driver != "smtp" {
		c.Logger.Warn("Reset emails are written to the log; do not use in production")
		return mailer.NewLogMailer(c.Logger), nil
	}
	m, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
		From:     mc.From,
		Host:     mc.Host,
		Port:     mc.Port,
		Username: mc.Username,
		Password: mc.Password,
	}, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("smtp mailer: %w", err)
	}
	return m, nil
}

func (c *Container) newImageStore(ctx context.Context) (upload.ImageStore, error) {
	uc := c.Config.Upload
	if uc.Driver == "s3" {
		s, err := upload.NewS3Store(ctx, uc.S3, uc.PublicBaseURL, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("s3 image store: %w", err)
		}
		return s, nil
	}
	s, err := upload.NewLocalStore(uc.Dir, uc.PublicBaseURL, c.Logger)
	if err != nil {
		return nil, err
	}
	c.UploadsDir = s.Dir()
	return s, nil
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("Failed to close Redis client", slog.Any("error", err))
		}
	}
}
