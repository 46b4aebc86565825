package user

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/taskflow-auth/internal/api/auth"
	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

// Ensure implementation satisfies the interface
var _ UserService = (*UserServiceImpl)(nil)

// UserService defines the administration contract over user records.
type UserService interface {
	ListUsers(ctx context.Context) ([]types.User, error)
	GetUser(ctx context.Context, userID string) (*types.User, error)
	// DeleteUser removes an account. Bearer tokens already issued to it stay
	// valid until they expire; its pending reset token dies with the record.
	DeleteUser(ctx context.Context, userID string) error
}

// UserServiceImpl provides the implementation for UserService.
type UserServiceImpl struct {
	logger *slog.Logger
	store  auth.CredentialStore
}

// NewUserService creates a new user service instance.
func NewUserService(store auth.CredentialStore, logger *slog.Logger) *UserServiceImpl {
	return &UserServiceImpl{
		logger: logger,
		store:  store,
	}
}

func (s *UserServiceImpl) ListUsers(ctx context.Context) ([]types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "ListUsers")
	defer span.End()

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list users failed")
		return nil, err
	}
	if users == nil {
		users = []types.User{}
	}
	span.SetAttributes(attribute.Int("users.count", len(users)))
	return users, nil
}

func (s *UserServiceImpl) GetUser(ctx context.Context, userID string) (*types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "GetUser", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return u, nil
}

func (s *UserServiceImpl) DeleteUser(ctx context.Context, userID string) error {
	ctx, span := otel.Tracer("UserService").Start(ctx, "DeleteUser", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.InfoContext(ctx, "User deleted by admin", slog.String("userID", userID))
	return nil
}
