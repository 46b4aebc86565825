package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

var _ CredentialStore = (*PostgresCredentialStore)(nil)

// CredentialStore owns the durable user record. Every method is atomic at
// the level of a single user.
type CredentialStore interface {
	// FindByEmail looks a user up case-insensitively. Returns types.ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*types.User, error)
	// FindByID returns types.ErrNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (*types.User, error)
	// Create inserts a user, failing with types.ErrConflict when the email
	// is taken. The uniqueness check and insert are one atomic step.
	Create(ctx context.Context, params types.NewUserParams) (*types.User, error)
	// UpdateProfile applies the non-nil fields. Returns types.ErrNotFound or
	// types.ErrConflict if the new email belongs to someone else.
	UpdateProfile(ctx context.Context, id string, params types.UpdateProfileParams) (*types.User, error)
	// SetResetToken overwrites any pending reset token of the user.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	// ConsumeResetToken clears the pending token if it still has tokenHash
	// and reports whether it did. Repeating it is harmless.
	ConsumeResetToken(ctx context.Context, id, tokenHash string) (bool, error)
	// ClearExpiredResetToken clears the pending token only if it expired at
	// or before now.
	ClearExpiredResetToken(ctx context.Context, id string, now time.Time) error
	// ListUsers returns every user, oldest first.
	ListUsers(ctx context.Context) ([]types.User, error)
	// DeleteUser removes the record. Returns types.ErrNotFound.
	DeleteUser(ctx context.Context, id string) error
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, display_name, password_hash, role, profile_image_url,
	reset_token_hash, reset_token_expires_at, created_at, updated_at`

const pgUniqueViolation = "23505"

type PostgresCredentialStore struct {
	logger *slog.Logger
	db     DB
}

func NewPostgresCredentialStore(db DB, logger *slog.Logger) *PostgresCredentialStore {
	return &PostgresCredentialStore{
		logger: logger,
		db:     db,
	}
}

func startSpan(ctx context.Context, name, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", "users"),
	}, attrs...)
	return otel.Tracer("CredentialStore").Start(ctx, name, trace.WithAttributes(attrs...))
}

// unavailable tags an unexpected driver error so the HTTP layer answers 503.
func unavailable(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	return fmt.Errorf("%s: %w: %w", op, types.ErrUnavailable, err)
}

func parseUserID(id string) (uuid.UUID, bool) {
	uid, err := uuid.Parse(id)
	return uid, err == nil
}

func scanUser(row pgx.Row) (*types.User, error) {
	var (
		u          types.User
		id         uuid.UUID
		role       string
		resetHash  *string
		resetUntil *time.Time
	)
	err := row.Scan(&id, &u.Email, &u.DisplayName, &u.SecretHash, &role, &u.ProfileImageRef,
		&resetHash, &resetUntil, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ID = id.String()
	if u.Role, err = types.ParseRole(role); err != nil {
		return nil, err
	}
	if resetHash != nil && resetUntil != nil {
		u.ResetToken = &types.ResetToken{TokenHash: *resetHash, ExpiresAt: *resetUntil}
	}
	return &u, nil
}

func (r *PostgresCredentialStore) FindByEmail(ctx context.Context, email string) (*types.User, error) {
	ctx, span := startSpan(ctx, "FindByEmail", "SELECT")
	defer span.End()

	u, err := scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(email) = $1",
		types.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, unavailable(span, "find user by email", err)
	}
	return u, nil
}

func (r *PostgresCredentialStore) FindByID(ctx context.Context, id string) (*types.User, error) {
	ctx, span := startSpan(ctx, "FindByID", "SELECT", attribute.String("db.user.id", id))
	defer span.End()

	uid, ok := parseUserID(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	u, err := scanUser(r.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, unavailable(span, "find user by id", err)
	}
	return u, nil
}

func (r *PostgresCredentialStore) Create(ctx context.Context, params types.NewUserParams) (*types.User, error) {
	ctx, span := startSpan(ctx, "Create", "INSERT")
	defer span.End()

	// The unique index on lower(email) makes check-and-insert atomic.
	u, err := scanUser(r.db.QueryRow(ctx,
		`INSERT INTO users (email, display_name, password_hash, role, profile_image_url)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		types.NormalizeEmail(params.Email), params.DisplayName, params.SecretHash,
		params.Role.String(), params.ProfileImageRef))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("email already registered: %w", types.ErrConflict)
		}
		return nil, unavailable(span, "insert user", err)
	}
	r.logger.InfoContext(ctx, "User created", slog.String("userID", u.ID), slog.String("role", u.Role.String()))
	return u, nil
}

func (r *PostgresCredentialStore) UpdateProfile(ctx context.Context, id string, params types.UpdateProfileParams) (*types.User, error) {
	ctx, span := startSpan(ctx, "UpdateProfile", "UPDATE", attribute.String("db.user.id", id))
	defer span.End()

	if params.IsEmpty() {
		return r.FindByID(ctx, id)
	}
	uid, ok := parseUserID(id)
	if !ok {
		return nil, types.ErrNotFound
	}

	var setClauses []string
	var args []any
	argID := 1

	if params.DisplayName != nil {
		setClauses = append(setClauses, fmt.Sprintf("display_name = $%d", argID))
		args = append(args, *params.DisplayName)
		argID++
		span.SetAttributes(attribute.Bool("update.display_name", true))
	}
	if params.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argID))
		args = append(args, types.NormalizeEmail(*params.Email))
		argID++
		span.SetAttributes(attribute.Bool("update.email", true))
	}
	if params.SecretHash != nil {
		setClauses = append(setClauses, fmt.Sprintf("password_hash = $%d", argID))
		args = append(args, *params.SecretHash)
		argID++
		span.SetAttributes(attribute.Bool("update.secret", true))
	}
	if params.ProfileImageRef != nil {
		setClauses = append(setClauses, fmt.Sprintf("profile_image_url = $%d", argID))
		args = append(args, *params.ProfileImageRef)
		argID++
		span.SetAttributes(attribute.Bool("update.profile_image_url", true))
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, uid)

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argID, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, types.ErrNotFound
		case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
			return nil, fmt.Errorf("email already registered: %w", types.ErrConflict)
		default:
			return nil, unavailable(span, "update profile", err)
		}
	}
	return u, nil
}

func (r *PostgresCredentialStore) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	ctx, span := startSpan(ctx, "SetResetToken", "UPDATE", attribute.String("db.user.id", id))
	defer span.End()

	uid, ok := parseUserID(id)
	if !ok {
		return types.ErrNotFound
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET reset_token_hash = $1, reset_token_expires_at = $2, updated_at = now()
		 WHERE id = $3`,
		tokenHash, expiresAt, uid)
	if err != nil {
		return unavailable(span, "set reset token", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresCredentialStore) ConsumeResetToken(ctx context.Context, id, tokenHash string) (bool, error) {
	ctx, span := startSpan(ctx, "ConsumeResetToken", "UPDATE", attribute.String("db.user.id", id))
	defer span.End()

	uid, ok := parseUserID(id)
	if !ok {
		return false, nil
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = now()
		 WHERE id = $1 AND reset_token_hash = $2`,
		uid, tokenHash)
	if err != nil {
		return false, unavailable(span, "consume reset token", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresCredentialStore) ClearExpiredResetToken(ctx context.Context, id string, now time.Time) error {
	ctx, span := startSpan(ctx, "ClearExpiredResetToken", "UPDATE", attribute.String("db.user.id", id))
	defer span.End()

	uid, ok := parseUserID(id)
	if !ok {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE users SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = now()
		 WHERE id = $1 AND reset_token_expires_at IS NOT NULL AND reset_token_expires_at <= $2`,
		uid, now)
	if err != nil {
		return unavailable(span, "clear expired reset token", err)
	}
	return nil
}

func (r *PostgresCredentialStore) ListUsers(ctx context.Context) ([]types.User, error) {
	ctx, span := startSpan(ctx, "ListUsers", "SELECT")
	defer span.End()

	rows, err := r.db.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, unavailable(span, "list users", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, unavailable(span, "scan user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(span, "iterate users", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(users)))
	return users, nil
}

func (r *PostgresCredentialStore) DeleteUser(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "DeleteUser", "DELETE", attribute.String("db.user.id", id))
	defer span.End()

	uid, ok := parseUserID(id)
	if !ok {
		return types.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, "DELETE FROM users WHERE id = $1", uid)
	if err != nil {
		return unavailable(span, "delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	r.logger.InfoContext(ctx, "User deleted", slog.String("userID", id))
	return nil
}
