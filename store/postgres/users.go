package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	authcore "github.com/finity-labs/authcore"
)

// UserStore implements [authcore.UserStore] on a users table. Email and
// username uniqueness are enforced case-insensitively by the schema.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, username, full_name, password_digest, role, active, verified, created_at, updated_at`

func (s *UserStore) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*authcore.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower($1)`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

// Create inserts the account and assigns its ID. A unique-index violation on
// email or username maps to [authcore.ErrConflict].
func (s *UserStore) Create(ctx context.Context, user *authcore.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `INSERT INTO users (` + userColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, strings.ToLower(user.Email), nullableString(user.Username),
		user.FullName, user.PasswordDigest, string(user.Role),
		user.Active, user.Verified, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Save persists all mutable fields of an existing account.
func (s *UserStore) Save(ctx context.Context, user *authcore.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := `UPDATE users
	          SET email = $2, username = $3, full_name = $4, password_digest = $5,
	              role = $6, active = $7, verified = $8, updated_at = $9
	          WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query,
		user.ID, strings.ToLower(user.Email), nullableString(user.Username),
		user.FullName, user.PasswordDigest, string(user.Role),
		user.Active, user.Verified, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) scanUser(row *sql.Row) (*authcore.User, error) {
	var (
		u        authcore.User
		username sql.NullString
		role     string
	)
	err := row.Scan(&u.ID, &u.Email, &username, &u.FullName, &u.PasswordDigest,
		&role, &u.Active, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.Username = username.String
	u.Role = authcore.Role(role)
	return &u, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
