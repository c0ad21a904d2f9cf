package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	authcore "github.com/finity-labs/authcore"
)

// LinkStore implements [authcore.LinkStore] on an oauth_links table. The
// primary key holds (provider, provider_user_id) unique; a second unique
// index keeps one link per provider per user.
type LinkStore struct {
	db *sql.DB
}

func NewLinkStore(db *sql.DB) *LinkStore {
	return &LinkStore{db: db}
}

func (s *LinkStore) FindUser(ctx context.Context, provider, providerUserID string) (string, error) {
	query := `SELECT user_id FROM oauth_links WHERE provider = $1 AND provider_user_id = $2`

	var userID string
	err := s.db.QueryRowContext(ctx, query, provider, providerUserID).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", authcore.ErrLinkNotFound
		}
		return "", fmt.Errorf("query link: %w", err)
	}
	return userID, nil
}

func (s *LinkStore) Create(ctx context.Context, link *authcore.OAuthLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO oauth_links (user_id, provider, provider_user_id, email, created_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, query,
		link.UserID, link.Provider, link.ProviderUserID,
		strings.ToLower(link.Email), link.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrConflict
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}
