// Package memory provides in-memory implementations of authcore's storage
// interfaces for tests, examples, and local development. Not for production.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	authcore "github.com/finity-labs/authcore"
)

// UserStore is a mutex-guarded map of accounts keyed by ID. Email and
// username uniqueness are enforced case-insensitively, mirroring the
// Postgres schema.
type UserStore struct {
	mu   sync.Mutex
	byID map[string]*authcore.User
}

func NewUserStore() *UserStore {
	return &UserStore{byID: map[string]*authcore.User{}}
}

func (s *UserStore) FindByID(_ context.Context, id string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, authcore.ErrUserNotFound
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, authcore.ErrUserNotFound
}

func (s *UserStore) FindByUsername(_ context.Context, username string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Username != "" && strings.EqualFold(u.Username, username) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, authcore.ErrUserNotFound
}

func (s *UserStore) Create(_ context.Context, user *authcore.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if strings.EqualFold(u.Email, user.Email) {
			return authcore.ErrConflict
		}
		if user.Username != "" && strings.EqualFold(u.Username, user.Username) {
			return authcore.ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	clone := *user
	s.byID[user.ID] = &clone
	return nil
}

func (s *UserStore) Save(_ context.Context, user *authcore.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[user.ID]; !ok {
		return authcore.ErrUserNotFound
	}
	clone := *user
	s.byID[user.ID] = &clone
	return nil
}

// LinkStore keeps OAuth links keyed by (provider, provider user ID) with the
// same one-link-per-provider-per-user constraint as the Postgres schema.
type LinkStore struct {
	mu         sync.Mutex
	byIdentity map[string]string
	byUser     map[string]struct{}
}

func NewLinkStore() *LinkStore {
	return &LinkStore{
		byIdentity: map[string]string{},
		byUser:     map[string]struct{}{},
	}
}

func (s *LinkStore) FindUser(_ context.Context, provider, providerUserID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID, ok := s.byIdentity[provider+"\x00"+providerUserID]; ok {
		return userID, nil
	}
	return "", authcore.ErrLinkNotFound
}

func (s *LinkStore) Create(_ context.Context, link *authcore.OAuthLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identityKey := link.Provider + "\x00" + link.ProviderUserID
	userKey := link.Provider + "\x00" + link.UserID
	if _, ok := s.byIdentity[identityKey]; ok {
		return authcore.ErrConflict
	}
	if _, ok := s.byUser[userKey]; ok {
		return authcore.ErrConflict
	}
	s.byIdentity[identityKey] = link.UserID
	s.byUser[userKey] = struct{}{}
	return nil
}
