package authcore

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// fakeUserStore is a mutex-guarded map store. Tests mutate accounts through
// mustGet/put to simulate out-of-band state changes (deactivation, role
// edits) between engine calls.
type fakeUserStore struct {
	mu   sync.Mutex
	byID map[string]*User

	failFinds bool
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: map[string]*User{}}
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFinds {
		return nil, errStoreDown
	}
	if u, ok := s.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFinds {
		return nil, errStoreDown
	}
	for _, u := range s.byID {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) FindByUsername(_ context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFinds {
		return nil, errStoreDown
	}
	for _, u := range s.byID {
		if u.Username != "" && strings.EqualFold(u.Username, username) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrConflict
		}
		if user.Username != "" && strings.EqualFold(u.Username, user.Username) {
			return ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	clone := *user
	s.byID[user.ID] = &clone
	return nil
}

func (s *fakeUserStore) Save(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[user.ID]; !ok {
		return ErrUserNotFound
	}
	clone := *user
	s.byID[user.ID] = &clone
	return nil
}

func (s *fakeUserStore) mustGet(t *testing.T, id string) *User {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		t.Fatalf("user %q not in store", id)
	}
	clone := *u
	return &clone
}

func (s *fakeUserStore) put(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *u
	s.byID[u.ID] = &clone
}

var errStoreDown = &storeDownError{}

type storeDownError struct{}

func (*storeDownError) Error() string { return "store down" }

type fakeLinkStore struct {
	mu         sync.Mutex
	byIdentity map[string]string
	byUser     map[string]struct{}
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{
		byIdentity: map[string]string{},
		byUser:     map[string]struct{}{},
	}
}

func (s *fakeLinkStore) FindUser(_ context.Context, provider, providerUserID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID, ok := s.byIdentity[provider+"/"+providerUserID]; ok {
		return userID, nil
	}
	return "", ErrLinkNotFound
}

func (s *fakeLinkStore) Create(_ context.Context, link *OAuthLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identityKey := link.Provider + "/" + link.ProviderUserID
	userKey := link.Provider + "/" + link.UserID
	if _, ok := s.byIdentity[identityKey]; ok {
		return ErrConflict
	}
	if _, ok := s.byUser[userKey]; ok {
		return ErrConflict
	}
	s.byIdentity[identityKey] = link.UserID
	s.byUser[userKey] = struct{}{}
	return nil
}

// recordingSender captures outgoing mail so tests can redeem the tokens the
// engine issued.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

type sentMail struct {
	To    string
	Kind  EmailKind
	Token string
}

func (s *recordingSender) Send(_ context.Context, to string, kind EmailKind, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	s.sent = append(s.sent, sentMail{To: to, Kind: kind, Token: token})
	return nil
}

func (s *recordingSender) lastOfKind(kind EmailKind) (sentMail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Kind == kind {
			return s.sent[i], true
		}
	}
	return sentMail{}, false
}

func (s *recordingSender) countOfKind(kind EmailKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.sent {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// testConfig returns a config with a valid secret and Argon2 parameters
// cheap enough for test runs.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type engineFixture struct {
	engine *Engine
	users  *fakeUserStore
	links  *fakeLinkStore
	sender *recordingSender
	redis  *miniredis.Miniredis
}

func buildEngine(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *engineFixture {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	users := newFakeUserStore()
	links := newFakeLinkStore()
	sender := &recordingSender{}

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithLinkStore(links).
		WithEmailSender(sender).
		WithMetricsEnabled(true)
	for _, opt := range opts {
		opt(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineFixture{engine: engine, users: users, links: links, sender: sender, redis: mr}
}

func (f *engineFixture) register(t *testing.T, email, pass string) *RegisterResult {
	t.Helper()

	res, err := f.engine.Register(context.Background(), RegisterInput{
		Email:         email,
		Password:      pass,
		AgreedToTerms: true,
	})
	if err != nil {
		t.Fatalf("Register(%q) failed: %v", email, err)
	}
	return res
}

// registerVerified registers and flips the account to verified directly in
// the store.
func (f *engineFixture) registerVerified(t *testing.T, email, pass string) *User {
	t.Helper()

	res := f.register(t, email, pass)
	user := f.users.mustGet(t, res.User.ID)
	user.Verified = true
	f.users.put(user)
	return user
}
