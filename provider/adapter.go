package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	httpTimeout     = 10 * time.Second
	maxIdentityBody = 1 << 20
)

var (
	// ErrExchangeRejected reports that the provider refused the
	// authorization code (expired, replayed, or issued for another client).
	ErrExchangeRejected = errors.New("provider rejected authorization code")
	// ErrProviderUnavailable reports a network failure, timeout, or 5xx
	// from the provider.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrMalformedResponse reports a provider payload that could not be
	// decoded.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrIdentityRejected reports that the provider refused the access
	// token during the identity fetch.
	ErrIdentityRejected = errors.New("provider rejected access token")
	// ErrEmailNotAvailable reports an identity payload with no usable
	// email address.
	ErrEmailNotAvailable = errors.New("provider identity has no email")
)

// Identity is the normalized subset of a provider's user-info payload that
// account resolution needs.
type Identity struct {
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
}

// Adapter abstracts one upstream OAuth2 provider. Implementations are
// stateless and safe for concurrent use.
type Adapter interface {
	// Name returns the lowercase provider key ("google", "discord", ...).
	Name() string
	// AuthorizationURL builds the provider consent URL carrying state.
	AuthorizationURL(state string) string
	// Exchange swaps an authorization code for a provider access token.
	Exchange(ctx context.Context, code string) (string, error)
	// FetchIdentity resolves the access token to the external identity.
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// Config carries the per-provider client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Configured reports whether the registration is complete enough to build
// an adapter.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

// restAdapter implements Adapter for providers that expose a JSON
// user-info endpoint authenticated with a bearer token. The per-provider
// constructors supply endpoints, scopes, and the payload decoder.
type restAdapter struct {
	name           string
	oauth          *oauth2.Config
	userInfoURL    string
	authParams     []oauth2.AuthCodeOption
	exchangeParams []oauth2.AuthCodeOption
	decode         func([]byte) (*Identity, error)
	client         *http.Client
}

func newRESTAdapter(
	name string,
	oauthCfg *oauth2.Config,
	userInfoURL string,
	decode func([]byte) (*Identity, error),
) *restAdapter {
	return &restAdapter{
		name:        name,
		oauth:       oauthCfg,
		userInfoURL: userInfoURL,
		decode:      decode,
		client:      &http.Client{Timeout: httpTimeout},
	}
}

func (a *restAdapter) Name() string {
	return a.name
}

func (a *restAdapter) AuthorizationURL(state string) string {
	return a.oauth.AuthCodeURL(state, a.authParams...)
}

func (a *restAdapter) Exchange(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)

	tok, err := a.oauth.Exchange(ctx, code, a.exchangeParams...)
	if err != nil {
		return "", classifyExchangeError(err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrMalformedResponse)
	}

	return tok.AccessToken, nil
}

func (a *restAdapter) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrIdentityRejected, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	identity, err := a.decode(body)
	if err != nil {
		return nil, err
	}
	if identity.ProviderUserID == "" {
		return nil, fmt.Errorf("%w: missing subject id", ErrMalformedResponse)
	}
	if identity.Email == "" {
		return nil, ErrEmailNotAvailable
	}

	return identity, nil
}

func classifyExchangeError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", ErrProviderUnavailable, rerr.Response.StatusCode)
		}
		return fmt.Errorf("%w: %s", ErrExchangeRejected, rerr.ErrorCode)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func decodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
