package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type discriminates the two bearer token families. A token minted as one
// type never verifies as the other.
type Type string

const (
	// TypeAccess is the short-lived credential presented on API requests.
	TypeAccess Type = "access"
	// TypeRefresh is the long-lived credential exchanged for new pairs.
	TypeRefresh Type = "refresh"
)

var (
	// ErrExpired reports a well-formed, correctly signed token past its
	// expiry (minus leeway).
	ErrExpired = errors.New("token expired")
	// ErrSignature reports a token whose signature does not verify.
	ErrSignature = errors.New("token signature invalid")
	// ErrMalformed reports a token that could not be parsed at all, or
	// whose claims are structurally invalid.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongType reports a valid token presented where the other token
	// type was expected.
	ErrWrongType = errors.New("token type mismatch")
)

// Config holds signing parameters for the codec. Secret must be at least
// 32 bytes; tokens are signed with HMAC-SHA256.
type Config struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Claims is the payload carried by both token types.
type Claims struct {
	Email     string `json:"email,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Codec mints and verifies the signed bearer tokens issued by the engine.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Codec{config: cfg}, nil
}

// MintAccess signs a new access token for the user.
func (c *Codec) MintAccess(userID, email string) (string, error) {
	return c.mint(userID, email, TypeAccess, c.config.AccessTTL)
}

// MintRefresh signs a new refresh token for the user.
func (c *Codec) MintRefresh(userID, email string) (string, error) {
	return c.mint(userID, email, TypeRefresh, c.config.RefreshTTL)
}

func (c *Codec) mint(userID, email string, typ Type, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		Email:     email,
		TokenType: string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.config.Issuer,
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.Secret)
}

// VerifyAccess parses and validates an access token.
func (c *Codec) VerifyAccess(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, TypeAccess)
}

// VerifyRefresh parses and validates a refresh token.
func (c *Codec) VerifyRefresh(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, TypeRefresh)
}

func (c *Codec) verify(tokenStr string, want Type) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.config.Secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrMalformed)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if claims.TokenType != string(want) {
		return nil, ErrWrongType
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrSignature
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
