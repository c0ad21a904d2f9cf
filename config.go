package authcore

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config is the full engine configuration tree. Zero values are filled
// from defaultConfig by the Builder; Validate runs before the engine is
// assembled.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	Ledger   LedgerConfig
	Login    LoginConfig
	Account  AccountConfig
	OAuth    OAuthConfig
	Throttle ThrottleConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// JWTConfig tunes the bearer token codec.
type JWTConfig struct {
	// SigningSecret is the process-wide HMAC key. Minimum 32 bytes.
	SigningSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

// PasswordConfig tunes the Argon2id hasher.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// UpgradeOnLogin re-hashes passwords stored with weaker parameters
	// on the next successful login.
	UpgradeOnLogin bool
}

// LedgerConfig tunes the single-use email token ledger.
type LedgerConfig struct {
	// RedisPrefix namespaces ledger keys.
	RedisPrefix string
	// VerificationTTL bounds email verification tokens.
	VerificationTTL time.Duration
	// ResetTTL bounds password reset tokens.
	ResetTTL time.Duration
}

// LoginConfig tunes password login behavior.
type LoginConfig struct {
	// RequireVerified blocks password login until the email is verified.
	RequireVerified bool
}

// AccountConfig tunes registration behavior.
type AccountConfig struct {
	// AutoLogin issues a token pair directly from Register.
	AutoLogin bool
	// DefaultRole is assigned to self-registered accounts.
	DefaultRole Role
	// RequireTerms rejects registration without an explicit terms
	// agreement.
	RequireTerms bool
}

// OAuthConfig tunes the provider flows.
type OAuthConfig struct {
	// FrontendURL is the base the login redirect helpers point at.
	FrontendURL string
}

// ThrottleConfig tunes the Redis rate limiters. Enabled gates all of them.
type ThrottleConfig struct {
	Enabled            bool
	EnableIPThrottle   bool
	MaxLoginAttempts   int
	LoginCooldown      time.Duration
	MaxEmailRequests   int
	EmailRequestWindow time.Duration
	// MaxCallbackFailures bounds failed OAuth callbacks per client IP
	// inside CallbackFailureWindow. Zero disables the budget.
	MaxCallbackFailures   int
	CallbackFailureWindow time.Duration
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking the request path.
	DropIfFull bool
}

// MetricsConfig tunes the in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers must still set
// JWT.SigningSecret before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:     "authcore",
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Ledger: LedgerConfig{
			RedisPrefix:     "ac",
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        1 * time.Hour,
		},
		Login: LoginConfig{
			RequireVerified: false,
		},
		Account: AccountConfig{
			AutoLogin:    true,
			DefaultRole:  RoleUser,
			RequireTerms: true,
		},
		Throttle: ThrottleConfig{
			Enabled:               false,
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldown:         15 * time.Minute,
			MaxEmailRequests:      3,
			EmailRequestWindow:    1 * time.Hour,
			MaxCallbackFailures:   10,
			CallbackFailureWindow: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningSecret = cloneBytes(cfg.JWT.SigningSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
ENVIRONMENT
====================================
*/

// ConfigFromEnv overlays defaults with the conventional environment
// variables:
//
//	SECRET                     signing secret (required for a usable engine)
//	JWT_ISSUER                 token issuer
//	ACCESS_TOKEN_EXPIRE_MIN    access TTL in minutes
//	REFRESH_TOKEN_EXPIRE_DAYS  refresh TTL in days
//	FRONTEND_URL               base URL for login redirects
//
// Provider registrations are read separately by provider.RegistryFromEnv.
func ConfigFromEnv() Config {
	cfg := defaultConfig()

	if v := os.Getenv("SECRET"); v != "" {
		cfg.JWT.SigningSecret = []byte(v)
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v, ok := envInt("ACCESS_TOKEN_EXPIRE_MIN"); ok {
		cfg.JWT.AccessTTL = time.Duration(v) * time.Minute
	}
	if v, ok := envInt("REFRESH_TOKEN_EXPIRE_DAYS"); ok {
		cfg.JWT.RefreshTTL = time.Duration(v) * 24 * time.Hour
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.OAuth.FrontendURL = v
	}

	return cfg
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the engine cannot operate
// with. It is called by the Builder before assembly.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.SigningSecret) < 32 {
		return errors.New("JWT SigningSecret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must not be shorter than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Ledger
	if c.Ledger.RedisPrefix == "" {
		return errors.New("Ledger RedisPrefix must not be empty")
	}
	if c.Ledger.VerificationTTL <= 0 {
		return errors.New("Ledger VerificationTTL must be > 0")
	}
	if c.Ledger.ResetTTL <= 0 {
		return errors.New("Ledger ResetTTL must be > 0")
	}

	// Account
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole is invalid")
	}

	// Throttle
	if c.Throttle.Enabled {
		if c.Throttle.MaxLoginAttempts <= 0 {
			return errors.New("Throttle MaxLoginAttempts must be > 0")
		}
		if c.Throttle.LoginCooldown <= 0 {
			return errors.New("Throttle LoginCooldown must be > 0")
		}
		if c.Throttle.MaxEmailRequests < 0 {
			return errors.New("Throttle MaxEmailRequests must be >= 0")
		}
		if c.Throttle.MaxEmailRequests > 0 && c.Throttle.EmailRequestWindow <= 0 {
			return errors.New("Throttle EmailRequestWindow must be > 0")
		}
		if c.Throttle.MaxCallbackFailures < 0 {
			return errors.New("Throttle MaxCallbackFailures must be >= 0")
		}
		if c.Throttle.MaxCallbackFailures > 0 && c.Throttle.CallbackFailureWindow <= 0 {
			return errors.New("Throttle CallbackFailureWindow must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
