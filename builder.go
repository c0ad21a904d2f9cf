package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/finity-labs/authcore/internal/rate"
	"github.com/finity-labs/authcore/password"
	"github.com/finity-labs/authcore/provider"
	"github.com/finity-labs/authcore/token"
)

// Builder assembles an [Engine] from configuration and collaborators.
// A Builder is single-use: Build succeeds at most once.
type Builder struct {
	config Config
	redis  *redis.Client

	users     UserStore
	links     LinkStore
	providers *provider.Registry
	email     EmailSender
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The config is copied; later
// mutation of cfg does not affect the builder.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the token ledger and throttles.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the account persistence backend. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithLinkStore sets the OAuth link persistence backend. Required only
// when OAuth providers are registered.
func (b *Builder) WithLinkStore(store LinkStore) *Builder {
	b.links = store
	return b
}

// WithProviders sets the immutable OAuth provider registry.
func (b *Builder) WithProviders(registry *provider.Registry) *Builder {
	b.providers = registry
	return b
}

// WithEmailSender sets the outbound mail collaborator. Without one, the
// engine still issues tokens but delivery is skipped and audited as a
// failure.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.email = sender
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the subsystems, and returns a
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.providers != nil && len(b.providers.Names()) > 0 && b.links == nil {
		return nil, errors.New("link store required when providers are registered")
	}

	engine := &Engine{
		config:    cfg,
		users:     b.users,
		links:     b.links,
		providers: b.providers,
		email:     b.email,
	}

	engine.ledger = newTokenLedger(b.redis, cfg.Ledger.RedisPrefix)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	if cfg.Throttle.Enabled {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Throttle.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Throttle.MaxLoginAttempts,
			LoginCooldown:         cfg.Throttle.LoginCooldown,
			MaxEmailRequests:      cfg.Throttle.MaxEmailRequests,
			EmailRequestWindow:    cfg.Throttle.EmailRequestWindow,
			MaxCallbackFailures:   cfg.Throttle.MaxCallbackFailures,
			CallbackFailureWindow: cfg.Throttle.CallbackFailureWindow,
		})
	}

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	codec, err := token.NewCodec(token.Config{
		Secret:     cloneBytes(cfg.JWT.SigningSecret),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Leeway:     cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	b.built = true

	return engine, nil
}
