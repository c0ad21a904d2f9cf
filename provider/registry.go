package provider

import (
	"os"
	"sort"
	"strings"
)

// Registry is an immutable name-to-adapter map built once at startup.
// Lookups after construction never mutate it, so it is safe for
// concurrent use without locking.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a Registry from the given adapters. Later adapters
// with a duplicate name replace earlier ones.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		m[strings.ToLower(a.Name())] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[strings.ToLower(name)]
	return a, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryFromEnv builds a Registry from <PROVIDER>_CLIENT_ID and
// <PROVIDER>_CLIENT_SECRET environment variables. Providers without a
// complete registration are skipped. The redirect URL for each provider
// is redirectBase + "/" + name + "/callback".
func RegistryFromEnv(redirectBase string) *Registry {
	redirectBase = strings.TrimRight(redirectBase, "/")

	build := func(envPrefix, name string, ctor func(Config) Adapter) Adapter {
		cfg := Config{
			ClientID:     os.Getenv(envPrefix + "_CLIENT_ID"),
			ClientSecret: os.Getenv(envPrefix + "_CLIENT_SECRET"),
			RedirectURL:  redirectBase + "/" + name + "/callback",
		}
		if !cfg.Configured() {
			return nil
		}
		return ctor(cfg)
	}

	return NewRegistry(
		build("GOOGLE", "google", NewGoogle),
		build("DISCORD", "discord", NewDiscord),
		build("FACEBOOK", "facebook", NewFacebook),
		build("TWITTER", "twitter", NewTwitter),
	)
}
