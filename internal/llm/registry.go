package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/logging"
)

// ProviderError is a failed provider call. Code is the HTTP status when the
// provider answered at all.
type ProviderError struct {
	Provider string
	Message  string
	Code     int
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// provider describes how to build one kind of Client.
type provider struct {
	needsKey bool
	build    func(key, model, endpoint string) Client
}

var providers = map[string]provider{
	"gemini": {
		needsKey: true,
		build:    func(k, m, e string) Client { return NewGeminiAPIClient(k, m, e) },
	},
	"claude": {
		needsKey: true,
		build:    func(k, m, e string) Client { return NewClaudeAPIClient(k, m, e) },
	},
	"echo": {
		build: func(string, string, string) Client { return NewEchoClient() },
	},
}

// NeedsCredential reports whether the named provider requires an API key.
// Unknown providers are assumed to.
func NeedsCredential(name string) bool {
	p, ok := providers[normalizeProvider(name)]
	return !ok || p.needsKey
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Registry is an ordered chain of provider clients. The first entry is the
// primary; the rest are tried in order by FailoverClient.
type Registry struct {
	mu      sync.RWMutex
	names   []string
	clients map[string]Client
	log     *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		log:     log.Sub("llm").Sub("registry"),
	}
}

// Register appends client to the chain under name. Registering a name again
// replaces its client and keeps its position.
func (r *Registry) Register(name string, client Client) {
	name = normalizeProvider(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[name]; !ok {
		r.names = append(r.names, name)
	}
	r.clients[name] = client
	r.log.Debug().Str("provider", name).Int("position", len(r.names)).Msg("provider registered")
}

// Lookup returns the client registered under name.
func (r *Registry) Lookup(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[normalizeProvider(name)]
	return c, ok
}

// Primary returns the first registered provider name, or "".
func (r *Registry) Primary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.names) == 0 {
		return ""
	}
	return r.names[0]
}

// Names returns the chain in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// NewRegistryFromConfig builds the chain from the configured provider
// followed by its fallbacks. credential is the resolved primary API key. A
// fallback may carry its own key in XMLBOT_<PROVIDER>_API_KEY and otherwise
// shares the primary one. Providers that are unknown, or need a key and have
// none, are left out of the chain.
func NewRegistryFromConfig(cfg config.Config, credential string, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	for i, name := range append([]string{cfg.Provider}, cfg.Fallbacks...) {
		name = normalizeProvider(name)
		if _, dup := reg.Lookup(name); dup {
			continue
		}
		p, known := providers[name]
		if !known {
			reg.log.Warn().Str("provider", name).Msg("unknown provider, skipping")
			continue
		}

		model, endpoint, key := config.DefaultModels[name], "", fallbackCredential(name, credential)
		if i == 0 {
			if cfg.Model != "" {
				model = cfg.Model
			}
			endpoint, key = cfg.APIEndpoint, credential
		}
		if p.needsKey && key == "" {
			reg.log.Warn().Str("provider", name).Msg("no API key, skipping")
			continue
		}

		reg.Register(name, p.build(key, model, endpoint))
	}

	return reg
}

func fallbackCredential(name, shared string) string {
	if v := strings.TrimSpace(os.Getenv("XMLBOT_" + strings.ToUpper(name) + "_API_KEY")); v != "" {
		return v
	}
	return shared
}
