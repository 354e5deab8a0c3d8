package proxy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds a ClientProxy from cfg. Each transport supplies one.
type Factory func(cfg Config) (ClientProxy, error)

// Registry maps transport names to factories. It is safe for concurrent use.
// Most code uses the package-level functions, which share one Registry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds factory under name. Panics if name is taken: two transports
// claiming one name is a build mistake, not a runtime condition.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.factories[name]; taken {
		panic(fmt.Sprintf("proxy: transport %q registered twice", name))
	}
	r.factories[name] = factory
}

// New builds a proxy with the transport called name. An unknown name yields
// ErrUnknownTransport listing the transports that are registered.
func (r *Registry) New(name string, cfg Config) (ClientProxy, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownTransport, name, strings.Join(r.Available(), ", "))
	}
	return factory(cfg)
}

// Available returns the registered transport names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether name has a factory.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

var defaultRegistry = NewRegistry()

// Register adds a transport to the shared registry. Transports call it
// from init:
//
//	func init() {
//	    proxy.Register(TransportName, newFromProxyConfig)
//	}
func Register(name string, factory Factory) { defaultRegistry.Register(name, factory) }

// New builds a proxy from the shared registry.
func New(name string, cfg Config) (ClientProxy, error) { return defaultRegistry.New(name, cfg) }

// NewFromConfig builds a proxy with the transport named by cfg.Transport.
func NewFromConfig(cfg Config) (ClientProxy, error) { return New(cfg.Transport, cfg) }

// Available lists the transports in the shared registry.
func Available() []string { return defaultRegistry.Available() }

// IsRegistered reports whether the shared registry knows name.
func IsRegistered(name string) bool { return defaultRegistry.IsRegistered(name) }
