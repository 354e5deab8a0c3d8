// Package clientmanager keeps track of the client proxies available to a
// server.
//
// The manager is where client identifiers become unique: Register refuses a
// second proxy with the same CID. Proxies themselves never check.
package clientmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/randalmurphal/fedkit/proxy"
)

// Sentinel errors for manager operations.
var (
	// ErrDuplicateCID indicates a proxy with the same CID is already registered.
	ErrDuplicateCID = errors.New("duplicate client id")

	// ErrEmptyCID indicates a proxy without a CID.
	ErrEmptyCID = errors.New("empty client id")

	// ErrNotEnoughClients indicates fewer proxies are registered than requested.
	ErrNotEnoughClients = errors.New("not enough clients")
)

// Manager is a registry of client proxies keyed by CID.
// It is safe for concurrent use.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]proxy.ClientProxy
	changed chan struct{} // Closed and replaced on every registration change
	rng     *rand.Rand
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for registration events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRand sets the random source used by Sample.
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) { m.rng = r }
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:  slog.Default(),
		clients: make(map[string]proxy.ClientProxy),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds p. Returns ErrEmptyCID or ErrDuplicateCID when p cannot be
// registered under its CID.
func (m *Manager) Register(p proxy.ClientProxy) error {
	cid := p.CID()
	if cid == "" {
		return ErrEmptyCID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[cid]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCID, cid)
	}
	m.clients[cid] = p
	m.notifyLocked()

	m.logger.Debug("client registered",
		slog.String("cid", cid),
		slog.String("transport", p.Transport()),
		slog.Int("clients", len(m.clients)))
	return nil
}

// Unregister removes the proxy registered under cid and returns it.
// The proxy is not closed. Returns false if cid is unknown.
func (m *Manager) Unregister(cid string) (proxy.ClientProxy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.clients[cid]
	if !ok {
		return nil, false
	}
	delete(m.clients, cid)
	m.notifyLocked()

	m.logger.Debug("client unregistered",
		slog.String("cid", cid),
		slog.Int("clients", len(m.clients)))
	return p, true
}

// Get returns the proxy registered under cid.
func (m *Manager) Get(cid string) (proxy.ClientProxy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.clients[cid]
	return p, ok
}

// Len returns the number of registered proxies.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// All returns every registered proxy sorted by CID.
func (m *Manager) All() []proxy.ClientProxy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

// WaitFor blocks until at least n proxies are registered or ctx is done.
func (m *Manager) WaitFor(ctx context.Context, n int) error {
	for {
		m.mu.Lock()
		have := len(m.clients)
		changed := m.changed
		m.mu.Unlock()

		if have >= n {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d clients, have %d: %w", n, have, ctx.Err())
		case <-changed:
		}
	}
}

// Sample returns n distinct proxies chosen uniformly at random.
// Returns ErrNotEnoughClients if fewer than n are registered.
func (m *Manager) Sample(n int) ([]proxy.ClientProxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > len(m.clients) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrNotEnoughClients, n, len(m.clients))
	}
	if n <= 0 {
		return nil, nil
	}

	// Sorting first keeps a seeded rng reproducible across map orderings.
	all := m.sortedLocked()
	shuffle := rand.Shuffle
	if m.rng != nil {
		shuffle = m.rng.Shuffle
	}
	shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:n], nil
}

func (m *Manager) sortedLocked() []proxy.ClientProxy {
	out := make([]proxy.ClientProxy, 0, len(m.clients))
	for _, p := range m.clients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CID() < out[j].CID() })
	return out
}

// notifyLocked wakes every WaitFor caller.
func (m *Manager) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}
