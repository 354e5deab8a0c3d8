package inmemory

import (
	"fmt"

	"github.com/randalmurphal/fedkit/proxy"
)

func init() {
	proxy.Register(TransportName, newFromProxyConfig)
}

// newFromProxyConfig creates a Proxy from a proxy.Config.
// This is the factory function registered with the proxy registry.
func newFromProxyConfig(cfg proxy.Config) (proxy.ClientProxy, error) {
	if cfg.Transport == "" {
		cfg.Transport = TransportName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: inmemory transport requires a client", proxy.ErrInvalidConfig)
	}
	return New(cfg.CID, cfg.Client), nil
}
