package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/fedkit/proxy"
)

// defaultDialTimeout bounds the WebSocket handshake when no
// "dial_timeout" option is given.
const defaultDialTimeout = 30 * time.Second

func init() {
	proxy.Register(TransportName, newFromProxyConfig)
}

// newFromProxyConfig dials cfg.Address and returns a Proxy.
// This is the factory function registered with the proxy registry.
func newFromProxyConfig(cfg proxy.Config) (proxy.ClientProxy, error) {
	if cfg.Transport == "" {
		cfg.Transport = TransportName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: rpc transport requires an address", proxy.ErrInvalidConfig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetDurationOption("dial_timeout", defaultDialTimeout))
	defer cancel()

	p, err := Dial(ctx, cfg.CID, cfg.Address, WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}
	return p, nil
}
