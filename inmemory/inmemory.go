// Package inmemory provides a client proxy for clients living in the same
// process as the server.
//
// The proxy forwards every call straight to the wrapped client.Client on the
// caller's goroutine. It adds no timeouts, retries, locking or logging, and
// returns the client's results and errors exactly as the client produced
// them. This makes simulations and tests drive a server through the same
// proxy.ClientProxy interface used for networked clients.
//
// # Usage
//
//	p := inmemory.New("client-1", myClient)
//	res, err := p.Fit(ctx, common.FitIns{Parameters: params})
//
// Or through the registry:
//
//	p, err := proxy.New("inmemory", proxy.Config{CID: "client-1", Client: myClient})
package inmemory

import (
	"context"

	"github.com/randalmurphal/fedkit/client"
	"github.com/randalmurphal/fedkit/common"
	"github.com/randalmurphal/fedkit/proxy"
)

// TransportName is the registry name of this transport.
const TransportName = "inmemory"

// Proxy implements proxy.ClientProxy for an in-process client.
// Both fields are fixed at construction.
type Proxy struct {
	cid    string
	client client.Client
}

var _ proxy.ClientProxy = (*Proxy)(nil)

// New wraps c under the identifier cid. The caller is responsible for cid
// being non-empty and unique among registered proxies.
func New(cid string, c client.Client) *Proxy {
	return &Proxy{cid: cid, client: c}
}

// CID implements proxy.ClientProxy.
func (p *Proxy) CID() string {
	return p.cid
}

// Transport implements proxy.ClientProxy.
func (p *Proxy) Transport() string {
	return TransportName
}

// Client returns the wrapped client.
func (p *Proxy) Client() client.Client {
	return p.client
}

// GetParameters implements proxy.ClientProxy.
func (p *Proxy) GetParameters(ctx context.Context) (*common.ParametersRes, error) {
	return p.client.GetParameters(ctx)
}

// Fit implements proxy.ClientProxy.
func (p *Proxy) Fit(ctx context.Context, ins common.FitIns) (*common.FitRes, error) {
	return p.client.Fit(ctx, ins)
}

// Evaluate implements proxy.ClientProxy.
func (p *Proxy) Evaluate(ctx context.Context, ins common.EvaluateIns) (*common.EvaluateRes, error) {
	return p.client.Evaluate(ctx, ins)
}

// Reconnect implements proxy.ClientProxy.
// There is no connection to tear down, so the client is not consulted and
// the request is ignored. The reason is always common.DisconnectUnknown.
func (p *Proxy) Reconnect(context.Context, common.Reconnect) (*common.Disconnect, error) {
	return &common.Disconnect{Reason: common.DisconnectUnknown}, nil
}

// Close implements proxy.ClientProxy. The wrapped client is owned by the
// caller and is left untouched.
func (p *Proxy) Close() error {
	return nil
}
