// Package proxy defines the uniform interface a federated-learning server
// uses to reach its clients.
//
// A ClientProxy stands in for one client. The server code that selects
// clients, runs rounds and aggregates results only ever sees ClientProxy, so
// clients living in the same process and clients reached over the network
// are treated identically.
//
// # Usage
//
// Create a proxy using the registry:
//
//	p, err := proxy.New("inmemory", proxy.Config{
//	    CID:    "client-1",
//	    Client: myClient,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	res, err := p.Fit(ctx, common.FitIns{Parameters: params})
//
// # Available Transports
//
//   - "inmemory": wraps a client.Client held in the same process
//   - "rpc": JSON-RPC over WebSocket to a client served with rpc.Handler
//
// Transports register themselves on import. Import package
// github.com/randalmurphal/fedkit/transports to make all of them available.
package proxy

import (
	"context"

	"github.com/randalmurphal/fedkit/common"
)

// ClientProxy is the server-side handle for one client.
type ClientProxy interface {
	// CID returns the client identifier assigned at construction.
	// It never changes for the lifetime of the proxy.
	CID() string

	// Transport returns the transport name (e.g., "inmemory", "rpc").
	Transport() string

	// GetParameters returns the client's current local model parameters.
	GetParameters(ctx context.Context) (*common.ParametersRes, error)

	// Fit refines the provided parameters using the client's local dataset.
	Fit(ctx context.Context, ins common.FitIns) (*common.FitRes, error)

	// Evaluate scores the provided parameters using the client's local dataset.
	Evaluate(ctx context.Context, ins common.EvaluateIns) (*common.EvaluateRes, error)

	// Reconnect asks the client to disconnect and optionally reconnect later.
	Reconnect(ctx context.Context, ins common.Reconnect) (*common.Disconnect, error)

	// Close releases any resources held by the proxy.
	Close() error
}
