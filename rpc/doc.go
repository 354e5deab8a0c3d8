// Package rpc provides a client proxy for clients reached over the network.
//
// The proxy and the client exchange newline-delimited JSON-RPC 2.0 messages.
// The server side holds a Proxy and issues calls; the client side runs Serve,
// which answers each call by invoking its local client.Client.
//
// # Architecture
//
//	Server --ClientProxy--> rpc.Proxy <--JSON-RPC/WebSocket--> rpc.Serve --> client.Client
//
// # Methods
//
//   - get_parameters: no params, result common.ParametersRes
//   - fit: params common.FitIns, result common.FitRes
//   - evaluate: params common.EvaluateIns, result common.EvaluateRes
//   - reconnect: params common.Reconnect, result common.Disconnect; the
//     client closes the session after replying
//
// A failure inside the client is returned as an RPCError with CodeClientError
// and surfaces on the proxy as a non-retryable *proxy.Error. Connection loss
// and timeouts surface as retryable *proxy.Error values wrapping
// proxy.ErrNotConnected and proxy.ErrTimeout.
//
// # Usage
//
// Client host:
//
//	err := rpc.ListenAndServe(ctx, ":8089", client.FromWeights(trainer))
//
// Server:
//
//	p, err := proxy.New("rpc", proxy.Config{
//	    CID:     "edge-1",
//	    Address: "ws://edge-1:8089/fedkit",
//	    Timeout: 2 * time.Minute,
//	})
package rpc
