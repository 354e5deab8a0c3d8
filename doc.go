// Package fedkit provides building blocks for federated learning in Go.
//
// Each subpackage can be used independently:
//
//   - common: parameters, instructions, results and the float64 tensor codec
//   - client: the trainable client contract and a weights adapter
//   - proxy: the ClientProxy interface, transport registry and config
//   - inmemory: a proxy that forwards to a client in the same process
//   - rpc: a JSON-RPC proxy over WebSocket, and the client-side serve loop
//   - clientmanager: registration and random sampling of proxies
//   - server: round orchestration and the FedAvg strategy
//   - transports: registers every transport with proxy.New
//
// # Quick Start
//
// In-process simulation:
//
//	import "github.com/randalmurphal/fedkit/inmemory"
//	p := inmemory.New("client-1", client.FromWeights(trainer))
//	res, err := p.Fit(ctx, common.FitIns{Parameters: params})
//
// Remote clients:
//
//	import "github.com/randalmurphal/fedkit/rpc"
//	go rpc.ListenAndServe(ctx, ":8089", myClient)          // on the client host
//	p, err := rpc.Dial(ctx, "edge-7", "ws://edge-7:8089/fedkit") // on the server
//
// Rounds:
//
//	srv := server.New(mgr, server.NewFedAvg(cfg), cfg)
//	hist, err := srv.Run(ctx)
package fedkit
