// Package server runs federated learning rounds over a set of client proxies.
//
// Each round the Strategy picks clients and builds their instructions, the
// Server sends the instructions concurrently, and the Strategy aggregates
// whatever came back. Client failures are collected and handed to the
// Strategy; they never abort a round.
//
// # Usage
//
//	mgr := clientmanager.New()
//	_ = mgr.Register(inmemory.New("client-1", c1))
//	_ = mgr.Register(inmemory.New("client-2", c2))
//
//	cfg, err := server.LoadConfig("fedkit.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv := server.New(mgr, server.NewFedAvg(cfg), cfg)
//	hist, err := srv.Run(ctx)
//	defer srv.Shutdown(context.Background())
//
// # Configuration
//
// Config is read from YAML, TOML or JSON (by file extension), overridden by
// FEDKIT_* environment variables, and may be reloaded between rounds with
// WatchConfig. ConfigSchema returns the JSON Schema of the file format.
package server
