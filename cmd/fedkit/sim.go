package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/randalmurphal/fedkit/client"
	"github.com/randalmurphal/fedkit/clientmanager"
	"github.com/randalmurphal/fedkit/proxy"
	"github.com/randalmurphal/fedkit/rpc"
	"github.com/randalmurphal/fedkit/server"

	_ "github.com/randalmurphal/fedkit/transports"
)

type simOptions struct {
	configPath string
	watch      bool

	clients int
	samples int
	dim     int
	noise   float64
	seed    uint64
	prefix  string
	remotes stringList
}

func defaultSimOptions() simOptions {
	return simOptions{
		clients: 3,
		samples: 200,
		dim:     3,
		noise:   0.1,
		seed:    1,
	}
}

func (o simOptions) validate() error {
	if o.clients < 0 || (o.clients == 0 && len(o.remotes) == 0) {
		return errors.New("need at least one client")
	}
	if o.samples < 1 {
		return errors.New("samples must be >= 1")
	}
	if o.dim < 1 {
		return errors.New("dim must be >= 1")
	}
	return nil
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// truth returns the model every simulated client samples around, so that
// federated averaging has a common target.
func truth(dim int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, 0))
	out := make([]float64, dim+1)
	for i := range out {
		out[i] = rng.Float64()*4 - 2
	}
	return out
}

func (o simOptions) cid(i int) string {
	if o.prefix == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%d", o.prefix, i)
}

func loadServerConfig(path string) (server.Config, error) {
	if path == "" {
		cfg := server.DefaultConfig()
		cfg.LoadFromEnv()
		cfg = cfg.WithDefaults()
		return cfg, cfg.Validate()
	}
	return server.LoadConfig(path)
}

func runSim(ctx context.Context, opts simOptions, out io.Writer) error {
	if err := opts.validate(); err != nil {
		return err
	}
	cfg, err := loadServerConfig(opts.configPath)
	if err != nil {
		return err
	}

	mgr := clientmanager.New(clientmanager.WithRand(rand.New(rand.NewPCG(opts.seed, 1))))
	target := truth(opts.dim, opts.seed)

	for i := 0; i < opts.clients; i++ {
		rng := rand.New(rand.NewPCG(opts.seed, uint64(i)+2))
		trainer := newLinearTrainer(rng, target, opts.samples, opts.noise)

		p, err := proxy.NewFromConfig(proxy.DefaultConfig().
			WithTransport("inmemory").
			WithCID(opts.cid(i)).
			WithClient(client.FromWeights(trainer)))
		if err != nil {
			return err
		}
		if err := mgr.Register(p); err != nil {
			return err
		}
	}

	for i, addr := range opts.remotes {
		pcfg := proxy.FromEnv().
			WithTransport(rpc.TransportName).
			WithCID(opts.cid(opts.clients + i)).
			WithAddress(addr)
		p, err := proxy.NewFromConfig(pcfg)
		if err != nil {
			return fmt.Errorf("connect %s: %w", addr, err)
		}
		if err := mgr.Register(p); err != nil {
			_ = p.Close()
			return err
		}
	}

	// Every client a sim will ever have is registered by now, so a config
	// asking for more would wait forever.
	if opts.configPath == "" {
		cfg = fitToClients(cfg, mgr.Len())
	}
	if mgr.Len() < cfg.MinAvailableClients {
		for _, p := range mgr.All() {
			_ = p.Close()
		}
		return fmt.Errorf("config needs %d clients, sim has %d", cfg.MinAvailableClients, mgr.Len())
	}

	srv := server.New(mgr, server.NewFedAvg(cfg), cfg)
	defer func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown", slog.Any("error", err))
		}
	}()

	if opts.watch && opts.configPath != "" {
		updates, err := server.WatchConfig(ctx, opts.configPath)
		if err != nil {
			return err
		}
		go func() {
			for cfg := range updates {
				srv.SetConfig(cfg)
			}
		}()
	}

	hist, err := srv.Run(ctx)
	printHistory(out, hist)
	if err != nil {
		return err
	}

	slog.Debug("target model", slog.Any("weights", target))
	return nil
}

// fitToClients lowers the client minimums of cfg to n.
func fitToClients(cfg server.Config, n int) server.Config {
	cfg.MinAvailableClients = min(cfg.MinAvailableClients, n)
	cfg.MinFitClients = min(cfg.MinFitClients, n)
	cfg.MinEvaluateClients = min(cfg.MinEvaluateClients, n)
	return cfg
}

func printHistory(out io.Writer, hist *server.History) {
	if hist == nil {
		return
	}
	fmt.Fprintf(out, "%-6s %-8s %-8s %s\n", "round", "fit", "failed", "loss")
	for _, r := range hist.Rounds {
		loss := "-"
		if r.HasLoss {
			loss = fmt.Sprintf("%.6f", r.Loss)
		}
		fmt.Fprintf(out, "%-6d %-8d %-8d %s\n", r.Round, r.FitResults, r.FitFailures, loss)
	}
}

func runClient(ctx context.Context, addr string, opts simOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(opts.seed, 1<<32))
	trainer := newLinearTrainer(rng, truth(opts.dim, opts.seed), opts.samples, opts.noise)

	slog.Info("serving client", slog.String("addr", addr), slog.String("path", rpc.DefaultPath))
	return rpc.ListenAndServe(ctx, addr, client.FromWeights(trainer))
}
