package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/fedkit/clientmanager"
	"github.com/randalmurphal/fedkit/common"
	"github.com/randalmurphal/fedkit/proxy"
)

// ErrNoInitialParameters indicates neither the strategy nor any client
// provided a starting model.
var ErrNoInitialParameters = errors.New("no initial parameters")

// Server drives rounds across the proxies registered with a Manager.
type Server struct {
	manager  *clientmanager.Manager
	strategy Strategy
	logger   *slog.Logger

	mu     sync.RWMutex
	cfg    Config
	params common.Parameters
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for round events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server.
func New(mgr *clientmanager.Manager, strategy Strategy, cfg Config, opts ...Option) *Server {
	s := &Server{
		manager:  mgr,
		strategy: strategy,
		cfg:      cfg.WithDefaults(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the active config.
func (s *Server) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig replaces the config. A running Run picks it up at the next
// round, and so does the strategy if it is Reconfigurable.
func (s *Server) SetConfig(cfg Config) {
	cfg = cfg.WithDefaults()

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	if r, ok := s.strategy.(Reconfigurable); ok {
		r.Reconfigure(cfg)
	}
	s.logger.Info("config updated",
		slog.Int("num_rounds", cfg.NumRounds),
		slog.Float64("fraction_fit", cfg.FractionFit))
}

// Parameters returns the current global parameters.
func (s *Server) Parameters() common.Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

func (s *Server) setParameters(p common.Parameters) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
}

// Run waits for enough clients, obtains initial parameters, then runs
// NumRounds rounds of fit and evaluate. The history so far is returned
// even when Run stops early with an error.
func (s *Server) Run(ctx context.Context) (*History, error) {
	hist := &History{}
	cfg := s.Config()

	waitCtx := ctx
	if cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.WaitTimeout.Std())
		defer cancel()
	}
	if err := s.manager.WaitFor(waitCtx, cfg.MinAvailableClients); err != nil {
		return hist, err
	}

	params, err := s.initialParameters(ctx)
	if err != nil {
		return hist, err
	}
	s.setParameters(params)

	for round := 1; round <= s.Config().NumRounds; round++ {
		if err := ctx.Err(); err != nil {
			return hist, err
		}

		start := time.Now()
		rec := RoundRecord{Round: round}

		fit, err := s.FitRound(ctx, round)
		if err != nil {
			return hist, fmt.Errorf("round %d fit: %w", round, err)
		}
		rec.FitResults = len(fit.Results)
		rec.FitFailures = len(fit.Failures)
		rec.FitMetrics = fit.Metrics

		eval, err := s.EvaluateRound(ctx, round)
		if err != nil {
			return hist, fmt.Errorf("round %d evaluate: %w", round, err)
		}
		rec.EvaluateResults = len(eval.Results)
		rec.EvaluateFailures = len(eval.Failures)
		rec.EvaluateMetrics = eval.Metrics
		rec.Loss = eval.Loss
		rec.HasLoss = eval.HasLoss

		rec.Duration = time.Since(start)
		hist.Rounds = append(hist.Rounds, rec)

		attrs := []any{
			slog.Int("round", round),
			slog.Int("fit_results", rec.FitResults),
			slog.Int("fit_failures", rec.FitFailures),
			slog.Duration("duration", rec.Duration),
		}
		if rec.HasLoss {
			attrs = append(attrs, slog.Float64("loss", rec.Loss))
		}
		s.logger.Info("round complete", attrs...)
	}
	return hist, nil
}

// initialParameters asks the strategy, then falls back to one random client.
func (s *Server) initialParameters(ctx context.Context) (common.Parameters, error) {
	p, err := s.strategy.InitialParameters(ctx)
	if err != nil {
		return common.Parameters{}, fmt.Errorf("strategy initial parameters: %w", err)
	}
	if p != nil {
		s.logger.Info("using initial parameters from strategy")
		return *p, nil
	}

	sample, err := s.manager.Sample(1)
	if err != nil {
		return common.Parameters{}, fmt.Errorf("%w: %w", ErrNoInitialParameters, err)
	}
	res, err := sample[0].GetParameters(ctx)
	if err == nil && res == nil {
		err = proxy.ErrEmptyResult
	}
	if err != nil {
		return common.Parameters{}, fmt.Errorf("%w: client %s: %w", ErrNoInitialParameters, sample[0].CID(), err)
	}
	s.logger.Info("received initial parameters from client", slog.String("cid", sample[0].CID()))
	return res.Parameters, nil
}

// FitRoundResult is the outcome of FitRound.
type FitRoundResult struct {
	Results  []FitResult
	Failures []Failure
	Metrics  common.Metrics

	// Updated reports whether the global parameters changed.
	Updated bool
}

// FitRound runs one training round and updates the global parameters with
// the aggregate. Client failures are reported in the result, not as an error.
func (s *Server) FitRound(ctx context.Context, round int) (*FitRoundResult, error) {
	instructions, err := s.strategy.ConfigureFit(round, s.Parameters(), s.manager)
	if err != nil {
		return nil, err
	}
	if len(instructions) == 0 {
		s.logger.Info("no clients selected for fit", slog.Int("round", round))
		return &FitRoundResult{}, nil
	}

	rctx, cancel := s.roundContext(ctx)
	defer cancel()
	results, failures := fanOut(rctx, s.Config().MaxConcurrency, instructions,
		func(ctx context.Context, in FitInstruction) (FitResult, error) {
			res, err := in.Proxy.Fit(ctx, in.Ins)
			if res == nil && err == nil {
				err = proxy.ErrEmptyResult
			}
			return FitResult{CID: in.Proxy.CID(), Res: res}, err
		},
		func(in FitInstruction) string { return in.Proxy.CID() })
	sort.Slice(results, func(i, j int) bool { return results[i].CID < results[j].CID })
	s.logFailures("fit", round, failures)

	agg, err := s.strategy.AggregateFit(round, results, failures)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	if len(agg.Rejected) > 0 {
		s.logFailures("aggregate", round, agg.Rejected)
		results, failures = reject(results, failures, agg.Rejected)
	}

	out := &FitRoundResult{Results: results, Failures: failures, Metrics: agg.Metrics}
	if agg.Parameters != nil {
		s.setParameters(*agg.Parameters)
		out.Updated = true
	}
	return out, nil
}

// reject moves the results named in rejected over to failures.
func reject(results []FitResult, failures, rejected []Failure) ([]FitResult, []Failure) {
	drop := make(map[string]bool, len(rejected))
	for _, f := range rejected {
		drop[f.CID] = true
	}

	kept := make([]FitResult, 0, len(results))
	for _, r := range results {
		if !drop[r.CID] {
			kept = append(kept, r)
		}
	}

	failures = append(append([]Failure(nil), failures...), rejected...)
	sort.Slice(failures, func(i, j int) bool { return failures[i].CID < failures[j].CID })
	return kept, failures
}

// EvaluateRoundResult is the outcome of EvaluateRound.
type EvaluateRoundResult struct {
	Results  []EvaluateResult
	Failures []Failure
	Metrics  common.Metrics
	Loss     float64
	HasLoss  bool
}

// EvaluateRound scores the current global parameters on sampled clients.
func (s *Server) EvaluateRound(ctx context.Context, round int) (*EvaluateRoundResult, error) {
	instructions, err := s.strategy.ConfigureEvaluate(round, s.Parameters(), s.manager)
	if err != nil {
		return nil, err
	}
	if len(instructions) == 0 {
		return &EvaluateRoundResult{}, nil
	}

	rctx, cancel := s.roundContext(ctx)
	defer cancel()
	results, failures := fanOut(rctx, s.Config().MaxConcurrency, instructions,
		func(ctx context.Context, in EvaluateInstruction) (EvaluateResult, error) {
			res, err := in.Proxy.Evaluate(ctx, in.Ins)
			if res == nil && err == nil {
				err = proxy.ErrEmptyResult
			}
			return EvaluateResult{CID: in.Proxy.CID(), Res: res}, err
		},
		func(in EvaluateInstruction) string { return in.Proxy.CID() })
	sort.Slice(results, func(i, j int) bool { return results[i].CID < results[j].CID })
	s.logFailures("evaluate", round, failures)

	loss, metrics, ok := s.strategy.AggregateEvaluate(round, results, failures)
	return &EvaluateRoundResult{
		Results:  results,
		Failures: failures,
		Metrics:  metrics,
		Loss:     loss,
		HasLoss:  ok,
	}, nil
}

// Shutdown asks every registered client to disconnect, closes its proxy and
// unregisters it. Errors are logged; the last one is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	var lastErr error
	for _, p := range s.manager.All() {
		disc, err := p.Reconnect(ctx, common.Reconnect{})
		if err != nil {
			s.logger.Warn("reconnect failed", slog.String("cid", p.CID()), slog.Any("error", err))
			lastErr = err
		} else {
			s.logger.Debug("client disconnected", slog.String("cid", p.CID()), slog.String("reason", disc.Reason))
		}
		if err := p.Close(); err != nil {
			lastErr = err
		}
		s.manager.Unregister(p.CID())
	}
	return lastErr
}

// roundContext applies RoundTimeout.
func (s *Server) roundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.Config().RoundTimeout
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout.Std())
}

func (s *Server) logFailures(op string, round int, failures []Failure) {
	for _, f := range failures {
		s.logger.Warn("client call failed",
			slog.String("op", op),
			slog.Int("round", round),
			slog.String("cid", f.CID),
			slog.Bool("retryable", proxy.IsRetryable(f.Err)),
			slog.Any("error", f.Err))
	}
}

// fanOut calls fn for every item with at most limit calls in flight
// (limit <= 0 means unbounded). Successes and failures are collected;
// one failure does not cancel the others.
func fanOut[I, R any](ctx context.Context, limit int, items []I, fn func(context.Context, I) (R, error), cid func(I) string) ([]R, []Failure) {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		results  []R
		failures []Failure
	)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, item := range items {
		g.Go(func() error {
			res, err := fn(ctx, item)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, Failure{CID: cid(item), Err: err})
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].CID < failures[j].CID })
	return results, failures
}
