package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/randalmurphal/fedkit/clientmanager"
	"github.com/randalmurphal/fedkit/common"
)

// ErrShapeMismatch indicates clients returned models of different shapes.
var ErrShapeMismatch = errors.New("weights shape mismatch")

// FedAvg is federated averaging: global weights are the example-weighted
// mean of the clients' updated weights.
type FedAvg struct {
	mu  sync.RWMutex
	cfg Config

	// Initial is the starting model. Nil means ask a client.
	Initial *common.Parameters
}

var (
	_ Strategy       = (*FedAvg)(nil)
	_ Reconfigurable = (*FedAvg)(nil)
)

// NewFedAvg creates a FedAvg strategy using the sampling and client config
// settings of cfg.
func NewFedAvg(cfg Config) *FedAvg {
	return &FedAvg{cfg: cfg.WithDefaults()}
}

// Reconfigure implements Reconfigurable. Takes effect from the next round.
func (f *FedAvg) Reconfigure(cfg Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg.WithDefaults()
}

func (f *FedAvg) config() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

// InitialParameters implements Strategy.
func (f *FedAvg) InitialParameters(context.Context) (*common.Parameters, error) {
	return f.Initial, nil
}

// ConfigureFit implements Strategy.
func (f *FedAvg) ConfigureFit(round int, params common.Parameters, mgr *clientmanager.Manager) ([]FitInstruction, error) {
	cfg := f.config()

	n, err := sampleSize(mgr.Len(), cfg.FractionFit, cfg.MinFitClients, cfg.MinAvailableClients)
	if err != nil {
		return nil, err
	}
	clients, err := mgr.Sample(n)
	if err != nil {
		return nil, err
	}

	ins := common.FitIns{
		Parameters: params,
		Config:     cfg.FitConfig.With("round", int64(round)),
	}
	out := make([]FitInstruction, len(clients))
	for i, p := range clients {
		out[i] = FitInstruction{Proxy: p, Ins: ins}
	}
	return out, nil
}

// ConfigureEvaluate implements Strategy.
func (f *FedAvg) ConfigureEvaluate(round int, params common.Parameters, mgr *clientmanager.Manager) ([]EvaluateInstruction, error) {
	cfg := f.config()
	if cfg.FractionEvaluate == 0 {
		return nil, nil
	}

	n, err := sampleSize(mgr.Len(), cfg.FractionEvaluate, cfg.MinEvaluateClients, cfg.MinAvailableClients)
	if err != nil {
		return nil, err
	}
	clients, err := mgr.Sample(n)
	if err != nil {
		return nil, err
	}

	ins := common.EvaluateIns{
		Parameters: params,
		Config:     cfg.EvaluateConfig.With("round", int64(round)),
	}
	out := make([]EvaluateInstruction, len(clients))
	for i, p := range clients {
		out[i] = EvaluateInstruction{Proxy: p, Ins: ins}
	}
	return out, nil
}

// AggregateFit implements Strategy. Results whose parameters do not decode,
// or whose shape differs from the shape most results share, are rejected
// and the rest are averaged.
func (f *FedAvg) AggregateFit(_ int, results []FitResult, failures []Failure) (FitAggregate, error) {
	usable, weights, rejected := checkFitResults(results)
	agg := FitAggregate{Rejected: rejected}

	if len(usable) == 0 {
		return agg, nil
	}
	if len(failures)+len(rejected) > 0 && !f.config().AcceptFailures {
		return agg, nil
	}

	counts := make([]float64, len(usable))
	metrics := make([]common.Metrics, len(usable))
	for i, r := range usable {
		counts[i] = float64(r.Res.NumExamples)
		metrics[i] = r.Res.Metrics
	}

	avg := weightedAverage(weights, counts)
	if avg == nil {
		return agg, nil
	}
	params := common.WeightsToParameters(avg)
	agg.Parameters = &params
	agg.Metrics = averageMetrics(metrics, counts)
	return agg, nil
}

// checkFitResults decodes every result and keeps those sharing the most
// common shape; ties go to the shape seen first. Everything else is
// returned as a Failure.
func checkFitResults(results []FitResult) ([]FitResult, []common.Weights, []Failure) {
	var (
		decoded  = make([]common.Weights, len(results))
		shapes   = make([]string, len(results))
		count    = make(map[string]int)
		best     string
		rejected []Failure
	)
	for i, r := range results {
		w, err := common.ParametersToWeights(r.Res.Parameters)
		if err != nil {
			rejected = append(rejected, Failure{CID: r.CID, Err: fmt.Errorf("decode parameters: %w", err)})
			continue
		}
		decoded[i] = w
		shapes[i] = shapeOf(w)
		count[shapes[i]]++
		if best == "" || count[shapes[i]] > count[best] {
			best = shapes[i]
		}
	}

	var (
		usable  []FitResult
		weights []common.Weights
	)
	for i, r := range results {
		switch {
		case decoded[i] == nil:
		case shapes[i] != best:
			rejected = append(rejected, Failure{
				CID: r.CID,
				Err: fmt.Errorf("%w: got %s, want %s", ErrShapeMismatch, shapes[i], best),
			})
		default:
			usable = append(usable, r)
			weights = append(weights, decoded[i])
		}
	}
	return usable, weights, rejected
}

// shapeOf renders the layer sizes of w, e.g. "[3 1]".
func shapeOf(w common.Weights) string {
	sizes := make([]int, len(w))
	for i, layer := range w {
		sizes[i] = len(layer)
	}
	return fmt.Sprint(sizes)
}

// AggregateEvaluate implements Strategy.
func (f *FedAvg) AggregateEvaluate(_ int, results []EvaluateResult, failures []Failure) (float64, common.Metrics, bool) {
	if len(results) == 0 {
		return 0, nil, false
	}
	if len(failures) > 0 && !f.config().AcceptFailures {
		return 0, nil, false
	}

	losses := make([]float64, len(results))
	counts := make([]float64, len(results))
	metrics := make([]common.Metrics, len(results))
	for i, r := range results {
		losses[i] = r.Res.Loss
		counts[i] = float64(r.Res.NumExamples)
		metrics[i] = r.Res.Metrics
	}

	total := floats.Sum(counts)
	if total == 0 {
		return 0, nil, false
	}
	return floats.Dot(losses, counts) / total, averageMetrics(metrics, counts), true
}

// sampleSize returns how many of available clients to use:
// max(minClients, ceil(fraction*available)), or an error when fewer than
// minAvailable (or the computed size) are registered.
func sampleSize(available int, fraction float64, minClients, minAvailable int) (int, error) {
	if available < minAvailable {
		return 0, fmt.Errorf("%w: need %d available, have %d", clientmanager.ErrNotEnoughClients, minAvailable, available)
	}
	n := int(math.Ceil(fraction * float64(available)))
	if n < minClients {
		n = minClients
	}
	if n > available {
		return 0, fmt.Errorf("%w: need %d, have %d", clientmanager.ErrNotEnoughClients, n, available)
	}
	return n, nil
}

// weightedAverage returns sum(counts[i]*ws[i]) / sum(counts), layer by
// layer. All ws must share one shape. Returns nil when the counts sum to zero.
func weightedAverage(ws []common.Weights, counts []float64) common.Weights {
	total := floats.Sum(counts)
	if total == 0 {
		return nil
	}

	out := make(common.Weights, len(ws[0]))
	for l := range out {
		out[l] = make([]float64, len(ws[0][l]))
	}
	for i, w := range ws {
		for l := range w {
			floats.AddScaled(out[l], counts[i]/total, w[l])
		}
	}
	return out
}

// averageMetrics computes the example-weighted mean of every metric that is
// numeric in all of ms. Other metrics are dropped.
func averageMetrics(ms []common.Metrics, counts []float64) common.Metrics {
	total := floats.Sum(counts)
	if total == 0 || len(ms) == 0 {
		return nil
	}

	out := make(common.Metrics)
	values := make([]float64, len(ms))
	for k := range ms[0] {
		numeric := true
		for i, m := range ms {
			v, ok := m.Float(k)
			if !ok {
				numeric = false
				break
			}
			values[i] = v
		}
		if numeric {
			out[k] = floats.Dot(values, counts) / total
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
