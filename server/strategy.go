package server

import (
	"context"

	"github.com/randalmurphal/fedkit/clientmanager"
	"github.com/randalmurphal/fedkit/common"
	"github.com/randalmurphal/fedkit/proxy"
)

// FitInstruction pairs a proxy with the instruction it will receive.
type FitInstruction struct {
	Proxy proxy.ClientProxy
	Ins   common.FitIns
}

// EvaluateInstruction pairs a proxy with the instruction it will receive.
type EvaluateInstruction struct {
	Proxy proxy.ClientProxy
	Ins   common.EvaluateIns
}

// FitResult is one client's successful fit.
type FitResult struct {
	CID string
	Res *common.FitRes
}

// EvaluateResult is one client's successful evaluation.
type EvaluateResult struct {
	CID string
	Res *common.EvaluateRes
}

// Failure is one client's failed call.
type Failure struct {
	CID string
	Err error
}

// FitAggregate is the outcome of Strategy.AggregateFit.
type FitAggregate struct {
	// Parameters are the new global parameters. Nil keeps the current ones.
	Parameters *common.Parameters
	Metrics    common.Metrics

	// Rejected holds results that could not be aggregated, such as
	// undecodable or differently shaped parameters.
	Rejected []Failure
}

// Strategy decides who trains, with what, and how results combine.
type Strategy interface {
	// InitialParameters returns the starting global model, or nil to let the
	// server ask a client for one.
	InitialParameters(ctx context.Context) (*common.Parameters, error)

	// ConfigureFit selects clients for a training round.
	ConfigureFit(round int, params common.Parameters, mgr *clientmanager.Manager) ([]FitInstruction, error)

	// AggregateFit combines fit results into new global parameters.
	// Results the strategy cannot use are returned in FitAggregate.Rejected
	// and count as failures of their clients. An error is reserved for
	// faults of the strategy itself and ends the run.
	AggregateFit(round int, results []FitResult, failures []Failure) (FitAggregate, error)

	// ConfigureEvaluate selects clients for an evaluation round.
	// Returning no instructions skips evaluation.
	ConfigureEvaluate(round int, params common.Parameters, mgr *clientmanager.Manager) ([]EvaluateInstruction, error)

	// AggregateEvaluate combines evaluation results into a loss.
	// ok is false when there is nothing to report.
	AggregateEvaluate(round int, results []EvaluateResult, failures []Failure) (loss float64, metrics common.Metrics, ok bool)
}

// Reconfigurable is implemented by strategies that accept config reloads.
type Reconfigurable interface {
	Reconfigure(cfg Config)
}
