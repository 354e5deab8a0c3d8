package client

import (
	"context"
	"fmt"

	"github.com/randalmurphal/fedkit/common"
)

// WeightsClient is a Client expressed in decoded weights.
type WeightsClient interface {
	// GetWeights returns the current local model weights.
	GetWeights(ctx context.Context) (common.Weights, error)

	// FitWeights trains on local data starting from w.
	// Returns the updated weights, the number of examples used and any metrics.
	FitWeights(ctx context.Context, w common.Weights, cfg common.Config) (common.Weights, int64, common.Metrics, error)

	// EvaluateWeights scores w on local data.
	// Returns the loss, the number of examples used and any metrics.
	EvaluateWeights(ctx context.Context, w common.Weights, cfg common.Config) (float64, int64, common.Metrics, error)
}

// FromWeights adapts a WeightsClient to Client. Incoming parameters are
// decoded before the wrapped client is called; a decode failure is returned
// without calling it.
func FromWeights(wc WeightsClient) Client {
	return &weightsAdapter{wc: wc}
}

// weightsAdapter wraps a WeightsClient to implement Client.
type weightsAdapter struct {
	wc WeightsClient
}

// GetParameters implements Client.
func (a *weightsAdapter) GetParameters(ctx context.Context) (*common.ParametersRes, error) {
	w, err := a.wc.GetWeights(ctx)
	if err != nil {
		return nil, err
	}
	return &common.ParametersRes{Parameters: common.WeightsToParameters(w)}, nil
}

// Fit implements Client.
func (a *weightsAdapter) Fit(ctx context.Context, ins common.FitIns) (*common.FitRes, error) {
	w, err := common.ParametersToWeights(ins.Parameters)
	if err != nil {
		return nil, fmt.Errorf("decode fit parameters: %w", err)
	}
	updated, n, metrics, err := a.wc.FitWeights(ctx, w, ins.Config)
	if err != nil {
		return nil, err
	}
	return &common.FitRes{
		Parameters:  common.WeightsToParameters(updated),
		NumExamples: n,
		Metrics:     metrics,
	}, nil
}

// Evaluate implements Client.
func (a *weightsAdapter) Evaluate(ctx context.Context, ins common.EvaluateIns) (*common.EvaluateRes, error) {
	w, err := common.ParametersToWeights(ins.Parameters)
	if err != nil {
		return nil, fmt.Errorf("decode evaluate parameters: %w", err)
	}
	loss, n, metrics, err := a.wc.EvaluateWeights(ctx, w, ins.Config)
	if err != nil {
		return nil, err
	}
	return &common.EvaluateRes{
		Loss:        loss,
		NumExamples: n,
		Metrics:     metrics,
	}, nil
}
