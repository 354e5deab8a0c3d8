// Package client defines the contract for trainable federated-learning
// clients.
//
// A Client owns local data and a local model. The server never calls a Client
// directly; it goes through a proxy (see package proxy), which is either an
// in-process wrapper around the Client or a network stub talking to a Client
// served elsewhere.
//
// Training code that prefers decoded float64 weights implements WeightsClient
// and is adapted with FromWeights:
//
//	c := client.FromWeights(&myTrainer{})
//	p := inmemory.New("client-1", c)
package client

import (
	"context"

	"github.com/randalmurphal/fedkit/common"
)

// Client is a trainable federated-learning client.
type Client interface {
	// GetParameters returns the client's current local model parameters.
	GetParameters(ctx context.Context) (*common.ParametersRes, error)

	// Fit refines the provided parameters using the locally held dataset.
	Fit(ctx context.Context, ins common.FitIns) (*common.FitRes, error)

	// Evaluate scores the provided parameters using the locally held dataset.
	Evaluate(ctx context.Context, ins common.EvaluateIns) (*common.EvaluateRes, error)
}
