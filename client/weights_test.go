package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/fedkit/common"
)

// scaleClient multiplies every weight by its factor when fitting.
type scaleClient struct {
	weights common.Weights
	factor  float64
	err     error

	fitCalls int
	lastCfg  common.Config
}

func (c *scaleClient) GetWeights(context.Context) (common.Weights, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.weights, nil
}

func (c *scaleClient) FitWeights(_ context.Context, w common.Weights, cfg common.Config) (common.Weights, int64, common.Metrics, error) {
	c.fitCalls++
	c.lastCfg = cfg
	if c.err != nil {
		return nil, 0, nil, c.err
	}
	out := w.Clone()
	for _, layer := range out {
		for i := range layer {
			layer[i] *= c.factor
		}
	}
	return out, 10, common.Metrics{"factor": c.factor}, nil
}

func (c *scaleClient) EvaluateWeights(_ context.Context, w common.Weights, _ common.Config) (float64, int64, common.Metrics, error) {
	if c.err != nil {
		return 0, 0, nil, c.err
	}
	var sum float64
	for _, layer := range w {
		for _, v := range layer {
			sum += v
		}
	}
	return sum, 4, nil, nil
}

func TestFromWeights_GetParameters(t *testing.T) {
	c := FromWeights(&scaleClient{weights: common.Weights{{1.0, 2.0}}})

	res, err := c.GetParameters(context.Background())
	require.NoError(t, err)

	w, err := common.ParametersToWeights(res.Parameters)
	require.NoError(t, err)
	assert.Equal(t, common.Weights{{1.0, 2.0}}, w)
}

func TestFromWeights_Fit(t *testing.T) {
	sc := &scaleClient{factor: 2}
	c := FromWeights(sc)

	cfg := common.Config{"epochs": int64(1)}
	res, err := c.Fit(context.Background(), common.FitIns{
		Parameters: common.WeightsToParameters(common.Weights{{1, 2}, {3}}),
		Config:     cfg,
	})
	require.NoError(t, err)

	w, err := common.ParametersToWeights(res.Parameters)
	require.NoError(t, err)
	assert.Equal(t, common.Weights{{2, 4}, {6}}, w)
	assert.Equal(t, int64(10), res.NumExamples)
	assert.Equal(t, common.Metrics{"factor": 2.0}, res.Metrics)
	assert.Equal(t, cfg, sc.lastCfg)
}

func TestFromWeights_Evaluate(t *testing.T) {
	c := FromWeights(&scaleClient{})

	res, err := c.Evaluate(context.Background(), common.EvaluateIns{
		Parameters: common.WeightsToParameters(common.Weights{{1, 2}, {3}}),
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, res.Loss)
	assert.Equal(t, int64(4), res.NumExamples)
}

func TestFromWeights_DecodeErrorSkipsClient(t *testing.T) {
	sc := &scaleClient{factor: 2}
	c := FromWeights(sc)

	_, err := c.Fit(context.Background(), common.FitIns{
		Parameters: common.Parameters{TensorType: "bogus"},
	})
	assert.ErrorIs(t, err, common.ErrTensorType)
	assert.Equal(t, 0, sc.fitCalls)

	_, err = c.Evaluate(context.Background(), common.EvaluateIns{
		Parameters: common.Parameters{TensorType: common.TensorTypeFloat64LE, Tensors: [][]byte{{1, 2, 3}}},
	})
	assert.ErrorIs(t, err, common.ErrTensorSize)
}

func TestFromWeights_ClientErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	c := FromWeights(&scaleClient{err: boom})

	_, err := c.GetParameters(context.Background())
	assert.Same(t, boom, err)

	_, err = c.Fit(context.Background(), common.FitIns{Parameters: common.WeightsToParameters(nil)})
	assert.Same(t, boom, err)

	_, err = c.Evaluate(context.Background(), common.EvaluateIns{Parameters: common.WeightsToParameters(nil)})
	assert.Same(t, boom, err)
}
