package rpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/fedkit/client"
	"github.com/randalmurphal/fedkit/common"
	"github.com/randalmurphal/fedkit/proxy"
)

// remoteClient is a client.Client served behind the protocol in tests.
type remoteClient struct {
	weights common.Weights
	fitErr  error
	block   chan struct{} // when set, Fit waits for it to close

	mu      sync.Mutex
	lastFit common.FitIns
}

func (c *remoteClient) GetParameters(context.Context) (*common.ParametersRes, error) {
	return &common.ParametersRes{Parameters: common.WeightsToParameters(c.weights)}, nil
}

func (c *remoteClient) Fit(ctx context.Context, ins common.FitIns) (*common.FitRes, error) {
	c.mu.Lock()
	c.lastFit = ins
	c.mu.Unlock()

	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.fitErr != nil {
		return nil, c.fitErr
	}
	return &common.FitRes{
		Parameters:  ins.Parameters,
		NumExamples: 12,
		Metrics:     common.Metrics{"epochs": ins.Config.GetInt("epochs", 0)},
	}, nil
}

func (c *remoteClient) Evaluate(_ context.Context, ins common.EvaluateIns) (*common.EvaluateRes, error) {
	w, err := common.ParametersToWeights(ins.Parameters)
	if err != nil {
		return nil, err
	}
	return &common.EvaluateRes{Loss: w[0][0], NumExamples: 3}, nil
}

func (c *remoteClient) fitIns() common.FitIns {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFit
}

// startServe connects a Proxy to Serve(c) over an in-memory pipe.
func startServe(t *testing.T, c client.Client, opts ...Option) (*Proxy, <-chan error) {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(context.Background(), c, clientSide)
	}()

	p := NewProxy("edge-1", serverSide, opts...)
	t.Cleanup(func() {
		_ = p.Close()
		_ = clientSide.Close()
	})
	return p, errCh
}

func waitServe(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestProxy_GetParameters(t *testing.T) {
	p, _ := startServe(t, &remoteClient{weights: common.Weights{{1.0, 2.0}}})

	res, err := p.GetParameters(context.Background())
	require.NoError(t, err)

	w, err := common.ParametersToWeights(res.Parameters)
	require.NoError(t, err)
	assert.Equal(t, common.Weights{{1.0, 2.0}}, w)
	assert.Equal(t, "edge-1", p.CID())
	assert.Equal(t, TransportName, p.Transport())
}

func TestProxy_Fit(t *testing.T) {
	rc := &remoteClient{}
	p, _ := startServe(t, rc)

	params := common.WeightsToParameters(common.Weights{{0.25, -4}, {8}})
	res, err := p.Fit(context.Background(), common.FitIns{
		Parameters: params,
		Config:     common.Config{"epochs": int64(2), "optimizer": "sgd"},
	})
	require.NoError(t, err)

	assert.Equal(t, params, res.Parameters)
	assert.Equal(t, int64(12), res.NumExamples)
	epochs, ok := res.Metrics.Float("epochs")
	assert.True(t, ok)
	assert.Equal(t, 2.0, epochs)

	got := rc.fitIns()
	assert.Equal(t, int64(2), got.Config.GetInt("epochs", 0))
	assert.Equal(t, "sgd", got.Config.GetString("optimizer", ""))
}

func TestProxy_Evaluate(t *testing.T) {
	p, _ := startServe(t, &remoteClient{})

	res, err := p.Evaluate(context.Background(), common.EvaluateIns{
		Parameters: common.WeightsToParameters(common.Weights{{0.75}}),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.75, res.Loss)
	assert.Equal(t, int64(3), res.NumExamples)
}

func TestProxy_ClientErrorKeepsConnection(t *testing.T) {
	p, _ := startServe(t, &remoteClient{fitErr: errors.New("out of memory")})

	_, err := p.Fit(context.Background(), common.FitIns{})
	require.Error(t, err)

	var pErr *proxy.Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "edge-1", pErr.CID)
	assert.Equal(t, MethodFit, pErr.Op)
	assert.False(t, proxy.IsRetryable(err))

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeClientError, rpcErr.Code)
	assert.Equal(t, "out of memory", rpcErr.Message)

	assert.False(t, p.Closed())
	_, err = p.GetParameters(context.Background())
	assert.NoError(t, err)
}

func TestProxy_Timeout(t *testing.T) {
	rc := &remoteClient{block: make(chan struct{})}
	p, errCh := startServe(t, rc, WithTimeout(50*time.Millisecond))

	_, err := p.Fit(context.Background(), common.FitIns{})
	require.Error(t, err)
	assert.ErrorIs(t, err, proxy.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, proxy.IsRetryable(err))
	assert.True(t, p.Closed())

	_, err = p.GetParameters(context.Background())
	assert.ErrorIs(t, err, proxy.ErrNotConnected)

	close(rc.block)
	assert.Error(t, waitServe(t, errCh), "reply on a dropped connection must fail")
}

func TestProxy_ContextCanceled(t *testing.T) {
	rc := &remoteClient{block: make(chan struct{})}
	defer close(rc.block)
	p, _ := startServe(t, rc)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.Fit(ctx, common.FitIns{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, proxy.ErrTimeout)
	assert.True(t, p.Closed())
}

func TestProxy_Reconnect(t *testing.T) {
	tests := []struct {
		name       string
		ins        common.Reconnect
		wantReason string
	}{
		{"with delay", common.Reconnect{Seconds: 5}, common.DisconnectReconnect},
		{"no delay", common.Reconnect{}, common.DisconnectPowerDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, errCh := startServe(t, &remoteClient{})

			res, err := p.Reconnect(context.Background(), tt.ins)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.True(t, p.Closed())
			assert.NoError(t, waitServe(t, errCh))
		})
	}
}

func TestProxy_CloseIdempotent(t *testing.T) {
	p, errCh := startServe(t, &remoteClient{})

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.NoError(t, waitServe(t, errCh), "closing the proxy ends Serve cleanly")
}

// emptyClient answers every call with neither a result nor an error.
type emptyClient struct{}

func (emptyClient) GetParameters(context.Context) (*common.ParametersRes, error) { return nil, nil }

func (emptyClient) Fit(context.Context, common.FitIns) (*common.FitRes, error) { return nil, nil }

func (emptyClient) Evaluate(context.Context, common.EvaluateIns) (*common.EvaluateRes, error) {
	return nil, nil
}

func TestProxy_EmptyResultFromServedClient(t *testing.T) {
	p, _ := startServe(t, emptyClient{})

	res, err := p.Fit(context.Background(), common.FitIns{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, proxy.IsRetryable(err))
	assert.Contains(t, err.Error(), "empty client result")
	assert.False(t, p.Closed())
}

func TestProxy_NullResultFromPeer(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	p := NewProxy("edge-null", serverSide)
	t.Cleanup(func() {
		_ = p.Close()
		_ = clientSide.Close()
	})

	// A peer that answers every request with a null result.
	go func() {
		peer := NewProtocol(clientSide, clientSide)
		for {
			req, err := peer.ReadRequest()
			if err != nil {
				return
			}
			if err := peer.Reply(req.ID, nil, nil); err != nil {
				return
			}
		}
	}()

	res, err := p.Fit(context.Background(), common.FitIns{})
	require.ErrorIs(t, err, proxy.ErrEmptyResult)
	assert.Nil(t, res)
	assert.False(t, proxy.IsRetryable(err))

	evalRes, err := p.Evaluate(context.Background(), common.EvaluateIns{})
	require.ErrorIs(t, err, proxy.ErrEmptyResult)
	assert.Nil(t, evalRes)
}
