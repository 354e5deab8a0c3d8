package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/fedkit/common"
	"github.com/randalmurphal/fedkit/proxy"
)

// TransportName is the registry name of this transport.
const TransportName = "rpc"

// Proxy implements proxy.ClientProxy over a JSON-RPC stream.
type Proxy struct {
	cid     string
	conn    io.ReadWriteCloser
	proto   *Protocol
	timeout time.Duration
	logger  *slog.Logger

	callMu sync.Mutex // Serializes calls on the stream

	mu     sync.Mutex // Protects closed
	closed bool
}

var _ proxy.ClientProxy = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*Proxy)

// WithTimeout bounds every call. 0 means calls are bounded only by their context.
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.timeout = d }
}

// WithLogger sets the logger used for connection events.
func WithLogger(l *slog.Logger) Option {
	return func(p *Proxy) { p.logger = l }
}

// NewProxy creates a proxy for the client identified by cid, speaking over conn.
// The proxy owns conn and closes it on Close, on Reconnect, and when a call
// is abandoned because of a timeout or cancellation.
func NewProxy(cid string, conn io.ReadWriteCloser, opts ...Option) *Proxy {
	p := &Proxy{
		cid:    cid,
		conn:   conn,
		proto:  NewProtocol(conn, conn),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CID implements proxy.ClientProxy.
func (p *Proxy) CID() string {
	return p.cid
}

// Transport implements proxy.ClientProxy.
func (p *Proxy) Transport() string {
	return TransportName
}

// GetParameters implements proxy.ClientProxy.
func (p *Proxy) GetParameters(ctx context.Context) (*common.ParametersRes, error) {
	var res common.ParametersRes
	if err := p.call(ctx, MethodGetParameters, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Fit implements proxy.ClientProxy.
func (p *Proxy) Fit(ctx context.Context, ins common.FitIns) (*common.FitRes, error) {
	var res common.FitRes
	if err := p.call(ctx, MethodFit, ins, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Evaluate implements proxy.ClientProxy.
func (p *Proxy) Evaluate(ctx context.Context, ins common.EvaluateIns) (*common.EvaluateRes, error) {
	var res common.EvaluateRes
	if err := p.call(ctx, MethodEvaluate, ins, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reconnect implements proxy.ClientProxy.
// The connection is closed once the client has answered.
func (p *Proxy) Reconnect(ctx context.Context, ins common.Reconnect) (*common.Disconnect, error) {
	var res common.Disconnect
	err := p.call(ctx, MethodReconnect, ins, &res)
	_ = p.Close()
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Close implements proxy.ClientProxy.
func (p *Proxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

// Closed reports whether the connection has been closed.
func (p *Proxy) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// call issues one RPC, honouring ctx and the configured timeout.
func (p *Proxy) call(ctx context.Context, method string, params, result any) error {
	if p.Closed() {
		return proxy.NewError(p.cid, method, proxy.ErrNotConnected, true)
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// Use goroutine for context cancellation support
	resultCh := make(chan error, 1)
	go func() {
		p.callMu.Lock()
		defer p.callMu.Unlock()
		resultCh <- p.proto.Call(method, params, result)
	}()

	select {
	case <-callCtx.Done():
		// The stream now holds an unanswered request; drop it.
		p.abort(method, callCtx.Err())
		err := callCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", proxy.ErrTimeout, err)
		}
		return proxy.NewError(p.cid, method, err, true)
	case err := <-resultCh:
		if err == nil {
			return nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return proxy.NewError(p.cid, method, rpcErr, false)
		}
		if errors.Is(err, proxy.ErrEmptyResult) {
			return proxy.NewError(p.cid, method, err, false)
		}
		p.abort(method, err)
		return proxy.NewError(p.cid, method, fmt.Errorf("%w: %w", proxy.ErrNotConnected, err), true)
	}
}

// abort closes the connection after a failed call.
func (p *Proxy) abort(method string, cause error) {
	if p.Closed() {
		return
	}
	p.logger.Warn("dropping client connection",
		slog.String("cid", p.cid),
		slog.String("method", method),
		slog.Any("error", cause))
	_ = p.Close()
}
