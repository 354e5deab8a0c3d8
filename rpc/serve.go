package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/randalmurphal/fedkit/client"
	"github.com/randalmurphal/fedkit/common"
	"github.com/randalmurphal/fedkit/proxy"
)

// Serve answers proxy calls on rw by invoking c, until the proxy sends
// reconnect, the stream ends, or ctx is done.
//
// If rw implements io.Closer it is closed when ctx is done so a pending read
// returns. Serve returns nil after a reconnect or a clean end of stream.
func Serve(ctx context.Context, c client.Client, rw io.ReadWriter) error {
	if closer, ok := rw.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	proto := NewProtocol(rw, rw)
	for {
		req, err := proto.ReadRequest()
		if err != nil {
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) {
				if err := proto.Reply(nil, nil, rpcErr); err != nil {
					return fmt.Errorf("write response: %w", err)
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		// Notifications carry nothing a client acts on.
		if req.ID == nil {
			continue
		}

		slog.Debug("serving request",
			slog.String("method", req.Method),
			slog.Int64("id", *req.ID))

		result, rpcErr, done := dispatch(ctx, c, req)
		if err := proto.Reply(req.ID, result, rpcErr); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if done {
			return nil
		}
	}
}

// dispatch runs one request against c. done is true when the session
// should end after the reply.
func dispatch(ctx context.Context, c client.Client, req *InboundRequest) (result any, rpcErr *RPCError, done bool) {
	switch req.Method {
	case MethodGetParameters:
		res, err := c.GetParameters(ctx)
		return reply(res, err)

	case MethodFit:
		var ins common.FitIns
		if err := decodeParams(req.Params, &ins); err != nil {
			return nil, err, false
		}
		res, err := c.Fit(ctx, ins)
		return reply(res, err)

	case MethodEvaluate:
		var ins common.EvaluateIns
		if err := decodeParams(req.Params, &ins); err != nil {
			return nil, err, false
		}
		res, err := c.Evaluate(ctx, ins)
		return reply(res, err)

	case MethodReconnect:
		var ins common.Reconnect
		if err := decodeParams(req.Params, &ins); err != nil {
			return nil, err, false
		}
		return &common.Disconnect{Reason: disconnectReason(ins)}, nil, true

	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}, false
	}
}

// disconnectReason reports whether the client intends to come back.
func disconnectReason(ins common.Reconnect) string {
	if ins.Seconds > 0 {
		return common.DisconnectReconnect
	}
	return common.DisconnectPowerDisconnected
}

func decodeParams(raw json.RawMessage, v any) *RPCError {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

// reply turns a client result into a response. A nil result without an
// error is reported as a client error rather than sent as null.
func reply[T any](res *T, err error) (any, *RPCError, bool) {
	if err == nil && res == nil {
		err = proxy.ErrEmptyResult
	}
	if err != nil {
		return nil, clientError(err), false
	}
	return res, nil, false
}

func clientError(err error) *RPCError {
	return &RPCError{Code: CodeClientError, Message: err.Error()}
}
