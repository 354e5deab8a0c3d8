package rpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/randalmurphal/fedkit/proxy"
)

// Wire format: one JSON-RPC 2.0 object per line.

const jsonrpcVersion = "2.0"

// Methods served by a client.
const (
	MethodGetParameters = "get_parameters"
	MethodFit           = "fit"
	MethodEvaluate      = "evaluate"
	MethodReconnect     = "reconnect"
)

// Request is a call as written by a proxy.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// InboundRequest is a call as read by a client. ID is nil for notifications,
// which are read and dropped.
type InboundRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *int64          `json:"id"`
}

// Response answers one Request. ID is null when the request was too
// malformed to read its id.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      *int64          `json:"id"`
}

// RPCError is the error member of a Response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("RPC error %d: %s (data: %s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Error codes. The -32000 range is reserved for application errors.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeClientError = -32000 // the client's own operation failed
)

// Protocol reads and writes newline-delimited JSON-RPC messages on a stream.
// Writes may come from several goroutines; reads are serialized.
type Protocol struct {
	r *bufio.Reader
	w io.Writer

	writeMu sync.Mutex
	readMu  sync.Mutex
	lastID  int64 // guarded by readMu
}

// NewProtocol wraps r and w.
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	return &Protocol{r: bufio.NewReaderSize(r, 64*1024), w: w}
}

// Call writes a request and reads until the response with the same id
// arrives, decoding its result into result. Notifications and responses
// to earlier, abandoned calls are skipped.
//
// When result is non-nil the response must carry a non-null result;
// otherwise Call returns proxy.ErrEmptyResult.
func (p *Protocol) Call(method string, params, result any) error {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	p.lastID++
	id := p.lastID
	if err := p.write(Request{JSONRPC: jsonrpcVersion, Method: method, Params: params, ID: id}); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	for {
		line, err := p.readLine()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if resp.ID == nil || *resp.ID != id {
			continue
		}

		switch {
		case resp.Error != nil:
			return resp.Error
		case result == nil:
			return nil
		case isNull(resp.Result):
			return fmt.Errorf("%w: %s", proxy.ErrEmptyResult, method)
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
		return nil
	}
}

// ReadRequest returns the next message that carries a method. Responses
// are skipped. A line that is not JSON, or has neither method nor id,
// yields an *RPCError the caller can send back; the stream stays usable.
func (p *Protocol) ReadRequest() (*InboundRequest, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	for {
		line, err := p.readLine()
		if err != nil {
			return nil, err
		}

		var req InboundRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return nil, &RPCError{Code: CodeParseError, Message: err.Error()}
		}
		switch {
		case req.Method != "":
			return &req, nil
		case req.ID == nil:
			return nil, &RPCError{Code: CodeInvalidRequest, Message: "missing method"}
		}
	}
}

// Reply answers request id; a nil id is written as null. rpcErr takes
// precedence over result.
func (p *Protocol) Reply(id *int64, result any, rpcErr *RPCError) error {
	resp := Response{JSONRPC: jsonrpcVersion, ID: id, Error: rpcErr}
	if rpcErr == nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resp.Result = data
	}
	return p.write(resp)
}

func (p *Protocol) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err = p.w.Write(append(data, '\n'))
	return err
}

// readLine returns the next non-blank line. Callers hold readMu.
func (p *Protocol) readLine() ([]byte, error) {
	for {
		line, err := p.r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(line)) > 0 {
			return line, nil
		}
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
