package rpc

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_UnknownMethod(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	go func() { _ = Serve(context.Background(), &remoteClient{}, clientSide) }()

	proto := NewProtocol(serverSide, serverSide)
	err := proto.Call("train", nil, nil)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
}

func TestServe_InvalidParams(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	go func() { _ = Serve(context.Background(), &remoteClient{}, clientSide) }()

	proto := NewProtocol(serverSide, serverSide)
	err := proto.Call(MethodFit, []int{1, 2, 3}, nil)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)

	// The session survives a bad request.
	var res struct{}
	assert.NoError(t, proto.Call(MethodGetParameters, nil, &res))
}

func TestServe_ParseErrorRepliesAndContinues(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	go func() { _ = Serve(context.Background(), &remoteClient{}, clientSide) }()

	go func() { _, _ = serverSide.Write([]byte("{garbage\n")) }()

	line, err := bufio.NewReader(serverSide).ReadBytes('\n')
	require.NoError(t, err)
	assert.Contains(t, string(line), `"code":-32700`)
	assert.Contains(t, string(line), `"id":null`)
}

func TestServe_EmptyResultIsClientError(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	go func() { _ = Serve(context.Background(), emptyClient{}, clientSide) }()

	proto := NewProtocol(serverSide, serverSide)
	var res struct{}
	err := proto.Call(MethodFit, nil, &res)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeClientError, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "empty client result")
}

func TestServe_ContextCancelClosesStream(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, &remoteClient{}, clientSide) }()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
