package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/randalmurphal/fedkit/client"
	"github.com/randalmurphal/fedkit/proxy"
)

// DefaultPath is the HTTP path ListenAndServe mounts the handler on.
const DefaultPath = "/fedkit"

// MaxMessageSize is the WebSocket read limit on both ends. Model parameters
// travel inline, so it is far above the library default.
const MaxMessageSize = 256 << 20

// Dial opens a WebSocket to a client served by Handler and returns a proxy
// for it. ctx bounds the handshake only.
func Dial(ctx context.Context, cid, url string, opts ...Option) (*Proxy, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, proxy.NewError(cid, "dial", fmt.Errorf("%w: %w", proxy.ErrNotConnected, err), true)
	}
	ws.SetReadLimit(MaxMessageSize)

	conn := websocket.NetConn(context.Background(), ws, websocket.MessageText)
	return NewProxy(cid, conn, opts...), nil
}

// Handler serves c to every proxy that connects over WebSocket.
// Each connection gets its own Serve loop.
func Handler(c client.Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Warn("websocket accept failed", slog.Any("error", err))
			return
		}
		ws.SetReadLimit(MaxMessageSize)

		conn := websocket.NetConn(r.Context(), ws, websocket.MessageText)
		defer conn.Close()

		slog.Info("proxy connected", slog.String("remote", r.RemoteAddr))
		if err := Serve(r.Context(), c, conn); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("serve ended with error",
				slog.String("remote", r.RemoteAddr),
				slog.Any("error", err))
			return
		}
		slog.Info("proxy disconnected", slog.String("remote", r.RemoteAddr))
	})
}

// ListenAndServe serves c at DefaultPath on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, c client.Client) error {
	mux := http.NewServeMux()
	mux.Handle(DefaultPath, Handler(c))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
