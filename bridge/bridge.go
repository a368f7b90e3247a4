package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/remotemcp/mcp-bridge/auth"
)

// Config parameterizes one Bridge.
type Config struct {
	// ServerURL is the remote MCP server, also the OAuth protected
	// resource.
	ServerURL string

	// Transport selects the upstream wire protocol,
	// TransportStreamableHTTP or TransportSSE.
	Transport string

	// Headers are extra HTTP headers sent on every upstream request.
	Headers map[string]string
}

// Bridge ties the pieces together: the stdio server for the local
// client, the OAuth flow, and the authenticated upstream connection.
type Bridge struct {
	config Config
	flow   *auth.Flow
	store  *auth.Store
	gate   *Gate
	logger *slog.Logger

	handlers *Handlers
	server   *Server
	dial     func(ctx context.Context, cfg UpstreamConfig, logger *slog.Logger) (Upstream, error)
}

// New creates a Bridge over the given streams. In production in and
// out are os.Stdin and os.Stdout.
func New(config Config, flow *auth.Flow, store *auth.Store, in io.Reader, out io.Writer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	gate := NewGate()
	handlers := NewHandlers(gate, logger)

	return &Bridge{
		config:   config,
		flow:     flow,
		store:    store,
		gate:     gate,
		logger:   logger,
		handlers: handlers,
		server:   NewServer(in, out, handlers, logger),
		dial:     DialUpstream,
	}
}

// Run starts the local server, authorizes against the remote, connects
// upstream, opens the gate, and serves until the local client hangs up
// or ctx is cancelled.
//
// The local server starts before authorization so the client's
// initialize handshake is answered immediately; every other operation
// is gated until the upstream is ready.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- b.server.Run(ctx)
	}()

	if err := b.flow.Authorize(ctx); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	httpClient := &http.Client{
		Transport: NewAuthTransport(nil, b.store, b.flow, b.logger),
	}

	upstream, err := b.dial(ctx, UpstreamConfig{
		ServerURL:  b.config.ServerURL,
		Transport:  b.config.Transport,
		Headers:    b.config.Headers,
		HTTPClient: httpClient,
	}, b.logger)
	if err != nil {
		return fmt.Errorf("upstream connection failed: %w", err)
	}
	defer func() {
		b.gate.Close()
		_ = upstream.Close()
	}()

	// Upstream notifications flow straight through to the local client.
	upstream.OnNotification(func(notification mcp.JSONRPCNotification) {
		b.server.SendNotification(notification)
	})

	b.handlers.SetUpstream(upstream)
	b.gate.Open()
	b.logger.Info("bridge ready, forwarding requests")

	select {
	case err := <-serverDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
