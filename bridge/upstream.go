package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Transport modes for the upstream connection.
const (
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
)

const (
	clientName      = "mcp-bridge"
	clientVersion   = "0.1.0"
	protocolVersion = "2025-03-26"
)

// Upstream is the slice of the MCP client surface the forwarder uses.
// *client.Client satisfies it; tests install fakes.
type Upstream interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	Ping(ctx context.Context) error
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	ReadResource(ctx context.Context, request mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
	ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	GetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
	OnNotification(handler func(notification mcp.JSONRPCNotification))
	Close() error
}

var _ Upstream = (*client.Client)(nil)

// UpstreamConfig describes how to reach the remote MCP server.
type UpstreamConfig struct {
	ServerURL  string
	Transport  string
	Headers    map[string]string
	HTTPClient *http.Client
}

// DialUpstream constructs the MCP client for the configured transport,
// starts it, and completes the protocol handshake. The returned client
// is authenticated through the bearer-injecting HTTP client it was
// built with.
func DialUpstream(ctx context.Context, cfg UpstreamConfig, logger *slog.Logger) (Upstream, error) {
	var (
		mcpClient *client.Client
		err       error
	)

	switch cfg.Transport {
	case TransportSSE:
		opts := []transport.ClientOption{}
		if cfg.HTTPClient != nil {
			opts = append(opts, transport.WithHTTPClient(cfg.HTTPClient))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(cfg.Headers))
		}
		mcpClient, err = client.NewSSEMCPClient(cfg.ServerURL, opts...)
	case TransportStreamableHTTP, "":
		opts := []transport.StreamableHTTPCOption{}
		if cfg.HTTPClient != nil {
			opts = append(opts, transport.WithHTTPBasicClient(cfg.HTTPClient))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		mcpClient, err = client.NewStreamableHttpClient(cfg.ServerURL, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Transport, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to start upstream transport: %w", err)
	}

	request := mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}

	result, err := mcpClient.Initialize(ctx, request)
	if err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("upstream initialize failed: %w", err)
	}

	logger.Info("connected to upstream MCP server",
		"name", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)

	return mcpClient, nil
}
