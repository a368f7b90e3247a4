package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// initializeResult is the locally produced handshake answer. The
// bridge declares capabilities on the upstream's behalf before the
// upstream is even connected, so the local client can finish its own
// handshake while the OAuth flow is still in progress.
type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    localCapabilities  `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
}

type localCapabilities struct {
	Tools     *listChangedCapability `json:"tools,omitempty"`
	Resources *listChangedCapability `json:"resources,omitempty"`
	Prompts   *listChangedCapability `json:"prompts,omitempty"`
}

type listChangedCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// Handlers implements the inbound operation set. Forwarding calls are
// rejected or degraded while the connection gate is closed; once the
// gate opens they relay to the upstream client verbatim.
type Handlers struct {
	gate   *Gate
	logger *slog.Logger

	mu       sync.RWMutex
	upstream Upstream
}

// NewHandlers creates Handlers over the given gate. The upstream is
// installed later, once authentication completes.
func NewHandlers(gate *Gate, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{gate: gate, logger: logger}
}

// SetUpstream installs the authenticated upstream client.
func (h *Handlers) SetUpstream(u Upstream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.upstream = u
}

// connected returns the upstream when the gate is open, nil otherwise.
func (h *Handlers) connected() Upstream {
	if !h.gate.IsOpen() {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.upstream
}

// Dispatch routes one inbound request to its handler.
func (h *Handlers) Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, *rpcError) {
	switch method {
	case "initialize":
		return h.handleInitialize(params)
	case "ping":
		return h.handlePing(ctx)
	case "tools/list":
		return h.handleListTools(ctx, params)
	case "tools/call":
		return h.handleCallTool(ctx, params)
	case "resources/list":
		return h.handleListResources(ctx, params)
	case "resources/read":
		return h.handleReadResource(ctx, params)
	case "prompts/list":
		return h.handleListPrompts(ctx, params)
	case "prompts/get":
		return h.handleGetPrompt(ctx, params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
	}
}

// DispatchNotification routes one inbound notification. Unknown ones
// are dropped silently, notifications carry no reply channel.
func (h *Handlers) DispatchNotification(ctx context.Context, method string, params json.RawMessage) {
	switch method {
	case "notifications/initialized":
		h.logger.Debug("local client completed initialization")
	case "notifications/cancelled":
		h.logger.Debug("local client cancelled a request")
	default:
		h.logger.Debug("ignoring notification", "method", method)
	}
}

// handleInitialize answers locally with the bridge's static capability
// declaration, echoing the caller's protocol version. It never touches
// the upstream and never checks the gate.
func (h *Handlers) handleInitialize(params json.RawMessage) (interface{}, *rpcError) {
	version := protocolVersion
	if len(params) > 0 {
		var p struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		if err := json.Unmarshal(params, &p); err == nil && p.ProtocolVersion != "" {
			version = p.ProtocolVersion
		}
	}

	return initializeResult{
		ProtocolVersion: version,
		Capabilities: localCapabilities{
			Tools:     &listChangedCapability{ListChanged: true},
			Resources: &listChangedCapability{ListChanged: true},
			Prompts:   &listChangedCapability{ListChanged: true},
		},
		ServerInfo: mcp.Implementation{
			Name:    clientName,
			Version: clientVersion,
		},
	}, nil
}

func (h *Handlers) handlePing(ctx context.Context) (interface{}, *rpcError) {
	if u := h.connected(); u != nil {
		if err := u.Ping(ctx); err != nil {
			return nil, upstreamFault(err)
		}
	}
	return struct{}{}, nil
}

// handleListTools degrades to an empty list while disconnected or on
// upstream failure; local clients treat an empty list as "nothing
// available yet".
func (h *Handlers) handleListTools(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	empty := mcp.ListToolsResult{Tools: []mcp.Tool{}}

	u := h.connected()
	if u == nil {
		return empty, nil
	}

	var req mcp.ListToolsRequest
	if rpcErr := parseParams(params, &req.Params); rpcErr != nil {
		return nil, rpcErr
	}

	result, err := u.ListTools(ctx, req)
	if err != nil {
		h.logger.Warn("tools/list failed upstream, returning empty list", "error", err)
		return empty, nil
	}
	return result, nil
}

func (h *Handlers) handleCallTool(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	u := h.connected()
	if u == nil {
		return nil, notConnected()
	}

	var req mcp.CallToolRequest
	if rpcErr := parseParams(params, &req.Params); rpcErr != nil {
		return nil, rpcErr
	}

	result, err := u.CallTool(ctx, req)
	if err != nil {
		return nil, upstreamFault(err)
	}
	return result, nil
}

func (h *Handlers) handleListResources(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	empty := mcp.ListResourcesResult{Resources: []mcp.Resource{}}

	u := h.connected()
	if u == nil {
		return empty, nil
	}

	var req mcp.ListResourcesRequest
	if rpcErr := parseParams(params, &req.Params); rpcErr != nil {
		return nil, rpcErr
	}

	result, err := u.ListResources(ctx, req)
	if err != nil {
		h.logger.Warn("resources/list failed upstream, returning empty list", "error", err)
		return empty, nil
	}
	return result, nil
}

func (h *Handlers) handleReadResource(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	u := h.connected()
	if u == nil {
		return nil, notConnected()
	}

	var req mcp.ReadResourceRequest
	if rpcErr := parseParams(params, &req.Params); rpcErr != nil {
		return nil, rpcErr
	}

	result, err := u.ReadResource(ctx, req)
	if err != nil {
		return nil, upstreamFault(err)
	}
	return result, nil
}

func (h *Handlers) handleListPrompts(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	empty := mcp.ListPromptsResult{Prompts: []mcp.Prompt{}}

	u := h.connected()
	if u == nil {
		return empty, nil
	}

	var req mcp.ListPromptsRequest
	if rpcErr := parseParams(params, &req.Params); rpcErr != nil {
		return nil, rpcErr
	}

	result, err := u.ListPrompts(ctx, req)
	if err != nil {
		h.logger.Warn("prompts/list failed upstream, returning empty list", "error", err)
		return empty, nil
	}
	return result, nil
}

func (h *Handlers) handleGetPrompt(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	u := h.connected()
	if u == nil {
		return nil, notConnected()
	}

	var req mcp.GetPromptRequest
	if rpcErr := parseParams(params, &req.Params); rpcErr != nil {
		return nil, rpcErr
	}

	result, err := u.GetPrompt(ctx, req)
	if err != nil {
		return nil, upstreamFault(err)
	}
	return result, nil
}

func parseParams(params json.RawMessage, into interface{}) *rpcError {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, into); err != nil {
		return &rpcError{Code: codeInvalidRequest, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func notConnected() *rpcError {
	return &rpcError{Code: codeNotConnected, Message: "not connected to upstream server yet"}
}

// upstreamFault passes the remote error through without reinterpreting
// it; the text is the only part of the fault the local side can use.
func upstreamFault(err error) *rpcError {
	return &rpcError{Code: codeInternalError, Message: err.Error()}
}
