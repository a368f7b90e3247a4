package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// JSON-RPC error codes used on the local side.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInternalError  = -32603

	// codeNotConnected rejects forwarding calls while the gate is
	// closed, mirroring the "server not initialized" reserved code.
	codeNotConnected = -32002
)

// request is an inbound JSON-RPC message. A nil ID means notification.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Server reads newline-delimited JSON-RPC requests from a local client
// and dispatches them to the Handlers. Responses and relayed upstream
// notifications share one writer guarded by a mutex, since handler
// goroutines complete out of order.
type Server struct {
	in       io.Reader
	out      io.Writer
	outMu    sync.Mutex
	handlers *Handlers
	logger   *slog.Logger
}

// NewServer creates a Server over the given streams. In production the
// streams are the process's stdin and stdout; stdout carries protocol
// traffic only, logs go elsewhere.
func NewServer(in io.Reader, out io.Writer, handlers *Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		in:       in,
		out:      out,
		handlers: handlers,
		logger:   logger,
	}
}

// Run reads requests until EOF or ctx cancellation. EOF is a clean
// shutdown: the local client closed its end.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("dropping unparseable message", "error", err)
			s.writeError(nil, codeParseError, "parse error")
			continue
		}

		if len(req.ID) == 0 || string(req.ID) == "null" {
			s.handleNotification(ctx, &req)
			continue
		}

		// Each request runs in its own goroutine so a slow upstream
		// call does not stall the read loop.
		go s.handleRequest(ctx, &req)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("stdin read failed: %w", err)
	}
	s.logger.Debug("local client closed the connection")
	return nil
}

func (s *Server) handleRequest(ctx context.Context, req *request) {
	s.logger.Debug("handling request", "method", req.Method)

	result, rpcErr := s.handlers.Dispatch(ctx, req.Method, req.Params)
	if rpcErr != nil {
		s.writeError(req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	s.writeResult(req.ID, result)
}

func (s *Server) handleNotification(ctx context.Context, req *request) {
	s.logger.Debug("handling notification", "method", req.Method)
	s.handlers.DispatchNotification(ctx, req.Method, req.Params)
}

// SendNotification relays an upstream notification to the local client.
func (s *Server) SendNotification(notification mcp.JSONRPCNotification) {
	s.write(notification)
}

func (s *Server) writeResult(id json.RawMessage, result interface{}) {
	s.write(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id json.RawMessage, code int, message string) {
	if id == nil {
		id = json.RawMessage("null")
	}
	s.write(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) write(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal outbound message", "error", err)
		return
	}

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := fmt.Fprintf(s.out, "%s\n", data); err != nil {
		s.logger.Error("failed to write to local client", "error", err)
	}
}
