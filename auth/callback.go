package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultCallbackTimeout bounds the wait for the browser redirect.
const DefaultCallbackTimeout = 5 * time.Minute

// CallbackResult carries the query parameters captured from the single
// redirect request.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackServer is a single-shot HTTP listener for the OAuth redirect.
// It binds the host and port of the configured redirect URI, serves
// exactly one request on the redirect path, and releases the port.
type CallbackServer struct {
	addr   string
	path   string
	logger *slog.Logger

	server *http.Server
	once   sync.Once
	result chan CallbackResult
}

// NewCallbackServer creates a listener for the given redirect URI.
func NewCallbackServer(redirectURI string, logger *slog.Logger) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("redirect URI %q has no host", redirectURI)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &CallbackServer{
		addr:   u.Host,
		path:   path,
		logger: logger,
		result: make(chan CallbackResult, 1),
	}, nil
}

// Start binds the port and begins serving. A port already in use is
// reported with a remediation hint, since it usually means another
// instance is running or the redirect URI needs a different port.
func (s *CallbackServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("callback port %s is already in use; "+
				"stop the other process or configure a redirect URI with a different port: %w", s.addr, err)
		}
		return fmt.Errorf("failed to bind callback listener on %s: %w", s.addr, err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.GET(s.path, s.handleCallback)

	s.server = &http.Server{Handler: engine}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback server failed", "error", err)
		}
	}()

	s.logger.Debug("callback listener started", "addr", s.addr, "path", s.path)
	return nil
}

// handleCallback captures the redirect parameters, answers the browser
// with a static page, and resolves the wait. Only the first request
// counts; the server shuts down right after.
func (s *CallbackServer) handleCallback(c *gin.Context) {
	result := CallbackResult{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	}

	if result.Error != "" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(errorPage(result.Error, result.ErrorDescription)))
	} else {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(successPage))
	}

	s.once.Do(func() {
		s.result <- result
		go s.shutdown()
	})
}

// Wait blocks until the redirect arrives, the timeout elapses, or ctx
// is cancelled. The port is released in every case.
func (s *CallbackServer) Wait(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.result:
		return &result, nil
	case <-timer.C:
		s.shutdown()
		return nil, newError(KindAuthorizationTimeout,
			fmt.Sprintf("no authorization callback within %s", timeout))
	case <-ctx.Done():
		s.shutdown()
		return nil, ctx.Err()
	}
}

// Close releases the port if it is still held.
func (s *CallbackServer) Close() {
	s.shutdown()
}

func (s *CallbackServer) shutdown() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
	}
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>Authorization Successful</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Authorization Successful</h1>
<p>You can close this window and return to your application.</p>
</body>
</html>`

func errorPage(errCode, description string) string {
	if description == "" {
		description = "The authorization server rejected the request."
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Authorization Failed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Authorization Failed</h1>
<p>%s: %s</p>
<p>You can close this window.</p>
</body>
</html>`, errCode, description)
}
