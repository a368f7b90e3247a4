// Command mcp-bridge connects a stdio MCP client to a remote MCP
// server that requires OAuth 2.0 bearer authentication. It discovers
// the server's authorization setup, runs the Authorization Code + PKCE
// flow through the user's browser, and forwards requests once a token
// is held.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remotemcp/mcp-bridge/auth"
	"github.com/remotemcp/mcp-bridge/bridge"
	"github.com/remotemcp/mcp-bridge/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already printed usage errors; runtime failures were
		// logged where they happened.
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags struct {
		serverURL       string
		clientID        string
		clientSecret    string
		redirectURI     string
		scopes          []string
		transport       string
		allowHTTP       bool
		headers         []string
		callbackTimeout string
		logLevel        string
	}

	cmd := &cobra.Command{
		Use:           "mcp-bridge <server-url>",
		Short:         "Bridge a stdio MCP client to an OAuth-protected remote MCP server",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}

			// Flags and the positional argument win over environment.
			if len(args) == 1 {
				cfg.ServerURL = args[0]
			}
			applyFlag(cmd, "server-url", &cfg.ServerURL, flags.serverURL)
			applyFlag(cmd, "client-id", &cfg.ClientID, flags.clientID)
			applyFlag(cmd, "client-secret", &cfg.ClientSecret, flags.clientSecret)
			applyFlag(cmd, "redirect-uri", &cfg.RedirectURI, flags.redirectURI)
			applyFlag(cmd, "transport", &cfg.Transport, flags.transport)
			applyFlag(cmd, "log-level", &cfg.LogLevel, flags.logLevel)
			if cmd.Flags().Changed("scope") {
				cfg.Scopes = flags.scopes
			}
			if cmd.Flags().Changed("allow-http") {
				cfg.AllowHTTP = flags.allowHTTP
			}
			if cmd.Flags().Changed("header") {
				headers, err := parseHeaders(flags.headers)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					return err
				}
				cfg.Headers = headers
			}

			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}

			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&flags.serverURL, "server-url", "", "remote MCP server URL")
	cmd.Flags().StringVar(&flags.clientID, "client-id", "", "static OAuth client ID (skips dynamic registration)")
	cmd.Flags().StringVar(&flags.clientSecret, "client-secret", "", "static OAuth client secret")
	cmd.Flags().StringVar(&flags.redirectURI, "redirect-uri", "", "OAuth redirect URI for the local callback")
	cmd.Flags().StringSliceVar(&flags.scopes, "scope", nil, "OAuth scope to request (repeatable)")
	cmd.Flags().StringVar(&flags.transport, "transport", "", "upstream transport: streamable-http or sse")
	cmd.Flags().BoolVar(&flags.allowHTTP, "allow-http", false, "allow a plain-http server URL outside localhost")
	cmd.Flags().StringArrayVar(&flags.headers, "header", nil, "extra upstream header as Name:Value (repeatable)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	return cmd
}

func applyFlag(cmd *cobra.Command, name string, dst *string, value string) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

func parseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected Name:Value", pair)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func run(cfg *config.Config) error {
	// stdout carries protocol traffic; all logging goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var static *auth.ClientInformation
	if cfg.ClientID != "" {
		static = &auth.ClientInformation{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
		}
	}

	store := auth.NewStore(cfg.RedirectURI, static, logger)
	flow := auth.NewFlow(auth.FlowConfig{
		ServerURL:       cfg.ServerURL,
		Scopes:          cfg.Scopes,
		CallbackTimeout: cfg.CallbackTimeout,
	}, store, logger)

	b := bridge.New(bridge.Config{
		ServerURL: cfg.ServerURL,
		Transport: cfg.Transport,
		Headers:   cfg.Headers,
	}, flow, store, os.Stdin, os.Stdout, logger)

	logger.Info("starting mcp-bridge", "server_url", cfg.ServerURL, "transport", cfg.Transport)

	if err := b.Run(ctx); err != nil {
		if ctx.Err() != nil {
			// Signal-triggered shutdown is a clean exit.
			logger.Info("shutting down")
			return nil
		}
		logger.Error("bridge failed", "error", err)
		return err
	}

	logger.Info("shutting down")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
