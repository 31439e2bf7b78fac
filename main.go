package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var listen string

	root := &cobra.Command{
		Use:   "whoop-mcp",
		Short: "MCP server exposing WHOOP cycles, sleep, recovery, workouts and profile as tools",
		Long: `whoop-mcp exposes the WHOOP developer API (v2) as Model Context Protocol tools.

With no subcommand it serves MCP over stdio, which is what MCP clients such as
Claude Desktop expect:

  {
    "mcpServers": {
      "whoop": {
        "command": "whoop-mcp"
      }
    }
  }

Credentials come from ~/.config/whoop-mcp/config.toml or WHOOP_* environment
variables. Run "whoop-mcp auth" once to obtain them.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, listen)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+defaultConfigPath+")")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio, or over WebSocket with --listen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, listen)
		},
	}
	serve.Flags().StringVar(&listen, "listen", "", "serve WebSocket sessions on this address (e.g. :8000) instead of stdio")

	root.AddCommand(serve, newAuthCmd(&configPath), newRefreshCmd(&configPath), newCheckCmd(&configPath))
	return root
}

// loadRuntime loads config and builds the stderr logger shared by all commands.
func loadRuntime(configPath string) (Config, *logrus.Logger, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return Config{}, nil, err
	}

	return cfg, logger, nil
}

func runServe(ctx context.Context, configPath, listen string) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		return err
	}

	client := NewWhoopClient(cfg.ClientConfig(), WithLogger(logger))
	server := NewMCPServer(client, cfg, logger)

	validateCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	if err := client.ValidateConnection(validateCtx); err != nil {
		logger.WithError(err).Warn("Whoop API not reachable with current credentials; tools will report errors")
	}
	cancel()

	if cfg.Listen != "" {
		return serveWebSocket(ctx, cfg.Listen, newWebSocketHandler(server, cfg, logger), logger)
	}

	logger.Info("Starting Whoop MCP Server...")
	logger.Info("Server ready to accept JSON-RPC 2.0 requests via stdio")

	// Scanning stdin cannot be interrupted, so a signal returns without waiting for it.
	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
	}

	logger.Info("Whoop MCP Server shutting down")
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
