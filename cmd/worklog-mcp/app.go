package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	worklogmcp "github.com/worklog-dev/worklog-mcp-go"
	"github.com/worklog-dev/worklog-mcp-go/internal/config"
	"github.com/worklog-dev/worklog-mcp-go/worklog"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: "Start the MCP endpoint. Configuration comes from the environment:\n" +
			"WORKLOG_API_TOKEN and WORKLOG_ACCOUNT_ID are required; MCP_HTTP_PORT,\n" +
			"MCP_HTTP_HOST, MCP_HTTP_PATH, MCP_SESSION_MODE, MCP_ALLOWED_HOSTS,\n" +
			"MCP_ALLOWED_ORIGINS and LOG_LEVEL are optional.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

			ctx := withSignalCancel(cmd.Context())
			_, stop, err := worklogmcp.StartServer(ctx, cfg, worklogmcp.WithLogger(log))
			if err != nil {
				return err
			}

			<-ctx.Done()
			shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := stop(shCtx); err != nil {
				log.Error("shutdown.fail", slog.String("err", err.Error()))
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", worklog.ServerName, worklog.ServerVersion)
		},
	}
}

// withSignalCancel cancels the returned context on the first SIGINT or
// SIGTERM. Repeated signals are absorbed; shutdown runs once.
func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
