package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config   string
	Database string
	Listen   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve both gates over HTTP",
		Long: `Load a committee configuration, restore both gates from the event
journal and serve the HTTP API until interrupted.

Callers identify themselves with the X-Quorum-Caller header; the fronting
host is responsible for authenticating it.

Examples:
  quorum serve --config quorum.yaml
  quorum serve --config quorum.yaml --db /var/lib/quorum.db --listen :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to configuration file (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Database, "db", "", "override the journal database path")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "override the listen address")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	// Logging is configured before the config is read so load failures are
	// logged too; the level is raised once the config is known.
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr(), slog.LevelInfo)

	dep, err := LoadDeployment(ctx, opts.Config, opts.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dep.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	logger = newLogger(opts.RootOptions, cmd.ErrOrStderr(), dep.Config.Level())
	slog.SetDefault(logger)
	logger.Info("gates restored",
		"database", dep.Config.Database,
		"operator_events", dep.Restored[config.OperatorGate],
		"methodologist_events", dep.Restored[config.CustodianGate])

	listen := dep.Config.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	if listen == "" {
		listen = "127.0.0.1:8080"
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := httpapi.NewServer(ctx, logger, httpapi.Config{
		Listener:  ln,
		Operator:  dep.Gates.Operator,
		Custodian: dep.Gates.Custodian,
		Store:     dep.Store,
	})
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())

	srv.Wait()
	logger.Info("server stopped")
	return nil
}
