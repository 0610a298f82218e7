package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/melih/simfleet/internal/adapters/http"
	"github.com/melih/simfleet/internal/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. The container engine is detected once at startup;
if none is reachable the API still serves status requests and reports
every instance as not created.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().Bool("cleanup-on-exit", false, "remove all instances before exiting")
	_ = v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanupOnExit, _ := cmd.Flags().GetBool("cleanup-on-exit")
	logger := log.WithComponent("server")

	ctx := commandContext(cmd)
	manager, engine, err := newManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEngine(engine)

	app := http.NewApp(manager, cfg)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("engine", string(manager.EngineMode())).
			Int("max_instances", cfg.Instances.MaxInstances).
			Msg("API server starting")
		errCh <- app.Listen(cfg.Server.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		return err
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}

	if cleanupOnExit {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout*2)
		defer cancel()
		report, err := manager.CleanupAll(cleanupCtx)
		if err != nil {
			logger.Warn().Err(err).Msg("Cleanup on exit skipped")
		} else if failed := report.Failed(); len(failed) > 0 {
			logger.Warn().Int("failed", len(failed)).Msg("Cleanup on exit finished with failures")
		} else {
			logger.Info().Msg("All instances removed")
		}
	}

	logger.Info().Msg("Server stopped")
	return nil
}
