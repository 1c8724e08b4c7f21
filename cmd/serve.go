package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zapagent/zapagent/internal/app"
	"github.com/zapagent/zapagent/internal/config"
	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/transport"
)

var seedPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the message engine",
	Long: `Starts the engine with the connections, agents and tools declared in
the seed file. Messages arrive on stdin as "contato: texto" lines and
replies are printed to stdout. Production deployments embed the engine
with their own transport instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&seedPath, "seed", "seed.json", "path to the seed file")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	// Load validates; a bad config never reaches setup.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	seed, err := app.LoadSeed(seedPath)
	if err != nil {
		return fmt.Errorf("loading seed: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	console := transport.NewConsole(os.Stdin, os.Stdout, logger)

	a, err := app.Setup(ctx, cfg, console, AppVersion)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	a.Logger.Info("zapagent starting", "version", AppVersion, "seed", seedPath)

	if err := a.ApplySeed(ctx, seed); err != nil {
		return fmt.Errorf("applying seed: %w", err)
	}
	if err := a.StartConnections(ctx); err != nil {
		return fmt.Errorf("starting connections: %w", err)
	}

	a.Logger.Info("engine ready", "connections", len(seed.Connections))

	<-ctx.Done()
	a.Logger.Info("shutting down")
	return nil
}
