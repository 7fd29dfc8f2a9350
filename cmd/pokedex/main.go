package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kapu/pokedex-go/internal/adapter"
	"github.com/kapu/pokedex-go/internal/app"
	"github.com/kapu/pokedex-go/internal/config"
	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/observe"
	"github.com/kapu/pokedex-go/internal/service/pokedex"
	"github.com/kapu/pokedex-go/internal/util"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Pokedex starting...",
		zap.String("version", version),
		zap.String("log_level", cfg.Logging.Level),
	)

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "pokedex",
		ServiceVersion: version,
	})
	if err != nil {
		logger.Error("Failed to initialize telemetry", zap.Error(err))
		os.Exit(1)
	}

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := app.Build(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		logger.Error("Failed to assemble pokedex", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		run(ctx, container.Pokedex, cfg, os.Args[1:], logger)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-doneCh:
	}

	logger.Info("Shutting down gracefully...")
	cancel()
	container.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("Error during telemetry shutdown", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// run warms the first catalog page and prints the detail view of every
// reference given on the command line.
func run(ctx context.Context, dex *pokedex.Pokedex, cfg *config.Config, refs []string, logger *zap.Logger) {
	dex.WarmUp(ctx, pokedex.FirstPageIDs(cfg.Prefetch.Count))

	formatter := adapter.NewResponseFormatter()
	for _, ref := range refs {
		d, err := dex.Detail(ctx, ref, constants.DefaultLanguage)
		if err != nil {
			logger.Warn("Lookup failed", zap.String("ref", ref), zap.Error(err))
			continue
		}
		text, err := formatter.FormatDetail(d)
		if err != nil {
			logger.Error("Failed to render detail", zap.String("ref", ref), zap.Error(err))
			continue
		}
		moves := dex.MoveDetails(ctx, d.Pokemon, constants.CatalogConfig.MovesPreview)
		fmt.Printf("%s\n\nMoves\n%s\n\n", text, formatter.FormatMoves(moves))
	}
}
