// Package main provides the replay binary, which feeds a recorded
// instrumentation trace through the battle event engine and prints a
// per-map report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/config"
	"github.com/cory-johannsen/battlebus/internal/observability"
	"github.com/cory-johannsen/battlebus/internal/trace"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	tracePath := flag.String("trace", "", "path to a YAML instrumentation trace")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger, *tracePath, os.Stdout); err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}
	logger.Info("replay finished", zap.Duration("elapsed", time.Since(start)))
}

// run loads the trace at tracePath, builds the App and replays into it,
// writing the report to w.
//
// Postcondition: Returns a non-nil error if any step fails; main exits non-zero on it.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger, tracePath string, w io.Writer) error {
	if tracePath == "" {
		return errors.New("no trace given; pass -trace")
	}
	calls, err := trace.LoadFile(tracePath)
	if err != nil {
		return fmt.Errorf("loading trace: %w", err)
	}

	app, cleanup, err := initializeApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing replay: %w", err)
	}
	defer cleanup()

	return app.Run(ctx, calls, w)
}
