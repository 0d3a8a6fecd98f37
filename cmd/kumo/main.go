package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ashita-ai/kumo"
	"github.com/ashita-ai/kumo/internal/config"
	"github.com/ashita-ai/kumo/ui"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, closeLog := newLogger(cfg)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	opts := []kumo.Option{
		kumo.WithVersion(version),
		kumo.WithLogger(logger),
	}

	dist, err := ui.DistFS()
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	if dist != nil {
		opts = append(opts, kumo.WithDashboard(dist))
	}

	app, err := kumo.New(opts...)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// newLogger writes JSON to stdout and, when KUMO_LOG_FILE is set, to a
// rotated file as well. Ground stations often run unattended for days.
func newLogger(cfg config.Config) (*slog.Logger, func() error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stdout
	closeFn := func() error { return nil }
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename: cfg.LogFile,
			MaxSize:  cfg.LogMaxSizeMB,
			MaxAge:   cfg.LogMaxAgeDays,
			Compress: true,
		}
		w = io.MultiWriter(os.Stdout, rotated)
		closeFn = rotated.Close
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), closeFn
}
