package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/mediabridge/internal/config"
	"github.com/genricoloni/mediabridge/internal/control"
	"github.com/genricoloni/mediabridge/internal/domain"
	"github.com/genricoloni/mediabridge/internal/encoder"
	"github.com/genricoloni/mediabridge/internal/engine"
	"github.com/genricoloni/mediabridge/internal/fetcher"
	"github.com/genricoloni/mediabridge/internal/monitor"
	"github.com/genricoloni/mediabridge/internal/processor"
	"github.com/genricoloni/mediabridge/internal/sink"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AppOptions is the full dependency graph of the daemon
var AppOptions = fx.Options(
	// Provide dependencies
	fx.Provide(
		fx.Annotate(config.NewAppConfig, fx.As(new(domain.Config))),
		newLogger,

		fx.Annotate(encoder.NewJSONEncoder, fx.As(new(domain.Encoder))),
		fx.Annotate(sink.NewStdoutWriter, fx.As(new(domain.Sink))),

		fx.Annotate(processor.NewThumbnailer, fx.As(new(domain.ImageProcessor))),
		fx.Annotate(fetcher.NewURLOpener, fx.As(new(domain.ArtworkResolver))),
		fx.Annotate(fetcher.NewArtworkFetcher, fx.As(new(domain.ArtworkFetcher))),

		fx.Annotate(monitor.NewMprisMonitor, fx.As(new(domain.SessionProvider))),
		engine.NewMultiplexer,
		control.NewQuitListener,
	),

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	os.Exit(run())
}

func run() int {
	app := fx.New(
		AppOptions,
		// Logger configuration
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "mediabridge: %v\n", err)
		return 1
	}

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the application
	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mediabridge: %v\n", err)
		return 1
	}

	// Wait for an interrupt, a quit command or a fatal error
	exitCode := 0
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		exitCode = sig.ExitCode
	}

	// Stop the application gracefully
	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "mediabridge: %v\n", err)
		return 1
	}
	return exitCode
}

// newLogger creates a JSON logger on stderr; stdout carries only records
func newLogger(cfg domain.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// registerHooks sets up application lifecycle hooks
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, mux *engine.Multiplexer, quit *control.QuitListener) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("MediaBridge Daemon Started")
			return mux.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			err := mux.Stop(ctx)
			_ = logger.Sync()
			return err
		},
	})

	lc.Append(fx.Hook{
		OnStart: quit.Start,
	})
}
