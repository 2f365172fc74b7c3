package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownWaitTimeout is the maximum time to wait for the Controller to
// stop gracefully after a shutdown signal.
const shutdownWaitTimeout = 15 * time.Second

// Runnable is anything RunWithShutdown can supervise: a long-running
// process that blocks until ctx is cancelled or it hits a fatal error.
type Runnable interface {
	Run(ctx context.Context) error
}

// RunWithShutdown runs r until it returns or a SIGINT/SIGTERM arrives. If r
// returns first, its error is returned at once. On a signal, r's context is
// cancelled and RunWithShutdown waits up to shutdownWaitTimeout for r to
// stop, then returns nil. It mirrors the teacher's
// multi-service RunServicesWithShutdown/waitForShutdown/gracefulStop
// pattern, trimmed from N background services down to the single
// Controller this process runs.
func RunWithShutdown(r Runnable, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		errCh <- r.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		logger.Info("shutting down controller...")
		cancel()
		waitForStop(done, logger)
		return nil
	case err := <-errCh:
		cancel()
		return err
	}
}

func waitForStop(done <-chan struct{}, logger *slog.Logger) {
	select {
	case <-done:
		logger.Info("controller stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for controller to stop")
	}
}
