package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// errInterrupted is the cancellation cause of a run stopped by a signal.
var errInterrupted = errors.New("migration interrupted")

// exitInterrupted is the shell convention for death by SIGINT.
const exitInterrupted = 130

// interruptContext cancels the run on the first SIGINT or SIGTERM. The
// file in flight is abandoned and the ledger records the partial run;
// context.Cause reports errInterrupted. A second signal exits at once.
// stop unregisters the handler and cancels the context.
func interruptContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("stopping migration after signal; the current file will be retried next run",
				slog.String("signal", sig.String()),
			)
			cancel(fmt.Errorf("%w by %s", errInterrupted, sig))
		case <-done:
			return
		case <-parent.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Error("second signal, exiting without recording the run",
				slog.String("signal", sig.String()),
			)
			os.Exit(exitInterrupted)
		case <-done:
		}
	}()

	stop := func() {
		signal.Stop(sigCh)
		close(done)
		cancel(context.Canceled)
	}

	return ctx, stop
}

// interruptedRunError replaces a bare context.Canceled with the signal
// cause so the ledger and exit message say why the run stopped.
func interruptedRunError(ctx context.Context, runErr error) error {
	if !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if cause := context.Cause(ctx); errors.Is(cause, errInterrupted) {
		return cause
	}

	return runErr
}
