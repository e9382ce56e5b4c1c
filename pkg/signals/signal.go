package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalContext registers for SIGTERM and SIGINT. The returned context
// is cancelled on one of these signals. If a second signal is caught, the
// program is terminated with exit code 1.
func SetupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)

	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		// First signal: cancel to trigger graceful shutdown
		<-sigCh
		cancel()

		// Second signal: force exit
		<-sigCh
		os.Exit(1)
	}()

	return ctx
}
