package binutil

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xiaonanln/fpsworld/engine/gwlog"
)

// SignalContext returns a context cancelled on SIGINT or SIGTERM
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signalChan)
		select {
		case sig := <-signalChan:
			gwlog.Infof("signal %s received, terminating ...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
