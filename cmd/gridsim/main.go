// Command gridsim builds an electrical grid from GeoJSON exports, injects
// line faults and localises them with √n sensors.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/signalsfoundry/gridsense/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		logging.NewFromEnv(logging.Config{}).Error(ctx, "gridsim failed", logging.Err(err))
		stop()
		os.Exit(1)
	}
}
