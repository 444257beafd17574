// Command commentctl drives the comment viewers against a remote feed API.
package main

import (
	"context"
	"os"

	"github.com/example/feed-platform/internal/platform/run"
)

func main() {
	ctx, stop := run.SignalContext(context.Background())
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
