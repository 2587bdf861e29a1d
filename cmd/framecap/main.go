// Command framecap captures camera frames into pooled GPU frame buffers.
//
// Usage:
//
//	framecap devices               # list cameras
//	framecap run --frames 300      # capture 300 frames and print pool stats
//	framecap run --synthetic       # use the built-in test-pattern camera
//
// Settings come from framecap.yaml (current directory or the user config
// directory), FRAMECAP_* environment variables and flags, in increasing
// priority. Editing the config file during a run reconfigures the camera.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Registers the platform camera driver with mediadevices.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "framecap:", err)
		stop()
		os.Exit(1)
	}
}
