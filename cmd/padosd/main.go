// Command padosd boots the PadOS application server: a display driver,
// the root view, the client-protocol looper, and a presentation sink,
// driven until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kavionic/padosd/internal/compositor"
	"github.com/kavionic/padosd/internal/config"
	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/logx"
)

func main() {
	cfgPath := "padosd.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "padosd: config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	log := logx.New(os.Stderr, cfg.LogLevelValue())

	server := compositor.NewAppServer(cfg.Screen.Width, cfg.Screen.Height, cfg.ColorSpace(), log)
	sink := display.NewTerminalSink(os.Stdout)
	defer sink.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.RunLooper(gctx) })
	group.Go(func() error { return runEventLoop(gctx, server, log) })
	group.Go(func() error { return runRenderLoop(gctx, server, sink) })

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "padosd: %v\n", err)
		os.Exit(1)
	}
}

// runEventLoop drains queued pointer events and runs the region-rebuild
// and damage-expansion passes on a fixed tick, matching spec §9's design
// note that rebuilds happen after a batch of mutations rather than per
// mutation.
func runEventLoop(ctx context.Context, server *compositor.AppServer, log *logx.Logger) error {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			server.DrainEvents()
			compositor.RebuildAll(server.Root)
			compositor.ApplyScrollBlits(server.Root, server.Driver, server.ScreenBmp)
			server.ExpandDamageAndPaint()
		}
	}
}

// runRenderLoop periodically presents the screen bitmap to sink.
func runRenderLoop(ctx context.Context, server *compositor.AppServer, sink interface {
	Present(*display.ServerBitmap) error
}) error {
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sink.Present(server.ScreenBmp); err != nil {
				return err
			}
		}
	}
}
