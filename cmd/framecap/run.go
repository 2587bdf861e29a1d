package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/framecap"
	"github.com/gogpu/framecap/capture"
	"github.com/gogpu/framecap/framebuffer"
	"github.com/gogpu/framecap/ingest"
	"github.com/gogpu/framecap/processing"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture frames into GPU buffers",
		Long: `Configure the camera, start capturing and upload every frame into a
pooled GPU frame buffer. The run stops after --frames buffers or on
interrupt, then prints the pool statistics.

Editing the config file while running reconfigures the camera: position,
fps and orientation take effect on the next configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}
	cmd.Flags().String("position", "", "camera position: front or back")
	cmd.Flags().Int("fps", 0, "requested frame rate")
	cmd.Flags().Int("frames", 0, "stop after this many frames (0 = until interrupted)")
	return cmd
}

// run wires the pipeline: capture controller, uploader, pool and the
// consumer that returns buffers to the pool.
func (a *app) run(ctx context.Context) error {
	cfg := a.cfg
	runID := uuid.NewString()
	log := framecap.Logger().With("run", runID)

	gpu, err := openHeadless()
	if err != nil {
		return err
	}
	defer gpu.Close()

	pctx, err := processing.New(gpu.device, gpu.queue,
		processing.WithLabel("framecap-"+runID[:8]),
		processing.WithOwnedDevice(),
	)
	if err != nil {
		gpu.device.Destroy()
		return err
	}
	defer pctx.Close()

	pool := framebuffer.NewPool(pctx, cfg.poolOptions()...)
	defer pool.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	upOpts := []ingest.Option{
		ingest.WithQueueDepth(cfg.Ingest.QueueDepth),
		ingest.WithErrorHandler(func(err error) {
			if framebuffer.IsFatal(err) {
				cancel()
			}
		}),
	}
	if cfg.Ingest.DropWhenFull {
		upOpts = append(upOpts, ingest.WithDropWhenFull())
	}
	up := ingest.NewUploader(pool, upOpts...)

	ccfg, err := cfg.captureConfig()
	if err != nil {
		return err
	}
	session, devices := source(cfg)
	ctrl := capture.NewController(session, devices,
		capture.WithConfiguration(ccfg),
		capture.WithFrameHandler(up.Handle),
		capture.WithResultHandler(func(r capture.Result) {
			a.report(r)
		}),
	)

	if _, err := ctrl.Configure(ctx); err != nil {
		_ = ctrl.Close()
		up.Close()
		return err
	}
	a.watch(ctx, ctrl, log)

	start := time.Now()
	var received int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for u := range up.Buffers() {
			received++
			log.Debug("frame", "seq", u.Sequence, "buffer", u.Buffer.ID(), "size", u.Buffer.Size())
			if err := u.Buffer.Unlock(); err != nil {
				return err
			}
			if cfg.Frames > 0 && received == cfg.Frames {
				cancel()
			}
		}
		return up.Err()
	})
	g.Go(func() error {
		<-gctx.Done()
		err := ctrl.Close()
		up.Close()
		return err
	})

	ctrl.StartRunning()
	err = g.Wait()

	elapsed := time.Since(start)
	st := up.Stats()
	fmt.Fprintf(a.out, "run %s: %d frames in %s (%d uploaded, %d dropped, %d failed)\n",
		runID, received, elapsed.Round(time.Millisecond), st.Uploaded, st.Dropped, st.Failed)
	fmt.Fprintln(a.out, pool.Stats())
	return err
}

// report prints one configuration outcome.
func (a *app) report(r capture.Result) {
	if !r.OK() {
		fmt.Fprintf(a.out, "configuration %s: %v\n", r.State, r.Err)
		return
	}
	rate := "device default"
	if r.FrameRateApplied {
		rate = fmt.Sprintf("%d fps", r.Configuration.FrameRate)
	}
	fmt.Fprintf(a.out, "configured %s camera %s: preset %s, %s, %s\n",
		r.Configuration.Position, r.DeviceID, r.Preset, rate, r.Configuration.Orientation)
}

// watch reconfigures the controller when the config file changes.
func (a *app) watch(ctx context.Context, ctrl *capture.Controller, log *slog.Logger) {
	if a.v.ConfigFileUsed() == "" {
		return
	}
	a.v.OnConfigChange(func(e fsnotify.Event) {
		log.Debug("config change detected", "op", e.Op.String(), "file", e.Name)
		cfg, err := decodeConfig(a.v)
		if err != nil {
			log.Warn("failed to reload config", "err", err)
			return
		}
		a.apply(cfg)
		if err := reconfigure(ctx, ctrl, cfg); err != nil && !errors.Is(err, capture.ErrClosed) {
			log.Warn("reconfiguration failed", "err", err)
		}
	})
	a.v.WatchConfig()
}

// reconfigure applies cfg's capture settings and resumes capture if it was
// running.
func reconfigure(ctx context.Context, ctrl *capture.Controller, cfg *Config) error {
	ccfg, err := cfg.captureConfig()
	if err != nil {
		return err
	}
	if ccfg == ctrl.Configuration() {
		return nil
	}
	wasRunning := ctrl.State().State == capture.StateRunning
	if err := ctrl.SetConfiguration(ccfg); err != nil {
		return err
	}
	if _, err := ctrl.Configure(ctx); err != nil {
		return err
	}
	if wasRunning {
		ctrl.StartRunning()
	}
	return nil
}
