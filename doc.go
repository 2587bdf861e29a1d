// Package framecap is the capture-and-buffer core of a real-time video
// pipeline for the GoGPU ecosystem.
//
// # Overview
//
// framecap acquires frames from a camera and exposes them as GPU-resident,
// reference-counted image buffers that downstream filter, render and encode
// stages consume without extra copies. It is organized into:
//
//   - capture: the capture-session state machine. Device discovery, position
//     fallback, preset and frame-rate negotiation, orientation, start/stop.
//   - processing: the GPU timeline. Every wgpu/hal call runs on one goroutine
//     through Context.Sync; the texture cache derives textures from
//     CPU/GPU-shared pixel storage.
//   - framebuffer: pooled GPU frame buffers with explicit reference counting
//     and deterministic destruction.
//   - ingest: a frame consumer that uploads delivered frames into pooled
//     buffers and hands them downstream.
//
// # Quick Start
//
//	ctx, err := processing.FromProvider(app.GPUContextProvider())
//	if err != nil {
//	    return err
//	}
//	pool := framebuffer.NewPool(ctx)
//	up := ingest.NewUploader(pool)
//
//	ctrl := capture.NewController(session, devices,
//	    capture.WithFrameHandler(up.Handle),
//	    capture.WithResultHandler(func(r capture.Result) { log.Println(r) }),
//	)
//	if _, err := ctrl.Configure(context.Background()); err != nil {
//	    return err
//	}
//	ctrl.StartRunning()
//
//	for u := range up.Buffers() {
//	    // render with u.Buffer, then
//	    _ = u.Buffer.Unlock()
//	}
//
// # Timelines
//
// Three goroutines own the three execution timelines: the controller's
// session queue (state transitions, device mutation), the capture session's
// delivery goroutine (raw frames), and the processing context's GPU queue
// (all GPU API calls). Calls into the GPU queue block until the work is done.
//
// # Logging
//
// framecap is silent by default. Call SetLogger to route log/slog records
// from every sub-package to a handler of your choice.
package framecap

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
