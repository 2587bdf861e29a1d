package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framecap"
	"github.com/gogpu/framecap/internal/timeline"
)

// Stats counts frames seen by the controller's sink.
type Stats struct {
	Delivered uint64
	Dropped   uint64
}

// Controller owns a capture session and its state machine.
//
// Controller is safe for concurrent use. Configure, SetConfiguration and
// Close block until the session timeline has run them; StartRunning and
// StopRunning return immediately.
type Controller struct {
	session Session
	devices DeviceEnumerator
	q       *timeline.Queue

	authorize  Authorizer
	onResult   ResultHandler
	onFrame    FrameHandler
	presets    []Preset
	queueDepth int

	// Written only on the session timeline; mu lets other goroutines
	// take snapshots.
	mu     sync.RWMutex
	cfg    Configuration
	state  SessionState
	device Device
	preset Preset
	input  Input
	output *VideoOutput

	delivering atomic.Bool
	delivered  atomic.Uint64
	dropped    atomic.Uint64

	closeOnce sync.Once
}

var _ FrameSink = (*Controller)(nil)

// NewController creates a controller for session, choosing devices from
// devices. The controller starts Unconfigured.
func NewController(session Session, devices DeviceEnumerator, opts ...Option) *Controller {
	c := &Controller{
		session: session,
		devices: devices,
		presets: append([]Preset(nil), DefaultPresets...),
		cfg:     DefaultConfiguration(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.q = timeline.New("capture-session", c.queueDepth)
	return c
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Configuration returns the configuration in effect. After a position
// fallback it reports the position actually used.
func (c *Controller) Configuration() Configuration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// ActiveDevice returns the configured device, or nil.
func (c *Controller) ActiveDevice() Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.device
}

// Preset returns the negotiated preset, or "" when none was set.
func (c *Controller) Preset() Preset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.preset
}

// Stats returns frame counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Delivered: c.delivered.Load(),
		Dropped:   c.dropped.Load(),
	}
}

// SetConfiguration replaces the desired configuration. It takes effect on
// the next Configure, which is how callers switch cameras.
func (c *Controller) SetConfiguration(cfg Configuration) error {
	return c.sync(func() error {
		c.mu.Lock()
		c.cfg = cfg
		c.mu.Unlock()
		return nil
	})
}

// Configure negotiates the session on the session timeline and returns the
// outcome. The same Result goes to the ResultHandler. A running session is
// stopped first and ends up Ready on success. On failure the previous input
// and output are removed from the session.
//
// The returned error is nil on success, wraps ErrNotAuthorized on denied
// access and is a *ConfigError otherwise.
func (c *Controller) Configure(ctx context.Context) (Result, error) {
	var res Result
	err := c.sync(func() error {
		res = c.configure(ctx)
		return nil
	})
	if err != nil {
		res = Result{Configuration: c.Configuration(), State: c.State(), Err: err}
	}
	if c.onResult != nil {
		c.onResult(res)
	}
	return res, res.Err
}

// StartRunning asks the session to start delivering frames. It does
// nothing unless the state is Ready or Running.
func (c *Controller) StartRunning() {
	if err := c.q.Async(c.startRunning); err != nil {
		framecap.Logger().Debug("capture: start ignored", "err", err)
	}
}

// StopRunning asks the session to stop delivering frames. It does nothing
// unless the state is Running. Frames already being delivered complete.
func (c *Controller) StopRunning() {
	if err := c.q.Async(c.stopRunning); err != nil {
		framecap.Logger().Debug("capture: stop ignored", "err", err)
	}
}

// DidOutput implements FrameSink. Frames are forwarded only while running.
func (c *Controller) DidOutput(f Frame, _ Connection) {
	if !c.delivering.Load() {
		c.dropped.Add(1)
		return
	}
	c.delivered.Add(1)
	if c.onFrame != nil {
		c.onFrame(f)
	}
}

// Close stops the session, detaches input and output and stops the session
// timeline. Close is safe to call multiple times.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		_ = c.q.Sync(func() error {
			c.stopRunning()
			c.session.BeginConfiguration()
			c.detach()
			c.session.CommitConfiguration()
			return nil
		})
		c.q.Close()
		framecap.Logger().Debug("capture: controller closed")
	})
	return nil
}

func (c *Controller) sync(fn func() error) error {
	err := c.q.Sync(fn)
	if errors.Is(err, timeline.ErrClosed) {
		return ErrClosed
	}
	return err
}

// configure runs on the session timeline.
func (c *Controller) configure(ctx context.Context) Result {
	log := framecap.Logger()

	if c.state.State == StateRunning {
		c.stopRunning()
	}
	c.setState(SessionState{State: StateConfiguring})

	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()
	res := Result{Configuration: cfg}

	// A failed configuration leaves nothing wired to the session.
	batching := false
	fail := func(reason Reason, err error) Result {
		if !batching {
			c.session.BeginConfiguration()
			defer c.session.CommitConfiguration()
		}
		c.detach()

		st := SessionState{State: StateFailed, Reason: reason}
		c.mu.Lock()
		c.state = st
		c.device = nil
		c.preset = ""
		c.mu.Unlock()
		res.State = st
		res.Err = err
		log.Error("capture: configuration failed", "reason", reason.String(), "err", err)
		return res
	}

	if c.authorize != nil {
		if err := c.authorize(ctx); err != nil {
			return fail(ReasonNotAuthorized, fmt.Errorf("%w: %v", ErrNotAuthorized, err))
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(ReasonConfigurationFailed, &ConfigError{Step: "context", Err: err})
	}

	// Device selection with position fallback.
	devices, err := c.devices.Devices(ctx)
	if err != nil {
		return fail(ReasonConfigurationFailed, &ConfigError{Step: "enumerate devices", Err: err})
	}
	dev, pos, err := SelectDevice(devices, cfg.Position)
	if err != nil {
		return fail(ReasonConfigurationFailed, &ConfigError{Step: "select device", Err: err})
	}
	if pos != cfg.Position {
		log.Warn("capture: requested position unavailable, falling back",
			"requested", cfg.Position.String(), "using", pos.String())
		cfg.Position = pos
		c.mu.Lock()
		c.cfg.Position = pos
		c.mu.Unlock()
		res.Configuration = cfg
	}
	res.DeviceID = dev.ID()

	c.session.BeginConfiguration()
	defer c.session.CommitConfiguration()
	batching = true

	// Preset.
	preset, ok := NegotiatePreset(dev, c.session.CanSetPreset, c.presets)
	if ok {
		c.session.SetPreset(preset)
		log.Debug("capture: preset selected", "preset", string(preset))
	} else {
		log.Warn("capture: no supported preset, leaving session preset unset",
			"device", dev.ID())
	}
	res.Preset = preset

	// Input. Every previous input goes first so reconfiguring never
	// accumulates inputs.
	c.detachInputs()
	in, err := c.session.NewInput(dev)
	if err != nil {
		return fail(ReasonConfigurationFailed, &ConfigError{Step: "create input", Err: err})
	}
	if !c.session.CanAddInput(in) {
		return fail(ReasonConfigurationFailed, &ConfigError{Step: "add input", Err: ErrInputRejected})
	}
	c.session.AddInput(in)
	c.input = in

	// Output.
	if c.output != nil {
		c.session.RemoveOutput(c.output)
		c.output = nil
	}
	out := &VideoOutput{
		DiscardLateFrames: false,
		PixelFormat:       PixelFormatBGRA32,
		Sink:              c,
	}
	if !c.session.CanAddOutput(out) {
		return fail(ReasonConfigurationFailed, &ConfigError{Step: "add output", Err: ErrOutputRejected})
	}
	c.session.AddOutput(out)
	c.output = out

	// Frame rate.
	res.FrameRateApplied = applyFrameRate(dev, cfg.FrameRate)

	// Orientation.
	if conn := c.session.Connection(out); conn != nil {
		conn.SetOrientation(cfg.Orientation)
	}

	st := SessionState{State: StateReady}
	c.mu.Lock()
	c.state = st
	c.device = dev
	c.preset = preset
	c.mu.Unlock()
	res.State = st

	log.Info("capture: session configured",
		"device", dev.ID(), "position", cfg.Position.String(),
		"preset", string(preset), "fps", cfg.FrameRate,
		"fps_applied", res.FrameRateApplied)
	return res
}

// applyFrameRate sets a fixed frame rate under the device's configuration
// lock. Misses are logged and leave the device default in place.
func applyFrameRate(dev Device, fps int) bool {
	log := framecap.Logger()
	if !SupportsFrameRate(dev.ActiveFormat().FrameRateRanges, fps) {
		log.Warn("capture: frame rate not supported, keeping device default",
			"device", dev.ID(), "fps", fps)
		return false
	}
	if err := dev.LockForConfiguration(); err != nil {
		log.Warn("capture: configuration lock refused, keeping device default",
			"device", dev.ID(), "err", err)
		return false
	}
	defer dev.UnlockForConfiguration()

	d := FrameDuration(fps)
	dev.SetFrameDuration(d, d)
	return true
}

// startRunning runs on the session timeline.
func (c *Controller) startRunning() {
	log := framecap.Logger()
	switch c.state.State {
	case StateRunning:
		return
	case StateReady:
	default:
		log.Debug("capture: start ignored", "state", c.state.String())
		return
	}

	c.delivering.Store(true)
	if err := c.session.Start(); err != nil {
		c.delivering.Store(false)
		log.Error("capture: session failed to start", "err", err)
		return
	}
	c.setState(SessionState{State: StateRunning})
	log.Info("capture: session started")
}

// stopRunning runs on the session timeline.
func (c *Controller) stopRunning() {
	if c.state.State != StateRunning {
		framecap.Logger().Debug("capture: stop ignored", "state", c.state.String())
		return
	}
	c.delivering.Store(false)
	c.session.Stop()
	c.setState(SessionState{State: StateReady})
	framecap.Logger().Info("capture: session stopped")
}

func (c *Controller) detachInputs() {
	for _, in := range c.session.Inputs() {
		c.session.RemoveInput(in)
	}
	c.input = nil
}

func (c *Controller) detach() {
	c.detachInputs()
	if c.output != nil {
		c.session.RemoveOutput(c.output)
		c.output = nil
	}
}

func (c *Controller) setState(st SessionState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}
