package synthetic

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framecap"
	"github.com/gogpu/framecap/capture"
)

// ErrNotWired is returned by Start when the session has no input or output.
var ErrNotWired = errors.New("synthetic: session has no input or output")

// DefaultFrameInterval is used when neither the session nor the device
// sets a frame duration.
const DefaultFrameInterval = time.Second / 30

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithAcceptedPresets limits the presets CanSetPreset accepts.
func WithAcceptedPresets(presets ...capture.Preset) SessionOption {
	return func(s *Session) {
		s.accepted = make(map[capture.Preset]bool, len(presets))
		for _, p := range presets {
			s.accepted[p] = true
		}
	}
}

// WithRejectInput makes CanAddInput return false.
func WithRejectInput() SessionOption {
	return func(s *Session) { s.rejectInput = true }
}

// WithRejectOutput makes CanAddOutput return false.
func WithRejectOutput() SessionOption {
	return func(s *Session) { s.rejectOutput = true }
}

// WithInputError makes NewInput fail with err.
func WithInputError(err error) SessionOption {
	return func(s *Session) { s.inputErr = err }
}

// WithStartError makes Start fail with err.
func WithStartError(err error) SessionOption {
	return func(s *Session) { s.startErr = err }
}

// WithFrameInterval overrides the delivery interval.
func WithFrameInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.interval = d }
}

// Input is a device attached to a Session.
type Input struct {
	dev capture.Device
}

// Device implements capture.Input.
func (in *Input) Device() capture.Device { return in.dev }

// Connection is the video connection of an output.
type Connection struct {
	orientation atomic.Uint32
}

func (c *Connection) SetOrientation(o capture.Orientation) {
	c.orientation.Store(uint32(o))
}

func (c *Connection) Orientation() capture.Orientation {
	return capture.Orientation(c.orientation.Load())
}

// Session is a software capture session.
type Session struct {
	accepted     map[capture.Preset]bool
	rejectInput  bool
	rejectOutput bool
	inputErr     error
	startErr     error
	interval     time.Duration

	mu      sync.Mutex
	preset  capture.Preset
	inputs  []capture.Input
	outputs []*capture.VideoOutput
	conns   map[*capture.VideoOutput]*Connection
	batches int
	commits int

	running bool
	stop    chan struct{}
	done    chan struct{}
	seq     atomic.Uint64
}

var _ capture.Session = (*Session)(nil)

// NewSession creates an idle session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{conns: make(map[*capture.VideoOutput]*Connection)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) BeginConfiguration() {
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()
}

func (s *Session) CommitConfiguration() {
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
}

func (s *Session) CanSetPreset(p capture.Preset) bool {
	return s.accepted == nil || s.accepted[p]
}

func (s *Session) SetPreset(p capture.Preset) {
	s.mu.Lock()
	s.preset = p
	s.mu.Unlock()
}

// Preset returns the preset last set.
func (s *Session) Preset() capture.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

func (s *Session) NewInput(d capture.Device) (capture.Input, error) {
	if s.inputErr != nil {
		return nil, s.inputErr
	}
	return &Input{dev: d}, nil
}

func (s *Session) Inputs() []capture.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capture.Input(nil), s.inputs...)
}

func (s *Session) CanAddInput(capture.Input) bool {
	return !s.rejectInput
}

func (s *Session) AddInput(in capture.Input) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()
}

func (s *Session) RemoveInput(in capture.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.inputs {
		if other == in {
			s.inputs = append(s.inputs[:i], s.inputs[i+1:]...)
			return
		}
	}
}

// Outputs returns the attached outputs.
func (s *Session) Outputs() []*capture.VideoOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*capture.VideoOutput(nil), s.outputs...)
}

func (s *Session) CanAddOutput(out *capture.VideoOutput) bool {
	return !s.rejectOutput && out != nil && out.Sink != nil
}

func (s *Session) AddOutput(out *capture.VideoOutput) {
	s.mu.Lock()
	s.outputs = append(s.outputs, out)
	s.conns[out] = &Connection{}
	s.mu.Unlock()
}

func (s *Session) RemoveOutput(out *capture.VideoOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.outputs {
		if other == out {
			s.outputs = append(s.outputs[:i], s.outputs[i+1:]...)
			break
		}
	}
	delete(s.conns, out)
}

func (s *Session) Connection(out *capture.VideoOutput) capture.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[out]; ok {
		return c
	}
	return nil
}

// Start launches the delivery goroutine.
func (s *Session) Start() error {
	if s.startErr != nil {
		return s.startErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if len(s.inputs) == 0 || len(s.outputs) == 0 {
		return ErrNotWired
	}

	width, height := s.frameSizeLocked()
	interval := s.frameIntervalLocked()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	go s.deliver(s.stop, s.done, width, height, interval)

	framecap.Logger().Debug("synthetic: delivery started",
		"width", width, "height", height, "interval", interval)
	return nil
}

// Stop ends delivery and waits for the frame in flight to complete.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Deliver pushes one frame to every output immediately, whether or not the
// session is running, the way a driver may emit a frame during setup.
func (s *Session) Deliver() {
	s.mu.Lock()
	width, height := s.frameSizeLocked()
	s.mu.Unlock()
	s.emit(width, height, time.Time{})
}

// FramesEmitted returns the number of frames produced so far.
func (s *Session) FramesEmitted() uint64 {
	return s.seq.Load()
}

func (s *Session) deliver(stop <-chan struct{}, done chan<- struct{}, width, height int, interval time.Duration) {
	defer close(done)

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.emit(width, height, start)
		}
	}
}

func (s *Session) emit(width, height int, start time.Time) {
	seq := s.seq.Add(1) - 1
	f := capture.Frame{
		Pixels:   Pattern(width, height, seq),
		Width:    width,
		Height:   height,
		Stride:   width * 4,
		Sequence: seq,
	}
	if !start.IsZero() {
		f.Timestamp = time.Since(start)
	}

	s.mu.Lock()
	type target struct {
		out  *capture.VideoOutput
		conn *Connection
	}
	targets := make([]target, 0, len(s.outputs))
	for _, out := range s.outputs {
		targets = append(targets, target{out, s.conns[out]})
	}
	s.mu.Unlock()

	for _, t := range targets {
		var conn capture.Connection
		if t.conn != nil {
			conn = t.conn
		}
		t.out.Sink.DidOutput(f, conn)
	}
}

// frameSizeLocked uses the preset size, else the input device's native size.
func (s *Session) frameSizeLocked() (int, int) {
	if w, h := s.preset.Dimensions(); w > 0 {
		return w, h
	}
	for _, in := range s.inputs {
		if f := in.Device().ActiveFormat(); f.Width > 0 && f.Height > 0 {
			return f.Width, f.Height
		}
	}
	return 640, 480
}

// frameIntervalLocked uses the session override, else the device's
// configured frame duration.
func (s *Session) frameIntervalLocked() time.Duration {
	if s.interval > 0 {
		return s.interval
	}
	for _, in := range s.inputs {
		if d, ok := in.Device().(interface {
			FrameDuration() (time.Duration, time.Duration)
		}); ok {
			if minDur, _ := d.FrameDuration(); minDur > 0 {
				return minDur
			}
		}
	}
	return DefaultFrameInterval
}
