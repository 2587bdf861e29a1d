package mediadev

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/framecap"
	"github.com/gogpu/framecap/capture"
	"github.com/gogpu/framecap/internal/pixel"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
)

// Session errors.
var (
	ErrNotWired     = errors.New("mediadev: session has no input or output")
	ErrForeignInput = errors.New("mediadev: device was not listed by this package")
	ErrNoVideoTrack = errors.New("mediadev: stream has no video track")
)

type input struct {
	dev *Device
}

func (in *input) Device() capture.Device { return in.dev }

type connection struct {
	mu          sync.Mutex
	orientation capture.Orientation
}

func (c *connection) SetOrientation(o capture.Orientation) {
	c.mu.Lock()
	c.orientation = o
	c.mu.Unlock()
}

func (c *connection) Orientation() capture.Orientation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orientation
}

// Session streams one camera through mediadevices.
type Session struct {
	mu     sync.Mutex
	preset capture.Preset
	in     *input
	out    *capture.VideoOutput
	conn   *connection

	track mediadevices.Track
	done  chan struct{}
}

var _ capture.Session = (*Session)(nil)

// NewSession creates an idle session.
func NewSession() *Session {
	return &Session{}
}

func (s *Session) BeginConfiguration()  {}
func (s *Session) CommitConfiguration() {}

// CanSetPreset accepts every preset; the camera picks the closest size.
func (s *Session) CanSetPreset(capture.Preset) bool { return true }

func (s *Session) SetPreset(p capture.Preset) {
	s.mu.Lock()
	s.preset = p
	s.mu.Unlock()
}

func (s *Session) NewInput(d capture.Device) (capture.Input, error) {
	dev, ok := d.(*Device)
	if !ok {
		return nil, ErrForeignInput
	}
	return &input{dev: dev}, nil
}

func (s *Session) Inputs() []capture.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.in == nil {
		return nil
	}
	return []capture.Input{s.in}
}

// CanAddInput accepts a single input.
func (s *Session) CanAddInput(in capture.Input) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := in.(*input)
	return ok && s.in == nil
}

func (s *Session) AddInput(in capture.Input) {
	s.mu.Lock()
	s.in = in.(*input)
	s.mu.Unlock()
}

func (s *Session) RemoveInput(in capture.Input) {
	s.mu.Lock()
	if s.in != nil && capture.Input(s.in) == in {
		s.in = nil
	}
	s.mu.Unlock()
}

// CanAddOutput accepts a single BGRA output.
func (s *Session) CanAddOutput(out *capture.VideoOutput) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out == nil && out != nil && out.Sink != nil &&
		out.PixelFormat == capture.PixelFormatBGRA32
}

func (s *Session) AddOutput(out *capture.VideoOutput) {
	s.mu.Lock()
	s.out = out
	s.conn = &connection{}
	s.mu.Unlock()
}

func (s *Session) RemoveOutput(out *capture.VideoOutput) {
	s.mu.Lock()
	if s.out == out {
		s.out = nil
		s.conn = nil
	}
	s.mu.Unlock()
}

func (s *Session) Connection(out *capture.VideoOutput) capture.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil || s.out != out {
		return nil
	}
	return s.conn
}

// Start opens the camera and launches the delivery goroutine.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track != nil {
		return nil
	}
	if s.in == nil || s.out == nil {
		return ErrNotWired
	}

	dev := s.in.dev
	width, height := s.preset.Dimensions()
	fps := dev.FrameRate()
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(dev.ID())
			if width > 0 {
				c.Width = prop.Int(width)
				c.Height = prop.Int(height)
			}
			if fps > 0 {
				c.FrameRate = prop.Float(fps)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("mediadev: open %s: %w", dev.ID(), err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return ErrNoVideoTrack
	}
	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		_ = tracks[0].Close()
		return ErrNoVideoTrack
	}

	s.track = vt
	s.done = make(chan struct{})
	dev.setStreaming(true)
	go s.deliver(vt, s.out, s.conn, s.done)

	framecap.Logger().Info("mediadev: streaming", "device", dev.ID(),
		"width", width, "height", height, "fps", fps)
	return nil
}

// Stop closes the track and waits for the frame in flight.
func (s *Session) Stop() {
	s.mu.Lock()
	track, done := s.track, s.done
	s.track = nil
	var dev *Device
	if s.in != nil {
		dev = s.in.dev
	}
	s.mu.Unlock()

	if track == nil {
		return
	}
	if err := track.Close(); err != nil {
		framecap.Logger().Warn("mediadev: close track", "err", err)
	}
	<-done
	if dev != nil {
		dev.setStreaming(false)
	}
}

func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track != nil
}

func (s *Session) deliver(vt *mediadevices.VideoTrack, out *capture.VideoOutput, conn *connection, done chan<- struct{}) {
	defer close(done)

	reader := vt.NewReader(false)
	start := time.Now()
	var seq uint64
	for {
		img, release, err := reader.Read()
		if err != nil {
			framecap.Logger().Debug("mediadev: delivery ended", "err", err)
			return
		}
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		pix := pixel.BGRA(img, w, h)
		release()

		out.Sink.DidOutput(capture.Frame{
			Pixels:    pix,
			Width:     w,
			Height:    h,
			Stride:    w * 4,
			Sequence:  seq,
			Timestamp: time.Since(start),
		}, conn)
		seq++
	}
}
