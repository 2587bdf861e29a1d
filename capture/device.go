package capture

import (
	"context"
	"time"
)

// Device is a capture device as seen by the controller. Apart from the
// configuration lock and the frame duration it is read-only.
type Device interface {
	ID() string
	Name() string
	Position() Position
	SupportsPreset(p Preset) bool
	ActiveFormat() Format

	// LockForConfiguration acquires exclusive configuration access.
	// Every successful call is paired with UnlockForConfiguration.
	LockForConfiguration() error
	SetFrameDuration(minDur, maxDur time.Duration)
	UnlockForConfiguration()
}

// DeviceEnumerator lists the capture devices currently available.
type DeviceEnumerator interface {
	Devices(ctx context.Context) ([]Device, error)
}

// Input is a device attached to a session.
type Input interface {
	Device() Device
}

// Connection is the link between an input and an output.
type Connection interface {
	SetOrientation(o Orientation)
	Orientation() Orientation
}

// FrameSink receives frames on the session's delivery goroutine.
// DidOutput must not block indefinitely.
type FrameSink interface {
	DidOutput(f Frame, conn Connection)
}

// VideoOutput describes the frame sink added to a session.
type VideoOutput struct {
	// DiscardLateFrames drops frames that arrive while the sink is busy.
	DiscardLateFrames bool
	PixelFormat       PixelFormat
	Sink              FrameSink
}

// Session is a capture driver session. The controller calls it only from
// its session timeline; implementations deliver frames on their own
// goroutine.
type Session interface {
	// BeginConfiguration and CommitConfiguration bracket a batch of
	// changes that the session applies together.
	BeginConfiguration()
	CommitConfiguration()

	CanSetPreset(p Preset) bool
	SetPreset(p Preset)

	NewInput(d Device) (Input, error)
	Inputs() []Input
	CanAddInput(in Input) bool
	AddInput(in Input)
	RemoveInput(in Input)

	CanAddOutput(out *VideoOutput) bool
	AddOutput(out *VideoOutput)
	RemoveOutput(out *VideoOutput)

	// Connection returns the video connection of out, or nil.
	Connection(out *VideoOutput) Connection

	Start() error
	Stop()
	IsRunning() bool
}

// Authorizer reports whether camera access is granted.
type Authorizer func(ctx context.Context) error

// ResultHandler receives the outcome of every Configure call.
type ResultHandler func(Result)

// FrameHandler consumes frames forwarded by a running controller.
// It runs on the delivery goroutine.
type FrameHandler func(Frame)
