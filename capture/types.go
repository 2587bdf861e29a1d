package capture

import (
	"fmt"
	"time"
)

// Position is the side of the host a camera faces.
type Position uint8

const (
	PositionUnspecified Position = iota
	PositionBack
	PositionFront
)

// Opposite returns the other side. Unspecified has no opposite.
func (p Position) Opposite() Position {
	switch p {
	case PositionBack:
		return PositionFront
	case PositionFront:
		return PositionBack
	default:
		return PositionUnspecified
	}
}

func (p Position) String() string {
	switch p {
	case PositionBack:
		return "back"
	case PositionFront:
		return "front"
	default:
		return "unspecified"
	}
}

// ParsePosition parses "front" or "back".
func ParsePosition(s string) (Position, error) {
	switch s {
	case "back":
		return PositionBack, nil
	case "front":
		return PositionFront, nil
	default:
		return PositionUnspecified, fmt.Errorf("capture: unknown position %q", s)
	}
}

// Orientation is the rotation applied to frames on the output connection.
type Orientation uint8

const (
	OrientationPortrait Orientation = iota
	OrientationPortraitUpsideDown
	OrientationLandscapeRight
	OrientationLandscapeLeft
)

func (o Orientation) String() string {
	switch o {
	case OrientationPortrait:
		return "portrait"
	case OrientationPortraitUpsideDown:
		return "portrait-upside-down"
	case OrientationLandscapeRight:
		return "landscape-right"
	case OrientationLandscapeLeft:
		return "landscape-left"
	default:
		return fmt.Sprintf("Orientation(%d)", uint8(o))
	}
}

// ParseOrientation parses the names returned by Orientation.String.
func ParseOrientation(s string) (Orientation, error) {
	for o := OrientationPortrait; o <= OrientationLandscapeLeft; o++ {
		if o.String() == s {
			return o, nil
		}
	}
	return OrientationPortrait, fmt.Errorf("capture: unknown orientation %q", s)
}

// Preset is a named capture resolution tier.
type Preset string

const (
	Preset1920x1080 Preset = "1920x1080"
	Preset1280x720  Preset = "1280x720"
	PresetMedium    Preset = "medium"
)

// DefaultPresets is the preference order used when none is configured,
// highest quality first.
var DefaultPresets = []Preset{Preset1920x1080, Preset1280x720, PresetMedium}

// Dimensions returns the frame size of a known preset, or 0, 0.
func (p Preset) Dimensions() (width, height int) {
	switch p {
	case Preset1920x1080:
		return 1920, 1080
	case Preset1280x720:
		return 1280, 720
	case PresetMedium:
		return 480, 360
	default:
		return 0, 0
	}
}

// FrameRateRange is a supported interval of frame rates, inclusive on both ends.
type FrameRateRange struct {
	Min float64
	Max float64
}

// Contains reports whether fps lies in the range. Both bounds are included.
func (r FrameRateRange) Contains(fps int) bool {
	f := float64(fps)
	return f >= r.Min && f <= r.Max
}

// Format is a device's active capture format.
type Format struct {
	Width           int
	Height          int
	FrameRateRanges []FrameRateRange
}

// PixelFormat is the layout of delivered frame pixels.
type PixelFormat uint8

const (
	// PixelFormatBGRA32 is 32-bit packed B, G, R, A, one byte each.
	PixelFormatBGRA32 PixelFormat = iota + 1
)

func (f PixelFormat) String() string {
	if f == PixelFormatBGRA32 {
		return "BGRA32"
	}
	return fmt.Sprintf("PixelFormat(%d)", uint8(f))
}

// Configuration is the desired capture setup.
type Configuration struct {
	Position    Position
	FrameRate   int
	Orientation Orientation
}

// DefaultConfiguration returns back camera, 30 fps, portrait.
func DefaultConfiguration() Configuration {
	return Configuration{
		Position:    PositionBack,
		FrameRate:   30,
		Orientation: OrientationPortrait,
	}
}

// State is a phase of the capture-session state machine.
type State uint8

const (
	StateUnconfigured State = iota
	StateConfiguring
	StateReady
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfiguring:
		return "configuring"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Reason explains a StateFailed.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonNotAuthorized
	ReasonConfigurationFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNotAuthorized:
		return "not authorized"
	case ReasonConfigurationFailed:
		return "configuration failed"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

// SessionState is the controller's state plus the failure reason when
// State is StateFailed.
type SessionState struct {
	State  State
	Reason Reason
}

// Usable reports whether start and stop requests can take effect.
func (s SessionState) Usable() bool {
	return s.State == StateReady || s.State == StateRunning
}

func (s SessionState) String() string {
	if s.State == StateFailed {
		return fmt.Sprintf("failed(%s)", s.Reason)
	}
	return s.State.String()
}

// Frame is one captured image in PixelFormatBGRA32.
type Frame struct {
	Pixels    []byte
	Width     int
	Height    int
	Stride    int
	Sequence  uint64
	Timestamp time.Duration
}

// Result is the outcome of a Configure call.
type Result struct {
	// Configuration is the configuration in effect, including a position
	// corrected by fallback.
	Configuration Configuration

	// DeviceID identifies the selected device; empty on early failure.
	DeviceID string

	// Preset is the negotiated preset; empty when none matched.
	Preset Preset

	// FrameRateApplied reports whether the desired rate was set on the device.
	FrameRateApplied bool

	// State is the session state after the call.
	State SessionState

	// Err is nil on success.
	Err error
}

// OK reports whether configuration succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}
