package mediadev

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/framecap/capture"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver"
	"github.com/pion/mediadevices/pkg/prop"
)

// ErrDeviceBusy is returned by LockForConfiguration while the device streams.
var ErrDeviceBusy = errors.New("mediadev: device is streaming")

// Device is a camera known to mediadevices.
type Device struct {
	id       string
	label    string
	position capture.Position
	format   capture.Format
	presets  map[capture.Preset]bool

	mu        sync.Mutex
	streaming bool
	locked    bool
	frameRate float64
}

var _ capture.Device = (*Device)(nil)

func (d *Device) ID() string                   { return d.id }
func (d *Device) Name() string                 { return d.label }
func (d *Device) Position() capture.Position   { return d.position }
func (d *Device) ActiveFormat() capture.Format { return d.format }

func (d *Device) SupportsPreset(p capture.Preset) bool {
	return d.presets[p]
}

func (d *Device) LockForConfiguration() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streaming {
		return ErrDeviceBusy
	}
	d.locked = true
	return nil
}

func (d *Device) SetFrameDuration(minDur, _ time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.locked || minDur <= 0 {
		return
	}
	d.frameRate = float64(time.Second) / float64(minDur)
}

func (d *Device) UnlockForConfiguration() {
	d.mu.Lock()
	d.locked = false
	d.mu.Unlock()
}

// FrameRate returns the rate requested under the configuration lock, or 0.
func (d *Device) FrameRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameRate
}

func (d *Device) setStreaming(on bool) {
	d.mu.Lock()
	d.streaming = on
	d.mu.Unlock()
}

// Enumerator lists the video input devices mediadevices can open.
type Enumerator struct{}

var _ capture.DeviceEnumerator = Enumerator{}

// Devices implements capture.DeviceEnumerator.
func (Enumerator) Devices(ctx context.Context) ([]capture.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	props := make(map[string][]prop.Media)
	for _, drv := range driver.GetManager().Query(driver.FilterVideoRecorder()) {
		props[drv.ID()] = drv.Properties()
	}

	var devices []capture.Device
	for _, info := range mediadevices.EnumerateDevices() {
		if info.Kind != mediadevices.VideoInput {
			continue
		}
		devices = append(devices, newDevice(info.DeviceID, info.Label, props[info.DeviceID]))
	}
	return devices, nil
}

func newDevice(id, label string, props []prop.Media) *Device {
	return &Device{
		id:       id,
		label:    label,
		position: positionFromLabel(label),
		format:   formatFromProps(props),
		presets:  presetsFromProps(props),
	}
}

var frontHints = []string{"front", "user", "facetime", "integrated", "built-in", "webcam"}

// positionFromLabel guesses the camera position from its label.
func positionFromLabel(label string) capture.Position {
	l := strings.ToLower(label)
	for _, hint := range frontHints {
		if strings.Contains(l, hint) {
			return capture.PositionFront
		}
	}
	return capture.PositionBack
}

// unknownRate is assumed when a driver reports no frame rates.
var unknownRate = capture.FrameRateRange{Min: 1, Max: 60}

// formatFromProps picks the largest reported size as the active format and
// turns every distinct reported frame rate into a single-value range.
func formatFromProps(props []prop.Media) capture.Format {
	var f capture.Format
	rates := make(map[float64]bool)
	for _, p := range props {
		if p.Width*p.Height > f.Width*f.Height {
			f.Width, f.Height = p.Width, p.Height
		}
		if p.FrameRate > 0 {
			rates[float64(p.FrameRate)] = true
		}
	}
	for r := range rates {
		f.FrameRateRanges = append(f.FrameRateRanges, capture.FrameRateRange{Min: r, Max: r})
	}
	sort.Slice(f.FrameRateRanges, func(i, j int) bool {
		return f.FrameRateRanges[i].Min < f.FrameRateRanges[j].Min
	})
	if len(f.FrameRateRanges) == 0 {
		f.FrameRateRanges = []capture.FrameRateRange{unknownRate}
	}
	return f
}

// presetsFromProps reports a preset as supported when some property
// matches its size exactly. The medium preset fits any camera of at least
// its size.
func presetsFromProps(props []prop.Media) map[capture.Preset]bool {
	out := make(map[capture.Preset]bool)
	mw, mh := capture.PresetMedium.Dimensions()
	for _, p := range props {
		for _, preset := range capture.DefaultPresets {
			w, h := preset.Dimensions()
			if p.Width == w && p.Height == h {
				out[preset] = true
			}
		}
		if p.Width >= mw && p.Height >= mh {
			out[capture.PresetMedium] = true
		}
	}
	return out
}
