package synthetic

import (
	"context"
	"sync"
	"time"

	"github.com/gogpu/framecap/capture"
	"github.com/google/uuid"
)

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithID sets the device ID. By default a random UUID is used.
func WithID(id string) DeviceOption {
	return func(d *Device) { d.id = id }
}

// WithPresets sets the presets the device reports as supported.
func WithPresets(presets ...capture.Preset) DeviceOption {
	return func(d *Device) {
		d.presets = make(map[capture.Preset]bool, len(presets))
		for _, p := range presets {
			d.presets[p] = true
		}
	}
}

// WithFrameRateRanges sets the frame-rate ranges of the active format.
func WithFrameRateRanges(ranges ...capture.FrameRateRange) DeviceOption {
	return func(d *Device) {
		d.format.FrameRateRanges = append([]capture.FrameRateRange(nil), ranges...)
	}
}

// WithFormat sets the native frame size of the active format.
func WithFormat(width, height int) DeviceOption {
	return func(d *Device) {
		d.format.Width = width
		d.format.Height = height
	}
}

// WithLockError makes LockForConfiguration fail with err.
func WithLockError(err error) DeviceOption {
	return func(d *Device) { d.lockErr = err }
}

// Device is a software capture device.
type Device struct {
	id      string
	name    string
	pos     capture.Position
	presets map[capture.Preset]bool
	format  capture.Format
	lockErr error

	mu       sync.Mutex
	locked   bool
	locks    int
	minFrame time.Duration
	maxFrame time.Duration
}

var _ capture.Device = (*Device)(nil)

// NewDevice creates a device at pos. By default it supports every
// standard preset, 1 to 60 fps and a 1280x720 native format.
func NewDevice(name string, pos capture.Position, opts ...DeviceOption) *Device {
	d := &Device{
		id:   uuid.NewString(),
		name: name,
		pos:  pos,
		format: capture.Format{
			Width:           1280,
			Height:          720,
			FrameRateRanges: []capture.FrameRateRange{{Min: 1, Max: 60}},
		},
	}
	WithPresets(capture.DefaultPresets...)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) ID() string                 { return d.id }
func (d *Device) Name() string               { return d.name }
func (d *Device) Position() capture.Position { return d.pos }

func (d *Device) SupportsPreset(p capture.Preset) bool {
	return d.presets[p]
}

func (d *Device) ActiveFormat() capture.Format {
	f := d.format
	f.FrameRateRanges = append([]capture.FrameRateRange(nil), d.format.FrameRateRanges...)
	return f
}

func (d *Device) LockForConfiguration() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lockErr != nil {
		return d.lockErr
	}
	d.locked = true
	d.locks++
	return nil
}

func (d *Device) SetFrameDuration(minDur, maxDur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.locked {
		return
	}
	d.minFrame, d.maxFrame = minDur, maxDur
}

func (d *Device) UnlockForConfiguration() {
	d.mu.Lock()
	d.locked = false
	d.mu.Unlock()
}

// FrameDuration returns the durations last set under the configuration lock.
// Both are zero while the device runs at its default rate.
func (d *Device) FrameDuration() (minDur, maxDur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minFrame, d.maxFrame
}

// Locked reports whether the configuration lock is held.
func (d *Device) Locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

// LockCount returns how many times the configuration lock was granted.
func (d *Device) LockCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locks
}

// Enumerator lists a fixed, replaceable set of devices.
type Enumerator struct {
	mu      sync.Mutex
	devices []capture.Device
	err     error
}

var _ capture.DeviceEnumerator = (*Enumerator)(nil)

// NewEnumerator creates an enumerator over devices.
func NewEnumerator(devices ...capture.Device) *Enumerator {
	e := &Enumerator{}
	e.Set(devices...)
	return e
}

// Set replaces the device list, as if cameras were plugged or unplugged.
func (e *Enumerator) Set(devices ...capture.Device) {
	e.mu.Lock()
	e.devices = append([]capture.Device(nil), devices...)
	e.mu.Unlock()
}

// SetError makes Devices fail with err. Nil clears it.
func (e *Enumerator) SetError(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

// Devices implements capture.DeviceEnumerator.
func (e *Enumerator) Devices(ctx context.Context) ([]capture.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return append([]capture.Device(nil), e.devices...), nil
}
