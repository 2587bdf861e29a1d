// Package gputest provides hal devices for tests: the noop backend and a
// wrapper that injects allocation failures and counts live resources.
package gputest

import (
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// ErrInjected is returned by CountingDevice for an operation set to fail.
var ErrInjected = errors.New("gputest: injected failure")

// NoopDevice opens a device on the noop backend. The device and instance
// are destroyed when the test ends.
func NoopDevice(t testing.TB) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		t.Fatal("noop backend reported no adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

// Failures selects which creation calls a CountingDevice fails.
type Failures struct {
	Buffer  bool
	Texture bool
	View    bool
	Sampler bool

	// NilTexture makes CreateTexture succeed without returning a texture.
	NilTexture bool
}

// Counts is the number of live objects per kind.
type Counts struct {
	Buffers  int
	Textures int
	Views    int
	Samplers int
}

// CountingDevice wraps a hal.Device, counting creations minus destructions
// and failing the calls selected in Failures.
type CountingDevice struct {
	hal.Device

	mu   sync.Mutex
	fail Failures
	live Counts
}

// NewCountingDevice wraps d.
func NewCountingDevice(d hal.Device) *CountingDevice {
	return &CountingDevice{Device: d}
}

// SetFailures replaces the failure selection.
func (d *CountingDevice) SetFailures(f Failures) {
	d.mu.Lock()
	d.fail = f
	d.mu.Unlock()
}

// Live returns the live object counts.
func (d *CountingDevice) Live() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

func (d *CountingDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail.Buffer {
		return nil, ErrInjected
	}
	b, err := d.Device.CreateBuffer(desc)
	if err == nil {
		d.live.Buffers++
	}
	return b, err
}

func (d *CountingDevice) DestroyBuffer(b hal.Buffer) {
	d.mu.Lock()
	d.live.Buffers--
	d.mu.Unlock()
	d.Device.DestroyBuffer(b)
}

func (d *CountingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail.Texture {
		return nil, ErrInjected
	}
	if d.fail.NilTexture {
		return nil, nil
	}
	tex, err := d.Device.CreateTexture(desc)
	if err == nil {
		d.live.Textures++
	}
	return tex, err
}

func (d *CountingDevice) DestroyTexture(tex hal.Texture) {
	d.mu.Lock()
	d.live.Textures--
	d.mu.Unlock()
	d.Device.DestroyTexture(tex)
}

func (d *CountingDevice) CreateTextureView(tex hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail.View {
		return nil, ErrInjected
	}
	v, err := d.Device.CreateTextureView(tex, desc)
	if err == nil {
		d.live.Views++
	}
	return v, err
}

func (d *CountingDevice) DestroyTextureView(v hal.TextureView) {
	d.mu.Lock()
	d.live.Views--
	d.mu.Unlock()
	d.Device.DestroyTextureView(v)
}

func (d *CountingDevice) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail.Sampler {
		return nil, ErrInjected
	}
	s, err := d.Device.CreateSampler(desc)
	if err == nil {
		d.live.Samplers++
	}
	return s, err
}

func (d *CountingDevice) DestroySampler(s hal.Sampler) {
	d.mu.Lock()
	d.live.Samplers--
	d.mu.Unlock()
	d.Device.DestroySampler(s)
}

// Provider is a gpucontext.DeviceProvider that also exposes hal objects,
// like the gogpu application provider does.
type Provider struct {
	Dev    hal.Device
	Q      hal.Queue
	Format gputypes.TextureFormat
}

func (p *Provider) Device() gpucontext.Device             { return nil }
func (p *Provider) Queue() gpucontext.Queue               { return nil }
func (p *Provider) Adapter() gpucontext.Adapter           { return nil }
func (p *Provider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }
func (p *Provider) SurfaceFormat() gputypes.TextureFormat { return p.Format }
func (p *Provider) HalDevice() any                        { return p.Dev }
func (p *Provider) HalQueue() any                         { return p.Q }

var _ gpucontext.DeviceProvider = (*Provider)(nil)
