package processing

import (
	"errors"
	"fmt"

	"github.com/gogpu/framecap"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// ErrNilProvider is returned by FromProvider for a nil provider.
var ErrNilProvider = errors.New("processing: nil device provider")

// halProvider is implemented by providers that expose their hal objects,
// such as the gogpu application's context provider.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider creates a Context on the device and queue shared by a host
// application. The host keeps ownership of the device; closing the
// Context stops framecap's GPU timeline only.
//
// The provider must expose hal objects through HalDevice and HalQueue.
func FromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Context, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}

	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("processing: provider %T does not expose hal device", provider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("processing: provider %T returned no hal.Device", provider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("processing: provider %T returned no hal.Queue", provider)
	}

	ctx, err := New(device, queue, opts...)
	if err != nil {
		return nil, err
	}
	framecap.Logger().Info("processing: attached to shared device",
		"provider", fmt.Sprintf("%T", provider),
		"surface_format", provider.SurfaceFormat())
	return ctx, nil
}
