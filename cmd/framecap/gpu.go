package main

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

var errNoAdapter = errors.New("no GPU adapter available")

// headlessGPU is a device opened on the noop hal backend. framecap has no
// window or surface, so the CLI exercises the GPU path without a display.
// Hosts with a real device attach through processing.FromProvider instead.
type headlessGPU struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
}

func openHeadless() (*headlessGPU, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GPU instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errNoAdapter
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("failed to open GPU device: %w", err)
	}
	return &headlessGPU{instance: instance, device: open.Device, queue: open.Queue}, nil
}

// Close releases the instance. The device belongs to the processing
// context, which destroys it on Close.
func (g *headlessGPU) Close() {
	g.instance.Destroy()
}
