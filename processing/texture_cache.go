package processing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framecap"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Texture cache errors.
var (
	// ErrInvalidSize is returned for a zero width or height.
	ErrInvalidSize = errors.New("processing: width and height must be positive")

	// ErrTextureTooLarge is returned when a dimension exceeds the context's
	// maximum texture dimension.
	ErrTextureTooLarge = errors.New("processing: texture dimension exceeds limit")

	// ErrReleased is returned when a released storage or texture is used.
	ErrReleased = errors.New("processing: resource already released")
)

// Filter selects texel filtering for a sampler.
type Filter uint8

const (
	FilterLinear Filter = iota
	FilterNearest
)

// Wrap selects the addressing mode outside [0, 1].
type Wrap uint8

const (
	WrapClamp Wrap = iota
	WrapRepeat
)

// SamplerConfig describes a shared sampler.
type SamplerConfig struct {
	Filter Filter
	Wrap   Wrap
}

// LinearClamp is linear filtering with clamp-to-edge addressing, the
// sampling used for camera frames.
var LinearClamp = SamplerConfig{Filter: FilterLinear, Wrap: WrapClamp}

// CacheStats is a snapshot of the live resources owned through a cache.
type CacheStats struct {
	Storages     int
	Textures     int
	Samplers     int
	StorageBytes uint64
	Uploads      uint64
}

// TextureCache allocates pixel storage and the textures derived from it,
// and shares samplers between them.
//
// Allocation and release require a live Scope from the owning context, so
// they only ever run on the GPU timeline. Stats may be read from anywhere.
type TextureCache struct {
	ctx *Context

	// samplers is only touched on the GPU timeline; mu guards the map for
	// Stats readers.
	mu       sync.Mutex
	samplers map[SamplerConfig]hal.Sampler

	storages     atomic.Int64
	textures     atomic.Int64
	storageBytes atomic.Uint64
	uploads      atomic.Uint64
}

func newTextureCache(ctx *Context) *TextureCache {
	return &TextureCache{
		ctx:      ctx,
		samplers: make(map[SamplerConfig]hal.Sampler),
	}
}

// NewPixelStorage allocates width x height BGRA pixels of CPU/GPU-shared
// storage. The host bytes start zeroed.
func (c *TextureCache) NewPixelStorage(s *Scope, width, height uint32, label string) (*PixelStorage, error) {
	if err := s.check(c.ctx); err != nil {
		return nil, err
	}
	if err := c.checkSize(width, height); err != nil {
		return nil, err
	}

	size := uint64(width) * uint64(height) * BytesPerPixel
	buf, err := c.ctx.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_storage",
		Size:  size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create pixel buffer: %w", err)
	}
	if buf == nil {
		return nil, errors.New("create pixel buffer: device returned no buffer")
	}

	c.storages.Add(1)
	c.storageBytes.Add(size)
	return &PixelStorage{
		buffer: buf,
		host:   make([]byte, size),
		width:  width,
		height: height,
		label:  label,
	}, nil
}

// ReleasePixelStorage destroys the GPU buffer and drops the host bytes.
// Releasing twice is a no-op.
func (c *TextureCache) ReleasePixelStorage(s *Scope, p *PixelStorage) error {
	if err := s.check(c.ctx); err != nil {
		return err
	}
	if p == nil || p.released {
		return nil
	}
	p.released = true
	c.ctx.device.DestroyBuffer(p.buffer)
	c.storages.Add(-1)
	c.storageBytes.Add(^uint64(len(p.host) - 1))
	p.buffer = nil
	p.host = nil
	return nil
}

// TextureFromStorage creates a texture with the dimensions of p in the
// canonical format, plus a 2D view of it. The texture can be sampled,
// rendered into and copied in both directions.
//
// If the view cannot be created the texture is destroyed before returning.
func (c *TextureCache) TextureFromStorage(s *Scope, p *PixelStorage, label string) (*Texture, error) {
	if err := s.check(c.ctx); err != nil {
		return nil, err
	}
	if p == nil || p.released {
		return nil, ErrReleased
	}

	tex, err := c.ctx.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label + "_texture",
		Size:          hal.Extent3D{Width: p.width, Height: p.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        Format,
		Usage: gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageRenderAttachment |
			gputypes.TextureUsageCopySrc |
			gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}

	var view hal.TextureView
	if tex != nil {
		view, err = c.ctx.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label:         label + "_view",
			Format:        Format,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectAll,
			MipLevelCount: 1,
		})
		if err != nil {
			c.ctx.device.DestroyTexture(tex)
			return nil, fmt.Errorf("create texture view: %w", err)
		}
	}

	c.textures.Add(1)
	return &Texture{
		texture: tex,
		view:    view,
		storage: p,
		width:   p.width,
		height:  p.height,
		format:  Format,
		label:   label,
	}, nil
}

// ReleaseTexture destroys the view and the texture. The backing storage is
// left to its owner. Releasing twice is a no-op.
func (c *TextureCache) ReleaseTexture(s *Scope, t *Texture) error {
	if err := s.check(c.ctx); err != nil {
		return err
	}
	if t == nil || t.released {
		return nil
	}
	t.released = true
	s.UnbindRenderTarget(t.view)
	if t.view != nil {
		c.ctx.device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.texture != nil {
		c.ctx.device.DestroyTexture(t.texture)
		t.texture = nil
	}
	c.textures.Add(-1)
	return nil
}

// Upload pushes the host bytes of t's storage to the GPU buffer and to
// the texture.
func (c *TextureCache) Upload(s *Scope, t *Texture) error {
	if err := s.check(c.ctx); err != nil {
		return err
	}
	if t == nil || t.released || t.storage == nil || t.storage.released {
		return ErrReleased
	}
	p := t.storage
	c.ctx.queue.WriteBuffer(p.buffer, 0, p.host)
	c.ctx.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: 0,
		},
		p.host,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  p.width * BytesPerPixel,
			RowsPerImage: p.height,
		},
		&hal.Extent3D{Width: p.width, Height: p.height, DepthOrArrayLayers: 1},
	)
	c.uploads.Add(1)
	return nil
}

// Sampler returns the shared sampler for cfg, creating it on first use.
// Shared samplers live until the context is closed; callers never destroy
// them.
func (c *TextureCache) Sampler(s *Scope, cfg SamplerConfig) (hal.Sampler, error) {
	if err := s.check(c.ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	smp, ok := c.samplers[cfg]
	c.mu.Unlock()
	if ok {
		return smp, nil
	}

	desc := &hal.SamplerDescriptor{
		Label:        fmt.Sprintf("framecap_sampler_%d_%d", cfg.Filter, cfg.Wrap),
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	}
	if cfg.Wrap == WrapRepeat {
		desc.AddressModeU = gputypes.AddressModeRepeat
		desc.AddressModeV = gputypes.AddressModeRepeat
		desc.AddressModeW = gputypes.AddressModeRepeat
	}
	if cfg.Filter == FilterNearest {
		desc.MagFilter = gputypes.FilterModeNearest
		desc.MinFilter = gputypes.FilterModeNearest
		desc.MipmapFilter = gputypes.FilterModeNearest
	}

	smp, err := c.ctx.device.CreateSampler(desc)
	if err != nil {
		return nil, fmt.Errorf("create sampler: %w", err)
	}
	if smp != nil {
		c.mu.Lock()
		c.samplers[cfg] = smp
		c.mu.Unlock()
	}
	return smp, nil
}

// Stats returns a snapshot of the live resources.
func (c *TextureCache) Stats() CacheStats {
	c.mu.Lock()
	samplers := len(c.samplers)
	c.mu.Unlock()
	return CacheStats{
		Storages:     int(c.storages.Load()),
		Textures:     int(c.textures.Load()),
		Samplers:     samplers,
		StorageBytes: c.storageBytes.Load(),
		Uploads:      c.uploads.Load(),
	}
}

func (c *TextureCache) checkSize(width, height uint32) error {
	if width == 0 || height == 0 {
		return ErrInvalidSize
	}
	if width > c.ctx.maxDim || height > c.ctx.maxDim {
		return fmt.Errorf("%w: %dx%d > %d", ErrTextureTooLarge, width, height, c.ctx.maxDim)
	}
	return nil
}

// purgeSamplers destroys every shared sampler. Runs on the GPU timeline.
func (c *TextureCache) purgeSamplers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for cfg, smp := range c.samplers {
		c.ctx.device.DestroySampler(smp)
		delete(c.samplers, cfg)
	}
	framecap.Logger().Debug("processing: samplers purged", "label", c.ctx.label)
}
