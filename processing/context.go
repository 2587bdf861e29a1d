package processing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framecap"
	"github.com/gogpu/framecap/internal/timeline"
	"github.com/gogpu/wgpu/hal"
)

// Context errors.
var (
	// ErrContextClosed is returned when work is submitted after Close.
	ErrContextClosed = errors.New("processing: context closed")

	// ErrNilDevice is returned when a context is created without a device or queue.
	ErrNilDevice = errors.New("processing: nil device or queue")

	// ErrScopeExpired is returned when a Scope is used after its Sync call returned.
	ErrScopeExpired = errors.New("processing: scope used outside its Sync call")

	// ErrForeignScope is returned when a Scope from another context is passed in.
	ErrForeignScope = errors.New("processing: scope belongs to a different context")
)

// DefaultMaxTextureDimension is the largest texture edge accepted when no
// limit is configured. It matches the WebGPU default limit.
const DefaultMaxTextureDimension = 8192

// Option configures a Context during creation.
type Option func(*options)

type options struct {
	label        string
	maxDimension uint32
	queueDepth   int
	ownsDevice   bool
}

func defaultOptions() options {
	return options{
		label:        "gpu",
		maxDimension: DefaultMaxTextureDimension,
		queueDepth:   timeline.DefaultDepth,
	}
}

// WithLabel sets the diagnostic label of the GPU timeline.
func WithLabel(label string) Option {
	return func(o *options) {
		if label != "" {
			o.label = label
		}
	}
}

// WithMaxTextureDimension sets the largest width or height the texture
// cache will allocate. Zero keeps the default.
func WithMaxTextureDimension(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDimension = n
		}
	}
}

// WithQueueDepth sets how many work items may wait on the GPU timeline
// before submitters block.
func WithQueueDepth(n int) Option {
	return func(o *options) {
		o.queueDepth = n
	}
}

// WithOwnedDevice makes Close destroy the device after the timeline stops.
// Use it when the context was given a device nobody else holds.
func WithOwnedDevice() Option {
	return func(o *options) {
		o.ownsDevice = true
	}
}

// Context is the processing context: a GPU device and queue plus the single
// goroutine all calls into them run on.
//
// Context is safe for concurrent use. Sync is a blocking hand-off and must
// not be called from work already running on the context; use the Scope
// passed to that work instead.
type Context struct {
	device hal.Device
	queue  hal.Queue
	q      *timeline.Queue
	cache  *TextureCache

	label      string
	maxDim     uint32
	ownsDevice bool

	// target is the bound render target. Only touched on the GPU timeline.
	target    RenderTarget
	hasTarget bool

	closeOnce sync.Once
}

// New creates a processing context over device and queue and starts its
// GPU timeline. The caller keeps ownership of device unless
// WithOwnedDevice is given.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Context, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{
		device:     device,
		queue:      queue,
		label:      o.label,
		maxDim:     o.maxDimension,
		ownsDevice: o.ownsDevice,
	}
	c.cache = newTextureCache(c)
	c.q = timeline.New(o.label, o.queueDepth)

	framecap.Logger().Debug("processing: context created",
		"label", o.label, "max_dimension", o.maxDimension)
	return c, nil
}

// Sync runs fn on the GPU timeline and blocks until it returns.
//
// fn receives the Scope for this call. The scope is valid only while fn
// runs. Work from all submitters executes in submission order. A panic in
// fn is recovered and returned as an error; the timeline keeps running.
func (c *Context) Sync(fn func(s *Scope) error) error {
	if fn == nil {
		return nil
	}
	err := c.q.Sync(func() error {
		return c.run(fn)
	})
	if errors.Is(err, timeline.ErrClosed) {
		return ErrContextClosed
	}
	return err
}

// Post queues fn on the GPU timeline and returns without waiting.
// An error from fn is logged. Post is meant for teardown paths that must
// not block, such as cleanup hooks.
func (c *Context) Post(fn func(s *Scope) error) error {
	if fn == nil {
		return nil
	}
	err := c.q.Async(func() {
		if err := c.run(fn); err != nil {
			framecap.Logger().Warn("processing: posted work failed",
				"label", c.label, "err", err)
		}
	})
	if errors.Is(err, timeline.ErrClosed) {
		return ErrContextClosed
	}
	return err
}

// run executes fn with a fresh scope that expires on every exit path.
func (c *Context) run(fn func(s *Scope) error) error {
	s := &Scope{ctx: c}
	s.live.Store(true)
	defer s.live.Store(false)
	return fn(s)
}

// TextureCache returns the context's texture cache.
// Its allocating methods require a Scope from this context.
func (c *Context) TextureCache() *TextureCache {
	return c.cache
}

// MaxTextureDimension returns the largest texture edge the cache allocates.
func (c *Context) MaxTextureDimension() uint32 {
	return c.maxDim
}

// Label returns the diagnostic label of the GPU timeline.
func (c *Context) Label() string {
	return c.label
}

// IsClosed reports whether Close has been called.
func (c *Context) IsClosed() bool {
	return !c.q.IsRunning()
}

// Close drains the GPU timeline, releases the cache's shared samplers and
// stops the timeline. Textures and storages still alive at this point were
// leaked by their owners and are reported in the log.
//
// Close is safe to call multiple times.
func (c *Context) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Sync(func(s *Scope) error {
			c.cache.purgeSamplers()
			c.hasTarget = false
			if st := c.cache.Stats(); st.Textures > 0 || st.Storages > 0 {
				framecap.Logger().Warn("processing: closing with live GPU resources",
					"label", c.label, "textures", st.Textures, "storages", st.Storages)
			}
			return nil
		})
		c.q.Close()
		if c.ownsDevice {
			c.device.Destroy()
		}
		framecap.Logger().Debug("processing: context closed", "label", c.label)
	})
	if err != nil {
		return fmt.Errorf("processing: close: %w", err)
	}
	return nil
}
