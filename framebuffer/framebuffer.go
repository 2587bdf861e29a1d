package framebuffer

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/framecap"
	"github.com/gogpu/framecap/internal/lru"
	"github.com/gogpu/framecap/processing"
	"github.com/gogpu/wgpu/hal"
	"github.com/google/uuid"
)

// Size is the pixel size of a frame buffer.
type Size struct {
	Width  uint32
	Height uint32
}

// Bytes returns the size of the BGRA pixel storage.
func (s Size) Bytes() uint64 {
	return uint64(s.Width) * uint64(s.Height) * processing.BytesPerPixel
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// resources holds the GPU objects of a buffer. It is kept apart from
// FrameBuffer so the cleanup hook can release it without keeping the
// buffer reachable.
type resources struct {
	ctx     *processing.Context
	pool    *Pool
	storage *processing.PixelStorage
	texture *processing.Texture
	sampler hal.Sampler
	tag     string

	// released is only touched on the GPU timeline.
	released bool
}

// release frees the texture and storage. The sampler is shared through the
// texture cache and stays alive. Safe to call more than once.
func (r *resources) release(s *processing.Scope) {
	if r.released {
		return
	}
	r.released = true
	cache := s.TextureCache()
	if r.texture != nil {
		_ = cache.ReleaseTexture(s, r.texture)
		r.texture = nil
	}
	if r.storage != nil {
		_ = cache.ReleasePixelStorage(s, r.storage)
		r.storage = nil
	}
	r.sampler = nil
	if r.pool != nil {
		r.pool.forget()
	}
}

// collect runs when a buffer becomes unreachable without Destroy.
func (r *resources) collect() {
	err := r.ctx.Post(func(s *processing.Scope) error {
		if !r.released {
			framecap.Logger().Debug("framebuffer: collected unreachable buffer", "tag", r.tag)
		}
		r.release(s)
		return nil
	})
	if err != nil {
		framecap.Logger().Warn("framebuffer: cannot release collected buffer",
			"tag", r.tag, "err", err)
	}
}

// FrameBuffer is a GPU-resident BGRA image with a reference count.
//
// Mutating methods run on the GPU timeline. Accessors are safe to call from
// any goroutine.
type FrameBuffer struct {
	id     uuid.UUID
	tag    string
	size   Size
	ctx    *processing.Context
	res    *resources
	target processing.RenderTarget

	// refs is written only on the GPU timeline.
	refs atomic.Int32

	// Pool bookkeeping, guarded by pool.mu.
	pool *Pool
	idle bool
	node *lru.Node[*FrameBuffer]

	cleanup runtime.Cleanup
}

// New creates a standalone frame buffer on ctx's GPU timeline. The buffer
// starts with no references and belongs to no pool; its owner calls Destroy.
func New(ctx *processing.Context, size Size, tag string) (*FrameBuffer, error) {
	var fb *FrameBuffer
	err := ctx.Sync(func(s *processing.Scope) error {
		var err error
		fb, err = NewIn(s, size, tag)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fb, nil
}

// NewIn creates a standalone frame buffer from work already running on the
// GPU timeline.
func NewIn(s *processing.Scope, size Size, tag string) (*FrameBuffer, error) {
	return create(s, size, tag, nil)
}

// create builds a buffer in six steps. Any failure releases what the earlier
// steps allocated and returns an *AllocationError.
func create(s *processing.Scope, size Size, tag string, pool *Pool) (*FrameBuffer, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSize, size)
	}
	if !s.Valid() {
		return nil, processing.ErrScopeExpired
	}

	ctx := s.Context()
	cache := s.TextureCache()
	res := &resources{ctx: ctx, pool: pool, tag: tag}
	fail := func(step Step, err error) (*FrameBuffer, error) {
		res.pool = nil
		res.release(s)
		framecap.Logger().Error("framebuffer: allocation failed",
			"tag", tag, "size", size.String(), "step", step.String(), "err", err)
		return nil, &AllocationError{Step: step, Tag: tag, Size: size, Err: err}
	}

	// 1. Render target.
	target := processing.RenderTarget{
		Width:    size.Width,
		Height:   size.Height,
		Viewport: processing.Viewport{Width: size.Width, Height: size.Height},
		Label:    tag,
	}

	// 2. Pixel storage.
	storage, err := cache.NewPixelStorage(s, size.Width, size.Height, tag)
	if err != nil {
		return fail(StepPixelStorage, err)
	}
	res.storage = storage

	// 3. Texture derived from the storage.
	tex, err := cache.TextureFromStorage(s, storage, tag)
	if err != nil {
		return fail(StepTexture, err)
	}
	res.texture = tex

	// 4. Sampling.
	smp, err := cache.Sampler(s, processing.LinearClamp)
	if err != nil {
		return fail(StepSampler, err)
	}
	res.sampler = smp

	// 5. Color target.
	target.View = tex.View()

	// 6. Completeness.
	if err := checkComplete(ctx, res, target); err != nil {
		return fail(StepCompleteness, err)
	}

	fb := &FrameBuffer{
		id:     uuid.New(),
		tag:    tag,
		size:   size,
		ctx:    ctx,
		res:    res,
		target: target,
		pool:   pool,
	}
	fb.cleanup = runtime.AddCleanup(fb, func(r *resources) { r.collect() }, res)

	framecap.Logger().Debug("framebuffer: created",
		"id", fb.id.String(), "tag", tag, "size", size.String())
	return fb, nil
}

func checkComplete(ctx *processing.Context, res *resources, target processing.RenderTarget) error {
	switch {
	case res.texture == nil || res.texture.Raw() == nil:
		return fmt.Errorf("missing texture")
	case res.texture.View() == nil || target.View == nil:
		return fmt.Errorf("missing color attachment")
	case res.sampler == nil:
		return fmt.Errorf("missing sampler")
	case res.texture.Format() != processing.Format:
		return fmt.Errorf("unsupported format %v", res.texture.Format())
	}
	limit := ctx.MaxTextureDimension()
	if target.Width > limit || target.Height > limit {
		return fmt.Errorf("attachment %dx%d exceeds %d", target.Width, target.Height, limit)
	}
	return nil
}

// ID returns the buffer's unique identifier.
func (fb *FrameBuffer) ID() uuid.UUID { return fb.id }

// Tag returns the diagnostic tag given at creation.
func (fb *FrameBuffer) Tag() string { return fb.tag }

// Size returns the pixel size.
func (fb *FrameBuffer) Size() Size { return fb.size }

// Context returns the processing context the buffer lives on.
func (fb *FrameBuffer) Context() *processing.Context { return fb.ctx }

// Pool returns the pool the buffer belongs to, or nil for a standalone buffer.
func (fb *FrameBuffer) Pool() *Pool { return fb.pool }

// RefCount returns the current reference count.
func (fb *FrameBuffer) RefCount() int { return int(fb.refs.Load()) }

// Texture returns the cached texture, or nil after Destroy.
// Use it only on the GPU timeline.
func (fb *FrameBuffer) Texture() *processing.Texture { return fb.res.texture }

// Storage returns the pixel storage, or nil after Destroy.
// Use it only on the GPU timeline.
func (fb *FrameBuffer) Storage() *processing.PixelStorage { return fb.res.storage }

// Sampler returns the buffer's sampler.
func (fb *FrameBuffer) Sampler() hal.Sampler { return fb.res.sampler }

// RenderTarget returns the color target description.
func (fb *FrameBuffer) RenderTarget() processing.RenderTarget { return fb.target }

// Activate binds the buffer as the current render target, with the viewport
// set to the full buffer. The reference count is not affected.
func (fb *FrameBuffer) Activate() error {
	return fb.ctx.Sync(fb.ActivateIn)
}

// ActivateIn is Activate for work already on the GPU timeline.
func (fb *FrameBuffer) ActivateIn(s *processing.Scope) error {
	if fb.res.released {
		return ErrDestroyed
	}
	return s.BindRenderTarget(fb.target)
}

// Lock adds a reference. Locking a buffer that is idle in its pool checks
// it out, so Acquire will not hand it to another holder.
func (fb *FrameBuffer) Lock() error {
	return fb.ctx.Sync(fb.LockIn)
}

// LockIn is Lock for work already on the GPU timeline.
func (fb *FrameBuffer) LockIn(s *processing.Scope) error {
	if !s.Valid() {
		return processing.ErrScopeExpired
	}
	if fb.res.released {
		return ErrDestroyed
	}
	if fb.pool != nil && fb.refs.Load() == 0 {
		fb.pool.detach(fb)
	}
	fb.refs.Add(1)
	return nil
}

// Unlock drops a reference. When the count reaches zero the buffer is
// returned to its pool, exactly once per checkout.
func (fb *FrameBuffer) Unlock() error {
	return fb.ctx.Sync(fb.UnlockIn)
}

// UnlockIn is Unlock for work already on the GPU timeline.
func (fb *FrameBuffer) UnlockIn(s *processing.Scope) error {
	if !s.Valid() {
		return processing.ErrScopeExpired
	}
	if fb.refs.Load() <= 0 {
		framecap.Logger().Warn("framebuffer: unbalanced unlock",
			"id", fb.id.String(), "tag", fb.tag)
		return ErrUnbalancedUnlock
	}
	if fb.refs.Add(-1) > 0 || fb.pool == nil {
		return nil
	}
	return fb.pool.ReleaseIn(s, fb)
}

// ClearLock drops all references without returning the buffer to its pool.
// The owner uses it before Destroy on a buffer it took out of circulation.
func (fb *FrameBuffer) ClearLock() error {
	return fb.ctx.Sync(fb.ClearLockIn)
}

// ClearLockIn is ClearLock for work already on the GPU timeline.
func (fb *FrameBuffer) ClearLockIn(s *processing.Scope) error {
	if !s.Valid() {
		return processing.ErrScopeExpired
	}
	fb.refs.Store(0)
	return nil
}

// Destroy releases the buffer's GPU resources immediately and removes it
// from its pool's idle set. Destroy is idempotent.
func (fb *FrameBuffer) Destroy() error {
	return fb.ctx.Sync(fb.DestroyIn)
}

// DestroyIn is Destroy for work already on the GPU timeline.
func (fb *FrameBuffer) DestroyIn(s *processing.Scope) error {
	if !s.Valid() {
		return processing.ErrScopeExpired
	}
	if fb.res.released {
		return nil
	}
	if fb.pool != nil {
		fb.pool.detach(fb)
	}
	fb.destroy(s)
	return nil
}

// destroy is the single teardown path. The caller has already removed the
// buffer from any idle set.
func (fb *FrameBuffer) destroy(s *processing.Scope) {
	if fb.res.released {
		return
	}
	fb.cleanup.Stop()
	fb.refs.Store(0)
	fb.res.release(s)
	framecap.Logger().Debug("framebuffer: destroyed", "id", fb.id.String(), "tag", fb.tag)
}

// IsDestroyed reports whether the buffer's resources have been released.
// Use it only on the GPU timeline.
func (fb *FrameBuffer) IsDestroyed() bool {
	return fb.res.released
}
