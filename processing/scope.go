package processing

import (
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// Viewport is the pixel rectangle draws are clipped to inside a render target.
type Viewport struct {
	X, Y          uint32
	Width, Height uint32
}

// RenderTarget is a texture view that subsequent drawing on the GPU
// timeline writes into.
type RenderTarget struct {
	View     hal.TextureView
	Width    uint32
	Height   uint32
	Viewport Viewport
	Label    string
}

// Scope is the "current context" capability handed to work running on the
// GPU timeline. A Scope is valid only for the duration of the Sync call
// that created it; afterwards every method reports ErrScopeExpired or
// returns nil handles.
type Scope struct {
	ctx  *Context
	live atomic.Bool
}

// Context returns the processing context this scope belongs to.
func (s *Scope) Context() *Context {
	return s.ctx
}

// Valid reports whether the scope may still be used.
func (s *Scope) Valid() bool {
	return s != nil && s.live.Load()
}

// Device returns the hal device, or nil once the scope has expired.
func (s *Scope) Device() hal.Device {
	if !s.Valid() {
		return nil
	}
	return s.ctx.device
}

// Queue returns the hal queue, or nil once the scope has expired.
func (s *Scope) Queue() hal.Queue {
	if !s.Valid() {
		return nil
	}
	return s.ctx.queue
}

// TextureCache returns the context's texture cache.
func (s *Scope) TextureCache() *TextureCache {
	return s.ctx.cache
}

// BindRenderTarget makes rt the current render target. A zero viewport
// covers the whole target.
func (s *Scope) BindRenderTarget(rt RenderTarget) error {
	if err := s.check(s.ctx); err != nil {
		return err
	}
	if rt.Viewport.Width == 0 || rt.Viewport.Height == 0 {
		rt.Viewport = Viewport{Width: rt.Width, Height: rt.Height}
	}
	s.ctx.target = rt
	s.ctx.hasTarget = true
	return nil
}

// UnbindRenderTarget clears the current render target if it is view.
// It reports whether a binding was cleared.
func (s *Scope) UnbindRenderTarget(view hal.TextureView) bool {
	if !s.Valid() || !s.ctx.hasTarget || s.ctx.target.View != view {
		return false
	}
	s.ctx.target = RenderTarget{}
	s.ctx.hasTarget = false
	return true
}

// CurrentRenderTarget returns the bound render target, if any.
func (s *Scope) CurrentRenderTarget() (RenderTarget, bool) {
	if !s.Valid() || !s.ctx.hasTarget {
		return RenderTarget{}, false
	}
	return s.ctx.target, true
}

// check verifies that s is live and was issued by c.
func (s *Scope) check(c *Context) error {
	if !s.Valid() {
		return ErrScopeExpired
	}
	if s.ctx != c {
		return ErrForeignScope
	}
	return nil
}
