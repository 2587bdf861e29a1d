package framebuffer

import (
	"fmt"
	"sync"

	"github.com/gogpu/framecap"
	"github.com/gogpu/framecap/internal/lru"
	"github.com/gogpu/framecap/processing"
)

// DefaultIdleBudget is the default limit on bytes held by idle buffers (256 MiB).
const DefaultIdleBudget = 256 << 20

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	// Idle is the number of buffers waiting in the pool.
	Idle int

	// CheckedOut is the number of live pool buffers not in the pool.
	CheckedOut int

	// IdleBytes is the pixel storage held by idle buffers.
	IdleBytes uint64

	// Budget is the idle byte limit.
	Budget uint64

	// Created counts buffers allocated by Acquire.
	Created uint64

	// Reused counts Acquire calls served from the idle set.
	Reused uint64

	// Evicted counts idle buffers destroyed to respect the budget.
	Evicted uint64
}

// String returns a human-readable summary.
func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%d idle, %d out, %d/%d MB, %d created, %d reused, %d evicted]",
		s.Idle, s.CheckedOut,
		s.IdleBytes/(1024*1024), s.Budget/(1024*1024),
		s.Created, s.Reused, s.Evicted)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithIdleBudget sets the byte limit for idle buffers. When a release
// pushes idle storage over the limit, the least recently returned idle
// buffers are destroyed. Zero keeps the default.
func WithIdleBudget(bytes uint64) PoolOption {
	return func(p *Pool) {
		if bytes > 0 {
			p.budget = bytes
		}
	}
}

// WithTag sets the tag given to buffers the pool creates.
func WithTag(tag string) PoolOption {
	return func(p *Pool) {
		if tag != "" {
			p.tag = tag
		}
	}
}

// Pool recycles frame buffers by size.
//
// Acquire hands out a buffer holding one reference. A buffer comes back when
// its count drops to zero, and is then idle until the next Acquire of the
// same size. Idle buffers are kept within a byte budget, evicting the least
// recently returned first.
//
// Pool is safe for concurrent use.
type Pool struct {
	ctx    *processing.Context
	tag    string
	budget uint64

	mu        sync.Mutex
	idle      map[Size][]*FrameBuffer
	recency   *lru.List[*FrameBuffer]
	idleBytes uint64
	idleCount int
	live      int
	closed    bool

	created uint64
	reused  uint64
	evicted uint64
}

// NewPool creates a pool of buffers on ctx.
func NewPool(ctx *processing.Context, opts ...PoolOption) *Pool {
	p := &Pool{
		ctx:     ctx,
		tag:     "frame",
		budget:  DefaultIdleBudget,
		idle:    make(map[Size][]*FrameBuffer),
		recency: lru.New[*FrameBuffer](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Context returns the processing context the pool allocates on.
func (p *Pool) Context() *processing.Context {
	return p.ctx
}

// Acquire returns a buffer of the given size holding one reference,
// reusing an idle buffer when one matches.
func (p *Pool) Acquire(size Size) (*FrameBuffer, error) {
	var fb *FrameBuffer
	err := p.ctx.Sync(func(s *processing.Scope) error {
		var err error
		fb, err = p.AcquireIn(s, size)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fb, nil
}

// AcquireIn is Acquire for work already on the GPU timeline.
func (p *Pool) AcquireIn(s *processing.Scope, size Size) (*FrameBuffer, error) {
	if !s.Valid() {
		return nil, processing.ErrScopeExpired
	}
	if !size.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSize, size)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	fb := p.takeIdleLocked(size)
	if fb != nil {
		p.reused++
	}
	p.mu.Unlock()

	if fb == nil {
		var err error
		fb, err = create(s, size, p.tag, p)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.created++
		p.live++
		p.mu.Unlock()
	}

	fb.refs.Store(1)
	return fb, nil
}

// Release returns a buffer with no references to the pool. Buffers normally
// come back through Unlock; Release is for buffers whose references were
// cleared with ClearLock.
func (p *Pool) Release(fb *FrameBuffer) error {
	return p.ctx.Sync(func(s *processing.Scope) error {
		return p.ReleaseIn(s, fb)
	})
}

// ReleaseIn is Release for work already on the GPU timeline.
func (p *Pool) ReleaseIn(s *processing.Scope, fb *FrameBuffer) error {
	if !s.Valid() {
		return processing.ErrScopeExpired
	}
	if fb == nil {
		return nil
	}
	if fb.pool != p {
		return ErrForeignBuffer
	}
	if fb.res.released {
		return ErrDestroyed
	}
	if fb.refs.Load() > 0 {
		return ErrBufferInUse
	}

	p.mu.Lock()
	if fb.idle {
		p.mu.Unlock()
		return ErrAlreadyIdle
	}
	if p.closed {
		p.mu.Unlock()
		fb.destroy(s)
		return nil
	}
	fb.idle = true
	fb.node = p.recency.PushFront(fb)
	p.idle[fb.size] = append(p.idle[fb.size], fb)
	p.idleBytes += fb.size.Bytes()
	p.idleCount++
	victims := p.evictLocked()
	p.mu.Unlock()

	for _, v := range victims {
		v.destroy(s)
	}
	if len(victims) > 0 {
		framecap.Logger().Debug("framebuffer: evicted idle buffers",
			"count", len(victims), "budget", p.budget)
	}
	return nil
}

// Purge destroys every idle buffer.
func (p *Pool) Purge() error {
	return p.ctx.Sync(func(s *processing.Scope) error {
		p.mu.Lock()
		victims := p.drainLocked()
		p.mu.Unlock()
		for _, v := range victims {
			v.destroy(s)
		}
		return nil
	})
}

// Close destroys the idle buffers and stops pooling. Buffers still checked
// out are destroyed when their last reference is dropped. Close is safe to
// call multiple times.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.Purge()
	if err != nil {
		return fmt.Errorf("framebuffer: close pool: %w", err)
	}
	return nil
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Idle:       p.idleCount,
		CheckedOut: p.live - p.idleCount,
		IdleBytes:  p.idleBytes,
		Budget:     p.budget,
		Created:    p.created,
		Reused:     p.reused,
		Evicted:    p.evicted,
	}
}

// takeIdleLocked pops the most recently returned idle buffer of size.
func (p *Pool) takeIdleLocked(size Size) *FrameBuffer {
	list := p.idle[size]
	if len(list) == 0 {
		return nil
	}
	fb := list[len(list)-1]
	list[len(list)-1] = nil
	p.idle[size] = list[:len(list)-1]
	p.unlinkLocked(fb)
	return fb
}

// evictLocked removes idle buffers, oldest first, until idle bytes fit the
// budget. The caller destroys the returned buffers after unlocking.
func (p *Pool) evictLocked() []*FrameBuffer {
	var victims []*FrameBuffer
	for p.idleBytes > p.budget {
		fb, ok := p.recency.Oldest()
		if !ok {
			break
		}
		p.removeIdleLocked(fb)
		p.evicted++
		victims = append(victims, fb)
	}
	return victims
}

// drainLocked removes every idle buffer.
func (p *Pool) drainLocked() []*FrameBuffer {
	victims := make([]*FrameBuffer, 0, p.idleCount)
	for size, list := range p.idle {
		for _, fb := range list {
			p.unlinkLocked(fb)
			victims = append(victims, fb)
		}
		delete(p.idle, size)
	}
	return victims
}

// removeIdleLocked removes fb from its size's idle set.
func (p *Pool) removeIdleLocked(fb *FrameBuffer) {
	list := p.idle[fb.size]
	for i, other := range list {
		if other == fb {
			copy(list[i:], list[i+1:])
			list[len(list)-1] = nil
			p.idle[fb.size] = list[:len(list)-1]
			break
		}
	}
	if len(p.idle[fb.size]) == 0 {
		delete(p.idle, fb.size)
	}
	p.unlinkLocked(fb)
}

// unlinkLocked clears fb's idle state and idle accounting.
func (p *Pool) unlinkLocked(fb *FrameBuffer) {
	if !fb.idle {
		return
	}
	p.recency.Remove(fb.node)
	fb.node = nil
	fb.idle = false
	p.idleBytes -= fb.size.Bytes()
	p.idleCount--
}

// detach removes fb from the idle set before an explicit Destroy or when a
// holder locks an idle buffer directly.
func (p *Pool) detach(fb *FrameBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fb.idle {
		p.removeIdleLocked(fb)
	}
}

// forget drops a destroyed buffer from the live count.
func (p *Pool) forget() {
	p.mu.Lock()
	p.live--
	p.mu.Unlock()
}
