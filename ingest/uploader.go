// Package ingest turns captured frames into GPU frame buffers.
//
// An Uploader is the controller's FrameHandler: for every frame it acquires
// a pooled buffer of the frame's size, uploads the pixels and hands the
// buffer downstream on a channel. Acquire and upload run as one hand-off to
// the GPU timeline. The receiver owns the acquire reference and must Unlock
// the buffer when done.
package ingest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framecap"
	"github.com/gogpu/framecap/capture"
	"github.com/gogpu/framecap/framebuffer"
	"github.com/gogpu/framecap/processing"
)

// DefaultQueueDepth is the number of uploaded buffers that may wait for
// the consumer.
const DefaultQueueDepth = 4

// Upload is a frame that reached the GPU.
type Upload struct {
	Buffer    *framebuffer.FrameBuffer
	Sequence  uint64
	Timestamp time.Duration
}

// Stats counts uploader activity.
type Stats struct {
	Uploaded uint64
	Dropped  uint64
	Failed   uint64
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithQueueDepth sets the capacity of the Buffers channel.
func WithQueueDepth(n int) Option {
	return func(u *Uploader) {
		if n >= 0 {
			u.depth = n
		}
	}
}

// WithDropWhenFull drops uploads the consumer has no room for instead of
// blocking the delivery goroutine.
func WithDropWhenFull() Option {
	return func(u *Uploader) { u.dropWhenFull = true }
}

// WithErrorHandler sets a callback for failed uploads. Allocation failures
// arrive as *framebuffer.AllocationError.
func WithErrorHandler(h func(error)) Option {
	return func(u *Uploader) { u.onError = h }
}

// Uploader uploads frames into pooled GPU buffers.
type Uploader struct {
	pool         *framebuffer.Pool
	depth        int
	dropWhenFull bool
	onError      func(error)

	out    chan Upload
	closed chan struct{}
	mu     sync.RWMutex
	once   sync.Once

	fatal atomic.Pointer[error]

	uploaded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// NewUploader creates an uploader that acquires buffers from pool.
func NewUploader(pool *framebuffer.Pool, opts ...Option) *Uploader {
	u := &Uploader{
		pool:   pool,
		depth:  DefaultQueueDepth,
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.out = make(chan Upload, u.depth)
	return u
}

// Buffers returns the channel uploaded buffers arrive on. It is closed by
// Close.
func (u *Uploader) Buffers() <-chan Upload {
	return u.out
}

// Err returns the first allocation failure, or nil.
func (u *Uploader) Err() error {
	if p := u.fatal.Load(); p != nil {
		return *p
	}
	return nil
}

// Stats returns activity counters.
func (u *Uploader) Stats() Stats {
	return Stats{
		Uploaded: u.uploaded.Load(),
		Dropped:  u.dropped.Load(),
		Failed:   u.failed.Load(),
	}
}

// Handle uploads f and passes the buffer downstream. It implements
// capture.FrameHandler and runs on the delivery goroutine.
func (u *Uploader) Handle(f capture.Frame) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	select {
	case <-u.closed:
		u.dropped.Add(1)
		return
	default:
	}

	fb, err := u.upload(f)
	if err != nil {
		u.fail(f, err)
		return
	}
	u.uploaded.Add(1)

	up := Upload{Buffer: fb, Sequence: f.Sequence, Timestamp: f.Timestamp}
	if u.dropWhenFull {
		select {
		case u.out <- up:
		default:
			u.dropped.Add(1)
			u.release(fb)
		}
		return
	}
	select {
	case u.out <- up:
	case <-u.closed:
		u.dropped.Add(1)
		u.release(fb)
	}
}

// Close stops accepting frames and closes the Buffers channel once pending
// Handle calls return. Buffers still in the channel remain owned by the
// consumer. Close is safe to call multiple times.
func (u *Uploader) Close() {
	u.once.Do(func() {
		close(u.closed)
		u.mu.Lock()
		close(u.out)
		u.mu.Unlock()
	})
}

func (u *Uploader) upload(f capture.Frame) (*framebuffer.FrameBuffer, error) {
	size := framebuffer.Size{Width: uint32(f.Width), Height: uint32(f.Height)}
	var fb *framebuffer.FrameBuffer
	err := u.pool.Context().Sync(func(s *processing.Scope) error {
		b, err := u.pool.AcquireIn(s, size)
		if err != nil {
			return err
		}
		if err := b.UploadBGRAIn(s, f.Pixels, f.Stride); err != nil {
			_ = b.UnlockIn(s)
			return err
		}
		fb = b
		return nil
	})
	return fb, err
}

func (u *Uploader) release(fb *framebuffer.FrameBuffer) {
	if err := fb.Unlock(); err != nil && !errors.Is(err, processing.ErrContextClosed) {
		framecap.Logger().Warn("ingest: release buffer", "err", err)
	}
}

func (u *Uploader) fail(f capture.Frame, err error) {
	u.failed.Add(1)
	if framebuffer.IsFatal(err) {
		u.fatal.CompareAndSwap(nil, &err)
	}
	framecap.Logger().Warn("ingest: upload failed",
		"sequence", f.Sequence, "width", f.Width, "height", f.Height, "err", err)
	if u.onError != nil {
		u.onError(err)
	}
}
