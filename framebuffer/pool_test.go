package framebuffer

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/framecap/processing"
)

func TestPoolAcquireLocksToOne(t *testing.T) {
	ctx, _ := newTestContext(t)
	pool := NewPool(ctx)
	defer pool.Close()

	fb, err := pool.Acquire(Size{Width: 32, Height: 32})
	if err != nil {
		t.Fatal(err)
	}
	if fb.RefCount() != 1 {
		t.Errorf("RefCount = %d, want 1", fb.RefCount())
	}
	if fb.Pool() != pool {
		t.Error("buffer should belong to the pool")
	}
	st := pool.Stats()
	if st.Created != 1 || st.CheckedOut != 1 || st.Idle != 0 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestPoolReturnExactlyOnce(t *testing.T) {
	ctx, _ := newTestContext(t)
	pool := NewPool(ctx)
	defer pool.Close()

	size := Size{Width: 16, Height: 16}
	fb, err := pool.Acquire(size)
	if err != nil {
		t.Fatal(err)
	}

	// Three more holders.
	for i := 0; i < 3; i++ {
		if err := fb.Lock(); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := fb.Unlock(); err != nil {
			t.Fatal(err)
		}
		if pool.Stats().Idle != 0 {
			t.Fatalf("buffer returned while %d references remain", fb.RefCount())
		}
	}

	if err := fb.Unlock(); err != nil {
		t.Fatal(err)
	}
	if st := pool.Stats(); st.Idle != 1 || st.CheckedOut != 0 {
		t.Errorf("after last unlock Stats = %+v", st)
	}

	if err := fb.Unlock(); !errors.Is(err, ErrUnbalancedUnlock) {
		t.Errorf("extra Unlock = %v, want ErrUnbalancedUnlock", err)
	}
	if err := pool.Release(fb); !errors.Is(err, ErrAlreadyIdle) {
		t.Errorf("second Release = %v, want ErrAlreadyIdle", err)
	}
	if st := pool.Stats(); st.Idle != 1 {
		t.Errorf("Idle = %d, want 1", st.Idle)
	}
}

func TestPoolConcurrentHolders(t *testing.T) {
	ctx, _ := newTestContext(t)
	pool := NewPool(ctx)
	defer pool.Close()

	fb, err := pool.Acquire(Size{Width: 8, Height: 8})
	if err != nil {
		t.Fatal(err)
	}

	const holders = 20
	var wg sync.WaitGroup
	for i := 0; i < holders; i++ {
		_ = fb.Lock()
	}
	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fb.Unlock()
		}()
	}
	wg.Wait()

	if pool.Stats().Idle != 0 {
		t.Fatal("acquirer's reference still held; buffer must not be idle")
	}
	_ = fb.Unlock()
	if pool.Stats().Idle != 1 {
		t.Errorf("Idle = %d, want 1", pool.Stats().Idle)
	}
}

func TestPoolReusesBySize(t *testing.T) {
	ctx, _ := newTestContext(t)
	pool := NewPool(ctx)
	defer pool.Close()

	small := Size{Width: 8, Height: 8}
	large := Size{Width: 16, Height: 16}

	a, _ := pool.Acquire(small)
	_ = a.Unlock()

	b, err := pool.Acquire(large)
	if err != nil {
		t.Fatal(err)
	}
	if b == a {
		t.Error("buffer of another size must not be reused")
	}

	c, err := pool.Acquire(small)
	if err != nil {
		t.Fatal(err)
	}
	if c != a {
		t.Error("idle buffer of equal size should be reused")
	}
	if c.RefCount() != 1 {
		t.Errorf("reused RefCount = %d, want 1", c.RefCount())
	}

	st := pool.Stats()
	if st.Created != 2 || st.Reused != 1 || st.CheckedOut != 2 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestPoolReleaseInUse(t *testing.T) {
	ctx, _ := newTestContext(t)
	pool := NewPool(ctx)
	defer pool.Close()

	fb, _ := pool.Acquire(Size{Width: 8, Height: 8})
	if err := pool.Release(fb); !errors.Is(err, ErrBufferInUse) {
		t.Errorf("Release = %v, want ErrBufferInUse", err)
	}

	// ClearLock then explicit Release.
	_ = fb.ClearLock()
	if err := pool.Release(fb); err != nil {
		t.Errorf("Release after ClearLock = %v", err)
	}
}

func TestPoolRejectsForeignBuffer(t *testing.T) {
	ctx, _ := newTestContext(t)
	a := NewPool(ctx)
	b := NewPool(ctx)
	defer a.Close()
	defer b.Close()

	fb, _ := a.Acquire(Size{Width: 8, Height: 8})
	_ = fb.ClearLock()
	if err := b.Release(fb); !errors.Is(err, ErrForeignBuffer) {
		t.Errorf("Release = %v, want ErrForeignBuffer", err)
	}

	standalone, _ := New(ctx, Size{Width: 8, Height: 8}, "x")
	defer standalone.Destroy()
	if err := a.Release(standalone); !errors.Is(err, ErrForeignBuffer) {
		t.Errorf("Release standalone = %v, want ErrForeignBuffer", err)
	}
}

func TestPoolEvictsOldestOverBudget(t *testing.T) {
	ctx, cd := newTestContext(t)
	size := Size{Width: 16, Height: 16} // 1 KiB
	pool := NewPool(ctx, WithIdleBudget(2*size.Bytes()))
	defer pool.Close()

	var bufs []*FrameBuffer
	for i := 0; i < 3; i++ {
		fb, err := pool.Acquire(size)
		if err != nil {
			t.Fatal(err)
		}
		bufs = append(bufs, fb)
	}
	for _, fb := range bufs {
		_ = fb.Unlock()
	}

	st := pool.Stats()
	if st.Idle != 2 || st.Evicted != 1 || st.IdleBytes != 2*size.Bytes() {
		t.Errorf("Stats = %+v", st)
	}

	_ = ctx.Sync(func(s *processing.Scope) error {
		if !bufs[0].IsDestroyed() {
			t.Error("least recently returned buffer should be evicted")
		}
		if bufs[1].IsDestroyed() || bufs[2].IsDestroyed() {
			t.Error("recent buffers should stay idle")
		}
		return nil
	})
	if got := cd.Live().Textures; got != 2 {
		t.Errorf("live textures = %d, want 2", got)
	}
}

func TestPoolDestroyIdleBuffer(t *testing.T) {
	ctx, _ := newTestContext(t)
	pool := NewPool(ctx)
	defer pool.Close()

	fb, _ := pool.Acquire(Size{Width: 8, Height: 8})
	_ = fb.Unlock()
	if err := fb.Destroy(); err != nil {
		t.Fatal(err)
	}

	st := pool.Stats()
	if st.Idle != 0 || st.IdleBytes != 0 || st.CheckedOut != 0 {
		t.Errorf("Stats = %+v", st)
	}
	next, err := pool.Acquire(Size{Width: 8, Height: 8})
	if err != nil {
		t.Fatal(err)
	}
	if next == fb {
		t.Error("destroyed buffer must not be handed out")
	}
}

func TestPoolPurgeAndClose(t *testing.T) {
	ctx, cd := newTestContext(t)
	pool := NewPool(ctx)

	a, _ := pool.Acquire(Size{Width: 8, Height: 8})
	b, _ := pool.Acquire(Size{Width: 8, Height: 8})
	_ = a.Unlock()

	if err := pool.Purge(); err != nil {
		t.Fatal(err)
	}
	if st := pool.Stats(); st.Idle != 0 || st.CheckedOut != 1 {
		t.Errorf("after Purge Stats = %+v", st)
	}

	if err := pool.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := pool.Acquire(Size{Width: 8, Height: 8}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire after Close = %v, want ErrPoolClosed", err)
	}

	// Last unlock after Close destroys instead of pooling.
	_ = b.Unlock()
	if st := pool.Stats(); st.Idle != 0 || st.CheckedOut != 0 {
		t.Errorf("after Close Stats = %+v", st)
	}
	live := cd.Live()
	if live.Textures != 0 || live.Buffers != 0 || live.Views != 0 {
		t.Errorf("leaked resources: %+v", live)
	}
}

func TestPoolAllocationFailureIsFatal(t *testing.T) {
	ctx, _ := newTestContext(t, processing.WithMaxTextureDimension(32))
	pool := NewPool(ctx)
	defer pool.Close()

	_, err := pool.Acquire(Size{Width: 64, Height: 64})
	if !IsFatal(err) {
		t.Fatalf("Acquire = %v, want fatal allocation error", err)
	}
	if st := pool.Stats(); st.Created != 0 || st.CheckedOut != 0 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestPoolStatsString(t *testing.T) {
	s := PoolStats{Idle: 1, CheckedOut: 2, IdleBytes: 4 << 20, Budget: 256 << 20, Created: 3}
	want := "Pool[1 idle, 2 out, 4/256 MB, 3 created, 0 reused, 0 evicted]"
	if got := s.String(); got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}

func TestPoolLockIdleBufferChecksItOut(t *testing.T) {
	ctx, _ := newTestContext(t)
	pool := NewPool(ctx)
	defer pool.Close()

	size := Size{Width: 16, Height: 16}
	first, err := pool.Acquire(size)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatal(err)
	}
	if st := pool.Stats(); st.Idle != 1 {
		t.Fatalf("Stats = %+v, want one idle buffer", st)
	}

	// A holder that kept the pointer locks it again.
	if err := first.Lock(); err != nil {
		t.Fatal(err)
	}
	if st := pool.Stats(); st.Idle != 0 || st.CheckedOut != 1 {
		t.Errorf("after Lock Stats = %+v, want 0 idle 1 checked out", st)
	}

	second, err := pool.Acquire(size)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("Acquire handed out a buffer that is still locked")
	}
	if first.RefCount() != 1 || second.RefCount() != 1 {
		t.Errorf("RefCount = %d, %d, want 1, 1", first.RefCount(), second.RefCount())
	}

	if err := first.Unlock(); err != nil {
		t.Fatal(err)
	}
	if second.RefCount() != 1 {
		t.Errorf("second holder lost its reference: RefCount = %d", second.RefCount())
	}
	if st := pool.Stats(); st.Idle != 1 || st.CheckedOut != 1 {
		t.Errorf("Stats = %+v, want 1 idle 1 checked out", st)
	}
}

// acquireAndDrop checks out a buffer and lets it become unreachable.
func acquireAndDrop(t *testing.T, pool *Pool, size Size) {
	t.Helper()
	fb, err := pool.Acquire(size)
	if err != nil {
		t.Fatal(err)
	}
	if fb.RefCount() != 1 {
		t.Fatalf("RefCount = %d, want 1", fb.RefCount())
	}
}

func TestPoolCollectsUnreachableBuffer(t *testing.T) {
	ctx, dev := newTestContext(t)
	pool := NewPool(ctx)
	defer pool.Close()

	acquireAndDrop(t, pool, Size{Width: 64, Height: 64})
	if st := pool.Stats(); st.CheckedOut != 1 {
		t.Fatalf("Stats = %+v, want one checked out", st)
	}

	deadline := time.Now().Add(5 * time.Second)
	for pool.Stats().CheckedOut != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("unreachable buffer was not collected: %+v", pool.Stats())
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		// Flush teardown posted by the cleanup hook.
		if err := ctx.Sync(func(*processing.Scope) error { return nil }); err != nil {
			t.Fatal(err)
		}
	}

	if st := ctx.TextureCache().Stats(); st.Storages != 0 || st.Textures != 0 {
		t.Errorf("TextureCache Stats = %+v, want no storages or textures", st)
	}
	if live := dev.Live(); live.Buffers != 0 || live.Textures != 0 || live.Views != 0 {
		t.Errorf("device Live = %+v, want no buffers, textures or views", live)
	}
	if st := pool.Stats(); st.Idle != 0 {
		t.Errorf("collected buffer must not return to the pool: %+v", st)
	}
}
