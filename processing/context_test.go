package processing

import (
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/framecap/internal/gputest"
	"github.com/gogpu/gputypes"
)

func newTestContext(t *testing.T, opts ...Option) (*Context, *gputest.CountingDevice) {
	t.Helper()
	device, queue := gputest.NoopDevice(t)
	cd := gputest.NewCountingDevice(device)
	ctx, err := New(cd, queue, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx, cd
}

func TestNewRejectsNilDevice(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("New(nil, nil) = %v, want ErrNilDevice", err)
	}
}

func TestSyncRunsWithLiveScope(t *testing.T) {
	ctx, _ := newTestContext(t)

	var kept *Scope
	err := ctx.Sync(func(s *Scope) error {
		if !s.Valid() {
			t.Error("scope should be valid inside Sync")
		}
		if s.Device() == nil || s.Queue() == nil {
			t.Error("scope should expose device and queue")
		}
		if s.Context() != ctx {
			t.Error("scope belongs to wrong context")
		}
		kept = s
		return nil
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if kept.Valid() {
		t.Error("scope should expire when Sync returns")
	}
	if kept.Device() != nil {
		t.Error("expired scope should not expose the device")
	}
	if _, err := ctx.TextureCache().NewPixelStorage(kept, 4, 4, "late"); !errors.Is(err, ErrScopeExpired) {
		t.Errorf("NewPixelStorage with expired scope = %v, want ErrScopeExpired", err)
	}
}

func TestSyncScopeExpiresOnErrorAndPanic(t *testing.T) {
	ctx, _ := newTestContext(t)
	sentinel := errors.New("boom")

	var s1, s2 *Scope
	if err := ctx.Sync(func(s *Scope) error { s1 = s; return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("Sync error = %v, want %v", err, sentinel)
	}
	if err := ctx.Sync(func(s *Scope) error { s2 = s; panic("bad") }); err == nil {
		t.Error("Sync should report a panic as an error")
	}
	if s1.Valid() || s2.Valid() {
		t.Error("scopes should expire on error and panic paths")
	}

	// Timeline survives.
	if err := ctx.Sync(func(*Scope) error { return nil }); err != nil {
		t.Errorf("Sync after panic = %v", err)
	}
}

func TestSyncSerializesSubmitters(t *testing.T) {
	ctx, _ := newTestContext(t)

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		total   int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = ctx.Sync(func(*Scope) error {
					// No lock: the timeline is the only writer.
					inside++
					if inside > maxSeen {
						maxSeen = inside
					}
					total++
					inside--
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent work = %d, want 1", maxSeen)
	}
	if total != 200 {
		t.Errorf("total = %d, want 200", total)
	}
}

func TestSyncAfterClose(t *testing.T) {
	ctx, _ := newTestContext(t)
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !ctx.IsClosed() {
		t.Error("IsClosed should be true")
	}
	if err := ctx.Sync(func(*Scope) error { return nil }); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Sync after Close = %v, want ErrContextClosed", err)
	}
	// Second close is a no-op.
	if err := ctx.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestCloseDestroysSharedSamplers(t *testing.T) {
	device, queue := gputest.NoopDevice(t)
	cd := gputest.NewCountingDevice(device)
	ctx, err := New(cd, queue)
	if err != nil {
		t.Fatal(err)
	}

	_ = ctx.Sync(func(s *Scope) error {
		_, err := ctx.TextureCache().Sampler(s, LinearClamp)
		return err
	})
	if got := cd.Live().Samplers; got != 1 {
		t.Fatalf("live samplers = %d, want 1", got)
	}

	_ = ctx.Close()
	if got := cd.Live().Samplers; got != 0 {
		t.Errorf("live samplers after Close = %d, want 0", got)
	}
}

func TestBindRenderTarget(t *testing.T) {
	ctx, _ := newTestContext(t)

	err := ctx.Sync(func(s *Scope) error {
		if _, ok := s.CurrentRenderTarget(); ok {
			t.Error("no target should be bound initially")
		}
		if err := s.BindRenderTarget(RenderTarget{Width: 64, Height: 32, Label: "a"}); err != nil {
			return err
		}
		rt, ok := s.CurrentRenderTarget()
		if !ok {
			t.Fatal("target should be bound")
		}
		want := Viewport{Width: 64, Height: 32}
		if rt.Viewport != want {
			t.Errorf("viewport = %+v, want %+v", rt.Viewport, want)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Binding persists across Sync calls.
	_ = ctx.Sync(func(s *Scope) error {
		rt, ok := s.CurrentRenderTarget()
		if !ok || rt.Label != "a" {
			t.Errorf("binding lost: %+v, %v", rt, ok)
		}
		return nil
	})
}

func TestFromProvider(t *testing.T) {
	device, queue := gputest.NoopDevice(t)

	if _, err := FromProvider(nil); !errors.Is(err, ErrNilProvider) {
		t.Errorf("FromProvider(nil) = %v, want ErrNilProvider", err)
	}

	ctx, err := FromProvider(&gputest.Provider{
		Dev:    device,
		Q:      queue,
		Format: gputypes.TextureFormatBGRA8Unorm,
	}, WithLabel("shared"), WithMaxTextureDimension(2048))
	if err != nil {
		t.Fatalf("FromProvider failed: %v", err)
	}
	defer ctx.Close()

	if ctx.Label() != "shared" {
		t.Errorf("Label = %q, want shared", ctx.Label())
	}
	if ctx.MaxTextureDimension() != 2048 {
		t.Errorf("MaxTextureDimension = %d, want 2048", ctx.MaxTextureDimension())
	}

	if _, err := FromProvider(&gputest.Provider{}); err == nil {
		t.Error("FromProvider should fail when the provider has no hal device")
	}
}
