package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/framecap/capture"
	"github.com/gogpu/framecap/capture/synthetic"
	"github.com/gogpu/framecap/framebuffer"
	"github.com/gogpu/framecap/internal/gputest"
	"github.com/gogpu/framecap/processing"
)

func newTestPool(t *testing.T, opts ...processing.Option) (*framebuffer.Pool, *gputest.CountingDevice) {
	t.Helper()
	device, queue := gputest.NoopDevice(t)
	cd := gputest.NewCountingDevice(device)
	ctx, err := processing.New(cd, queue, opts...)
	if err != nil {
		t.Fatal(err)
	}
	pool := framebuffer.NewPool(ctx)
	t.Cleanup(func() {
		_ = pool.Close()
		_ = ctx.Close()
	})
	return pool, cd
}

func frame(seq uint64, w, h int) capture.Frame {
	return capture.Frame{
		Pixels:   synthetic.Pattern(w, h, seq),
		Width:    w,
		Height:   h,
		Stride:   w * 4,
		Sequence: seq,
	}
}

func TestUploaderHandsBuffersDownstream(t *testing.T) {
	pool, _ := newTestPool(t)
	up := NewUploader(pool)
	defer up.Close()

	up.Handle(frame(7, 16, 8))

	select {
	case u := <-up.Buffers():
		if u.Sequence != 7 {
			t.Errorf("Sequence = %d, want 7", u.Sequence)
		}
		if u.Buffer.RefCount() != 1 {
			t.Errorf("RefCount = %d, want 1", u.Buffer.RefCount())
		}
		if u.Buffer.Size() != (framebuffer.Size{Width: 16, Height: 8}) {
			t.Errorf("Size = %v", u.Buffer.Size())
		}
		if err := u.Buffer.Unlock(); err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("no buffer delivered")
	}

	if st := pool.Stats(); st.Idle != 1 {
		t.Errorf("buffer should be back in the pool: %+v", st)
	}
	if st := up.Stats(); st.Uploaded != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestUploaderReusesPooledBuffers(t *testing.T) {
	pool, _ := newTestPool(t)
	up := NewUploader(pool)
	defer up.Close()

	for i := uint64(0); i < 10; i++ {
		up.Handle(frame(i, 8, 8))
		u := <-up.Buffers()
		_ = u.Buffer.Unlock()
	}

	st := pool.Stats()
	if st.Created != 1 || st.Reused != 9 {
		t.Errorf("Stats = %+v, want 1 created 9 reused", st)
	}
}

func TestUploaderDropWhenFull(t *testing.T) {
	pool, _ := newTestPool(t)
	up := NewUploader(pool, WithQueueDepth(1), WithDropWhenFull())
	defer up.Close()

	up.Handle(frame(0, 8, 8))
	up.Handle(frame(1, 8, 8))

	if st := up.Stats(); st.Uploaded != 2 || st.Dropped != 1 {
		t.Errorf("Stats = %+v", st)
	}
	// The dropped buffer went back to the pool.
	if st := pool.Stats(); st.Idle != 1 || st.CheckedOut != 1 {
		t.Errorf("pool Stats = %+v", st)
	}
}

func TestUploaderAllocationFailure(t *testing.T) {
	pool, _ := newTestPool(t, processing.WithMaxTextureDimension(64))

	var got []error
	up := NewUploader(pool, WithErrorHandler(func(err error) { got = append(got, err) }))
	defer up.Close()

	up.Handle(frame(0, 128, 8))

	if !framebuffer.IsFatal(up.Err()) {
		t.Errorf("Err = %v, want allocation failure", up.Err())
	}
	if len(got) != 1 || !errors.Is(got[0], framebuffer.ErrAllocationFailed) {
		t.Errorf("handler errors = %v", got)
	}
	if st := up.Stats(); st.Failed != 1 || st.Uploaded != 0 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestUploaderShortFrameReleasesBuffer(t *testing.T) {
	pool, _ := newTestPool(t)
	up := NewUploader(pool)
	defer up.Close()

	f := frame(0, 8, 8)
	f.Pixels = f.Pixels[:10]
	up.Handle(f)

	if up.Err() != nil {
		t.Errorf("short frame is not an allocation failure: %v", up.Err())
	}
	if st := pool.Stats(); st.CheckedOut != 0 || st.Idle != 1 {
		t.Errorf("pool Stats = %+v", st)
	}
}

func TestUploaderCloseUnblocksHandle(t *testing.T) {
	pool, _ := newTestPool(t)
	up := NewUploader(pool, WithQueueDepth(0))

	done := make(chan struct{})
	go func() {
		up.Handle(frame(0, 8, 8))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	up.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle still blocked after Close")
	}

	if _, ok := <-up.Buffers(); ok {
		t.Error("Buffers should be closed")
	}
	if st := pool.Stats(); st.CheckedOut != 0 {
		t.Errorf("undelivered buffer not released: %+v", st)
	}
	up.Handle(frame(1, 8, 8)) // no panic after Close
	up.Close()
}

func TestPipelineWithSyntheticCamera(t *testing.T) {
	pool, cd := newTestPool(t)
	up := NewUploader(pool, WithDropWhenFull())

	dev := synthetic.NewDevice("cam", capture.PositionBack, synthetic.WithPresets(capture.PresetMedium))
	sess := synthetic.NewSession(synthetic.WithFrameInterval(time.Millisecond))
	ctrl := capture.NewController(sess, synthetic.NewEnumerator(dev),
		capture.WithFrameHandler(up.Handle))

	if _, err := ctrl.Configure(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctrl.StartRunning()

	var received int
	timeout := time.After(2 * time.Second)
	for received < 5 {
		select {
		case u := <-up.Buffers():
			if u.Buffer.Size() != (framebuffer.Size{Width: 480, Height: 360}) {
				t.Errorf("Size = %v", u.Buffer.Size())
			}
			_ = u.Buffer.Unlock()
			received++
		case <-timeout:
			t.Fatalf("received %d buffers", received)
		}
	}

	_ = ctrl.Close()
	up.Close()
	for u := range up.Buffers() {
		_ = u.Buffer.Unlock()
	}

	if st := pool.Stats(); st.CheckedOut != 0 {
		t.Errorf("buffers still checked out: %+v", st)
	}
	_ = pool.Close()
	if live := cd.Live(); live.Textures != 0 || live.Buffers != 0 {
		t.Errorf("leaked resources: %+v", live)
	}
}
