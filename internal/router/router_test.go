package router_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/seline/internal/router"
	"github.com/flemzord/seline/internal/router/routertest"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRouter(t *testing.T, handler router.BatchHandler, clock router.Clock) *router.Router {
	t.Helper()
	r, err := router.NewRouter(router.Config{
		Window:      2 * time.Second,
		WorkerCount: 4,
		InboxSize:   8,
		Handler:     handler,
		Clock:       clock,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func TestNewRouter_RequiresHandler(t *testing.T) {
	t.Parallel()

	if _, err := router.NewRouter(router.Config{}); !errors.Is(err, router.ErrNoHandler) {
		t.Errorf("err = %v, want ErrNoHandler", err)
	}
}

func TestRouter_FlushReachesHandler(t *testing.T) {
	t.Parallel()

	clock := routertest.NewFakeClock(epoch)
	rec := routertest.NewRecorder()
	r := newTestRouter(t, rec, clock)
	r.Start(context.Background())
	defer r.Stop(context.Background())

	if err := r.Submit(router.Fragment{UserID: "U1", Text: "ขอดู", ReplyHandle: "tok"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	clock.Advance(500 * time.Millisecond)
	_ = r.Submit(router.Fragment{UserID: "U1", Text: "ประกันรถยนต์", ReplyHandle: "tok-2"})
	clock.Advance(2 * time.Second)

	if !rec.WaitFor(1, 2*time.Second) {
		t.Fatal("handler never received the batch")
	}
	b := rec.Batches()[0]
	if b.Query() != "ขอดู ประกันรถยนต์" || b.ReplyHandle != "tok-2" {
		t.Errorf("batch = %+v", b)
	}
}

func TestRouter_SerializesRunsPerUser(t *testing.T) {
	t.Parallel()

	clock := routertest.NewFakeClock(epoch)
	var inside, peak atomic.Int32
	release := make(chan struct{})
	rec := routertest.NewRecorder()
	rec.HandleFunc = func(context.Context, router.Batch) {
		n := inside.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inside.Add(-1)
	}
	r := newTestRouter(t, rec, clock)
	r.Start(context.Background())

	_ = r.Submit(router.Fragment{UserID: "U1", Text: "one", ReplyHandle: "t"})
	clock.Advance(2 * time.Second)
	_ = r.Submit(router.Fragment{UserID: "U1", Text: "two", ReplyHandle: "t"})
	clock.Advance(2 * time.Second)

	if !rec.WaitFor(1, 2*time.Second) {
		t.Fatal("first batch not started")
	}
	// Give the second batch a chance to start if serialization were broken.
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.Batches()); n != 1 {
		t.Fatalf("%d batches running for one user, want 1", n)
	}

	close(release)
	if !rec.WaitFor(2, 2*time.Second) {
		t.Fatal("second batch never ran")
	}
	r.Stop(context.Background())

	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent runs = %d, want 1", p)
	}
	got := rec.Batches()
	if got[0].Query() != "one" || got[1].Query() != "two" {
		t.Errorf("order = %q, %q", got[0].Query(), got[1].Query())
	}
}

func TestRouter_DifferentUsersRunInParallel(t *testing.T) {
	t.Parallel()

	clock := routertest.NewFakeClock(epoch)
	var wg sync.WaitGroup
	wg.Add(2)
	both := make(chan struct{})
	rec := routertest.NewRecorder()
	rec.HandleFunc = func(context.Context, router.Batch) {
		wg.Done()
		wg.Wait()
	}
	r := newTestRouter(t, rec, clock)
	r.Start(context.Background())
	defer r.Stop(context.Background())

	_ = r.Submit(router.Fragment{UserID: "U1", Text: "a", ReplyHandle: "t"})
	_ = r.Submit(router.Fragment{UserID: "U2", Text: "b", ReplyHandle: "t"})
	clock.Advance(2 * time.Second)

	go func() {
		rec.WaitFor(2, 2*time.Second)
		close(both)
	}()
	select {
	case <-both:
	case <-time.After(3 * time.Second):
		t.Fatal("two users did not run concurrently")
	}
}

func TestRouter_StopDrainsPendingBuffers(t *testing.T) {
	t.Parallel()

	clock := routertest.NewFakeClock(epoch)
	rec := routertest.NewRecorder()
	r := newTestRouter(t, rec, clock)
	r.Start(context.Background())

	_ = r.Submit(router.Fragment{UserID: "U1", Text: "pending", ReplyHandle: "tok"})
	_ = r.Submit(router.Fragment{UserID: "U2", Text: "also pending", ReplyHandle: "tok"})

	// Stop before the window elapses: the batches still run.
	r.Stop(context.Background())

	if n := len(rec.Batches()); n != 2 {
		t.Fatalf("drained %d batches, want 2", n)
	}
	if err := r.Submit(router.Fragment{UserID: "U1", Text: "late"}); !errors.Is(err, router.ErrRouterStopped) {
		t.Errorf("Submit after Stop = %v, want ErrRouterStopped", err)
	}
	if r.Pending() != 0 {
		t.Error("buffers still pending after Stop")
	}
}

func TestRouter_StopWithoutStartRunsInline(t *testing.T) {
	t.Parallel()

	clock := routertest.NewFakeClock(epoch)
	rec := routertest.NewRecorder()
	r := newTestRouter(t, rec, clock)

	_ = r.Submit(router.Fragment{UserID: "U1", Text: "x", ReplyHandle: "tok"})
	r.Stop(context.Background())

	if n := len(rec.Batches()); n != 1 {
		t.Errorf("batches = %d, want 1", n)
	}
}

func TestRouter_RunsAreNotCancelledByStop(t *testing.T) {
	t.Parallel()

	clock := routertest.NewFakeClock(epoch)
	entered := make(chan struct{})
	var ctxErr atomic.Value
	rec := routertest.NewRecorder()
	rec.HandleFunc = func(ctx context.Context, _ router.Batch) {
		close(entered)
		time.Sleep(50 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			ctxErr.Store(err)
		}
	}
	r := newTestRouter(t, rec, clock)
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	_ = r.Submit(router.Fragment{UserID: "U1", Text: "x", ReplyHandle: "tok"})
	clock.Advance(2 * time.Second)
	<-entered
	cancel()
	r.Stop(context.Background())

	if v := ctxErr.Load(); v != nil {
		t.Errorf("run context cancelled: %v", v)
	}
}

func TestRouter_RealClockDebounce(t *testing.T) {
	t.Parallel()

	rec := routertest.NewRecorder()
	r, err := router.NewRouter(router.Config{
		Window:  40 * time.Millisecond,
		Handler: rec,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	r.Start(context.Background())
	defer r.Stop(context.Background())

	for _, f := range []string{"a", "b", "c"} {
		_ = r.Submit(router.Fragment{UserID: "U1", Text: f, ReplyHandle: "tok"})
		time.Sleep(5 * time.Millisecond)
	}

	if !rec.WaitFor(1, 2*time.Second) {
		t.Fatal("no flush with the system clock")
	}
	time.Sleep(100 * time.Millisecond)
	got := rec.Batches()
	if len(got) != 1 || got[0].Query() != "a b c" {
		t.Errorf("batches = %+v, want one \"a b c\"", got)
	}
}

func TestRouter_SweepAndEvict(t *testing.T) {
	t.Parallel()

	clock := routertest.NewFakeClock(epoch)
	rec := routertest.NewRecorder()
	r, err := router.NewRouter(router.Config{
		Window:     time.Second,
		SweepGrace: time.Second,
		MaxIdle:    time.Minute,
		Handler:    rec,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	r.Start(context.Background())
	defer r.Stop(context.Background())

	_ = r.Submit(router.Fragment{UserID: "U1", Text: "x", ReplyHandle: "tok"})
	if n := r.Sweep(); n != 0 {
		t.Errorf("Sweep() inside the window = %d", n)
	}
	clock.Advance(time.Second)
	if !rec.WaitFor(1, 2*time.Second) {
		t.Fatal("batch not flushed")
	}
	if n := r.Sweep(); n != 0 {
		t.Errorf("Sweep() after flush = %d, want 0", n)
	}

	clock.Advance(2 * time.Minute)
	if n := r.EvictIdle(); n != 1 {
		t.Errorf("EvictIdle() = %d, want 1", n)
	}
}
