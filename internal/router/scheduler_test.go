package router_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/seline/internal/router"
	"github.com/flemzord/seline/internal/router/routertest"
	"github.com/google/go-cmp/cmp"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// dispatchRecorder collects batches handed off by a scheduler.
type dispatchRecorder struct {
	mu      sync.Mutex
	batches []router.Batch
	refuse  atomic.Int32
}

func (d *dispatchRecorder) dispatch(b router.Batch) bool {
	if d.refuse.Load() > 0 {
		d.refuse.Add(-1)
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, b)
	return true
}

func (d *dispatchRecorder) got() []router.Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]router.Batch(nil), d.batches...)
}

func newTestScheduler(t *testing.T) (*router.Scheduler, *routertest.FakeClock, *dispatchRecorder) {
	t.Helper()
	clock := routertest.NewFakeClock(epoch)
	rec := &dispatchRecorder{}
	s := router.NewScheduler(router.SchedulerConfig{
		Window:   2 * time.Second,
		Dispatch: rec.dispatch,
		Clock:    clock,
	})
	return s, clock, rec
}

func mustAppend(t *testing.T, s *router.Scheduler, user, text, handle string) {
	t.Helper()
	if err := s.Append(router.Fragment{UserID: user, Text: text, ReplyHandle: handle}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestScheduler_CoalescesBurst(t *testing.T) {
	t.Parallel()

	s, clock, rec := newTestScheduler(t)

	mustAppend(t, s, "U1", "ขอดู", "tok-1")
	clock.Advance(500 * time.Millisecond)
	mustAppend(t, s, "U1", "ประกันรถยนต์", "tok-2")

	clock.Advance(1900 * time.Millisecond)
	if n := len(rec.got()); n != 0 {
		t.Fatalf("flushed %d batches before the window elapsed", n)
	}

	clock.Advance(100 * time.Millisecond)
	batches := rec.got()
	if len(batches) != 1 {
		t.Fatalf("flushed %d batches, want 1", len(batches))
	}
	b := batches[0]
	if b.Query() != "ขอดู ประกันรถยนต์" {
		t.Errorf("Query() = %q", b.Query())
	}
	if b.ReplyHandle != "tok-2" || b.UserID != "U1" || b.ID == "" {
		t.Errorf("batch = %+v", b)
	}
}

func TestScheduler_SingleFlushPerBurst(t *testing.T) {
	t.Parallel()

	s, clock, rec := newTestScheduler(t)

	want := []string{"1", "2", "3", "4", "5", "6"}
	for _, f := range want {
		mustAppend(t, s, "U1", f, "tok")
		clock.Advance(1500 * time.Millisecond)
	}
	clock.Advance(time.Second)

	batches := rec.got()
	if len(batches) != 1 {
		t.Fatalf("flushed %d batches, want 1", len(batches))
	}
	if diff := cmp.Diff(want, batches[0].Fragments); diff != "" {
		t.Errorf("fragments mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(10 * time.Second)
	if len(rec.got()) != 1 {
		t.Error("a second flush happened after the burst")
	}
}

func TestScheduler_StaleTimerIsNoOp(t *testing.T) {
	t.Parallel()

	s, clock, rec := newTestScheduler(t)

	mustAppend(t, s, "U1", "a", "tok")
	mustAppend(t, s, "U1", "b", "tok")

	timers := clock.Timers()
	if len(timers) != 2 {
		t.Fatalf("timers = %d, want 2", len(timers))
	}
	if !timers[0].Stopped() {
		t.Error("superseded timer not cancelled")
	}

	// The superseded timer fires anyway, as if cancellation lost the race.
	timers[0].Fire()
	if n := len(rec.got()); n != 0 {
		t.Fatalf("stale timer flushed %d batches", n)
	}

	clock.Advance(2 * time.Second)
	batches := rec.got()
	if len(batches) != 1 || batches[0].Query() != "a b" {
		t.Fatalf("batches = %+v, want one batch \"a b\"", batches)
	}
}

func TestScheduler_UsersAreIndependent(t *testing.T) {
	t.Parallel()

	s, clock, rec := newTestScheduler(t)

	mustAppend(t, s, "U1", "hello", "t1")
	clock.Advance(time.Second)
	mustAppend(t, s, "U2", "hi", "t2")
	clock.Advance(time.Second)

	batches := rec.got()
	if len(batches) != 1 || batches[0].UserID != "U1" {
		t.Fatalf("after 2s batches = %+v, want U1 only", batches)
	}

	clock.Advance(time.Second)
	batches = rec.got()
	if len(batches) != 2 || batches[1].UserID != "U2" {
		t.Fatalf("after 3s batches = %+v, want U1 then U2", batches)
	}
}

func TestScheduler_RejectsInvalidFragments(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(t)
	for _, f := range []router.Fragment{
		{Text: "no user"},
		{UserID: "U1"},
	} {
		if err := s.Append(f); err != router.ErrInvalidFragment {
			t.Errorf("Append(%+v) = %v, want ErrInvalidFragment", f, err)
		}
	}
}

func TestScheduler_FailedHandOffIsSwept(t *testing.T) {
	t.Parallel()

	s, clock, rec := newTestScheduler(t)
	rec.refuse.Store(1)

	mustAppend(t, s, "U1", "keep me", "tok")
	clock.Advance(2 * time.Second)
	if n := len(rec.got()); n != 0 {
		t.Fatalf("refused dispatch still recorded %d batches", n)
	}
	if p := s.Buffers().Pending(); p != 1 {
		t.Fatalf("pending = %d, want the fragment kept", p)
	}

	// Not yet past window + grace.
	if n := s.Sweep(5 * time.Second); n != 0 {
		t.Fatalf("early sweep flushed %d", n)
	}

	clock.Advance(6 * time.Second)
	if n := s.Sweep(5 * time.Second); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	batches := rec.got()
	if len(batches) != 1 || batches[0].Query() != "keep me" || batches[0].ReplyHandle != "tok" {
		t.Fatalf("batches = %+v", batches)
	}
	if s.Sweep(5*time.Second) != 0 {
		t.Error("second sweep flushed again")
	}
}

func TestScheduler_RequeuedBatchMergesWithNewFragments(t *testing.T) {
	t.Parallel()

	s, clock, rec := newTestScheduler(t)
	rec.refuse.Store(1)

	mustAppend(t, s, "U1", "first", "tok-1")
	clock.Advance(2 * time.Second)
	mustAppend(t, s, "U1", "second", "tok-2")
	clock.Advance(2 * time.Second)

	batches := rec.got()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	if batches[0].Query() != "first second" || batches[0].ReplyHandle != "tok-2" {
		t.Errorf("batch = %+v", batches[0])
	}
}

func TestScheduler_BurstStartHook(t *testing.T) {
	t.Parallel()

	clock := routertest.NewFakeClock(epoch)
	started := make(chan string, 8)
	s := router.NewScheduler(router.SchedulerConfig{
		Window:       time.Second,
		Dispatch:     func(router.Batch) bool { return true },
		OnBurstStart: func(user string) { started <- user },
		Clock:        clock,
	})

	mustAppend(t, s, "U1", "a", "")
	mustAppend(t, s, "U1", "b", "")
	clock.Advance(time.Second)
	mustAppend(t, s, "U1", "c", "")

	for range 2 {
		select {
		case u := <-started:
			if u != "U1" {
				t.Errorf("hook user = %q", u)
			}
		case <-time.After(time.Second):
			t.Fatal("burst start hook not called")
		}
	}
	select {
	case <-started:
		t.Error("hook called for a fragment inside a burst")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduler_CloseDrainsPending(t *testing.T) {
	t.Parallel()

	s, clock, rec := newTestScheduler(t)
	mustAppend(t, s, "U1", "a", "t1")
	mustAppend(t, s, "U2", "b", "t2")

	drained := s.Close()
	if len(drained) != 2 {
		t.Fatalf("drained %d batches, want 2", len(drained))
	}
	for _, b := range drained {
		if b.ID == "" {
			t.Error("drained batch without id")
		}
	}

	if err := s.Append(router.Fragment{UserID: "U1", Text: "late"}); err != router.ErrRouterStopped {
		t.Errorf("Append after Close = %v, want ErrRouterStopped", err)
	}
	clock.Advance(time.Minute)
	if n := len(rec.got()); n != 0 {
		t.Errorf("timers dispatched %d batches after Close", n)
	}
	if s.Close() != nil {
		t.Error("second Close returned batches")
	}
}
