package router

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLaneLock_SameUserSerial(t *testing.T) {
	t.Parallel()

	ll := NewLaneLock()
	var inside, peak atomic.Int32
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ll.Acquire("U1")
			defer ll.Release("U1")

			cur := inside.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrency for one user = %d, want 1", p)
	}
}

func TestLaneLock_DifferentUsersParallel(t *testing.T) {
	t.Parallel()

	ll := NewLaneLock()
	enteredA := make(chan struct{})
	enteredB := make(chan struct{})
	done := make(chan struct{})

	go func() {
		ll.Acquire("UA")
		close(enteredA)
		<-enteredB
		ll.Release("UA")
	}()
	go func() {
		ll.Acquire("UB")
		close(enteredB)
		<-enteredA
		ll.Release("UB")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out: different users should run in parallel")
	}
}

func TestLaneLock_Cleanup(t *testing.T) {
	t.Parallel()

	ll := NewLaneLock()
	for _, key := range []string{"UA", "UB", "UC"} {
		ll.Acquire(key)
		ll.Release(key)
	}

	ll.Cleanup(map[string]struct{}{"UA": {}})

	ll.mu.Lock()
	defer ll.mu.Unlock()
	if _, ok := ll.lanes["UA"]; !ok {
		t.Error("active lane removed")
	}
	if _, ok := ll.lanes["UB"]; ok {
		t.Error("UB lane should have been removed")
	}
	if _, ok := ll.lanes["UC"]; ok {
		t.Error("UC lane should have been removed")
	}
}

func TestLaneLock_CleanupWhileHeld(t *testing.T) {
	t.Parallel()

	ll := NewLaneLock()
	ll.Acquire("UA")
	ll.Cleanup(map[string]struct{}{})

	if ll.Len() != 1 {
		t.Fatalf("held lane removed during cleanup")
	}
	ll.Release("UA")
	if ll.Len() != 0 {
		t.Errorf("stale lane kept after last release, len = %d", ll.Len())
	}
}
