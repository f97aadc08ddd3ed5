package core

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeComponent struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
}

func (f *fakeComponent) Start(context.Context) error {
	f.rec.add("start " + f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	f.rec.add("stop " + f.name)
	return f.stopErr
}

type closerOnly struct {
	name string
	rec  *recorder
}

func (c *closerOnly) Close() error {
	c.rec.add("close " + c.name)
	return nil
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	app := NewApp(slog.Default(), 0)
	components := []struct {
		name string
		c    any
	}{
		{"store", &closerOnly{name: "store", rec: rec}},
		{"router", &fakeComponent{name: "router", rec: rec}},
		{"gateway", &fakeComponent{name: "gateway", rec: rec}},
	}
	for _, c := range components {
		if err := app.Add(c.name, c.c); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := app.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"start router", "start gateway", "stop gateway", "stop router", "close store"}
	if diff := cmp.Diff(want, rec.list()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}

	// Second stop is a no-op.
	if err := app.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if len(rec.list()) != len(want) {
		t.Error("second Stop called components again")
	}
}

func TestApp_StartFailureRollsBack(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	app := NewApp(nil, 0)
	_ = app.Add("a", &fakeComponent{name: "a", rec: rec})
	_ = app.Add("b", &fakeComponent{name: "b", rec: rec, startErr: errors.New("boom")})
	_ = app.Add("c", &fakeComponent{name: "c", rec: rec})

	err := app.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "starting b") {
		t.Fatalf("Start err = %v", err)
	}

	want := []string{"start a", "start b", "stop a"}
	if diff := cmp.Diff(want, rec.list()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestApp_StopJoinsErrors(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	app := NewApp(nil, 0)
	_ = app.Add("a", &fakeComponent{name: "a", rec: rec, stopErr: errors.New("a failed")})
	_ = app.Add("b", StopFunc(func(context.Context) error { return errors.New("b failed") }))

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := app.Stop()
	if err == nil || !strings.Contains(err.Error(), "a failed") || !strings.Contains(err.Error(), "b failed") {
		t.Errorf("Stop err = %v", err)
	}
}

func TestApp_AddRejects(t *testing.T) {
	t.Parallel()

	app := NewApp(nil, 0)
	if err := app.Add("plain", struct{}{}); err == nil {
		t.Error("component without lifecycle methods should be rejected")
	}
	_ = app.Add("dup", StopFunc(func(context.Context) error { return nil }))
	if err := app.Add("dup", StopFunc(func(context.Context) error { return nil })); err == nil {
		t.Error("duplicate name should be rejected")
	}
}

func TestApp_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	app := NewApp(nil, 0)
	_ = app.Add("svc", &fakeComponent{name: "svc", rec: rec})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// Wait for the start before cancelling.
	for len(rec.list()) == 0 {
		runtime.Gosched()
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"start svc", "stop svc"}
	if diff := cmp.Diff(want, rec.list()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}
