package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/calibration"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/events"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/sensor"
)

func newTestBroker(t *testing.T) (*promptBroker, chan events.Event) {
	t.Helper()
	registry = sensor.NewRegistry(nil, calibration.Options{}, sensor.Options{})
	t.Cleanup(func() { registry = nil })

	h := events.NewEventHub()
	b := newPromptBroker(h)
	sub := h.Subscribe()
	t.Cleanup(func() { h.Unsubscribe(sub) })
	return b, sub
}

func TestPromptResolved(t *testing.T) {
	b, sub := newTestBroker(t)

	type result struct {
		save bool
		err  error
	}
	done := make(chan result, 1)
	go func() {
		save, err := b.Confirm(context.Background(), "dev-1", "grip-1")
		done <- result{save, err}
	}()

	select {
	case ev := <-sub:
		if ev.Name != events.SessionPrompt {
			t.Fatalf("published event %q, want %q", ev.Name, events.SessionPrompt)
		}
		prompt, err := events.DecodeAs[events.SessionPromptEvent](ev)
		if err != nil {
			t.Fatal(err)
		}
		if prompt.ID != "dev-1" || prompt.Name != "grip-1" {
			t.Fatalf("prompt payload = %+v", prompt)
		}
	case <-time.After(time.Second):
		t.Fatal("no prompt event published")
	}

	if !b.Resolve("dev-1", false) {
		t.Fatal("Resolve found no pending prompt")
	}
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Confirm failed: %v", r.err)
		}
		if r.save {
			t.Fatal("Confirm returned save=true after a discard decision")
		}
	case <-time.After(time.Second):
		t.Fatal("Confirm did not return after Resolve")
	}
}

func TestPromptDeadline(t *testing.T) {
	b, _ := newTestBroker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Confirm(ctx, "dev-1", "grip-1"); err == nil {
		t.Fatal("expected error when nobody answers before the deadline")
	}

	// The pending slot is released on the way out.
	if b.Resolve("dev-1", true) {
		t.Fatal("prompt still pending after deadline")
	}
}

func TestPromptRejectsDoublePending(t *testing.T) {
	b, _ := newTestBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = b.Confirm(ctx, "dev-1", "grip-1")
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	if _, err := b.Confirm(context.Background(), "dev-1", "grip-1"); err == nil {
		t.Fatal("second concurrent prompt for the same device must fail")
	}
	b.Resolve("dev-1", true)
}

func TestResolveWithoutPending(t *testing.T) {
	b, _ := newTestBroker(t)

	if b.Resolve("nobody", true) {
		t.Fatal("Resolve invented a pending prompt")
	}
}
