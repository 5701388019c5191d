package daemon

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/events"
)

// promptBroker bridges a session's save-confirmation capability to watching
// clients: Confirm publishes a session.saveprompt event and parks until a
// client answers via the save-decision endpoint or the prompt deadline
// passes. Sessions treat both a deadline expiry and a missing client as a
// capability failure, which defaults to saving.
type promptBroker struct {
	hub *events.EventHub

	mu      sync.Mutex
	pending map[string]chan bool
}

func newPromptBroker(hub *events.EventHub) *promptBroker {
	return &promptBroker{
		hub:     hub,
		pending: make(map[string]chan bool),
	}
}

// Confirm implements sensor.ConfirmSaveFunc.
func (b *promptBroker) Confirm(ctx context.Context, id, name string) (bool, error) {
	ch := make(chan bool, 1)

	b.mu.Lock()
	if _, exists := b.pending[id]; exists {
		b.mu.Unlock()
		return false, pkgerrors.Errorf("save prompt already pending for %s", id)
	}
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	samples := 0
	if s, ok := registry.Get(id); ok {
		samples = s.Status().Buffered
	}
	b.hub.Publish(events.SessionPrompt, events.SessionPromptEvent{
		ID:      id,
		Name:    name,
		Samples: samples,
		Ts:      time.Now().Unix(),
	})

	select {
	case save := <-ch:
		return save, nil
	case <-ctx.Done():
		return false, pkgerrors.Wrap(ctx.Err(), "save prompt unanswered")
	}
}

// Resolve answers a pending prompt. Returns false if none is pending for id.
func (b *promptBroker) Resolve(id string, save bool) bool {
	b.mu.Lock()
	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	ch <- save
	return true
}
