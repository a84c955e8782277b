package channel

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type fakeChannel struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (c *fakeChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestBroadcastReachesEverySession(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	a, b := &fakeChannel{}, &fakeChannel{}
	r.Register("u1", a)
	r.Register("u1", b)
	other := &fakeChannel{}
	r.Register("u2", other)

	r.Broadcast("u1", "enrich:result", map[string]string{"message_id": "m1"})

	if a.count() != 1 || b.count() != 1 {
		t.Errorf("owner's sessions got %d and %d events, want 1 each", a.count(), b.count())
	}
	if other.count() != 0 {
		t.Error("another owner's session must not receive the event")
	}
}

func TestDeregisterStopsDelivery(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	a, b := &fakeChannel{}, &fakeChannel{}
	r.Register("u1", a)
	r.Register("u1", b)

	r.Deregister("u1", a)
	r.Broadcast("u1", "enrich:result", nil)

	if a.count() != 0 {
		t.Error("deregistered session must not receive events")
	}
	if b.count() != 1 {
		t.Errorf("remaining session got %d events, want 1", b.count())
	}
}

func TestBroadcastSkipsFailingSession(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	broken := &fakeChannel{err: errors.New("write timeout")}
	healthy := &fakeChannel{}
	r.Register("u1", broken)
	r.Register("u1", healthy)

	r.Broadcast("u1", "enrich:result", nil)

	if healthy.count() != 1 {
		t.Error("a failing session must not block delivery to the others")
	}
}

func TestBroadcastUnknownOwnerIsNoop(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Broadcast("missing", "enrich:result", nil)
}
