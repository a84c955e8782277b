package mailsync

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounceCollapsesBurst(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var runs int32
	for i := 0; i < 5; i++ {
		d.Schedule("k", func() { atomic.AddInt32(&runs, 1) })
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("runs = %d, want exactly 1 for a burst on one key", got)
	}
}

func TestDebounceDistinctKeysIndependent(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Stop()

	var runs int32
	d.Schedule("a", func() { atomic.AddInt32(&runs, 1) })
	d.Schedule("b", func() { atomic.AddInt32(&runs, 1) })

	time.Sleep(80 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 2 {
		t.Errorf("runs = %d, want one execution per key", got)
	}
}

func TestDebounceLastActionWins(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var got int32
	d.Schedule("k", func() { atomic.StoreInt32(&got, 1) })
	d.Schedule("k", func() { atomic.StoreInt32(&got, 2) })

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&got) != 2 {
		t.Error("re-arming a key must replace the pending action")
	}
}

func TestDebounceStopCancelsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var runs int32
	d.Schedule("k", func() { atomic.AddInt32(&runs, 1) })
	d.Stop()

	time.Sleep(80 * time.Millisecond)
	if atomic.LoadInt32(&runs) != 0 {
		t.Error("no action may fire after Stop")
	}

	// Scheduling after Stop is a no-op, not a panic.
	d.Schedule("k", func() { atomic.AddInt32(&runs, 1) })
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&runs) != 0 {
		t.Error("schedule after Stop must not fire")
	}
}
