package mailsync

import (
	"sync"
	"time"

	"mailmirror/pkg/metrics"
)

// Debouncer collapses bursts of identical requests into a single execution
// per key (trailing edge). It absorbs UI-driven request storms without
// issuing redundant remote fetches or duplicate writes.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms (or re-arms) the timer for key. A pending timer for the
// same key is always cancelled before the new one is armed; action runs
// exactly once after the delay elapses with no further Schedule call.
func (d *Debouncer) Schedule(key string, action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if timer, ok := d.timers[key]; ok {
		timer.Stop()
		metrics.DebounceCollapsed.Inc()
	}

	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()

		action()
	})
}

// Stop cancels all pending timers. Called on connection teardown; no action
// scheduled before Stop will fire afterwards.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
