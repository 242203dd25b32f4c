package exam

import (
	"context"
	"sync"
	"time"
)

// DefaultTickInterval is the period between timer ticks.
const DefaultTickInterval = time.Second

// Timer is a per-session countdown. Each Tick removes one second; reaching
// zero fires onExpire exactly once and disarms the timer.
type Timer struct {
	mu        sync.Mutex
	remaining int
	armed     bool
	fired     bool
	interval  time.Duration
	onExpire  func()
	onTick    func(remaining int)
	stop      chan struct{}
}

// NewTimer creates a disarmed timer with the given budget in seconds.
func NewTimer(seconds int, onExpire func()) *Timer {
	return &Timer{
		remaining: seconds,
		interval:  DefaultTickInterval,
		onExpire:  onExpire,
	}
}

// SetInterval changes the tick period used by Run. Must be called before Run.
func (t *Timer) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d > 0 {
		t.interval = d
	}
}

// OnTick registers a callback invoked after every effective tick.
func (t *Timer) OnTick(fn func(remaining int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = fn
}

// Arm starts the countdown without driving it. Returns false when the timer
// is already armed or has already fired.
func (t *Timer) Arm() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed || t.fired {
		return false
	}
	t.armed = true
	t.stop = make(chan struct{})
	return true
}

// Run arms the timer and ticks it from a goroutine until it fires, is
// stopped, or ctx is cancelled. Calling Run on an armed timer is a no-op.
func (t *Timer) Run(ctx context.Context) {
	if !t.Arm() {
		return
	}

	t.mu.Lock()
	interval, stop := t.interval, t.stop
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if !t.Tick() {
					return
				}
			}
		}
	}()
}

// Tick removes one second. It returns false once the timer is disarmed,
// in which case the tick had no effect.
func (t *Timer) Tick() bool {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return false
	}

	if t.remaining > 0 {
		t.remaining--
	}
	remaining := t.remaining
	expired := remaining == 0
	if expired {
		t.disarmLocked()
		t.fired = true
	}
	onTick, onExpire := t.onTick, t.onExpire
	t.mu.Unlock()

	// Callbacks run outside the lock: onExpire re-enters the session.
	if onTick != nil {
		onTick(remaining)
	}
	if expired && onExpire != nil {
		onExpire()
	}
	return !expired
}

// Stop disarms the timer. Stopping a disarmed timer is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

// Remaining returns the seconds left on the clock.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Armed reports whether the timer is counting down.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Fired reports whether the expiry signal has been delivered.
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *Timer) disarmLocked() {
	if !t.armed {
		return
	}
	t.armed = false
	close(t.stop)
}
