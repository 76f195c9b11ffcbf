package presence

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/clock"
)

// DefaultIdle is how long after the last keystroke the local user stops
// counting as typing.
const DefaultIdle = 1500 * time.Millisecond

// Typist tracks the local user's typing flag and transmits only its edges.
//
// Activity debounces: every call re-arms one idle timer, so a burst of
// keystrokes yields a single true and, once the burst ends, a single false.
type Typist struct {
	clock clock.Clock
	idle  time.Duration
	send  func(typing bool)

	mu      sync.Mutex
	typing  bool
	timer   clock.Timer
	gen     uint64
	stopped bool

	// held while send runs so transmissions leave in decision order
	sendMu sync.Mutex
}

// NewTypist returns a Typist that calls send on every change of the flag.
// send runs on the caller's goroutine or on the timer's.
func NewTypist(c clock.Clock, idle time.Duration, send func(typing bool)) *Typist {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Typist{clock: c, idle: idle, send: send}
}

func (t *Typist) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

// Set changes the flag directly and cancels any idle timer. Nothing is
// transmitted when the flag already has that value.
func (t *Typist) Set(typing bool) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.gen++
	t.stopTimerLocked()
	if t.typing == typing {
		t.mu.Unlock()
		return
	}
	t.typing = typing
	t.transmit(typing)
}

// Activity records a keystroke.
func (t *Typist) Activity() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen := t.gen
	t.stopTimerLocked()
	t.timer = t.clock.AfterFunc(t.idle, func() { t.expire(gen) })

	if t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = true
	t.transmit(true)
}

// Stop cancels the timer and disables the Typist. With notify, a final
// false is transmitted if the flag was set.
func (t *Typist) Stop(notify bool) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.gen++
	t.stopTimerLocked()
	was := t.typing
	t.typing = false
	if notify && was {
		t.transmit(false)
		return
	}
	t.mu.Unlock()
}

func (t *Typist) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.stopped || !t.typing {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.typing = false
	t.transmit(false)
}

// transmit releases t.mu and calls send while holding sendMu.
func (t *Typist) transmit(typing bool) {
	t.sendMu.Lock()
	t.mu.Unlock()
	defer t.sendMu.Unlock()
	t.send(typing)
}

func (t *Typist) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
