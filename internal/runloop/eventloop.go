// Package runloop turns a callback-driven, explicitly pumped renderer into
// blocking, predicate-based waits without busy-polling.
package runloop

import (
	"sync"
	"time"
)

// SleepSlice bounds one Sleep so a lost wake-up costs at most this long.
const SleepSlice = 5 * time.Millisecond

// EventLoop is the wake signal shared between the pumping goroutine and the
// renderer's internal goroutines.
type EventLoop struct {
	mu   sync.Mutex
	cond *sync.Cond
	flag bool
}

// NewEventLoop returns a cleared event loop.
func NewEventLoop() *EventLoop {
	l := &EventLoop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// NewWaker returns a handle the renderer can keep and call from any goroutine.
func (l *EventLoop) NewWaker() *Waker {
	return &Waker{loop: l}
}

// Sleep blocks until woken or until SleepSlice elapses. It returns at once if
// a wake is already pending.
func (l *EventLoop) Sleep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.flag {
		return
	}
	// sync.Cond has no timed wait; a timer broadcast bounds the wait instead.
	// Spurious wake-ups are harmless because the caller always pumps and
	// re-checks its own predicate.
	t := time.AfterFunc(SleepSlice, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	l.cond.Wait()
	t.Stop()
}

// Clear resets the wake flag. Only the driver calls it, right after pumping.
func (l *EventLoop) Clear() {
	l.mu.Lock()
	l.flag = false
	l.mu.Unlock()
}

// Pending reports whether a wake is outstanding.
func (l *EventLoop) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flag
}

func (l *EventLoop) wake() {
	l.mu.Lock()
	l.flag = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Waker signals an EventLoop. All copies share the same flag.
type Waker struct {
	loop *EventLoop
}

// Wake marks the loop as having work and wakes a sleeping driver.
func (w *Waker) Wake() {
	w.loop.wake()
}
