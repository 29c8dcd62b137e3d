package runloop

import (
	"time"

	"github.com/xkilldash9x/pagedriver/internal/observability"
)

// Pumper runs one iteration of a renderer's event loop.
type Pumper interface {
	SpinEventLoop()
}

// FrameSource exposes a monotonically non-decreasing repaint counter.
type FrameSource interface {
	FrameCount() uint64
}

// RequestClock exposes the time of the most recent network request, or the
// zero time if none was seen.
type RequestClock interface {
	LastRequestTime() time.Time
}

// Driver alternates sleeping on an EventLoop with pumping a renderer.
// It must only be used from the goroutine that owns the renderer.
type Driver struct {
	loop *EventLoop
	pump Pumper
}

// NewDriver binds a wake signal to the renderer it wakes.
func NewDriver(loop *EventLoop, pump Pumper) *Driver {
	return &Driver{loop: loop, pump: pump}
}

// Loop returns the driver's wake signal.
func (d *Driver) Loop() *EventLoop { return d.loop }

// cycle is one sleep, pump, clear round.
func (d *Driver) cycle() {
	d.loop.Sleep()
	d.pump.SpinEventLoop()
	d.loop.Clear()
	observability.RendererPumps.Inc()
}

// SpinUntil pumps until done returns true or timeout passes. It reports
// whether done was satisfied.
func (d *Driver) SpinUntil(done func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !done() {
		if !time.Now().Before(deadline) {
			return false
		}
		d.cycle()
	}
	return true
}

// SpinFor keeps the renderer pumping for the given duration.
func (d *Driver) SpinFor(duration time.Duration) {
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		d.cycle()
	}
}

// WaitForFrame waits for src's frame count to change. It reports false if no
// new frame arrived before timeout.
func (d *Driver) WaitForFrame(src FrameSource, timeout time.Duration) bool {
	start := src.FrameCount()
	return d.SpinUntil(func() bool { return src.FrameCount() != start }, timeout)
}

// WaitForIdle returns once no frame has arrived for idle, or after maxWait.
// Every new frame pushes the idle deadline out again.
func (d *Driver) WaitForIdle(src FrameSource, idle, maxWait time.Duration) {
	now := time.Now()
	maxDeadline := now.Add(maxWait)
	idleDeadline := now.Add(idle)
	last := src.FrameCount()
	for {
		d.cycle()
		now = time.Now()
		if current := src.FrameCount(); current != last {
			last = current
			idleDeadline = now.Add(idle)
		}
		if !now.Before(idleDeadline) || !now.Before(maxDeadline) {
			return
		}
	}
}

// WaitForNetworkIdle is WaitForIdle keyed on request activity. It reports
// true once requests have been quiet for idle and false if maxWait passes first.
func (d *Driver) WaitForNetworkIdle(src RequestClock, idle, maxWait time.Duration) bool {
	now := time.Now()
	maxDeadline := now.Add(maxWait)
	idleDeadline := now.Add(idle)
	last := src.LastRequestTime()
	for {
		d.cycle()
		now = time.Now()
		if current := src.LastRequestTime(); !current.Equal(last) {
			last = current
			idleDeadline = now.Add(idle)
		}
		if !now.Before(idleDeadline) {
			return true
		}
		if !now.Before(maxDeadline) {
			return false
		}
	}
}
