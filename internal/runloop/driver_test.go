package runloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRenderer stands in for a renderer: each pump runs the scheduled hook
// and counts itself.
type fakeRenderer struct {
	pumps  atomic.Int64
	frames atomic.Uint64
	last   atomic.Int64 // unix nanos of the last request, 0 = none
	onPump func(n int64)
}

func (f *fakeRenderer) SpinEventLoop() {
	n := f.pumps.Add(1)
	if f.onPump != nil {
		f.onPump(n)
	}
}

func (f *fakeRenderer) FrameCount() uint64 { return f.frames.Load() }

func (f *fakeRenderer) LastRequestTime() time.Time {
	ns := f.last.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func newTestDriver(f *fakeRenderer) *Driver {
	return NewDriver(NewEventLoop(), f)
}

func TestSpinUntil(t *testing.T) {
	t.Run("already satisfied does not pump", func(t *testing.T) {
		f := &fakeRenderer{}
		d := newTestDriver(f)
		assert.True(t, d.SpinUntil(func() bool { return true }, time.Second))
		assert.Zero(t, f.pumps.Load())
	})

	t.Run("satisfied by a pump", func(t *testing.T) {
		var ready atomic.Bool
		f := &fakeRenderer{onPump: func(n int64) {
			if n == 3 {
				ready.Store(true)
			}
		}}
		d := newTestDriver(f)
		assert.True(t, d.SpinUntil(ready.Load, time.Second))
		assert.Equal(t, int64(3), f.pumps.Load())
	})

	t.Run("times out no earlier than the deadline", func(t *testing.T) {
		f := &fakeRenderer{}
		d := newTestDriver(f)
		start := time.Now()
		assert.False(t, d.SpinUntil(func() bool { return false }, 60*time.Millisecond))
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
		assert.Less(t, elapsed, 500*time.Millisecond)
		assert.Positive(t, f.pumps.Load())
	})

	t.Run("wake from another goroutine shortens the sleep", func(t *testing.T) {
		f := &fakeRenderer{}
		d := newTestDriver(f)
		w := d.Loop().NewWaker()
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			for {
				select {
				case <-stop:
					return
				default:
					w.Wake()
					time.Sleep(100 * time.Microsecond)
				}
			}
		}()
		d.SpinFor(20 * time.Millisecond)
		// With a 5ms bounded sleep alone at most a handful of pumps fit.
		assert.Greater(t, f.pumps.Load(), int64(4))
	})
}

func TestSpinFor(t *testing.T) {
	f := &fakeRenderer{}
	d := newTestDriver(f)
	start := time.Now()
	d.SpinFor(30 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Positive(t, f.pumps.Load())
}

func TestWaitForFrame(t *testing.T) {
	t.Run("frame arrives", func(t *testing.T) {
		f := &fakeRenderer{}
		f.onPump = func(n int64) {
			if n == 2 {
				f.frames.Add(1)
			}
		}
		assert.True(t, newTestDriver(f).WaitForFrame(f, time.Second))
	})

	t.Run("no frame", func(t *testing.T) {
		f := &fakeRenderer{}
		assert.False(t, newTestDriver(f).WaitForFrame(f, 30*time.Millisecond))
	})
}

func TestWaitForIdle(t *testing.T) {
	t.Run("returns after the idle window when nothing paints", func(t *testing.T) {
		f := &fakeRenderer{}
		start := time.Now()
		newTestDriver(f).WaitForIdle(f, 30*time.Millisecond, time.Second)
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
		assert.Less(t, elapsed, 500*time.Millisecond)
	})

	t.Run("frames push the idle deadline out", func(t *testing.T) {
		f := &fakeRenderer{}
		begin := time.Now()
		f.onPump = func(int64) {
			if time.Since(begin) < 80*time.Millisecond {
				f.frames.Add(1)
			}
		}
		newTestDriver(f).WaitForIdle(f, 30*time.Millisecond, time.Second)
		assert.GreaterOrEqual(t, time.Since(begin), 100*time.Millisecond)
	})

	t.Run("max timeout caps a page that never settles", func(t *testing.T) {
		f := &fakeRenderer{}
		f.onPump = func(int64) { f.frames.Add(1) }
		start := time.Now()
		newTestDriver(f).WaitForIdle(f, 50*time.Millisecond, 80*time.Millisecond)
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
		assert.Less(t, elapsed, 500*time.Millisecond)
	})
}

func TestWaitForNetworkIdle(t *testing.T) {
	t.Run("quiet network settles", func(t *testing.T) {
		f := &fakeRenderer{}
		f.last.Store(time.Now().UnixNano())
		require.True(t, newTestDriver(f).WaitForNetworkIdle(f, 20*time.Millisecond, time.Second))
	})

	t.Run("constant traffic times out", func(t *testing.T) {
		f := &fakeRenderer{}
		f.onPump = func(int64) { f.last.Store(time.Now().UnixNano()) }
		start := time.Now()
		assert.False(t, newTestDriver(f).WaitForNetworkIdle(f, 50*time.Millisecond, 80*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	})
}
