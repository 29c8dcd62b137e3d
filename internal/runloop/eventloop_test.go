package runloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEventLoopSleepIsBounded(t *testing.T) {
	l := NewEventLoop()

	start := time.Now()
	l.Sleep()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, SleepSlice/2)
	assert.Less(t, elapsed, time.Second, "a sleep with no wake must still return")
}

func TestEventLoopSleepReturnsWhenFlagSet(t *testing.T) {
	l := NewEventLoop()
	l.NewWaker().Wake()
	assert.True(t, l.Pending())

	start := time.Now()
	for i := 0; i < 100; i++ {
		l.Sleep()
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "pending wake must not block")

	l.Clear()
	assert.False(t, l.Pending())
}

func TestWakerFromAnotherGoroutine(t *testing.T) {
	l := NewEventLoop()
	w1, w2 := l.NewWaker(), l.NewWaker()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w2.Wake()
	}()
	<-done

	assert.True(t, l.Pending(), "every waker shares one flag")
	w1.Wake()
	l.Clear()
	assert.False(t, l.Pending())
}
