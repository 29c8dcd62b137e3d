// Package scraper exposes a page engine to concurrent callers.
//
// The renderer behind a page must stay on one OS thread for its whole life,
// so a Page runs the engine on a dedicated, thread-locked worker goroutine
// and turns every method call into a command on that worker's queue. Callers
// block until their command has been served. A Page is safe for concurrent
// use; commands from one caller are served in the order they were issued.
package scraper

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/engine"
	"github.com/xkilldash9x/pagedriver/internal/observability"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
	"github.com/xkilldash9x/pagedriver/internal/runloop"
)

// command is one unit of work for the worker. run delivers its own result to
// the caller; fail is used instead when run panics.
type command struct {
	name      string
	run       func(*engine.PageEngine) error
	fail      func(error)
	terminate bool
}

type result[T any] struct {
	value T
	err   error
}

// Page is a thread-confined page session.
type Page struct {
	id       string
	logger   *zap.Logger
	settings settings

	commands chan command
	// done is closed when the worker goroutine exits.
	done chan struct{}

	closing      atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New starts the worker, opens the renderer on it and returns once the engine
// is ready. Options are applied on top of the defaults.
func New(opts schemas.PageOptions, cfgOpts ...Option) (*Page, error) {
	s := defaultSettings()
	for _, o := range cfgOpts {
		o(&s)
	}

	id := uuid.NewString()
	p := &Page{
		id:       id,
		logger:   s.logger.Named("scraper").With(zap.String("page_instance", id)),
		settings: s,
		commands: make(chan command),
		done:     make(chan struct{}),
	}

	initCh := make(chan error, 1)
	go p.worker(opts, initCh)
	if err := <-initCh; err != nil {
		<-p.done
		return nil, err
	}
	p.logger.Info("Page worker started.", zap.String("backend", s.backend))
	return p, nil
}

// ID returns the instance id that tags this page's log lines.
func (p *Page) ID() string { return p.id }

func (p *Page) openRenderer(waker renderer.Waker, userAgent string) (renderer.Renderer, error) {
	ropts := renderer.Options{
		Waker:     waker,
		Logger:    p.logger,
		UserAgent: userAgent,
		ExecPath:  p.settings.execPath,
		Headless:  p.settings.headless,
		Args:      p.settings.args,
	}
	if p.settings.factory != nil {
		return p.settings.factory(ropts)
	}
	return renderer.Open(p.settings.backend, ropts)
}

// worker owns the renderer. It never leaves its OS thread.
func (p *Page) worker(opts schemas.PageOptions, initCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(p.done)

	loop := runloop.NewEventLoop()
	r, err := p.openRenderer(loop.NewWaker(), opts.UserAgent)
	if err != nil {
		p.logger.Error("Failed to open renderer.", zap.Error(err))
		initCh <- schemas.WrapError(schemas.KindInitFailed, err, "")
		return
	}
	eng := engine.New(r, loop, opts, p.logger)
	eng.SetPopupHandling(p.settings.popups)
	initCh <- nil

	for cmd := range p.commands {
		if cmd.terminate {
			if err := eng.Shutdown(); err != nil {
				p.logger.Warn("Renderer shutdown reported an error.", zap.Error(err))
				cmd.fail(err)
			} else {
				cmd.fail(nil)
			}
			p.logger.Info("Page worker stopped.")
			return
		}
		p.execute(eng, cmd)
	}
}

// execute serves one command, turning a panic into an internal error for the
// caller that sent it.
func (p *Page) execute(eng *engine.PageEngine, cmd command) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			outcome = "panic"
			p.logger.Error("Recovered from panic while serving command.",
				zap.String("command", cmd.name),
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())))
			cmd.fail(schemas.NewError(schemas.KindInternal, "panic in %s: %v", cmd.name, rec))
		}
		observability.ObserveCommand(cmd.name, outcome, time.Since(start))
	}()
	if err := cmd.run(eng); err != nil {
		outcome = "error"
	}
}

func channelClosed(name string) error {
	return schemas.NewError(schemas.KindChannelClosed, "%s: page worker is not running", name)
}

// call sends fn to the worker and waits for its result.
func call[T any](p *Page, name string, fn func(*engine.PageEngine) (T, error)) (T, error) {
	var zero T
	if p.closing.Load() {
		return zero, channelClosed(name)
	}

	resp := make(chan result[T], 1)
	cmd := command{
		name: name,
		run: func(e *engine.PageEngine) error {
			v, err := fn(e)
			resp <- result[T]{value: v, err: err}
			return err
		},
		fail: func(err error) { resp <- result[T]{err: err} },
	}

	select {
	case p.commands <- cmd:
	case <-p.done:
		return zero, channelClosed(name)
	}

	select {
	case r := <-resp:
		return r.value, r.err
	case <-p.done:
		// The worker may have answered just before it exited.
		select {
		case r := <-resp:
			return r.value, r.err
		default:
			return zero, channelClosed(name)
		}
	}
}

// exec is call for operations without a result value.
func exec(p *Page, name string, fn func(*engine.PageEngine) error) error {
	_, err := call(p, name, func(e *engine.PageEngine) (struct{}, error) {
		return struct{}{}, fn(e)
	})
	return err
}

// Shutdown stops the worker and releases the renderer. It is safe to call
// more than once; every later call on the page fails with ErrChannelClosed.
func (p *Page) Shutdown() error {
	p.shutdownOnce.Do(func() {
		p.closing.Store(true)
		resp := make(chan error, 1)
		cmd := command{
			name:      "shutdown",
			terminate: true,
			fail:      func(err error) { resp <- err },
		}
		select {
		case p.commands <- cmd:
			p.shutdownErr = <-resp
		case <-p.done:
		}
		<-p.done
		if p.shutdownErr != nil {
			p.shutdownErr = fmt.Errorf("failed to shut down renderer: %w", p.shutdownErr)
		}
	})
	return p.shutdownErr
}

// Done is closed once the worker has exited.
func (p *Page) Done() <-chan struct{} { return p.done }
