package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/observability"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// poll evaluates script until it yields a truthy value or timeout passes,
// waiting up to one frame between attempts. Evaluation errors count as not
// yet satisfied.
func (e *PageEngine) poll(p *pageState, script string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if v, err := e.evaluate(p, script, timeout); err == nil && renderer.Truthy(v) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		e.driver.WaitForFrame(p.delegate, pollFrameTimeout)
	}
}

// WaitForSelector waits until selector matches an element.
func (e *PageEngine) WaitForSelector(selector string, timeout time.Duration) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	script := "document.querySelector(" + jsString(selector) + ") !== null"
	if !e.poll(p, script, timeout) {
		observability.WaitTimeouts.WithLabelValues("selector").Inc()
		e.logger.Debug("Selector never appeared", zap.String("selector", selector), zap.Duration("timeout", timeout))
		return schemas.TimeoutError("selector " + selector)
	}
	return nil
}

// WaitForCondition waits until expr evaluates truthy: true, a non-zero
// number, a non-empty string, or any array or object.
func (e *PageEngine) WaitForCondition(expr string, timeout time.Duration) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	if !e.poll(p, expr, timeout) {
		observability.WaitTimeouts.WithLabelValues("condition").Inc()
		return schemas.TimeoutError("condition")
	}
	return nil
}

// Wait keeps the renderer running for d. It needs no page.
func (e *PageEngine) Wait(d time.Duration) {
	e.driver.SpinFor(d)
}

// WaitForNavigation waits for the next load of the active page to complete.
func (e *PageEngine) WaitForNavigation(timeout time.Duration) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	d := p.delegate
	d.loadComplete = false
	if !e.driver.SpinUntil(func() bool { return d.loadComplete }, timeout) {
		observability.WaitTimeouts.WithLabelValues("navigation").Inc()
		return schemas.TimeoutError("navigation")
	}
	return nil
}

// WaitForNetworkIdle waits until no request has started for idle. A page that
// never made a request is already idle.
func (e *PageEngine) WaitForNetworkIdle(idle, timeout time.Duration) error {
	p, err := e.attached()
	if err != nil {
		return err
	}
	if p.delegate.lastRequest.IsZero() {
		return nil
	}
	if !e.driver.WaitForNetworkIdle(p.delegate, idle, timeout) {
		observability.WaitTimeouts.WithLabelValues("network_idle").Inc()
		return schemas.TimeoutError("network idle")
	}
	return nil
}
