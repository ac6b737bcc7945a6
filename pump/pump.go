// Package pump drives the host-side loop: drain emitted hostcall requests,
// dispatch each through a router, deliver the completion back to the
// engine, and tick — repeating until the engine quiesces or its budget is
// exhausted. One Pump instance drives one jsengine.Host.
package pump

import (
	"context"
	"errors"
	"time"

	"github.com/joeycumines/pi-hostbridge/hostproto"
)

// ErrBudgetExceeded is returned when a Run call's budget elapses before the
// engine quiesces.
var ErrBudgetExceeded = errors.New("pump: budget exceeded")

// Engine is the subset of jsengine.Host the pump drives. A narrow interface
// keeps the pump testable without a real goja runtime.
type Engine interface {
	DrainHostcallRequests() []hostproto.Request
	CompleteHostcall(callID uint64, outcome hostproto.Outcome) error
	Tick() (hostproto.TickReport, error)
	DrainMicrotasks() error
	HasPending() bool
	// AbandonPending rejects every currently in-flight hostcall with
	// outcome. Called on context cancellation and budget exhaustion so no
	// promise is left stuck forever.
	AbandonPending(outcome hostproto.Outcome)
}

// Router dispatches one hostcall request to its outcome.
type Router interface {
	Dispatch(ctx context.Context, req hostproto.Request) hostproto.Outcome
}

// Hooks lets tests observe and influence pump iterations, mirroring the
// teacher's own loopTestHooks injection pattern.
type Hooks struct {
	OnDrain    func(requests []hostproto.Request)
	OnDispatch func(req hostproto.Request, outcome hostproto.Outcome)
	OnIdleWait func()
	BeforeTick func()
}

// Pump drives one Engine against one Router.
type Pump struct {
	Engine Engine
	Router Router
	Hooks  Hooks

	// IdleWait bounds how long Run blocks between quiescence checks when no
	// OnIdleWait hook is set. Defaults to 1ms.
	IdleWait time.Duration

	wake *wakeSignal
}

// New builds a Pump. The returned Pump owns a wakeSignal for its default
// idle wait; a caller that enqueues a hostcall completion from another
// goroutine while Run is idle-waiting can call Wake to short-circuit the
// wait instead of paying IdleWait's full latency.
func New(engine Engine, router Router) *Pump {
	p := &Pump{Engine: engine, Router: router, IdleWait: time.Millisecond}
	p.wake, _ = newWakeSignal() // nil wake falls back to a plain sleep below
	return p
}

// Wake nudges a Run call that is currently idle-waiting to re-check
// quiescence immediately, rather than waiting out the full IdleWait.
func (p *Pump) Wake() {
	if p.wake != nil {
		p.wake.signal()
	}
}

// Close releases the pump's wakeup primitive. Safe to call more than once.
func (p *Pump) Close() error {
	if p.wake != nil {
		return p.wake.close()
	}
	return nil
}

// Run executes the pump loop described by spec §4.6 until the engine has
// no more pending work, or until budget elapses (whichever first). A
// budget of 0 means unbounded.
func (p *Pump) Run(ctx context.Context, budget time.Duration) error {
	startedAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			p.abandonPending()
			return ctx.Err()
		default:
		}

		if budget > 0 && time.Since(startedAt) >= budget {
			p.abandonPending()
			return ErrBudgetExceeded
		}

		requests := p.Engine.DrainHostcallRequests()
		if p.Hooks.OnDrain != nil {
			p.Hooks.OnDrain(requests)
		}

		for _, req := range requests {
			outcome := p.Router.Dispatch(ctx, req)
			_ = p.Engine.CompleteHostcall(req.CallID, outcome)
			if p.Hooks.OnDispatch != nil {
				p.Hooks.OnDispatch(req, outcome)
			}
			if p.Hooks.BeforeTick != nil {
				p.Hooks.BeforeTick()
			}
			if _, err := p.Engine.Tick(); err != nil {
				return err
			}
		}

		if err := p.Engine.DrainMicrotasks(); err != nil {
			return err
		}

		if !p.Engine.HasPending() {
			return nil
		}

		if p.Hooks.OnIdleWait != nil {
			p.Hooks.OnIdleWait()
		} else if p.wake != nil {
			p.wake.wait(p.IdleWait)
		} else {
			time.Sleep(p.IdleWait)
		}
		if _, err := p.Engine.Tick(); err != nil {
			return err
		}
	}
}

// abandonPending delivers Error{code:"TIMEOUT"} to every in-flight hostcall,
// per spec §4.6/§5: budget exhaustion and context cancellation must not
// leave a promise stuck forever.
func (p *Pump) abandonPending() {
	p.Engine.AbandonPending(hostproto.Fail(hostproto.CodeTimeout, "pump budget exceeded or context cancelled"))
}
