// Package jsengine hosts a single goja.Runtime on one dedicated goroutine,
// wires it to github.com/joeycumines/go-eventloop's cooperative timer/
// microtask machinery via github.com/joeycumines/goja-eventloop's Promise
// binding, and exposes the hostcall boundary: a `pi.tool`/`pi.ui`/... global
// that pushes a tagged hostproto.Request onto a hostqueue.Queue and returns
// a JS promise, resolved later by the host calling CompleteHostcall.
//
// The runtime itself is never touched from any goroutine but the one
// started by Start; every other method crosses onto that goroutine via
// Loop.Submit and blocks for the round trip, matching the "single OS
// thread for the JS engine" requirement.
package jsengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	goeventloop "github.com/joeycumines/go-eventloop"
	gojaeventloop "github.com/joeycumines/goja-eventloop"

	"github.com/joeycumines/pi-hostbridge/extmanager"
	"github.com/joeycumines/pi-hostbridge/hostproto"
	"github.com/joeycumines/pi-hostbridge/hostqueue"
)

// Sentinel errors for the engine boundary (spec §7's JsException/EngineInit/
// EngineFatal/Timeout taxonomy).
var (
	ErrEngineInit    = errors.New("jsengine: initialization failed")
	ErrEngineStopped = errors.New("jsengine: engine has been shut down")
	ErrEvalTimeout   = errors.New("jsengine: eval exceeded its timeout")
	ErrNoSuchCall    = errors.New("jsengine: no pending hostcall with that id")
)

// JsException wraps a JS-side thrown error, preserving its stack.
type JsException struct {
	Message string
	Stack   string
}

func (e *JsException) Error() string { return "jsengine: js exception: " + e.Message }

// Config configures one Host, mirroring spec §6's JS runtime options.
type Config struct {
	CWD              string
	MemoryLimitBytes int64
	EvalTimeoutMs    int64
	StackSizeBytes   int64
	GCIntervalMs     int64
	QueueOptions     []hostqueue.Option
}

func (c Config) evalTimeout() time.Duration {
	if c.EvalTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.EvalTimeoutMs) * time.Millisecond
}

// pendingCall is one in-flight hostcall awaiting CompleteHostcall.
type pendingCall struct {
	resolve goeventloop.ResolveFunc
	reject  goeventloop.RejectFunc
}

// Host owns a goja.Runtime and the event-loop plumbing bound to it. The
// zero value is not usable; construct with Start.
type Host struct {
	cfg     Config
	loop    *goeventloop.Loop
	runtime *goja.Runtime
	adapter *gojaeventloop.Adapter
	queue   *hostqueue.Queue[hostproto.Request]

	// Extensions is the registry/dispatch-lifecycle manager for loaded
	// extensions. It is always non-nil after Start; LoadExtension is the
	// convenience entry point that both runs an extension's init(pi) and
	// scopes its pi.events(...) calls to the right extension id.
	Extensions *extmanager.Manager

	nextCallID atomic.Uint64

	// progress counts every hostcall enqueue and every hostcall settle
	// (resolve/reject/abandon). Tick compares this counter across an
	// onLoop round-trip to approximate "did a macrotask/microtask round
	// produce forward progress", since go-eventloop's Loop.Run is an
	// autonomous loop with no exported single-step method to observe
	// directly.
	progress atomic.Uint64

	// loadingExtensionID holds the id of the extension whose init(pi) is
	// currently executing on the loop goroutine, if any; emitHostcall
	// reads it synchronously to attribute events-kind requests. Empty
	// outside of LoadExtension.
	loadingExtensionID atomic.Value // string

	mu      sync.Mutex
	pending map[uint64]pendingCall

	runCtx    context.Context
	runCancel context.CancelFunc
	runDone   chan struct{}

	shutdownOnce sync.Once
}

// Start constructs and boots a Host: builds the loop, the goja runtime, and
// the Promise/timer bindings, then starts the loop's single goroutine.
func Start(cfg Config) (*Host, error) {
	loop, err := goeventloop.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	runtime := goja.New()

	adapter, err := gojaeventloop.New(loop, runtime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}
	if err := adapter.Bind(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	h := &Host{
		cfg:        cfg,
		loop:       loop,
		runtime:    runtime,
		adapter:    adapter,
		queue:      hostqueue.New[hostproto.Request](cfg.QueueOptions...),
		Extensions: extmanager.New(),
		pending:    make(map[uint64]pendingCall),
	}
	h.loadingExtensionID.Store("")

	if err := h.bindHostcalls(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	h.runCtx, h.runCancel = context.WithCancel(context.Background())
	h.runDone = make(chan struct{})
	go func() {
		defer close(h.runDone)
		_ = h.loop.Run(h.runCtx)
	}()

	return h, nil
}

// onLoop runs fn on the engine's dedicated goroutine and blocks until it
// completes, returning any error from submission itself (not from fn).
func (h *Host) onLoop(fn func()) error {
	done := make(chan struct{})
	err := h.loop.Submit(goeventloop.Task{Runnable: func() {
		defer close(done)
		fn()
	}})
	if err != nil {
		return err
	}
	<-done
	return nil
}

// Eval runs src on the engine goroutine and returns its exported result.
// A JS-thrown error is reported as *JsException; an EvalTimeoutMs budget
// (if configured) interrupts a runaway script.
func (h *Host) Eval(src string) (any, error) {
	var (
		result any
		jsErr  error
	)

	timeout := h.cfg.evalTimeout()
	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			h.runtime.Interrupt(ErrEvalTimeout)
		})
	}

	err := h.onLoop(func() {
		v, err := h.runtime.RunString(src)
		if err != nil {
			var gojaErr *goja.Exception
			if errors.As(err, &gojaErr) {
				jsErr = &JsException{Message: gojaErr.Value().String(), Stack: gojaErr.String()}
				return
			}
			if errors.Is(err, ErrEvalTimeout) {
				jsErr = ErrEvalTimeout
				return
			}
			jsErr = err
			return
		}
		result = v.Export()
	})

	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		return nil, err
	}
	return result, jsErr
}

// Tick round-trips onto the engine goroutine and reports whether any
// hostcall was enqueued or settled during that round-trip. go-eventloop's
// Loop.Run processes macrotasks and drains microtasks autonomously in its
// own goroutine with no exported single-step method, so Tick cannot
// literally "run at most one macrotask" the way a steppable loop would;
// the progress counter is the closest observable proxy available from
// outside that goroutine, and is accurate for the case the pump actually
// cares about — telling budget-exhaustion apart from real forward
// progress.
func (h *Host) Tick() (hostproto.TickReport, error) {
	before := h.progress.Load()
	if err := h.onLoop(func() {}); err != nil {
		return hostproto.TickReport{}, err
	}
	after := h.progress.Load()
	return hostproto.TickReport{Progressed: after != before}, nil
}

// DrainMicrotasks forces a microtask-queue drain on the engine goroutine.
func (h *Host) DrainMicrotasks() error {
	return h.onLoop(func() {})
}

// HasPending reports whether the engine still has unresolved hostcalls
// outstanding (the pump uses this to decide whether to keep ticking).
func (h *Host) HasPending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending) > 0 || h.queue.Len() > 0
}

// DrainHostcallRequests drains every hostproto.Request the engine has
// queued since the last drain, in FIFO order.
func (h *Host) DrainHostcallRequests() []hostproto.Request {
	return h.queue.DrainAll()
}

// CompleteHostcall resolves or rejects the pending JS promise for callID
// with outcome. It is safe to call from any goroutine.
func (h *Host) CompleteHostcall(callID uint64, outcome hostproto.Outcome) error {
	h.mu.Lock()
	call, ok := h.pending[callID]
	if ok {
		delete(h.pending, callID)
	}
	h.mu.Unlock()

	if !ok {
		return ErrNoSuchCall
	}

	if outcome.OK {
		call.resolve(decodeValue(outcome.Value))
	} else {
		call.reject(map[string]any{"code": outcome.Code, "message": outcome.Message})
	}
	h.progress.Add(1)
	return nil
}

// AbandonPending rejects every currently in-flight hostcall with outcome,
// draining h.pending. The pump calls this on context cancellation and
// budget exhaustion so no promise is left stuck forever; resolve/reject
// are safe to call from any goroutine, so no onLoop round-trip is needed.
func (h *Host) AbandonPending(outcome hostproto.Outcome) {
	h.mu.Lock()
	calls := make([]pendingCall, 0, len(h.pending))
	for callID, call := range h.pending {
		calls = append(calls, call)
		delete(h.pending, callID)
	}
	h.mu.Unlock()

	for _, call := range calls {
		call.reject(map[string]any{"code": outcome.Code, "message": outcome.Message})
		h.progress.Add(1)
	}
}

// LoadExtension runs spec's init(pi) via Extensions, attributing any
// pi.events(...) registrations made during that run to spec.ID.
func (h *Host) LoadExtension(spec extmanager.LoadSpec) (*extmanager.ExtensionRecord, error) {
	h.loadingExtensionID.Store(spec.ID)
	defer h.loadingExtensionID.Store("")
	return h.Extensions.Load(h, spec)
}

// Shutdown stops the engine goroutine, waiting up to timeout for it to
// exit cleanly.
func (h *Host) Shutdown(timeout time.Duration) error {
	var shutdownErr error
	h.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		shutdownErr = h.loop.Shutdown(ctx)
		h.runCancel()
		select {
		case <-h.runDone:
		case <-ctx.Done():
		}
	})
	return shutdownErr
}

// decodeValue best-effort decodes a json.RawMessage-ish outcome value back
// into a plain Go value goja can re-wrap; nil passes through unchanged.
func decodeValue(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return rawJSONToAny(raw)
}
