package jsengine

import (
	"encoding/json"

	"github.com/dop251/goja"

	goeventloop "github.com/joeycumines/go-eventloop"

	"github.com/joeycumines/pi-hostbridge/hostproto"
	"github.com/joeycumines/pi-hostbridge/hostqueue"
)

// bindHostcalls installs the `pi` global object: pi.tool(name, args),
// pi.ui(op, args), pi.events(op, args), pi.session(op, args),
// pi.exec(cmd, args), pi.http(args), pi.log(args). Each pushes a tagged
// hostproto.Request onto the host's queue and returns a promise that
// CompleteHostcall later settles.
func (h *Host) bindHostcalls() error {
	pi := h.runtime.NewObject()

	bind := func(name string, kindOf func(call goja.FunctionCall) hostproto.Kind) {
		pi.Set(name, h.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
			return h.emitHostcall(kindOf(call), call)
		}))
	}

	bind("tool", func(call goja.FunctionCall) hostproto.Kind { return hostproto.Tool(call.Argument(0).String()) })
	bind("ui", func(call goja.FunctionCall) hostproto.Kind { return hostproto.Ui(call.Argument(0).String()) })
	bind("events", func(call goja.FunctionCall) hostproto.Kind { return hostproto.Events(call.Argument(0).String()) })
	bind("session", func(call goja.FunctionCall) hostproto.Kind { return hostproto.Session(call.Argument(0).String()) })
	bind("exec", func(call goja.FunctionCall) hostproto.Kind { return hostproto.Exec(call.Argument(0).String()) })
	bind("http", func(call goja.FunctionCall) hostproto.Kind { return hostproto.Http() })
	bind("log", func(call goja.FunctionCall) hostproto.Kind { return hostproto.Log() })

	return h.runtime.Set("pi", pi)
}

// hostcallArgIndex is the positional index of the payload argument, which
// follows the kind-identifying argument(s) for every kind except http/log.
func hostcallArgIndex(kind hostproto.Kind) int {
	switch kind.Tag {
	case hostproto.KindHttp, hostproto.KindLog:
		return 0
	default:
		return 1
	}
}

// emitHostcall assigns a call_id, enqueues the request, registers a pending
// resolver, and returns the JS-visible promise wrapper.
func (h *Host) emitHostcall(kind hostproto.Kind, call goja.FunctionCall) goja.Value {
	callID := h.nextCallID.Add(1)

	payloadArg := call.Argument(hostcallArgIndex(kind))
	var payload json.RawMessage
	if !goja.IsUndefined(payloadArg) && !goja.IsNull(payloadArg) {
		if raw, err := json.Marshal(payloadArg.Export()); err == nil {
			payload = raw
		}
	}

	promise, resolve, reject := h.adapter.JS().NewChainedPromise()

	h.mu.Lock()
	h.pending[callID] = pendingCall{resolve: resolve, reject: reject}
	h.mu.Unlock()

	req := hostproto.Request{CallID: callID, Kind: kind, Payload: payload}
	if kind.Tag == hostproto.KindEvents {
		if id, _ := h.loadingExtensionID.Load().(string); id != "" {
			req.ExtensionID = id
		}
	}

	result := h.queue.PushBack(req)
	h.progress.Add(1)
	if result.Outcome == hostqueue.Rejected {
		h.mu.Lock()
		delete(h.pending, callID)
		h.mu.Unlock()
		reject(map[string]any{"code": hostproto.CodeQueueFull, "message": "hostcall queue full"})
		h.progress.Add(1)
	}

	return h.wrapPromise(promise)
}

// wrapPromise exposes a *goeventloop.ChainedPromise as a JS-visible object
// with then/catch/finally, mirroring goja-eventloop's internal wrapping
// (that helper is unexported, so the hostcall bridge carries its own
// minimal copy rather than duplicating the whole adapter).
func (h *Host) wrapPromise(p *goeventloop.ChainedPromise) goja.Value {
	obj := h.runtime.NewObject()
	obj.Set("_internalPromise", p)

	toHandler := func(fn goja.Value) func(goeventloop.Result) goeventloop.Result {
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			return nil
		}
		return func(arg goeventloop.Result) goeventloop.Result {
			v, err := callable(goja.Undefined(), h.runtime.ToValue(arg))
			if err != nil {
				// Propagate as a rejection result rather than panicking,
				// matching goja-eventloop's own gojaFuncToHandler.
				return err
			}
			return v.Export()
		}
	}

	obj.Set("then", h.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		chained := p.Then(toHandler(call.Argument(0)), toHandler(call.Argument(1)))
		return h.wrapPromise(chained)
	}))
	obj.Set("catch", h.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		chained := p.Catch(toHandler(call.Argument(0)))
		return h.wrapPromise(chained)
	}))
	obj.Set("finally", h.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		callable, ok := goja.AssertFunction(call.Argument(0))
		var onFinally func()
		if ok {
			onFinally = func() {
				_, _ = callable(goja.Undefined())
			}
		}
		chained := p.Finally(onFinally)
		return h.wrapPromise(chained)
	}))

	return obj
}

// rawJSONToAny decodes a json.RawMessage-shaped value into a plain Go
// value suitable for re-wrapping with runtime.ToValue.
func rawJSONToAny(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
