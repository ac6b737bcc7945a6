// Package hostrouter implements the per-kind hostcall dispatch described by
// the router component: tool lookup + policy consultation, UI/event bus
// forwarding, session-store routing, and the exec/http sandboxing default.
package hostrouter

import (
	"context"
	"encoding/json"

	"github.com/joeycumines/pi-hostbridge/hostproto"
)

// ToolResult is the structured outcome of a successful tool invocation.
type ToolResult struct {
	Value json.RawMessage
}

// ToolRegistry resolves a tool by name. Absent tools are reported with ok=false.
type ToolRegistry interface {
	Lookup(name string) (Tool, bool)
}

// Tool executes a named tool call synchronously from the router's
// perspective; long-running work is the host's concern, not the router's.
type Tool interface {
	Invoke(ctx context.Context, payload json.RawMessage) (ToolResult, error)
}

// PolicyEngine consults capability policy before a tool/exec/http call.
type PolicyEngine interface {
	// Allow reports whether the named capability may proceed. kind is one
	// of "tool", "exec", "http"; name is the tool name / command / empty.
	Allow(kind, name string) bool
}

// UIBus forwards ui kind hostcalls to the host's interactive UI surface.
type UIBus interface {
	Dispatch(op string, payload json.RawMessage) (json.RawMessage, error)
}

// EventsBus forwards events kind hostcalls — extension registration and
// dispatch_event calls issued via pi.events(op, args) — to the extension
// manager, normally an *extmanager.Dispatcher. ExtensionID identifies which
// extension's init(pi) run is making the call, since registrations are
// attributed per extension.
type EventsBus interface {
	Dispatch(extensionID, op string, payload json.RawMessage) (json.RawMessage, error)
}

// SessionStore routes session{op} hostcalls (get_state, get_messages,
// set_name, append_message, set_model, ...). ErrNoSession signals an
// operation against a session that does not exist.
type SessionStore interface {
	// Call invokes op against the active session. ok=false means no
	// active session (maps to CodeNoSession).
	Call(op string, payload json.RawMessage) (json.RawMessage, bool, error)
}

// Sandbox reports whether exec/http hostcalls are enabled. Both default to
// disabled, per spec.
type Sandbox interface {
	ExecEnabled() bool
	HTTPEnabled() bool
}

// ExecRunner runs a sandboxed command (only consulted when Sandbox allows it).
type ExecRunner interface {
	Run(ctx context.Context, cmd string, payload json.RawMessage) (json.RawMessage, error)
}

// HTTPRunner performs a sandboxed HTTP call (only consulted when Sandbox allows it).
type HTTPRunner interface {
	Do(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// LogSink receives log{} hostcall payloads, which always succeed.
type LogSink interface {
	Log(payload json.RawMessage)
}

// Router dispatches one hostproto.Request to its outcome, per spec §4.7.
type Router struct {
	Tools   ToolRegistry
	Policy  PolicyEngine
	UI      UIBus
	Events  EventsBus
	Session SessionStore
	Sandbox Sandbox
	Exec    ExecRunner
	HTTP    HTTPRunner
	Log     LogSink
}

// Dispatch routes req to its outcome. It never blocks beyond what the
// configured collaborators themselves block for; the pump treats this call
// as synchronous.
func (r *Router) Dispatch(ctx context.Context, req hostproto.Request) hostproto.Outcome {
	switch req.Kind.Tag {
	case hostproto.KindTool:
		return r.dispatchTool(ctx, req)
	case hostproto.KindUi:
		return r.dispatchUI(req)
	case hostproto.KindEvents:
		return r.dispatchEvents(req)
	case hostproto.KindSession:
		return r.dispatchSession(req)
	case hostproto.KindExec:
		return r.dispatchExec(ctx, req)
	case hostproto.KindHttp:
		return r.dispatchHTTP(ctx, req)
	case hostproto.KindLog:
		if r.Log != nil {
			r.Log.Log(req.Payload)
		}
		return hostproto.Success(nil)
	default:
		return hostproto.Fail(hostproto.CodeUnsupportedTool, "unrecognized hostcall kind")
	}
}

func (r *Router) dispatchTool(ctx context.Context, req hostproto.Request) hostproto.Outcome {
	if r.Policy != nil && !r.Policy.Allow("tool", req.Kind.Name) {
		return hostproto.Fail(hostproto.CodePolicyDenied, "tool call denied by policy: "+req.Kind.Name)
	}
	tool, ok := r.Tools.Lookup(req.Kind.Name)
	if !ok {
		return hostproto.Fail(hostproto.CodeUnsupportedTool, "no such tool: "+req.Kind.Name)
	}
	result, err := tool.Invoke(ctx, req.Payload)
	if err != nil {
		return hostproto.Fail("TOOL_ERROR", err.Error())
	}
	return hostproto.Success(result.Value)
}

func (r *Router) dispatchUI(req hostproto.Request) hostproto.Outcome {
	if r.UI == nil {
		return hostproto.Fail(hostproto.CodeUnsupportedTool, "no ui bus configured")
	}
	value, err := r.UI.Dispatch(req.Kind.Op, req.Payload)
	if err != nil {
		return hostproto.Fail("UI_ERROR", err.Error())
	}
	return hostproto.Success(value)
}

func (r *Router) dispatchEvents(req hostproto.Request) hostproto.Outcome {
	if r.Events == nil {
		return hostproto.Fail(hostproto.CodeUnsupportedTool, "no events bus configured")
	}
	value, err := r.Events.Dispatch(req.ExtensionID, req.Kind.Op, req.Payload)
	if err != nil {
		return hostproto.Fail("EVENTS_ERROR", err.Error())
	}
	return hostproto.Success(value)
}

func (r *Router) dispatchSession(req hostproto.Request) hostproto.Outcome {
	if r.Session == nil {
		return hostproto.Fail(hostproto.CodeNoSession, "no session store configured")
	}
	value, ok, err := r.Session.Call(req.Kind.Op, req.Payload)
	if !ok {
		return hostproto.Fail(hostproto.CodeNoSession, "no active session")
	}
	if err != nil {
		return hostproto.Fail("SESSION_ERROR", err.Error())
	}
	return hostproto.Success(value)
}

func (r *Router) dispatchExec(ctx context.Context, req hostproto.Request) hostproto.Outcome {
	if r.Sandbox == nil || !r.Sandbox.ExecEnabled() {
		return hostproto.Fail(hostproto.CodeExecDisabled, "exec is disabled in this context")
	}
	if r.Policy != nil && !r.Policy.Allow("exec", req.Kind.Cmd) {
		return hostproto.Fail(hostproto.CodePolicyDenied, "exec call denied by policy: "+req.Kind.Cmd)
	}
	value, err := r.Exec.Run(ctx, req.Kind.Cmd, req.Payload)
	if err != nil {
		return hostproto.Fail("EXEC_ERROR", err.Error())
	}
	return hostproto.Success(value)
}

func (r *Router) dispatchHTTP(ctx context.Context, req hostproto.Request) hostproto.Outcome {
	if r.Sandbox == nil || !r.Sandbox.HTTPEnabled() {
		return hostproto.Fail(hostproto.CodeHttpDisabled, "http is disabled in this context")
	}
	if r.Policy != nil && !r.Policy.Allow("http", "") {
		return hostproto.Fail(hostproto.CodePolicyDenied, "http call denied by policy")
	}
	value, err := r.HTTP.Do(ctx, req.Payload)
	if err != nil {
		return hostproto.Fail("HTTP_ERROR", err.Error())
	}
	return hostproto.Success(value)
}
