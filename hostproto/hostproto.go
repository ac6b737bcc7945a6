// Package hostproto defines the tagged hostcall request/response records
// exchanged between the embedded JS engine and the host pump, and the
// call_id correlation discipline governing them. The wire shape mirrors
// the JSON contract in the spec: a kind-tagged request, and a success/error
// outcome, both keyed by a single monotonically-assigned call_id.
package hostproto

import "encoding/json"

// Kind tags the category of a hostcall request. Exactly one of the
// kind-specific fields (Name/Op/Cmd) is populated, per Tag.
type Kind struct {
	Tag  KindTag `json:"tag"`
	Name string  `json:"name,omitempty"`
	Op   string  `json:"op,omitempty"`
	Cmd  string  `json:"cmd,omitempty"`
}

// KindTag enumerates the closed set of hostcall kinds.
type KindTag string

const (
	KindTool    KindTag = "tool"
	KindUi      KindTag = "ui"
	KindEvents  KindTag = "events"
	KindSession KindTag = "session"
	KindExec    KindTag = "exec"
	KindHttp    KindTag = "http"
	KindLog     KindTag = "log"
)

// Tool builds a Kind tagged "tool" with the given tool name.
func Tool(name string) Kind { return Kind{Tag: KindTool, Name: name} }

// Ui builds a Kind tagged "ui" with the given op.
func Ui(op string) Kind { return Kind{Tag: KindUi, Op: op} }

// Events builds a Kind tagged "events" with the given op.
func Events(op string) Kind { return Kind{Tag: KindEvents, Op: op} }

// Session builds a Kind tagged "session" with the given op.
func Session(op string) Kind { return Kind{Tag: KindSession, Op: op} }

// Exec builds a Kind tagged "exec" with the given command.
func Exec(cmd string) Kind { return Kind{Tag: KindExec, Cmd: cmd} }

// Http builds a Kind tagged "http".
func Http() Kind { return Kind{Tag: KindHttp} }

// Log builds a Kind tagged "log".
func Log() Kind { return Kind{Tag: KindLog} }

// Request is an immutable hostcall request record. CallID is assigned by
// the JS runtime host and is the sole correlator between a request and its
// eventual Outcome; it is unique for the lifetime of the engine.
type Request struct {
	CallID  uint64          `json:"call_id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// ExtensionID identifies the extension whose init(pi) run issued this
	// request. It is only populated for KindEvents requests; every other
	// kind leaves it empty.
	ExtensionID string `json:"extension_id,omitempty"`
}

// Outcome is a tagged success/error result. The queue and router never
// inspect the payload of a Success outcome; it is opaque JSON whose schema
// is defined per request kind.
type Outcome struct {
	OK      bool            `json:"ok"`
	Value   json.RawMessage `json:"value,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Success builds an OK outcome carrying value (already-marshalled JSON, or
// nil for no value).
func Success(value json.RawMessage) Outcome {
	return Outcome{OK: true, Value: value}
}

// Fail builds an error outcome with a structured code and message.
func Fail(code, message string) Outcome {
	return Outcome{OK: false, Code: code, Message: message}
}

// Error codes used across the router, pump, and engine boundary. These are
// the structured codes an extension observes on a rejected promise; they
// are not Go errors, they are wire-level outcome codes.
const (
	CodeQueueFull       = "QUEUE_FULL"
	CodeTimeout         = "TIMEOUT"
	CodeUnsupportedTool = "UNSUPPORTED_TOOL"
	CodePolicyDenied    = "POLICY_DENIED"
	CodeNoSession       = "NO_SESSION"
	CodeExecDisabled    = "EXEC_DISABLED"
	CodeHttpDisabled    = "HTTP_DISABLED"
)

// Completion is the wire-equivalent shape of a resolved hostcall, as it
// would be marshalled back toward a JS-side consumer or telemetry sink.
type Completion struct {
	CallID  uint64  `json:"call_id"`
	Outcome Outcome `json:"outcome"`
}

// TickReport is returned by one pump iteration's engine tick, telling the
// pump whether that tick produced forward progress (a hostcall was queued
// or a pending hostcall settled) or found the engine already quiescent.
type TickReport struct {
	Progressed bool
}
