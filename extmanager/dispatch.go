package extmanager

import (
	"context"
	"encoding/json"
	"fmt"
)

// Dispatcher adapts a Manager to the hostrouter.EventsBus shape
// (Dispatch(extensionID, op string, payload json.RawMessage) (json.RawMessage,
// error)), so that every pi.events(op, args) hostcall issued during an
// extension's init(pi) run flows straight into the Manager's registries,
// the way spec's "every registration flows through hostcalls" requires.
//
// Registered handlers never cross the JSON boundary as Go values — a
// command/shortcut/event-hook registration carries a HandlerID, an opaque
// string the JS side uses to identify its own callback. Invoking that
// callback later means re-entering the engine, which only the caller
// that owns the running *jsengine.Host can do; HookInvoker is the escape
// hatch for that re-entry.
type Dispatcher struct {
	Manager *Manager

	// HookInvoker re-enters the engine to run a registered event hook's JS
	// callback. A nil HookInvoker makes every registered hook a no-op that
	// never blocks, which is enough to exercise registration bookkeeping
	// without wiring a JS callback bridge.
	HookInvoker func(ctx context.Context, extensionID, handlerID string, payload json.RawMessage) (blocked bool, err error)
}

type registerCommandPayload struct {
	Name      string `json:"name"`
	HandlerID string `json:"handler_id"`
}

type registerShortcutPayload struct {
	KeyID     string `json:"key_id"`
	HandlerID string `json:"handler_id"`
}

type registerFlagPayload struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type registerProviderPayload struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

type registerModelPayload struct {
	Provider string          `json:"provider"`
	ID       string          `json:"id"`
	Value    json.RawMessage `json:"value"`
}

type registerToolDefPayload struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type registerEventHookPayload struct {
	Name      string `json:"name"`
	HandlerID string `json:"handler_id"`
}

type dispatchEventPayload struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

type dispatchEventResult struct {
	Blocked bool `json:"blocked"`
}

// Dispatch decodes op/payload and calls through to the underlying Manager,
// attributing registration-shaped ops to extensionID.
func (d *Dispatcher) Dispatch(extensionID, op string, payload json.RawMessage) (json.RawMessage, error) {
	switch op {
	case "register_command":
		var p registerCommandPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if err := d.Manager.RegisterCommand(extensionID, p.Name, p.HandlerID); err != nil {
			return nil, err
		}
		return nil, nil

	case "register_shortcut":
		var p registerShortcutPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if err := d.Manager.RegisterShortcut(extensionID, p.KeyID, p.HandlerID); err != nil {
			return nil, err
		}
		return nil, nil

	case "register_flag":
		var p registerFlagPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if err := d.Manager.RegisterFlag(extensionID, p.Name, p.Value); err != nil {
			return nil, err
		}
		return nil, nil

	case "register_provider":
		var p registerProviderPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if err := d.Manager.RegisterProvider(extensionID, p.ID, p.Value); err != nil {
			return nil, err
		}
		return nil, nil

	case "register_model":
		var p registerModelPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if err := d.Manager.RegisterModelEntry(extensionID, p.Provider, p.ID, p.Value); err != nil {
			return nil, err
		}
		return nil, nil

	case "register_tool_def":
		var p registerToolDefPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if err := d.Manager.RegisterToolDef(extensionID, p.Name, p.Value); err != nil {
			return nil, err
		}
		return nil, nil

	case "register_event_hook":
		var p registerEventHookPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		handlerID := p.HandlerID
		d.Manager.RegisterEventHook(extensionID, p.Name, func(ctx context.Context, eventPayload json.RawMessage) (bool, error) {
			if d.HookInvoker == nil {
				return false, nil
			}
			return d.HookInvoker(ctx, extensionID, handlerID, eventPayload)
		})
		return nil, nil

	case "dispatch_event":
		var p dispatchEventPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		blocked, err := d.Manager.DispatchEvent(context.Background(), p.Name, p.Payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal(dispatchEventResult{Blocked: blocked})

	default:
		return nil, fmt.Errorf("extmanager: unrecognized events op %q", op)
	}
}
