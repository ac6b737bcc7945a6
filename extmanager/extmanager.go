// Package extmanager owns the extension registries (commands, shortcuts,
// flags, providers, model entries, tool defs, event hooks) and the
// extension record lifecycle: load, dispatch_event, execute_command,
// execute_shortcut, shutdown. Registration ordering is tracked the way
// github.com/joeycumines/go-eventloop's registry.go tracks promise IDs — a
// monotonic ring of registration order per event name — generalized here
// from a weak-pointer GC scavenger (extension records are not garbage
// collected candidates) to a plain ordered index, since what's worth
// keeping from that file is the "append-only order, compact on unload"
// discipline, not the weak-pointer mechanism itself.
package extmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Scope is where an extension was discovered.
type Scope string

const (
	ScopeUser      Scope = "user"
	ScopeProject   Scope = "project"
	ScopeTemporary Scope = "temporary"
)

// Origin distinguishes a standalone extension file from one loaded as part
// of a package.
type Origin string

const (
	OriginTopLevel Origin = "top_level"
	OriginPackage  Origin = "package"
)

// ExtensionRecord is the durable metadata the manager keeps for one loaded
// extension.
type ExtensionRecord struct {
	ID          string
	Name        string
	Version     string
	APIVersion  string
	EntryPath   string
	BaseDir     string
	Scope       Scope
	Origin      Origin
	LoadedAt    time.Time
	Diagnostics []string
}

// LoadSpec describes one extension to load.
type LoadSpec struct {
	ID         string
	Name       string
	Version    string
	APIVersion string
	EntryPath  string
	BaseDir    string
	Scope      Scope
	Origin     Origin
	Source     string // the entry file's JS source, already read by the caller
}

// Engine is the subset of jsengine.Host the manager needs to evaluate an
// extension's entry file and to invoke commands/shortcuts.
type Engine interface {
	Eval(src string) (any, error)
}

// ErrDuplicateRegistration is returned when the same key is registered
// twice within a single Load call.
var ErrDuplicateRegistration = errors.New("extmanager: duplicate registration within one load")

// Warning is a non-fatal diagnostic recorded against an extension, such as
// a cross-extension registration override.
type Warning struct {
	ExtensionID string
	Message     string
}

type registryEntry struct {
	extensionID string
	value       any
}

// eventHook is one registered handler for dispatch_event, in the order it
// was registered.
type eventHook struct {
	extensionID string
	handle      func(ctx context.Context, payload json.RawMessage) (blocked bool, err error)
}

// Manager owns every extension-scoped registry named in spec §4.8.
type Manager struct {
	mu sync.Mutex

	extensions map[string]*ExtensionRecord
	warnings   []Warning

	commands     map[string]registryEntry
	shortcuts    map[string]registryEntry
	flags        map[string]registryEntry
	providers    map[string]registryEntry
	modelEntries map[string]registryEntry // keyed by "provider/id"
	toolDefs     map[string]registryEntry
	eventHooks   map[string][]eventHook
}

// New builds an empty Manager.
func New() *Manager {
	return &Manager{
		extensions:   make(map[string]*ExtensionRecord),
		commands:     make(map[string]registryEntry),
		shortcuts:    make(map[string]registryEntry),
		flags:        make(map[string]registryEntry),
		providers:    make(map[string]registryEntry),
		modelEntries: make(map[string]registryEntry),
		toolDefs:     make(map[string]registryEntry),
		eventHooks:   make(map[string][]eventHook),
	}
}

// Load records spec's metadata and evaluates its entry source on engine.
// Every hostcall-mediated registration the init script performs is
// expected to flow back to this Manager's Register* methods via the
// router layer that owns the live Engine; Load itself only runs init and
// tracks the record.
func (m *Manager) Load(engine Engine, spec LoadSpec) (*ExtensionRecord, error) {
	record := &ExtensionRecord{
		ID:         spec.ID,
		Name:       spec.Name,
		Version:    spec.Version,
		APIVersion: spec.APIVersion,
		EntryPath:  spec.EntryPath,
		BaseDir:    spec.BaseDir,
		Scope:      spec.Scope,
		Origin:     spec.Origin,
		LoadedAt:   time.Now(),
	}

	if _, err := engine.Eval(spec.Source); err != nil {
		record.Diagnostics = append(record.Diagnostics, fmt.Sprintf("init failed: %v", err))
		return record, err
	}

	m.mu.Lock()
	m.extensions[spec.ID] = record
	m.mu.Unlock()

	return record, nil
}

// register applies spec's duplicate-within-load / last-loaded-wins-across-
// extensions rule to a single named registry.
func (m *Manager) register(reg map[string]registryEntry, extensionID, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := reg[key]; ok {
		if existing.extensionID == extensionID {
			return fmt.Errorf("%w: %q", ErrDuplicateRegistration, key)
		}
		m.warnings = append(m.warnings, Warning{
			ExtensionID: extensionID,
			Message:     fmt.Sprintf("registration %q overrides one from extension %q", key, existing.extensionID),
		})
	}
	reg[key] = registryEntry{extensionID: extensionID, value: value}
	return nil
}

// RegisterCommand registers a command handler unique by name.
func (m *Manager) RegisterCommand(extensionID, name string, handler any) error {
	return m.register(m.commands, extensionID, name, handler)
}

// RegisterShortcut registers a shortcut handler unique by key id.
func (m *Manager) RegisterShortcut(extensionID, keyID string, handler any) error {
	return m.register(m.shortcuts, extensionID, keyID, handler)
}

// RegisterFlag registers a flag unique by name.
func (m *Manager) RegisterFlag(extensionID, name string, value any) error {
	return m.register(m.flags, extensionID, name, value)
}

// RegisterProvider registers a provider unique by id.
func (m *Manager) RegisterProvider(extensionID, id string, value any) error {
	return m.register(m.providers, extensionID, id, value)
}

// RegisterModelEntry registers a model entry unique by "provider/id".
func (m *Manager) RegisterModelEntry(extensionID, provider, id string, value any) error {
	return m.register(m.modelEntries, extensionID, provider+"/"+id, value)
}

// RegisterToolDef registers a tool definition unique by name.
func (m *Manager) RegisterToolDef(extensionID, name string, value any) error {
	return m.register(m.toolDefs, extensionID, name, value)
}

// RegisterEventHook appends a hook for name (a multiset: many extensions
// may hook the same event). Hooks fire in registration order.
func (m *Manager) RegisterEventHook(extensionID, name string, handle func(ctx context.Context, payload json.RawMessage) (bool, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventHooks[name] = append(m.eventHooks[name], eventHook{extensionID: extensionID, handle: handle})
}

// DispatchEvent invokes every hook registered for name, in registration
// order. A hook returning blocked=true halts further dispatch; the block
// is surfaced to the caller.
func (m *Manager) DispatchEvent(ctx context.Context, name string, payload json.RawMessage) (blocked bool, err error) {
	m.mu.Lock()
	hooks := append([]eventHook(nil), m.eventHooks[name]...)
	m.mu.Unlock()

	for _, h := range hooks {
		blocked, err = h.handle(ctx, payload)
		if err != nil {
			return false, err
		}
		if blocked {
			return true, nil
		}
	}
	return false, nil
}

// ErrNoSuchCommand / ErrNoSuchShortcut are returned by execute_command and
// execute_shortcut when no handler is registered.
var (
	ErrNoSuchCommand  = errors.New("extmanager: no such command")
	ErrNoSuchShortcut = errors.New("extmanager: no such shortcut")
)

// CommandInvoker runs a registered command's handler under a deadline.
type CommandInvoker func(ctx context.Context, handler any, args json.RawMessage) (json.RawMessage, error)

// ExecuteCommand looks up name and runs it via invoke, bounded by budget.
func (m *Manager) ExecuteCommand(ctx context.Context, name string, args json.RawMessage, budget time.Duration, invoke CommandInvoker) (json.RawMessage, error) {
	m.mu.Lock()
	entry, ok := m.commands[name]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoSuchCommand
	}
	return m.invokeWithBudget(ctx, budget, func(ctx context.Context) (json.RawMessage, error) {
		return invoke(ctx, entry.value, args)
	})
}

// ExecuteShortcut looks up keyID and runs it via invoke, bounded by budget.
func (m *Manager) ExecuteShortcut(ctx context.Context, keyID string, shortcutCtx json.RawMessage, budget time.Duration, invoke CommandInvoker) (json.RawMessage, error) {
	m.mu.Lock()
	entry, ok := m.shortcuts[keyID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoSuchShortcut
	}
	return m.invokeWithBudget(ctx, budget, func(ctx context.Context) (json.RawMessage, error) {
		return invoke(ctx, entry.value, shortcutCtx)
	})
}

func (m *Manager) invokeWithBudget(ctx context.Context, budget time.Duration, fn func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	type result struct {
		value json.RawMessage
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}

// Warnings returns every cross-extension override warning recorded so far.
func (m *Manager) Warnings() []Warning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Warning(nil), m.warnings...)
}

// Extensions returns every currently loaded extension record.
func (m *Manager) Extensions() []*ExtensionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ExtensionRecord, 0, len(m.extensions))
	for _, r := range m.extensions {
		out = append(out, r)
	}
	return out
}

// Shutdown drops every extension record. The caller is responsible for
// having already confirmed the engine is idle (per spec §4.8); Shutdown
// itself performs no engine I/O.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extensions = make(map[string]*ExtensionRecord)
	m.commands = make(map[string]registryEntry)
	m.shortcuts = make(map[string]registryEntry)
	m.flags = make(map[string]registryEntry)
	m.providers = make(map[string]registryEntry)
	m.modelEntries = make(map[string]registryEntry)
	m.toolDefs = make(map[string]registryEntry)
	m.eventHooks = make(map[string][]eventHook)
	return nil
}
