package service

import "context"

// ─────────────────────────────────────────────────────────────
// EventEmitter — decouples services from the presentation layer
// ─────────────────────────────────────────────────────────────

// EventEmitter is an interface for emitting events to the editor
// frontend. The app layer implements it by delegating to whatever
// transport the UI subscribes on; services receive this interface
// instead, which makes them independently testable with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Events emitted by the composer and reconciler.
const (
	EventBlocksChanged  = "page:blocks-changed"
	EventSaveStatus     = "page:save-status"
	EventContentUpdated = "block:content-updated"
	EventReconciled     = "page:reconciled"
)

// SaveStatus is the payload of EventSaveStatus: one structural or
// content operation's outcome, for the editor's save indicator.
type SaveStatus struct {
	Op        string `json:"op"`
	Persisted bool   `json:"persisted"`
	Reason    string `json:"reason,omitempty"`
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}
