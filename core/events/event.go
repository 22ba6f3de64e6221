package events

import (
	"sync"

	"pairvault/core/types"
)

// Event represents a structured state change emitted by the vault.
type Event interface {
	EventType() string
}

// Convertible events expose a wire-friendly representation for RPC
// subscribers and indexers.
type Convertible interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events in memory until they are flushed. The node hands a
// fresh buffer to every operation and only forwards its contents once the
// state overlay has been committed.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Reset drops every buffered event.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// FlushTo forwards the buffered events to dst in emission order and clears the
// buffer.
func (b *Buffer) FlushTo(dst Emitter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Multi fans an event out to every wrapped emitter.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// ToWire converts evt into its wire representation when supported.
func ToWire(evt Event) *types.Event {
	if conv, ok := evt.(Convertible); ok {
		return conv.Event()
	}
	if evt == nil {
		return nil
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}
