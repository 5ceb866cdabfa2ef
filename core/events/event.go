package events

import "qugate/core/types"

// Event represents a structured state change emitted by the node.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, journal).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Multi fans every event out to each non-nil emitter in order.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder buffers emitted events. It is not safe for concurrent use; the
// node serialises every procedure.
type Recorder struct {
	events []*types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	if payload := evt.Event(); payload != nil {
		r.events = append(r.events, payload)
	}
}

// Events returns the recorded payloads in emission order.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	return append([]*types.Event(nil), r.events...)
}

// Drain returns the recorded payloads and clears the buffer.
func (r *Recorder) Drain() []*types.Event {
	if r == nil {
		return nil
	}
	out := r.events
	r.events = nil
	return out
}
