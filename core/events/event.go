package events

// Event is a typed state change emitted by the ledger during a committed
// operation. Attributes carry wire-friendly string values (hex identifiers,
// decimal counts) for downstream indexers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers,
// the cross-chain message publisher).
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// It is the default for engines whose caller did not wire a subscriber.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// CollectEmitter buffers emitted events in order. It is primarily a test
// helper but is also used by callers that drain events after each operation.
type CollectEmitter struct {
	Events []*Event
}

// Emit implements the Emitter interface.
func (c *CollectEmitter) Emit(evt *Event) {
	if evt == nil {
		return
	}
	c.Events = append(c.Events, evt)
}
