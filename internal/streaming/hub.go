// Package streaming fans editor and simulation events out to UI subscribers.
package streaming

import "context"

// StreamEvent is a real-time event about a workflow canvas.
// EventType is one of the schema.Event* constants.
type StreamEvent struct {
	WorkflowID string `json:"workflow_id"`
	NodeID     string `json:"node_id,omitempty"`
	EventType  string `json:"event_type"`
	Payload    any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Empty fields match everything.
type EventFilter struct {
	WorkflowID string   `json:"workflow_id,omitempty"`
	NodeID     string   `json:"node_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for canvas events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}

// Discard is an EventHub that drops every event. Used when no subscriber
// side is wired, e.g. one-shot CLI commands.
type Discard struct{}

func (Discard) Publish(ctx context.Context, _ StreamEvent) error { return ctx.Err() }

func (Discard) Subscribe(ctx context.Context, _ EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ch := make(chan StreamEvent)
	return ch, func() {}, nil
}
