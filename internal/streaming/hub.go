// Package streaming delivers run progress to the embedding application in
// real time, so a board can render items as they are produced instead of
// waiting for a run to finish.
package streaming

import "context"

// RunEvent is a real-time event emitted during a generation run or an
// animation task.
type RunEvent struct {
	NodeID    string `json:"node_id"`
	RunID     string `json:"run_id,omitempty"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	NodeID     string   `json:"node_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// Hub provides pub/sub for run progress events.
type Hub interface {
	Publish(ctx context.Context, event RunEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan RunEvent, func(), error)
}
