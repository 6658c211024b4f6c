package engine

import (
	"context"
	"sync"

	"github.com/campaignforge/forge/internal/streaming"
	"github.com/campaignforge/forge/pkg/schema"
)

// ValidRunTransitions defines the allowed stage transitions for a run.
// Synthesizing self-transitions on index advance.
var ValidRunTransitions = map[schema.RunStage][]schema.RunStage{
	schema.RunStageIdle:         {schema.RunStagePlanning, schema.RunStageCancelled},
	schema.RunStagePlanning:     {schema.RunStageSynthesizing, schema.RunStageFailed, schema.RunStageCancelled, schema.RunStageComplete},
	schema.RunStageSynthesizing: {schema.RunStageSynthesizing, schema.RunStageRetrying, schema.RunStageComplete, schema.RunStageFailed, schema.RunStageCancelled},
	schema.RunStageRetrying:     {schema.RunStageSynthesizing, schema.RunStageCancelled},
	schema.RunStageComplete:     {},
	schema.RunStageFailed:       {},
	schema.RunStageCancelled:    {},
}

// TransitionHook is called after a stage transition.
type TransitionHook func(from, to schema.RunStage)

type hookKey struct {
	from, to schema.RunStage
}

// RunFSM validates run stage transitions and announces them on the hub.
type RunFSM struct {
	mu    sync.Mutex
	hub   streaming.Hub
	after map[hookKey][]TransitionHook
}

// NewRunFSM creates an FSM that publishes transition events via the hub.
func NewRunFSM(hub streaming.Hub) *RunFSM {
	return &RunFSM{
		hub:   hub,
		after: make(map[hookKey][]TransitionHook),
	}
}

// OnAfter registers a hook called after a transition.
func (f *RunFSM) OnAfter(from, to schema.RunStage, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a run stage transition, updating the
// run record and emitting the corresponding event.
func (f *RunFSM) Transition(ctx context.Context, run *Run, to schema.RunStage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := run.Stage()
	if !isValidRunTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid run transition: %s -> %s", from, to).
			WithNode(run.NodeID).
			WithDetails(map[string]any{"run_id": run.ID, "from": string(from), "to": string(to)})
	}

	run.setStage(to)

	if eventType := runEventType(to); eventType != "" && f.hub != nil {
		_ = f.hub.Publish(ctx, streaming.RunEvent{
			NodeID:    run.NodeID,
			RunID:     run.ID,
			EventType: eventType,
		})
	}

	for _, hook := range f.after[hookKey{from, to}] {
		hook(from, to)
	}
	return nil
}

func isValidRunTransition(from, to schema.RunStage) bool {
	allowed, ok := ValidRunTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func runEventType(to schema.RunStage) string {
	switch to {
	case schema.RunStagePlanning:
		return schema.EventRunPlanning
	case schema.RunStageRetrying:
		return schema.EventRunRetry
	case schema.RunStageComplete:
		return schema.EventRunCompleted
	case schema.RunStageFailed:
		return schema.EventRunFailed
	case schema.RunStageCancelled:
		return schema.EventRunCancelled
	default:
		return ""
	}
}
