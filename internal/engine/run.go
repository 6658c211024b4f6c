package engine

import (
	"context"
	"sync"
	"time"

	"github.com/campaignforge/forge/pkg/schema"
)

// Run is the ephemeral record of one pipeline execution against a single
// generator node. It is engine-owned, queryable while active, and
// discarded on terminal state; its only durable trace is the data merged
// into downstream nodes.
type Run struct {
	ID        string
	NodeID    string
	StartedAt time.Time

	mu        sync.Mutex
	stage     schema.RunStage
	index     int
	attempt   int
	lastErr   *schema.ForgeError
	cancelled bool
	cancel    context.CancelFunc
}

func newRun(id, nodeID string, cancel context.CancelFunc) *Run {
	return &Run{
		ID:        id,
		NodeID:    nodeID,
		StartedAt: time.Now().UTC(),
		stage:     schema.RunStageIdle,
		cancel:    cancel,
	}
}

// Stage returns the current lifecycle stage.
func (r *Run) Stage() schema.RunStage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

func (r *Run) setStage(s schema.RunStage) {
	r.mu.Lock()
	r.stage = s
	r.mu.Unlock()
}

func (r *Run) setProgress(index, attempt int) {
	r.mu.Lock()
	r.index = index
	r.attempt = attempt
	r.mu.Unlock()
}

func (r *Run) setError(err *schema.ForgeError) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// Cancel flags the run and releases its context. The run stops at the
// next suspension point; partial results already propagated stay in place.
func (r *Run) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns a copy of the run's observable state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunSnapshot{
		ID:        r.ID,
		NodeID:    r.NodeID,
		Stage:     r.stage,
		Index:     r.index,
		Attempt:   r.attempt,
		LastError: r.lastErr,
		Cancelled: r.cancelled,
		StartedAt: r.StartedAt,
	}
}

// RunSnapshot is a point-in-time view of a run, safe to hand out.
type RunSnapshot struct {
	ID        string             `json:"id"`
	NodeID    string             `json:"node_id"`
	Stage     schema.RunStage    `json:"stage"`
	Index     int                `json:"index"`
	Attempt   int                `json:"attempt"`
	LastError *schema.ForgeError `json:"last_error,omitempty"`
	Cancelled bool               `json:"cancelled"`
	StartedAt time.Time          `json:"started_at"`
}

// RunResult is returned when a run reaches a terminal stage.
type RunResult struct {
	RunID       string                 `json:"run_id"`
	NodeID      string                 `json:"node_id"`
	Stage       schema.RunStage        `json:"stage"`
	Items       []schema.GeneratedItem `json:"items,omitempty"`
	Error       *schema.ForgeError     `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}

// registry enforces the at-most-one-active-run-per-node invariant.
type registry struct {
	mu   sync.Mutex
	runs map[string]*Run
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*Run)}
}

// acquire registers a run for the node, or fails with CONFLICT if one is
// already active. Check-and-set is atomic under the registry lock.
func (g *registry) acquire(run *Run) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, busy := g.runs[run.NodeID]; busy {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"a run is already active for this node").
			WithNode(run.NodeID).
			WithDetails(map[string]any{"active_run_id": existing.ID})
	}
	g.runs[run.NodeID] = run
	return nil
}

func (g *registry) release(nodeID string) {
	g.mu.Lock()
	delete(g.runs, nodeID)
	g.mu.Unlock()
}

func (g *registry) get(nodeID string) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.runs[nodeID]
	return run, ok
}
