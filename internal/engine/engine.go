// Package engine orchestrates generation runs over a node graph: it
// resolves upstream context, drives the generative service through
// planning and synthesis, and propagates results into downstream nodes
// while streaming progress to subscribers.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campaignforge/forge/internal/collect"
	"github.com/campaignforge/forge/internal/genai"
	"github.com/campaignforge/forge/internal/logging"
	"github.com/campaignforge/forge/internal/store"
	"github.com/campaignforge/forge/internal/streaming"
	"github.com/campaignforge/forge/pkg/schema"
)

// Config tunes run execution. The zero value is unusable; start from
// DefaultConfig and override.
type Config struct {
	// ConceptCount is the number of concepts a campaign run plans and
	// synthesizes.
	ConceptCount int
	// ImageAttempts is the per-index attempt budget for image synthesis.
	ImageAttempts int
	// RetryBackoff computes the wait between failed attempts on one index.
	RetryBackoff BackoffPolicy
	// CourtesyDelay is the pause between successfully synthesized items,
	// skipped after the final one.
	CourtesyDelay time.Duration
	// PollInterval is the wait between asynchronous video job polls.
	PollInterval time.Duration
	// PoolSize bounds concurrently executing runs across all nodes.
	PoolSize int
	// Breaker configures the per-capability circuit breakers.
	Breaker CircuitBreakerConfig
	// Logger receives structured run logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ConceptCount:  9,
		ImageAttempts: 3,
		RetryBackoff:  FixedBackoff(8 * time.Second),
		CourtesyDelay: 3 * time.Second,
		PollInterval:  10 * time.Second,
		PoolSize:      4,
		Breaker:       DefaultCircuitBreakerConfig(),
	}
}

func (c Config) withDefaults() Config {
	if c.ConceptCount <= 0 {
		c.ConceptCount = 9
	}
	if c.ImageAttempts <= 0 {
		c.ImageAttempts = 3
	}
	if c.RetryBackoff == nil {
		c.RetryBackoff = FixedBackoff(8 * time.Second)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker = DefaultCircuitBreakerConfig()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Engine is the run orchestrator. It owns the active-run registry, the
// dispatch pool, and the circuit breakers; the graph store, generative
// service, and hub are supplied by the embedding application.
type Engine struct {
	store    store.GraphStore
	service  genai.Service
	hub      streaming.Hub
	cfg      Config
	log      *slog.Logger
	pipeline *pipeline
	animator *Animator
	registry *registry
	pool     *DispatchPool

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu          sync.Mutex
	lastResults map[string]*RunResult // latest terminal result per node
}

// New creates an Engine over the given store, service, and hub.
func New(gs store.GraphStore, svc genai.Service, hub streaming.Hub, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	log := slog.New(logging.NewCorrelationHandler(cfg.Logger.Handler()))
	breakers := NewCircuitBreakerRegistry(cfg.Breaker)
	prop := NewPropagator(gs, log)
	fsm := NewRunFSM(hub)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	return &Engine{
		store:   gs,
		service: svc,
		hub:     hub,
		cfg:     cfg,
		log:     log,
		pipeline: &pipeline{
			store:     gs,
			collector: collect.New(gs),
			service:   svc,
			prop:      prop,
			fsm:       fsm,
			hub:       hub,
			breakers:  breakers,
			cfg:       cfg,
			log:       log,
		},
		animator:    NewAnimator(gs, svc, hub, breakers, cfg, log),
		registry:    newRegistry(),
		pool:        NewDispatchPool(cfg.PoolSize),
		baseCtx:     baseCtx,
		cancelBase:  cancelBase,
		lastResults: make(map[string]*RunResult),
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Trigger starts a generation run for the node and returns immediately
// with the run's initial snapshot. A second trigger while the node has
// an active run fails with CONFLICT; the caller decides whether to retry
// after the active run ends. The run executes on the dispatch pool and
// outlives the caller's context; use Cancel to stop it.
func (e *Engine) Trigger(ctx context.Context, nodeID string) (*RunSnapshot, error) {
	node, err := e.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	var exec func(context.Context, *Run) *RunResult
	switch node.Type {
	case schema.NodeCampaignGenerator:
		exec = e.pipeline.runCampaign
	case schema.NodeGenerator:
		exec = e.pipeline.runSimple
	case schema.NodeAssetGenerator:
		exec = e.pipeline.runAsset
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"node type %q cannot be triggered", node.Type).WithNode(nodeID)
	}

	runCtx, cancel := context.WithCancel(e.baseCtx)
	run := newRun(NewRunID(), nodeID, cancel)
	if err := e.registry.acquire(run); err != nil {
		cancel()
		return nil, err
	}

	runCtx = logging.WithIDs(runCtx, nodeID, run.ID)
	if e.hub != nil {
		_ = e.hub.Publish(ctx, streaming.RunEvent{
			NodeID:    nodeID,
			RunID:     run.ID,
			EventType: schema.EventRunStarted,
		})
	}

	if err := e.pool.Go(ctx, func() {
		defer cancel()
		result := exec(runCtx, run)
		e.mu.Lock()
		e.lastResults[nodeID] = result
		e.mu.Unlock()
		e.registry.release(nodeID)
	}); err != nil {
		e.registry.release(nodeID)
		cancel()
		return nil, err
	}

	snap := run.Snapshot()
	return &snap, nil
}

// Cancel flags the node's active run. The run stops at its next
// suspension point; results already propagated stay in place. Cancelling
// a node with no active run is a no-op.
func (e *Engine) Cancel(nodeID string) {
	if run, ok := e.registry.get(nodeID); ok {
		run.Cancel()
	}
}

// Status returns the node's active run snapshot, or false when none is
// running.
func (e *Engine) Status(nodeID string) (*RunSnapshot, bool) {
	run, ok := e.registry.get(nodeID)
	if !ok {
		return nil, false
	}
	snap := run.Snapshot()
	return &snap, true
}

// LastResult returns the latest terminal result recorded for the node.
func (e *Engine) LastResult(nodeID string) (*RunResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.lastResults[nodeID]
	return r, ok
}

// Animate runs a blocking animation task for one generated item on an
// output node. See Animator.Animate.
func (e *Engine) Animate(ctx context.Context, nodeID string, index int) error {
	return e.animator.Animate(ctx, nodeID, index)
}

// Close cancels all active runs and waits for the pool to drain. The
// graph store stays open; its lifecycle belongs to the caller.
func (e *Engine) Close() {
	e.cancelBase()
	e.pool.Wait()
}
