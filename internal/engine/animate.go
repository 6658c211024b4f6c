package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/campaignforge/forge/internal/genai"
	"github.com/campaignforge/forge/internal/logging"
	"github.com/campaignforge/forge/internal/store"
	"github.com/campaignforge/forge/internal/streaming"
	"github.com/campaignforge/forge/pkg/schema"
)

// Animator turns a single generated item on an output node into a video.
// Animation is scoped to one item: it reads the item's image and prompt,
// drives an asynchronous video job to completion, and merges the result
// back into that item only. Other items on the node are never touched.
type Animator struct {
	store    store.GraphStore
	service  genai.Service
	hub      streaming.Hub
	breakers *CircuitBreakerRegistry
	cfg      Config
	log      *slog.Logger

	mu     sync.Mutex
	active map[string]struct{} // node IDs with an animation in flight
}

// NewAnimator creates an Animator sharing the engine's service, hub, and
// breaker registry.
func NewAnimator(gs store.GraphStore, svc genai.Service, hub streaming.Hub, breakers *CircuitBreakerRegistry, cfg Config, log *slog.Logger) *Animator {
	if log == nil {
		log = slog.Default()
	}
	return &Animator{
		store:    gs,
		service:  svc,
		hub:      hub,
		breakers: breakers,
		cfg:      cfg,
		log:      log,
		active:   make(map[string]struct{}),
	}
}

// Animate runs a blocking animation task for the item with the given
// index on the output node. At most one animation is active per node:
// a second call for the same node while one is in flight fails with
// CONFLICT, whatever its index. The node lock keeps the final item-list
// write from racing another task's; distinct nodes animate in parallel.
func (a *Animator) Animate(ctx context.Context, nodeID string, index int) error {
	if err := a.acquire(nodeID); err != nil {
		return err
	}
	defer a.release(nodeID)

	ctx = logging.WithNodeID(ctx, nodeID)
	log := a.log.With("item_index", index)

	item, err := a.lookupItem(ctx, nodeID, index)
	if err != nil {
		return err
	}
	if len(item.Image.Data) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "item %d has no image to animate", index).WithNode(nodeID)
	}

	a.publish(ctx, nodeID, schema.EventAnimationStarted, map[string]any{"index": index})
	log.InfoContext(ctx, "animation started")

	blob, err := a.generateVideo(ctx, item)
	if err != nil {
		ferr := asForgeError(err, schema.ErrCodeAnimation).WithNode(nodeID)
		a.publish(ctx, nodeID, schema.EventAnimationFailed, map[string]any{"index": index, "error": ferr.Message})
		log.ErrorContext(ctx, "animation failed", "error", ferr)
		return ferr
	}

	if err := a.mergeVideo(ctx, nodeID, index, blob); err != nil {
		return err
	}
	a.publish(ctx, nodeID, schema.EventAnimationCompleted, map[string]any{"index": index})
	log.InfoContext(ctx, "animation complete")
	return nil
}

// generateVideo drives the job lifecycle: submit seeded by the item's
// image, poll at the configured interval, then download the payload.
func (a *Animator) generateVideo(ctx context.Context, item *schema.GeneratedItem) (*schema.Blob, error) {
	prompt := fmt.Sprintf("Animate this image with subtle, cinematic motion. Scene: %s", item.Prompt)

	var handle genai.JobHandle
	err := a.withBreaker(func() error {
		var verr error
		handle, verr = a.service.StartVideoJob(ctx, prompt, &item.Image)
		return verr
	})
	if err != nil {
		return nil, err
	}

	for {
		status, err := a.service.PollVideoJob(ctx, handle)
		if err != nil {
			return nil, err
		}
		if status.Done {
			if status.ResultURI == "" {
				return nil, schema.NewError(schema.ErrCodeAnimation, "video job finished without a result")
			}
			return a.service.FetchVideo(ctx, status.ResultURI)
		}
		if err := Wait(ctx, a.cfg.PollInterval); err != nil {
			return nil, schema.NewError(schema.ErrCodeCancelled, "animation cancelled").WithCause(err)
		}
	}
}

// lookupItem finds the item with the given logical index in the node's
// compacted list. Position and index may differ when earlier indices
// failed to synthesize.
func (a *Animator) lookupItem(ctx context.Context, nodeID string, index int) (*schema.GeneratedItem, error) {
	node, err := a.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	for _, it := range node.Data.Items() {
		if it.Index == index {
			item := it
			return &item, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no generated item with index %d", index).WithNode(nodeID)
}

// mergeVideo re-reads the node and writes the full item list back with
// only the matching item's video set. Re-reading keeps the write from
// clobbering items that changed while the job ran.
func (a *Animator) mergeVideo(ctx context.Context, nodeID string, index int, video *schema.Blob) error {
	node, err := a.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	items := node.Data.Items()
	found := false
	for i := range items {
		if items[i].Index == index {
			items[i].Video = video
			found = true
			break
		}
	}
	if !found {
		return schema.NewErrorf(schema.ErrCodeNotFound, "item %d vanished during animation", index).WithNode(nodeID)
	}
	return a.store.UpdateNodeData(ctx, nodeID, schema.NodeData{schema.FieldItems: items})
}

func (a *Animator) withBreaker(fn func() error) error {
	if err := a.breakers.AllowRequest(CapabilityVideo); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if IsRetryableError(err) {
			a.breakers.RecordFailure(CapabilityVideo)
		}
		return err
	}
	a.breakers.RecordSuccess(CapabilityVideo)
	return nil
}

func (a *Animator) acquire(nodeID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.active[nodeID]; busy {
		return schema.NewError(schema.ErrCodeConflict, "an animation is already active for this node").WithNode(nodeID)
	}
	a.active[nodeID] = struct{}{}
	return nil
}

func (a *Animator) release(nodeID string) {
	a.mu.Lock()
	delete(a.active, nodeID)
	a.mu.Unlock()
}

func (a *Animator) publish(ctx context.Context, nodeID, eventType string, payload map[string]any) {
	if a.hub == nil {
		return
	}
	_ = a.hub.Publish(ctx, streaming.RunEvent{NodeID: nodeID, EventType: eventType, Payload: payload})
}
