package engine

import (
	"context"
	"log/slog"

	"github.com/campaignforge/forge/internal/store"
	"github.com/campaignforge/forge/pkg/schema"
)

// Propagator writes run results into downstream nodes. Every write is a
// merge-update: only the fields named here change, everything else the
// target node carries stays intact. Writes are idempotent, so replaying
// the same item list converges on the same node state.
type Propagator struct {
	store store.GraphStore
	log   *slog.Logger
}

// NewPropagator creates a Propagator over the given store.
func NewPropagator(gs store.GraphStore, log *slog.Logger) *Propagator {
	if log == nil {
		log = slog.Default()
	}
	return &Propagator{store: gs, log: log}
}

// Clear resets the output fields of each target ahead of a run. Stale
// items from a previous run never mix with the new run's results.
func (p *Propagator) Clear(ctx context.Context, targets []string) error {
	return p.apply(ctx, targets, schema.NodeData{
		schema.FieldItems:  []schema.GeneratedItem{},
		schema.FieldStatus: "Starting generation...",
	})
}

// PushItems replaces each target's item list and status in one write.
// The list is the run's full compacted result so far, not a delta.
func (p *Propagator) PushItems(ctx context.Context, targets []string, items []schema.GeneratedItem, status string) error {
	return p.apply(ctx, targets, schema.NodeData{
		schema.FieldItems:  items,
		schema.FieldStatus: status,
	})
}

// PushStatus updates only the status line of each target.
func (p *Propagator) PushStatus(ctx context.Context, targets []string, status string) error {
	return p.apply(ctx, targets, schema.NodeData{schema.FieldStatus: status})
}

// PushText writes generated text to each target.
func (p *Propagator) PushText(ctx context.Context, targets []string, content string) error {
	return p.apply(ctx, targets, schema.NodeData{
		schema.FieldContent: content,
		schema.FieldKind:    "text",
	})
}

// PushImage writes a generated image to each target.
func (p *Propagator) PushImage(ctx context.Context, targets []string, img schema.Blob) error {
	return p.apply(ctx, targets, schema.NodeData{
		schema.FieldImage: img,
		schema.FieldKind:  "image",
	})
}

// PushVideo writes a generated video to each target.
func (p *Propagator) PushVideo(ctx context.Context, targets []string, video schema.Blob) error {
	return p.apply(ctx, targets, schema.NodeData{
		schema.FieldMedia: video,
		schema.FieldKind:  "video",
	})
}

// PushNodeError records a failure message on the node itself so the
// graph shows why its last run died.
func (p *Propagator) PushNodeError(ctx context.Context, nodeID, message string) error {
	return p.apply(ctx, []string{nodeID}, schema.NodeData{schema.FieldLastError: message})
}

// ClearNodeError removes a node's recorded failure at the start of a
// fresh run.
func (p *Propagator) ClearNodeError(ctx context.Context, nodeID string) error {
	return p.apply(ctx, []string{nodeID}, schema.NodeData{schema.FieldLastError: ""})
}

func (p *Propagator) apply(ctx context.Context, targets []string, data schema.NodeData) error {
	for _, id := range targets {
		if err := p.store.UpdateNodeData(ctx, id, data); err != nil {
			p.log.ErrorContext(ctx, "propagation write failed", "target", id, "error", err)
			return err
		}
	}
	return nil
}
