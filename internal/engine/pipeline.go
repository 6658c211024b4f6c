package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campaignforge/forge/internal/collect"
	"github.com/campaignforge/forge/internal/genai"
	"github.com/campaignforge/forge/internal/store"
	"github.com/campaignforge/forge/internal/streaming"
	"github.com/campaignforge/forge/pkg/schema"
)

// pipeline executes generation runs. One pipeline serves all runs; each
// run carries its own context, Run record, and resolved input bundle.
type pipeline struct {
	store     store.GraphStore
	collector *collect.Collector
	service   genai.Service
	prop      *Propagator
	fsm       *RunFSM
	hub       streaming.Hub
	breakers  *CircuitBreakerRegistry
	cfg       Config
	log       *slog.Logger
}

// runCampaign drives a campaign generator node through planning and
// sequential image synthesis. Planning failure kills the run before any
// item is produced; per-index synthesis failure only costs that index.
func (p *pipeline) runCampaign(ctx context.Context, run *Run) *RunResult {
	if err := p.fsm.Transition(ctx, run, schema.RunStagePlanning); err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodeInvalidTransition))
	}
	p.progress(ctx, run, 0, "Analyzing assets...")
	bundle, err := p.collector.Collect(ctx, run.NodeID)
	if err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodePlanning))
	}

	_ = p.prop.ClearNodeError(ctx, run.NodeID)
	if err := p.prop.Clear(ctx, bundle.Targets); err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodeStore))
	}

	total := p.cfg.ConceptCount
	p.progress(ctx, run, 0, fmt.Sprintf("Generating %d campaign concepts...", total))

	var concepts []schema.Concept
	err = p.withBreaker(ctx, CapabilityPlan, func() error {
		var perr error
		concepts, perr = p.service.PlanConcepts(ctx, conceptParts(bundle, total))
		return perr
	})
	if err != nil {
		if p.cancelled(ctx, run) {
			return p.abort(ctx, run, nil)
		}
		ferr := asForgeError(err, schema.ErrCodePlanning).WithNode(run.NodeID)
		_ = p.prop.PushNodeError(ctx, run.NodeID, ferr.Message)
		p.log.ErrorContext(ctx, "concept planning failed", "error", ferr)
		return p.fail(ctx, run, ferr)
	}
	if len(concepts) > total {
		concepts = concepts[:total]
	}

	if err := p.fsm.Transition(ctx, run, schema.RunStageSynthesizing); err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodeInvalidTransition))
	}

	items := make([]schema.GeneratedItem, 0, len(concepts))
	for i, concept := range concepts {
		if p.cancelled(ctx, run) {
			return p.abort(ctx, run, items)
		}
		p.progress(ctx, run, i, fmt.Sprintf("Generating image %d of %d...", i+1, total))

		blob, ok := p.synthesizeWithRetry(ctx, run, bundle, concept, i, total)
		if p.cancelled(ctx, run) {
			return p.abort(ctx, run, items)
		}
		if !ok {
			// This index is lost; the run carries on with a compacted list.
			p.log.WarnContext(ctx, "image synthesis exhausted retries", "index", i)
			continue
		}

		items = append(items, schema.GeneratedItem{
			Index:  i,
			Title:  concept.Title,
			Prompt: concept.Prompt,
			Image:  *blob,
		})
		status := fmt.Sprintf("Generated %d of %d...", i+1, total)
		if err := p.prop.PushItems(ctx, bundle.Targets, items, status); err != nil {
			return p.fail(ctx, run, asForgeError(err, schema.ErrCodeStore))
		}
		p.publish(ctx, run, schema.EventRunItem, map[string]any{"index": i, "title": concept.Title})

		if i < len(concepts)-1 && p.cfg.CourtesyDelay > 0 {
			if err := Wait(ctx, p.cfg.CourtesyDelay); err != nil {
				return p.abort(ctx, run, items)
			}
		}
	}

	// A run that lost every index still completes; emptiness is a result.
	if err := p.prop.PushItems(ctx, bundle.Targets, items, "Complete!"); err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodeStore))
	}
	_ = p.fsm.Transition(ctx, run, schema.RunStageComplete)
	p.log.InfoContext(ctx, "campaign run complete", "items", len(items))
	return p.result(run, items, nil)
}

// synthesizeWithRetry attempts one index up to the configured attempt
// budget, waiting out the backoff between attempts. Every failure
// consumes an attempt, including responses that came back without an
// image; only cancellation cuts the budget short. Returns false once
// the budget is exhausted.
func (p *pipeline) synthesizeWithRetry(ctx context.Context, run *Run, bundle *collect.Context, concept schema.Concept, index, total int) (*schema.Blob, bool) {
	parts := imageParts(bundle, concept)
	for attempt := 1; attempt <= p.cfg.ImageAttempts; attempt++ {
		run.setProgress(index, attempt)

		var blob *schema.Blob
		err := p.withBreaker(ctx, CapabilityImage, func() error {
			var serr error
			blob, serr = p.service.SynthesizeImage(ctx, parts)
			return serr
		})
		if err == nil {
			return blob, true
		}
		run.setError(asForgeError(err, schema.ErrCodeSynthesis).WithNode(run.NodeID))
		if p.cancelled(ctx, run) || attempt == p.cfg.ImageAttempts {
			return nil, false
		}

		if terr := p.fsm.Transition(ctx, run, schema.RunStageRetrying); terr != nil {
			return nil, false
		}
		p.publish(ctx, run, schema.EventRunProgress, map[string]any{
			"status": fmt.Sprintf("Rate limit hit, waiting to retry image %d... (%d retries left)", index+1, p.cfg.ImageAttempts-attempt),
			"index":  index,
		})
		if werr := Wait(ctx, p.cfg.RetryBackoff.Delay(attempt)); werr != nil {
			return nil, false
		}
		if terr := p.fsm.Transition(ctx, run, schema.RunStageSynthesizing); terr != nil {
			return nil, false
		}
	}
	return nil, false
}

// runSimple drives a single-output generator node. The output kind on
// the node picks the capability; one result merges into each target.
func (p *pipeline) runSimple(ctx context.Context, run *Run) *RunResult {
	if err := p.fsm.Transition(ctx, run, schema.RunStagePlanning); err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodeInvalidTransition))
	}
	bundle, err := p.collector.Collect(ctx, run.NodeID)
	if err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodePlanning))
	}

	_ = p.prop.ClearNodeError(ctx, run.NodeID)
	if err := p.fsm.Transition(ctx, run, schema.RunStageSynthesizing); err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodeInvalidTransition))
	}

	outputKind := bundle.Node.Data.String(schema.FieldOutputType)
	if outputKind == "" {
		outputKind = "text"
	}

	switch outputKind {
	case "text":
		var text string
		err = p.withBreaker(ctx, CapabilityText, func() error {
			var gerr error
			text, gerr = p.service.GenerateText(ctx, simpleTextParts(bundle))
			return gerr
		})
		if err == nil {
			err = p.prop.PushText(ctx, bundle.Targets, text)
		}
	case "image":
		var blob *schema.Blob
		err = p.withBreaker(ctx, CapabilityImage, func() error {
			var serr error
			blob, serr = p.service.SynthesizeImage(ctx, simpleImageParts(bundle))
			return serr
		})
		if err == nil {
			err = p.prop.PushImage(ctx, bundle.Targets, *blob)
		}
	case "video":
		err = p.runSimpleVideo(ctx, run, bundle)
	default:
		err = schema.NewErrorf(schema.ErrCodeValidation, "unknown output kind %q", outputKind)
	}

	if err != nil {
		if p.cancelled(ctx, run) {
			return p.abort(ctx, run, nil)
		}
		ferr := asForgeError(err, schema.ErrCodeSynthesis).WithNode(run.NodeID)
		_ = p.prop.PushNodeError(ctx, run.NodeID, ferr.Message)
		p.log.ErrorContext(ctx, "generator run failed", "kind", outputKind, "error", ferr)
		return p.fail(ctx, run, ferr)
	}

	_ = p.fsm.Transition(ctx, run, schema.RunStageComplete)
	p.log.InfoContext(ctx, "generator run complete", "kind", outputKind)
	return p.result(run, nil, nil)
}

// runSimpleVideo submits a video job, polls it to completion, downloads
// the payload, and merges it into each target.
func (p *pipeline) runSimpleVideo(ctx context.Context, run *Run, bundle *collect.Context) error {
	prompt, seed := simpleVideoPrompt(bundle)

	var handle genai.JobHandle
	err := p.withBreaker(ctx, CapabilityVideo, func() error {
		var verr error
		handle, verr = p.service.StartVideoJob(ctx, prompt, seed)
		return verr
	})
	if err != nil {
		return err
	}

	uri, err := p.pollVideo(ctx, handle)
	if err != nil {
		return err
	}

	blob, err := p.service.FetchVideo(ctx, uri)
	if err != nil {
		return err
	}
	return p.prop.PushVideo(ctx, bundle.Targets, *blob)
}

// pollVideo waits on an asynchronous job until it reports done, checking
// the context at every poll interval.
func (p *pipeline) pollVideo(ctx context.Context, handle genai.JobHandle) (string, error) {
	for {
		status, err := p.service.PollVideoJob(ctx, handle)
		if err != nil {
			return "", err
		}
		if status.Done {
			if status.ResultURI == "" {
				return "", schema.NewError(schema.ErrCodeAnimation, "video job finished without a result")
			}
			return status.ResultURI, nil
		}
		if err := Wait(ctx, p.cfg.PollInterval); err != nil {
			return "", schema.NewError(schema.ErrCodeCancelled, "video poll cancelled").WithCause(err)
		}
	}
}

// runAsset drives an asset generator node: one image from the node's own
// prompt, written back onto the node itself rather than a downstream
// target.
func (p *pipeline) runAsset(ctx context.Context, run *Run) *RunResult {
	if err := p.fsm.Transition(ctx, run, schema.RunStagePlanning); err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodeInvalidTransition))
	}
	node, err := p.store.GetNode(ctx, run.NodeID)
	if err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodeStore))
	}
	if err := p.fsm.Transition(ctx, run, schema.RunStageSynthesizing); err != nil {
		return p.fail(ctx, run, asForgeError(err, schema.ErrCodeInvalidTransition))
	}

	prompt := node.Data.String(schema.FieldPrompt)
	if prompt == "" {
		prompt = "A professional fashion model"
	}

	var blob *schema.Blob
	err = p.withBreaker(ctx, CapabilityImage, func() error {
		var serr error
		blob, serr = p.service.SynthesizeImage(ctx, []genai.Part{genai.TextPart(prompt)})
		return serr
	})
	if err == nil {
		err = p.store.UpdateNodeData(ctx, run.NodeID, schema.NodeData{schema.FieldImage: *blob})
	}
	if err != nil {
		if p.cancelled(ctx, run) {
			return p.abort(ctx, run, nil)
		}
		ferr := asForgeError(err, schema.ErrCodeSynthesis).WithNode(run.NodeID)
		_ = p.prop.PushNodeError(ctx, run.NodeID, ferr.Message)
		return p.fail(ctx, run, ferr)
	}

	_ = p.fsm.Transition(ctx, run, schema.RunStageComplete)
	return p.result(run, nil, nil)
}

// withBreaker routes one service call through the capability's circuit
// breaker. Only transient failures count toward opening the circuit; a
// well-formed response the caller rejects says nothing about the
// service's health.
func (p *pipeline) withBreaker(ctx context.Context, capability string, fn func() error) error {
	if err := p.breakers.AllowRequest(capability); err != nil {
		p.publish(ctx, nil, schema.EventBreakerOpen, map[string]any{"capability": capability})
		return err
	}
	if err := fn(); err != nil {
		if IsRetryableError(err) {
			p.breakers.RecordFailure(capability)
		}
		return err
	}
	p.breakers.RecordSuccess(capability)
	return nil
}

func (p *pipeline) cancelled(ctx context.Context, run *Run) bool {
	return ctx.Err() != nil || run.Snapshot().Cancelled
}

func (p *pipeline) progress(ctx context.Context, run *Run, index int, status string) {
	run.setProgress(index, 0)
	p.publish(ctx, run, schema.EventRunProgress, map[string]any{"status": status, "index": index})
}

func (p *pipeline) publish(ctx context.Context, run *Run, eventType string, payload map[string]any) {
	if p.hub == nil {
		return
	}
	ev := streaming.RunEvent{EventType: eventType, Payload: payload}
	if run != nil {
		ev.NodeID = run.NodeID
		ev.RunID = run.ID
	}
	_ = p.hub.Publish(ctx, ev)
}

// fail moves the run to Failed through whatever path the table allows
// and returns the terminal result.
func (p *pipeline) fail(ctx context.Context, run *Run, ferr *schema.ForgeError) *RunResult {
	run.setError(ferr)
	if terr := p.fsm.Transition(ctx, run, schema.RunStageFailed); terr != nil {
		// From a stage with no Failed edge; cancellation is always reachable.
		_ = p.fsm.Transition(ctx, run, schema.RunStageCancelled)
	}
	return p.result(run, nil, ferr)
}

// abort moves the run to Cancelled, keeping whatever items already
// propagated.
func (p *pipeline) abort(ctx context.Context, run *Run, items []schema.GeneratedItem) *RunResult {
	_ = p.fsm.Transition(ctx, run, schema.RunStageCancelled)
	return p.result(run, items, run.Snapshot().LastError)
}

func (p *pipeline) result(run *Run, items []schema.GeneratedItem, ferr *schema.ForgeError) *RunResult {
	snap := run.Snapshot()
	return &RunResult{
		RunID:       snap.ID,
		NodeID:      snap.NodeID,
		Stage:       snap.Stage,
		Items:       items,
		Error:       ferr,
		StartedAt:   snap.StartedAt,
		CompletedAt: time.Now().UTC(),
	}
}

// asForgeError normalizes an arbitrary error into a ForgeError, keeping
// structured errors as-is and wrapping everything else under code.
func asForgeError(err error, code string) *schema.ForgeError {
	var ferr *schema.ForgeError
	if errors.As(err, &ferr) {
		return ferr
	}
	if errors.Is(err, context.Canceled) {
		return schema.NewError(schema.ErrCodeCancelled, "operation cancelled").WithCause(err)
	}
	return schema.NewError(code, err.Error()).WithCause(err)
}
