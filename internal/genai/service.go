// Package genai defines the generative capability boundary the engine
// drives, and an HTTP client for the Gemini REST API behind it. The
// engine never constructs HTTP requests itself; everything external
// passes through the Service interface so tests can substitute stubs.
package genai

import (
	"context"

	"github.com/campaignforge/forge/pkg/schema"
)

// Part is one element of an ordered request bundle: either text or an
// inline media payload.
type Part struct {
	Text string
	Blob *schema.Blob
}

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Text: s} }

// BlobPart builds an inline media part.
func BlobPart(b schema.Blob) Part { return Part{Blob: &b} }

// JobHandle identifies an asynchronous video synthesis job.
type JobHandle string

// JobStatus is a poll result for an asynchronous job.
type JobStatus struct {
	Done      bool
	ResultURI string
}

// Service is the external generative capability consumed by the engine.
// Every method honors the context deadline; implementations must apply a
// per-call timeout independent of any retry policy layered above.
type Service interface {
	// PlanConcepts requests a structured list of concepts for the given
	// ordered bundle. Fails with a PLANNING_ERROR when the response does
	// not parse as a non-empty concept array, or a TRANSPORT_ERROR on
	// network/service failure.
	PlanConcepts(ctx context.Context, parts []Part) ([]schema.Concept, error)

	// SynthesizeImage produces image bytes for the given ordered bundle.
	// A response with no image part is a failure.
	SynthesizeImage(ctx context.Context, parts []Part) (*schema.Blob, error)

	// GenerateText produces free text for the given ordered bundle.
	GenerateText(ctx context.Context, parts []Part) (string, error)

	// StartVideoJob submits an asynchronous video synthesis job, optionally
	// seeded by an image.
	StartVideoJob(ctx context.Context, prompt string, seed *schema.Blob) (JobHandle, error)

	// PollVideoJob reports whether the job has finished and, once done,
	// where the result can be fetched.
	PollVideoJob(ctx context.Context, handle JobHandle) (*JobStatus, error)

	// FetchVideo downloads a finished job's payload via an authenticated
	// transfer.
	FetchVideo(ctx context.Context, uri string) (*schema.Blob, error)
}
