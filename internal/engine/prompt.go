package engine

import (
	"fmt"
	"strings"

	"github.com/campaignforge/forge/internal/collect"
	"github.com/campaignforge/forge/internal/genai"
	"github.com/campaignforge/forge/pkg/schema"
)

const conceptInstructions = `You are an expert creative director. Based on the provided assets and theme, generate exactly %d distinct, highly detailed image generation prompts for a marketing campaign.

CRITICAL INSTRUCTIONS:
1. ENVIRONMENT INTEGRATION: The "Product" and "Hero/Character" MUST be physically interacting with the "Environment". They should rest on surfaces, cast shadows, and be affected by the environment's lighting. Do NOT just use the environment as a flat backdrop.
2. REALISM & DEPTH: Describe how the product sits within the 3D space of the scene. Mention reflections, shadows, and physical contact with objects in the environment.
3. SCREEN CONTENT: Strictly follow the "SCREEN CONTENT / ACTION" directions for what is happening in the shots.
4. CAMPAIGN AESTHETIC: To make these feel like a premium ad campaign, include photography directions in your prompts (e.g., "shot on 35mm, cinematic lighting, editorial composition, commercial product photography, dramatic depth of field, vibrant color grading").
5. VARIATION: The %d images should form a cohesive "set" showing different camera angles (close-up, wide shot, low angle) while adhering to the screen content guidelines.

%s`

const imageIntegrationRules = `Generate a high-end commercial campaign image based on this prompt: %s.

CRITICAL INTEGRATION RULES:
1. DO NOT just paste or superimpose the product/character over the background.
2. The subjects MUST physically exist within the 3D space of the environment.
3. They must cast realistic shadows onto the environment's surfaces (e.g., desks, floors).
4. They must reflect the environment's lighting and colors.
5. Ensure correct perspective, scale, and depth of field.

AESTHETIC: Masterpiece, photorealistic, award-winning commercial photography, cinematic lighting, 8k resolution.`

// campaignContextText renders the upstream source bundle as the labeled
// text block the planner reads. Empty sources render as "None" so authors
// can see exactly what the model saw.
func campaignContextText(bundle *collect.Context) string {
	var b strings.Builder
	theme := bundle.Node.Data.String(schema.FieldTopic)
	if theme == "" {
		theme = "A creative marketing campaign"
	}
	fmt.Fprintf(&b, "Campaign Theme: %s\n\n", theme)

	for _, s := range bundle.Sources {
		text := s.Text
		if text == "" {
			text = "None"
		}
		switch s.Type {
		case schema.NodeCampaignText:
			fmt.Fprintf(&b, "%s: %s\n", s.Label, text)
			if s.Media != nil {
				b.WriteString("(See attached media for Screen Content / Action)\n")
			}
		default:
			fmt.Fprintf(&b, "%s DESCRIPTION: %s\n", s.Label, text)
			if s.Media != nil {
				fmt.Fprintf(&b, "(See attached image for %s)\n", strings.ToLower(s.Label))
			}
		}
	}
	return b.String()
}

// conceptParts builds the planner request: every upstream media payload
// followed by the concept instructions and context block.
func conceptParts(bundle *collect.Context, count int) []genai.Part {
	var parts []genai.Part
	for _, m := range bundle.Media() {
		parts = append(parts, genai.BlobPart(m))
	}
	parts = append(parts, genai.TextPart(fmt.Sprintf(conceptInstructions, count, count, campaignContextText(bundle))))
	return parts
}

// imageParts builds one synthesis request: image-capable upstream media
// as conditioning references plus the concept prompt wrapped in the
// integration rules.
func imageParts(bundle *collect.Context, concept schema.Concept) []genai.Part {
	var parts []genai.Part
	for _, m := range bundle.ImageMedia() {
		parts = append(parts, genai.BlobPart(m))
	}
	parts = append(parts, genai.TextPart(fmt.Sprintf(imageIntegrationRules, concept.Prompt)))
	return parts
}

// simpleTextParts builds the request for a text-output generator run:
// an enumerated context-asset list followed by the writing task.
func simpleTextParts(bundle *collect.Context) []genai.Part {
	var parts []genai.Part
	var b strings.Builder

	b.WriteString("You are an expert brand copywriter and social media manager.\n\n")
	b.WriteString("CONTEXT ASSETS:\n")
	if len(bundle.Sources) == 0 {
		b.WriteString("(No context assets provided. Rely on general knowledge.)\n")
	}
	for i, s := range bundle.Sources {
		label := s.Label
		switch s.Type {
		case schema.NodeTextAsset:
			fmt.Fprintf(&b, "- Asset %d (%s): %s\n", i+1, label, s.Text)
		case schema.NodeURLAsset:
			fmt.Fprintf(&b, "- Asset %d (%s): %s (Read and analyze this website)\n", i+1, label, s.Text)
		case schema.NodeImageAsset:
			fmt.Fprintf(&b, "- Asset %d (%s): [See attached image]\n", i+1, label)
			if s.Media != nil {
				parts = append(parts, genai.BlobPart(*s.Media))
			}
		}
	}

	platform := bundle.Node.Data.String(schema.FieldPlatform)
	if platform == "" {
		platform = "LinkedIn"
	}
	topic := bundle.Node.Data.String(schema.FieldTopic)
	fmt.Fprintf(&b, "\nTASK:\nWrite a highly engaging piece of content for %s about the following topic:\n%q\n", platform, topic)
	b.WriteString("\nREQUIREMENTS:\n1. Use the provided context assets to inform the tone, style, and factual details.\n2. Optimize for the platform.\n3. Do not include placeholder text.\n")

	parts = append(parts, genai.TextPart(b.String()))
	return parts
}

// simpleImageParts builds the request for an image-output generator run.
func simpleImageParts(bundle *collect.Context) []genai.Part {
	var parts []genai.Part
	var b strings.Builder
	fmt.Fprintf(&b, "Generate an image based on the following topic/prompt: %q. ", bundle.Node.Data.String(schema.FieldTopic))
	for i, s := range bundle.Sources {
		switch s.Type {
		case schema.NodeTextAsset:
			fmt.Fprintf(&b, "Context %d: %s. ", i+1, s.Text)
		case schema.NodeImageAsset:
			if s.Media != nil {
				parts = append(parts, genai.BlobPart(*s.Media))
			}
		}
	}
	parts = append(parts, genai.TextPart(b.String()))
	return parts
}

// simpleVideoPrompt builds the prompt text and optional seed image for a
// video-output generator run. Only the first upstream image seeds the job.
func simpleVideoPrompt(bundle *collect.Context) (string, *schema.Blob) {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a video based on the following topic/prompt: %q. ", bundle.Node.Data.String(schema.FieldTopic))
	var seed *schema.Blob
	for i, s := range bundle.Sources {
		switch s.Type {
		case schema.NodeTextAsset:
			fmt.Fprintf(&b, "Context %d: %s. ", i+1, s.Text)
		case schema.NodeImageAsset:
			if s.Media != nil && seed == nil {
				m := *s.Media
				seed = &m
			}
		}
	}
	return b.String(), seed
}
