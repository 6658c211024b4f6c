package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignforge/forge/internal/collect"
	"github.com/campaignforge/forge/pkg/schema"
)

func campaignBundle() *collect.Context {
	return &collect.Context{
		Node: &schema.Node{
			ID:   "gen",
			Type: schema.NodeCampaignGenerator,
			Data: schema.NodeData{schema.FieldTopic: "spring launch"},
		},
		Sources: []collect.Source{
			{
				Type:  schema.NodeCampaignAsset,
				Label: "PRODUCT",
				Text:  "matte black headphones",
				Media: &schema.Blob{Data: []byte{1}, MIME: "image/jpeg"},
			},
			{
				Type:  schema.NodeCampaignAsset,
				Label: "ENVIRONMENT",
				Text:  "", // connected but empty
			},
			{
				Type:  schema.NodeCampaignText,
				Label: "SCREEN CONTENT / ACTION",
				Text:  "model wears them on a train",
				Media: &schema.Blob{Data: []byte{2}, MIME: "video/mp4"},
			},
		},
		Targets: []string{"board"},
	}
}

func TestCampaignContextText(t *testing.T) {
	text := campaignContextText(campaignBundle())

	assert.Contains(t, text, "Campaign Theme: spring launch")
	assert.Contains(t, text, "PRODUCT DESCRIPTION: matte black headphones")
	assert.Contains(t, text, "(See attached image for product)")
	assert.Contains(t, text, "ENVIRONMENT DESCRIPTION: None")
	assert.Contains(t, text, "SCREEN CONTENT / ACTION: model wears them on a train")
	assert.Contains(t, text, "(See attached media for Screen Content / Action)")
}

func TestCampaignContextText_DefaultTheme(t *testing.T) {
	bundle := &collect.Context{Node: &schema.Node{Type: schema.NodeCampaignGenerator}}
	assert.Contains(t, campaignContextText(bundle), "A creative marketing campaign")
}

func TestConceptParts(t *testing.T) {
	parts := conceptParts(campaignBundle(), 9)

	// all media first (video included for planning), instructions last
	require.Len(t, parts, 3)
	assert.NotNil(t, parts[0].Blob)
	assert.True(t, parts[1].Blob.IsVideo())
	assert.Contains(t, parts[2].Text, "generate exactly 9 distinct")
	assert.Contains(t, parts[2].Text, "ENVIRONMENT INTEGRATION")
	assert.Contains(t, parts[2].Text, "Campaign Theme: spring launch")
}

func TestImageParts_ExcludesVideoMedia(t *testing.T) {
	concept := schema.Concept{Title: "Hero", Prompt: "low angle product shot"}
	parts := imageParts(campaignBundle(), concept)

	// only the image blob conditions synthesis; the video stays out
	require.Len(t, parts, 2)
	assert.Equal(t, "image/jpeg", parts[0].Blob.MIME)
	assert.Contains(t, parts[1].Text, "low angle product shot")
	assert.Contains(t, parts[1].Text, "CRITICAL INTEGRATION RULES")
}

func TestSimpleTextParts(t *testing.T) {
	bundle := &collect.Context{
		Node: &schema.Node{
			Type: schema.NodeGenerator,
			Data: schema.NodeData{
				schema.FieldTopic:    "product teaser",
				schema.FieldPlatform: "Instagram",
			},
		},
		Sources: []collect.Source{
			{Type: schema.NodeTextAsset, Label: "TEXTASSET", Text: "brand voice: warm"},
			{Type: schema.NodeURLAsset, Label: "URLASSET", Text: "https://example.com"},
			{
				Type:  schema.NodeImageAsset,
				Label: "Logo",
				Media: &schema.Blob{Data: []byte{1}, MIME: "image/png"},
			},
		},
	}

	parts := simpleTextParts(bundle)
	require.Len(t, parts, 2) // image + prompt text
	assert.NotNil(t, parts[0].Blob)

	text := parts[1].Text
	assert.Contains(t, text, "- Asset 1 (TEXTASSET): brand voice: warm")
	assert.Contains(t, text, "Read and analyze this website")
	assert.Contains(t, text, "[See attached image]")
	assert.Contains(t, text, "Instagram")
	assert.Contains(t, text, `"product teaser"`)
}

func TestSimpleTextParts_NoSources(t *testing.T) {
	bundle := &collect.Context{Node: &schema.Node{Type: schema.NodeGenerator}}
	parts := simpleTextParts(bundle)
	require.Len(t, parts, 1)
	assert.Contains(t, parts[0].Text, "No context assets provided")
	assert.Contains(t, parts[0].Text, "LinkedIn") // default platform
}

func TestSimpleVideoPrompt_FirstImageSeeds(t *testing.T) {
	bundle := &collect.Context{
		Node: &schema.Node{Type: schema.NodeGenerator, Data: schema.NodeData{schema.FieldTopic: "coastline"}},
		Sources: []collect.Source{
			{Type: schema.NodeTextAsset, Text: "golden hour"},
			{Type: schema.NodeImageAsset, Media: &schema.Blob{Data: []byte{1}, MIME: "image/png"}},
			{Type: schema.NodeImageAsset, Media: &schema.Blob{Data: []byte{2}, MIME: "image/png"}},
		},
	}

	prompt, seed := simpleVideoPrompt(bundle)
	assert.True(t, strings.Contains(prompt, "coastline"))
	assert.Contains(t, prompt, "golden hour")
	require.NotNil(t, seed)
	assert.Equal(t, []byte{1}, seed.Data)
}

func TestSimpleVideoPrompt_NoSeed(t *testing.T) {
	bundle := &collect.Context{Node: &schema.Node{Type: schema.NodeGenerator}}
	_, seed := simpleVideoPrompt(bundle)
	assert.Nil(t, seed)
}
