package collect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignforge/forge/internal/store"
	"github.com/campaignforge/forge/pkg/schema"
)

func buildGraph(t *testing.T, nodes []schema.Node, edges []schema.Edge) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	for _, n := range nodes {
		require.NoError(t, s.AddNode(ctx, n))
	}
	for _, e := range edges {
		require.NoError(t, s.AddEdge(ctx, e))
	}
	return s
}

func TestCollect_DirectSourcesOnly(t *testing.T) {
	// far -> near -> gen: only near contributes.
	s := buildGraph(t,
		[]schema.Node{
			{ID: "far", Type: schema.NodeTextAsset, Data: schema.NodeData{schema.FieldContent: "two hops away"}},
			{ID: "near", Type: schema.NodeTextAsset, Data: schema.NodeData{schema.FieldContent: "one hop away"}},
			{ID: "gen", Type: schema.NodeCampaignGenerator},
		},
		[]schema.Edge{
			{ID: "e1", Source: "far", Target: "near"},
			{ID: "e2", Source: "near", Target: "gen"},
		},
	)

	bundle, err := New(s).Collect(context.Background(), "gen")
	require.NoError(t, err)
	require.Len(t, bundle.Sources, 1)
	assert.Equal(t, "one hop away", bundle.Sources[0].Text)
}

func TestCollect_EdgeOrderPreserved(t *testing.T) {
	s := buildGraph(t,
		[]schema.Node{
			{ID: "a", Type: schema.NodeTextAsset, Data: schema.NodeData{schema.FieldContent: "first"}},
			{ID: "b", Type: schema.NodeTextAsset, Data: schema.NodeData{schema.FieldContent: "second"}},
			{ID: "c", Type: schema.NodeTextAsset, Data: schema.NodeData{schema.FieldContent: "third"}},
			{ID: "gen", Type: schema.NodeGenerator},
		},
		[]schema.Edge{
			{ID: "e1", Source: "a", Target: "gen"},
			{ID: "e2", Source: "b", Target: "gen"},
			{ID: "e3", Source: "c", Target: "gen"},
		},
	)

	bundle, err := New(s).Collect(context.Background(), "gen")
	require.NoError(t, err)
	require.Len(t, bundle.Sources, 3)
	assert.Equal(t, "first", bundle.Sources[0].Text)
	assert.Equal(t, "second", bundle.Sources[1].Text)
	assert.Equal(t, "third", bundle.Sources[2].Text)
}

func TestCollect_NoUpstreamIsEmptyNotError(t *testing.T) {
	s := buildGraph(t, []schema.Node{{ID: "gen", Type: schema.NodeCampaignGenerator}}, nil)

	bundle, err := New(s).Collect(context.Background(), "gen")
	require.NoError(t, err)
	assert.Empty(t, bundle.Sources)
	assert.Empty(t, bundle.Targets)
}

func TestCollect_MissingNode(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := New(s).Collect(context.Background(), "ghost")
	var ferr *schema.ForgeError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeNotFound, ferr.Code)
}

func TestCollect_TargetsFilteredByAcceptance(t *testing.T) {
	s := buildGraph(t,
		[]schema.Node{
			{ID: "gen", Type: schema.NodeCampaignGenerator},
			{ID: "board", Type: schema.NodeCampaignOutput},
			{ID: "single", Type: schema.NodeOutput}, // wrong sink for a campaign generator
		},
		[]schema.Edge{
			{ID: "e1", Source: "gen", Target: "board"},
			{ID: "e2", Source: "gen", Target: "single"},
		},
	)

	bundle, err := New(s).Collect(context.Background(), "gen")
	require.NoError(t, err)
	assert.Equal(t, []string{"board"}, bundle.Targets)
}

func TestCollect_SourceVariants(t *testing.T) {
	png := schema.Blob{Data: []byte{1}, MIME: "image/png"}
	mp4 := schema.Blob{Data: []byte{2}, MIME: "video/mp4"}

	s := buildGraph(t,
		[]schema.Node{
			{ID: "product", Type: schema.NodeCampaignAsset, Data: schema.NodeData{
				schema.FieldAssetType:   schema.AssetProduct,
				schema.FieldDescription: "headphones",
				schema.FieldImage:       png,
			}},
			{ID: "screen", Type: schema.NodeCampaignText, Data: schema.NodeData{
				schema.FieldContent: "model wears them on a train",
				schema.FieldMedia:   mp4,
			}},
			{ID: "url", Type: schema.NodeURLAsset, Data: schema.NodeData{schema.FieldURL: "https://example.com"}},
			{ID: "timeline", Type: schema.NodeSceneTimeline}, // contributes nothing
			{ID: "gen", Type: schema.NodeCampaignGenerator, Data: schema.NodeData{schema.FieldTopic: "launch"}},
		},
		[]schema.Edge{
			{ID: "e1", Source: "product", Target: "gen"},
			{ID: "e2", Source: "screen", Target: "gen"},
			{ID: "e3", Source: "url", Target: "gen"},
			{ID: "e4", Source: "timeline", Target: "gen"},
		},
	)

	bundle, err := New(s).Collect(context.Background(), "gen")
	require.NoError(t, err)
	require.Len(t, bundle.Sources, 3)

	assert.Equal(t, "PRODUCT", bundle.Sources[0].Label)
	assert.Equal(t, "headphones", bundle.Sources[0].Text)
	require.NotNil(t, bundle.Sources[0].Media)

	assert.Equal(t, "SCREEN CONTENT / ACTION", bundle.Sources[1].Label)
	require.NotNil(t, bundle.Sources[1].Media)
	assert.True(t, bundle.Sources[1].Media.IsVideo())

	assert.Equal(t, "https://example.com", bundle.Sources[2].Text)
}

func TestContext_ImageMediaExcludesVideo(t *testing.T) {
	bundle := &Context{Sources: []Source{
		{Media: &schema.Blob{Data: []byte{1}, MIME: "image/png"}},
		{Media: &schema.Blob{Data: []byte{2}, MIME: "video/mp4"}},
		{Media: nil},
	}}

	assert.Len(t, bundle.Media(), 2)
	imgs := bundle.ImageMedia()
	require.Len(t, imgs, 1)
	assert.Equal(t, "image/png", imgs[0].MIME)
}

func TestCollect_CampaignAssetFallsBackToPrompt(t *testing.T) {
	s := buildGraph(t,
		[]schema.Node{
			{ID: "hero", Type: schema.NodeAssetGenerator, Data: schema.NodeData{
				schema.FieldTitle:  "Hero",
				schema.FieldPrompt: "a climber at dawn",
			}},
			{ID: "gen", Type: schema.NodeCampaignGenerator},
		},
		[]schema.Edge{{ID: "e1", Source: "hero", Target: "gen"}},
	)

	bundle, err := New(s).Collect(context.Background(), "gen")
	require.NoError(t, err)
	require.Len(t, bundle.Sources, 1)
	assert.Equal(t, "HERO", bundle.Sources[0].Label)
	assert.Equal(t, "a climber at dawn", bundle.Sources[0].Text)
}
