package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignforge/forge/internal/store"
	"github.com/campaignforge/forge/pkg/schema"
)

func newBoardStore(t *testing.T, ids ...string) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	for _, id := range ids {
		require.NoError(t, s.AddNode(ctx, schema.Node{
			ID:   id,
			Type: schema.NodeCampaignOutput,
			Data: schema.NodeData{schema.FieldTitle: "Board " + id, "layout": "grid"},
		}))
	}
	return s
}

func TestPropagator_ClearResetsOutputs(t *testing.T) {
	s := newBoardStore(t, "out1", "out2")
	ctx := context.Background()
	require.NoError(t, s.UpdateNodeData(ctx, "out1", schema.NodeData{
		schema.FieldItems: []schema.GeneratedItem{{Index: 0, Title: "stale"}},
	}))

	p := NewPropagator(s, nil)
	require.NoError(t, p.Clear(ctx, []string{"out1", "out2"}))

	for _, id := range []string{"out1", "out2"} {
		n, err := s.GetNode(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, n.Data.Items())
		assert.Equal(t, "Starting generation...", n.Data.String(schema.FieldStatus))
		// unrelated fields survive the clear
		assert.Equal(t, "Board "+id, n.Data.String(schema.FieldTitle))
	}
}

func TestPropagator_PushItemsPreservesOtherFields(t *testing.T) {
	s := newBoardStore(t, "out1")
	ctx := context.Background()
	p := NewPropagator(s, nil)

	items := []schema.GeneratedItem{{Index: 0, Title: "hero"}}
	require.NoError(t, p.PushItems(ctx, []string{"out1"}, items, "Generated 1 of 9..."))

	n, err := s.GetNode(ctx, "out1")
	require.NoError(t, err)
	assert.Len(t, n.Data.Items(), 1)
	assert.Equal(t, "Generated 1 of 9...", n.Data.String(schema.FieldStatus))
	assert.Equal(t, "grid", n.Data["layout"])
}

func TestPropagator_PushItemsIdempotent(t *testing.T) {
	s := newBoardStore(t, "out1")
	ctx := context.Background()
	p := NewPropagator(s, nil)

	items := []schema.GeneratedItem{{Index: 0, Title: "hero"}, {Index: 2, Title: "detail"}}
	require.NoError(t, p.PushItems(ctx, []string{"out1"}, items, "Complete!"))
	first, err := s.GetNode(ctx, "out1")
	require.NoError(t, err)

	require.NoError(t, p.PushItems(ctx, []string{"out1"}, items, "Complete!"))
	second, err := s.GetNode(ctx, "out1")
	require.NoError(t, err)
	assert.Equal(t, first.Data.Items(), second.Data.Items())
	assert.Equal(t, first.Data.String(schema.FieldStatus), second.Data.String(schema.FieldStatus))
}

func TestPropagator_PushTextAndMedia(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AddNode(ctx, schema.Node{ID: "out", Type: schema.NodeOutput}))
	p := NewPropagator(s, nil)

	require.NoError(t, p.PushText(ctx, []string{"out"}, "fresh copy"))
	n, _ := s.GetNode(ctx, "out")
	assert.Equal(t, "fresh copy", n.Data.String(schema.FieldContent))
	assert.Equal(t, "text", n.Data.String(schema.FieldKind))

	require.NoError(t, p.PushImage(ctx, []string{"out"}, schema.Blob{Data: []byte{1}, MIME: "image/png"}))
	n, _ = s.GetNode(ctx, "out")
	assert.Equal(t, "image", n.Data.String(schema.FieldKind))
	require.NotNil(t, n.Data.Blob(schema.FieldImage))
	// the old text is still there: merges only touch named fields
	assert.Equal(t, "fresh copy", n.Data.String(schema.FieldContent))

	require.NoError(t, p.PushVideo(ctx, []string{"out"}, schema.Blob{Data: []byte{2}, MIME: "video/mp4"}))
	n, _ = s.GetNode(ctx, "out")
	assert.Equal(t, "video", n.Data.String(schema.FieldKind))
	require.NotNil(t, n.Data.Blob(schema.FieldMedia))
}

func TestPropagator_NodeError(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AddNode(ctx, schema.Node{ID: "gen", Type: schema.NodeCampaignGenerator}))
	p := NewPropagator(s, nil)

	require.NoError(t, p.PushNodeError(ctx, "gen", "planning failed: malformed response"))
	n, _ := s.GetNode(ctx, "gen")
	assert.Equal(t, "planning failed: malformed response", n.Data.String(schema.FieldLastError))

	require.NoError(t, p.ClearNodeError(ctx, "gen"))
	n, _ = s.GetNode(ctx, "gen")
	assert.Equal(t, "", n.Data.String(schema.FieldLastError))
}

func TestPropagator_MissingTargetFails(t *testing.T) {
	p := NewPropagator(store.NewMemoryStore(), nil)
	err := p.PushStatus(context.Background(), []string{"ghost"}, "x")
	var ferr *schema.ForgeError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeNotFound, ferr.Code)
}
