package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignforge/forge/pkg/schema"
)

func TestValidateGraph_Valid(t *testing.T) {
	nodes := []schema.Node{
		{ID: "a", Type: schema.NodeCampaignGenerator},
		{ID: "b", Type: schema.NodeCampaignOutput},
	}
	edges := []schema.Edge{
		{ID: "e1", Source: "a", Target: "b"},
		{ID: "e2", Source: "b", Target: "a", SourceHandle: schema.ItemHandle(0)},
	}
	assert.True(t, ValidateGraph(nodes, edges).Valid())
}

func TestValidateGraph_DuplicateIDs(t *testing.T) {
	nodes := []schema.Node{
		{ID: "a", Type: schema.NodeOutput},
		{ID: "a", Type: schema.NodeOutput},
	}
	result := ValidateGraph(nodes, nil)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0], "duplicate node id")
}

func TestValidateGraph_DanglingEdge(t *testing.T) {
	nodes := []schema.Node{{ID: "a", Type: schema.NodeGenerator}}
	edges := []schema.Edge{{ID: "e1", Source: "a", Target: "ghost"}}

	result := ValidateGraph(nodes, edges)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0], `target "ghost"`)
}

func TestValidateGraph_MalformedHandle(t *testing.T) {
	nodes := []schema.Node{
		{ID: "a", Type: schema.NodeCampaignOutput},
		{ID: "b", Type: schema.NodeSceneTimeline},
	}
	edges := []schema.Edge{{ID: "e1", Source: "a", Target: "b", SourceHandle: "item-x"}}
	assert.False(t, ValidateGraph(nodes, edges).Valid())
}

func TestValidateGraph_HandleBeyondItemsIsAllowed(t *testing.T) {
	// An out-of-range index means "not yet produced", not a broken graph.
	nodes := []schema.Node{
		{ID: "a", Type: schema.NodeCampaignOutput, Data: schema.NodeData{
			schema.FieldItems: []schema.GeneratedItem{{Index: 0}},
		}},
		{ID: "b", Type: schema.NodeSceneTimeline},
	}
	edges := []schema.Edge{{ID: "e1", Source: "a", Target: "b", SourceHandle: schema.ItemHandle(8)}}
	assert.True(t, ValidateGraph(nodes, edges).Valid())
}
