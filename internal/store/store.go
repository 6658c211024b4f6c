package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/campaignforge/forge/pkg/schema"
)

// GraphStore owns the composition graph: nodes, edges, and key-addressed
// merge-updates into node data. All implementations must be safe for
// concurrent use. Merge-updates targeting different node ids never
// interfere; updates to the same id are applied in the order issued by a
// single caller.
type GraphStore interface {
	// GetNodes returns all nodes in insertion order.
	GetNodes(ctx context.Context) ([]schema.Node, error)

	// GetEdges returns all edges in insertion order.
	GetEdges(ctx context.Context) ([]schema.Edge, error)

	// GetNode returns a single node by id, or a NOT_FOUND error.
	GetNode(ctx context.Context, id string) (*schema.Node, error)

	// AddNode inserts a new node. Duplicate ids are a CONFLICT error.
	AddNode(ctx context.Context, node schema.Node) error

	// AddEdge inserts a new edge. Both endpoints must already exist.
	AddEdge(ctx context.Context, edge schema.Edge) error

	// UpdateNodeData merges partial into the node's data field-by-field:
	// last-writer-wins per field, unspecified fields untouched.
	UpdateNodeData(ctx context.Context, id string, partial schema.NodeData) error

	Close() error
}

// NewNodeID mints a fresh node identifier.
func NewNodeID() string {
	return uuid.NewString()
}

// ResolveHandle resolves an edge's sub-port against the source node's item
// list. A handle addressing an index that has not been produced yet (the
// run may still be populating items) resolves to nil, not an error.
func ResolveHandle(source *schema.Node, handle string) *schema.GeneratedItem {
	if source == nil || handle == "" {
		return nil
	}
	idx, ok := schema.HandleIndex(handle)
	if !ok {
		return nil
	}
	for _, item := range source.Data.Items() {
		if item.Index == idx {
			it := item
			return &it
		}
	}
	return nil
}
