package store

import (
	"context"
	"sync"

	"github.com/campaignforge/forge/pkg/schema"
)

// MemoryStore is the in-memory GraphStore used by an interactive session.
// Nodes and edges keep insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	nodes map[string]*schema.Node
	edges []schema.Edge
	byID  map[string]struct{} // edge ids
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*schema.Node),
		byID:  make(map[string]struct{}),
	}
}

func (s *MemoryStore) GetNodes(ctx context.Context) ([]schema.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schema.Node, 0, len(s.order))
	for _, id := range s.order {
		n := s.nodes[id]
		out = append(out, schema.Node{ID: n.ID, Type: n.Type, Data: n.Data.Clone()})
	}
	return out, nil
}

func (s *MemoryStore) GetEdges(ctx context.Context) ([]schema.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schema.Edge, len(s.edges))
	copy(out, s.edges)
	return out, nil
}

func (s *MemoryStore) GetNode(ctx context.Context, id string) (*schema.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node not found: %s", id).WithNode(id)
	}
	return &schema.Node{ID: n.ID, Type: n.Type, Data: n.Data.Clone()}, nil
}

func (s *MemoryStore) AddNode(ctx context.Context, node schema.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := node.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[node.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "node already exists: %s", node.ID).WithNode(node.ID)
	}
	if node.Data == nil {
		node.Data = schema.NodeData{}
	}
	n := node
	n.Data = node.Data.Clone()
	s.nodes[node.ID] = &n
	s.order = append(s.order, node.ID)
	return nil
}

func (s *MemoryStore) AddEdge(ctx context.Context, edge schema.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := edge.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[edge.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "edge already exists: %s", edge.ID)
	}
	if _, ok := s.nodes[edge.Source]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "edge %s source not found: %s", edge.ID, edge.Source)
	}
	if _, ok := s.nodes[edge.Target]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "edge %s target not found: %s", edge.ID, edge.Target)
	}
	s.edges = append(s.edges, edge)
	s.byID[edge.ID] = struct{}{}
	return nil
}

func (s *MemoryStore) UpdateNodeData(ctx context.Context, id string, partial schema.NodeData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node not found: %s", id).WithNode(id)
	}
	n.Data = n.Data.Merge(partial)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
