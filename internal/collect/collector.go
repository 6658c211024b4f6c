// Package collect resolves a generator node's upstream inputs into the
// structured request a generation pipeline works from.
package collect

import (
	"context"

	"github.com/campaignforge/forge/internal/store"
	"github.com/campaignforge/forge/pkg/schema"
)

// Source is one upstream node's contribution to a generation request:
// a labeled piece of text and, if the node carries one, an inline media
// payload.
type Source struct {
	NodeID string
	Type   schema.NodeType
	Label  string
	Text   string
	Media  *schema.Blob
}

// Context is the resolved input of a generation run: ordered upstream
// sources plus the downstream node ids that accept the run's results.
type Context struct {
	Node    *schema.Node
	Sources []Source
	Targets []string
}

// Media returns the ordered inline media payloads of all sources.
func (c *Context) Media() []schema.Blob {
	var out []schema.Blob
	for _, s := range c.Sources {
		if s.Media != nil {
			out = append(out, *s.Media)
		}
	}
	return out
}

// ImageMedia returns the ordered media payloads that can be fed to image
// synthesis. Video payloads inform planning but cannot seed an image call.
func (c *Context) ImageMedia() []schema.Blob {
	var out []schema.Blob
	for _, s := range c.Sources {
		if s.Media != nil && !s.Media.IsVideo() {
			out = append(out, *s.Media)
		}
	}
	return out
}

// Collector resolves upstream context by walking the graph.
type Collector struct {
	store store.GraphStore
}

// New creates a Collector over the given graph store.
func New(gs store.GraphStore) *Collector {
	return &Collector{store: gs}
}

// Collect resolves the context for the generator node with the given id.
// Only nodes directly connected by an incoming edge contribute, in the
// edges' own order (the graph gives no stronger ordering guarantee).
// A node with no upstream edges yields an empty source list, not an
// error; only a missing node id fails.
func (c *Collector) Collect(ctx context.Context, nodeID string) (*Context, error) {
	node, err := c.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	nodes, err := c.store.GetNodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := c.store.GetEdges(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*schema.Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	out := &Context{Node: node}
	for _, e := range edges {
		if e.Target != nodeID {
			continue
		}
		src, ok := byID[e.Source]
		if !ok {
			continue // dangling edge, nothing to contribute
		}
		if s := sourceFrom(src); s != nil {
			out.Sources = append(out.Sources, *s)
		}
	}

	for _, e := range edges {
		if e.Source != nodeID {
			continue
		}
		tgt, ok := byID[e.Target]
		if !ok {
			continue
		}
		if schema.AcceptsResult(node.Type, tgt.Type) {
			out.Targets = append(out.Targets, tgt.ID)
		}
	}

	return out, nil
}

// sourceFrom extracts the per-variant textual context and media payload
// of an upstream node. Variants with nothing to contribute return nil.
func sourceFrom(n *schema.Node) *Source {
	s := &Source{NodeID: n.ID, Type: n.Type, Label: n.ContextLabel()}

	switch n.Type {
	case schema.NodeCampaignAsset:
		s.Text = firstOf(n.Data, schema.FieldDescription, schema.FieldPrompt)
		s.Media = n.Data.Blob(schema.FieldImage)
	case schema.NodeAssetGenerator:
		s.Text = firstOf(n.Data, schema.FieldDescription, schema.FieldPrompt)
		s.Media = n.Data.Blob(schema.FieldImage)
	case schema.NodeCampaignText:
		s.Text = n.Data.String(schema.FieldContent)
		s.Media = n.Data.Blob(schema.FieldMedia)
	case schema.NodeTextAsset:
		s.Text = n.Data.String(schema.FieldContent)
	case schema.NodeURLAsset:
		s.Text = n.Data.String(schema.FieldURL)
	case schema.NodeImageAsset:
		s.Media = n.Data.Blob(schema.FieldImage)
		s.Text = n.Data.String(schema.FieldLabel)
	default:
		return nil
	}

	// Connected-but-empty nodes still appear in the bundle; the prompt
	// builder renders them as "None" so authors see what the model saw.
	return s
}

// firstOf returns the first non-empty string field among keys.
func firstOf(d schema.NodeData, keys ...string) string {
	for _, k := range keys {
		if v := d.String(k); v != "" {
			return v
		}
	}
	return ""
}
