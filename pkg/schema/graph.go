package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NodeType identifies the variant of a node's data payload.
type NodeType string

const (
	NodeCampaignAsset     NodeType = "campaignAsset"     // product | character | environment
	NodeCampaignText      NodeType = "campaignText"      // screen content / action
	NodeTextAsset         NodeType = "textAsset"
	NodeURLAsset          NodeType = "urlAsset"
	NodeImageAsset        NodeType = "imageAsset"
	NodeAssetGenerator    NodeType = "assetGenerator"
	NodeGenerator         NodeType = "generator"         // single-output pipeline
	NodeCampaignGenerator NodeType = "campaignGenerator" // multi-item pipeline
	NodeOutput            NodeType = "output"
	NodeCampaignOutput    NodeType = "campaignOutput" // multi-item board
	NodeSceneTimeline     NodeType = "sceneTimeline"
	NodeChat              NodeType = "chat"
	NodeGroup             NodeType = "group"
)

// Asset sub-types carried in FieldAssetType on campaignAsset nodes.
const (
	AssetProduct     = "product"
	AssetCharacter   = "character"
	AssetEnvironment = "environment"
)

// Well-known node data fields. Data payloads are open maps so the store
// can merge them without variant-specific code; these constants name the
// fields each variant is expected to carry.
const (
	FieldAssetType   = "assetType"
	FieldDescription = "description"
	FieldPrompt      = "prompt"
	FieldContent     = "content"
	FieldTopic       = "topic"
	FieldTitle       = "title"
	FieldLabel       = "label"
	FieldURL         = "url"
	FieldPlatform    = "platform"
	FieldOutputType  = "outputType" // "text" | "image" on generator nodes
	FieldKind        = "kind"       // result kind written to output nodes
	FieldStatus      = "status"
	FieldItems       = "items"
	FieldImage       = "image" // Blob
	FieldMedia       = "media" // Blob, may be video on campaignText nodes
	FieldLastError   = "lastError"
)

// Blob is an inline media payload: raw bytes plus MIME type.
type Blob struct {
	Data []byte `json:"data"`
	MIME string `json:"mime"`
}

// IsVideo reports whether the blob carries video content.
func (b Blob) IsVideo() bool {
	return strings.HasPrefix(b.MIME, "video/")
}

// GeneratedItem is one produced entry of a multi-item board.
// Index is the concept index the item was synthesized for; the containing
// list is compacted, so Index may not equal the slice position.
type GeneratedItem struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	Image  Blob   `json:"image"`
	Video  *Blob  `json:"video,omitempty"`
}

// Concept is an intermediate planning artifact: a short title paired with
// a detailed synthesis prompt.
type Concept struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

// NodeData is the variant payload of a node. It is an open field map;
// mutation goes through merges (last-writer-wins per field).
type NodeData map[string]any

// Node is a typed unit of data/action in the composition graph.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Data NodeData `json:"data"`
}

// Edge is a directed connection between two nodes. SourceHandle optionally
// addresses one element of a multi-item source node.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Merge returns a copy of d with every field of partial applied on top.
// Fields absent from partial are untouched. A nil receiver is treated as
// an empty map.
func (d NodeData) Merge(partial NodeData) NodeData {
	out := make(NodeData, len(d)+len(partial))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of the data map.
func (d NodeData) Clone() NodeData {
	if d == nil {
		return NodeData{}
	}
	out := make(NodeData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// String returns the string value of a field, or "" if absent or not a string.
func (d NodeData) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Blob returns the media payload of a field. Values may be typed Blobs
// (in-memory store) or JSON-decoded maps (persistent store); both are
// handled. Returns nil if the field is absent or malformed.
func (d NodeData) Blob(key string) *Blob {
	v, ok := d[key]
	if !ok || v == nil {
		return nil
	}
	switch b := v.(type) {
	case Blob:
		return &b
	case *Blob:
		return b
	default:
		out := &Blob{}
		if err := reencode(v, out); err != nil || len(out.Data) == 0 {
			return nil
		}
		return out
	}
}

// Items returns the ordered generated-item list of a multi-item node,
// or nil if the field is absent.
func (d NodeData) Items() []GeneratedItem {
	v, ok := d[FieldItems]
	if !ok || v == nil {
		return nil
	}
	if items, ok := v.([]GeneratedItem); ok {
		out := make([]GeneratedItem, len(items))
		copy(out, items)
		return out
	}
	var out []GeneratedItem
	if err := reencode(v, &out); err != nil {
		return nil
	}
	return out
}

// reencode converts loosely-typed values (e.g. from JSON columns) into a
// concrete type via a JSON round-trip.
func reencode(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

const handlePrefix = "item-"

// ItemHandle returns the sub-port identifier addressing item index i.
func ItemHandle(i int) string {
	return handlePrefix + strconv.Itoa(i)
}

// HandleIndex parses a sub-port identifier back into an item index.
// Returns false for empty or malformed handles.
func HandleIndex(handle string) (int, bool) {
	if !strings.HasPrefix(handle, handlePrefix) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(handle, handlePrefix))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// AcceptsResult reports whether a node of type target can receive results
// produced by a generator of type gen.
func AcceptsResult(gen, target NodeType) bool {
	switch gen {
	case NodeCampaignGenerator:
		return target == NodeCampaignOutput
	case NodeGenerator:
		return target == NodeOutput
	default:
		return false
	}
}

// ContextLabel returns the uppercase section label used when a source
// node's text is folded into a generation request.
func (n *Node) ContextLabel() string {
	switch n.Type {
	case NodeCampaignAsset:
		if t := n.Data.String(FieldAssetType); t != "" {
			return strings.ToUpper(t)
		}
		return "ASSET"
	case NodeAssetGenerator:
		if t := n.Data.String(FieldTitle); t != "" {
			return strings.ToUpper(t)
		}
		return "ASSET"
	case NodeCampaignText:
		return "SCREEN CONTENT / ACTION"
	default:
		return strings.ToUpper(string(n.Type))
	}
}

func (n *Node) validateID() error {
	if n.ID == "" {
		return NewError(ErrCodeValidation, "node id is empty")
	}
	return nil
}

// Validate checks the structural invariants of a single node.
func (n *Node) Validate() error {
	if err := n.validateID(); err != nil {
		return err
	}
	if n.Type == "" {
		return NewErrorf(ErrCodeValidation, "node %s has no type", n.ID)
	}
	return nil
}

// Validate checks the structural invariants of a single edge.
// Endpoint existence is checked at the graph level.
func (e *Edge) Validate() error {
	if e.ID == "" {
		return NewError(ErrCodeValidation, "edge id is empty")
	}
	if e.Source == "" || e.Target == "" {
		return NewErrorf(ErrCodeValidation, "edge %s is missing an endpoint", e.ID)
	}
	if e.SourceHandle != "" {
		if _, ok := HandleIndex(e.SourceHandle); !ok {
			return NewErrorf(ErrCodeValidation, "edge %s has malformed handle %q", e.ID, e.SourceHandle)
		}
	}
	return nil
}

func (t NodeType) String() string { return string(t) }

// GoString helps test failure output.
func (b Blob) GoString() string {
	return fmt.Sprintf("Blob{%d bytes, %s}", len(b.Data), b.MIME)
}
