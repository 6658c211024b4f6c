package validation

import (
	"fmt"

	"github.com/campaignforge/forge/pkg/schema"
)

// Result collects graph integrity violations.
type Result struct {
	Errors []string
}

// Valid reports whether no violations were found.
func (r *Result) Valid() bool { return len(r.Errors) == 0 }

func (r *Result) addf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ValidateGraph checks structural invariants over a full graph snapshot:
// unique ids, well-formed handles, and edge endpoints that reference
// existing nodes. Handle indices are NOT range-checked here; an index
// beyond the current item list is legitimate while a run is populating.
func ValidateGraph(nodes []schema.Node, edges []schema.Edge) *Result {
	result := &Result{}

	nodeIDs := make(map[string]struct{}, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if err := n.Validate(); err != nil {
			result.addf("node %d: %s", i, err.Error())
			continue
		}
		if _, dup := nodeIDs[n.ID]; dup {
			result.addf("duplicate node id %q", n.ID)
			continue
		}
		nodeIDs[n.ID] = struct{}{}
	}

	edgeIDs := make(map[string]struct{}, len(edges))
	for i := range edges {
		e := &edges[i]
		if err := e.Validate(); err != nil {
			result.addf("edge %d: %s", i, err.Error())
			continue
		}
		if _, dup := edgeIDs[e.ID]; dup {
			result.addf("duplicate edge id %q", e.ID)
			continue
		}
		edgeIDs[e.ID] = struct{}{}

		if _, ok := nodeIDs[e.Source]; !ok {
			result.addf("edge %q source %q does not exist", e.ID, e.Source)
		}
		if _, ok := nodeIDs[e.Target]; !ok {
			result.addf("edge %q target %q does not exist", e.ID, e.Target)
		}
	}

	return result
}
