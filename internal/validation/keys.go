package validation

import (
	"github.com/rohankatakam/codegraph/internal/errors"
	"github.com/rohankatakam/codegraph/internal/graph"
)

// CheckUniqueKeys fails on the first unique key shared by two nodes. The
// error is fatal and names both entities.
func CheckUniqueKeys(tuples *graph.TupleSet) error {
	seen := make(map[string]graph.NodeTuple, len(tuples.Nodes))
	for _, n := range tuples.Nodes {
		if n.UniqueKey == "" {
			return errors.InvariantErrorf("empty unique key for %s", n.Identity())
		}
		if first, ok := seen[n.UniqueKey]; ok {
			return errors.KeyCollision(n.UniqueKey, first.Identity(), n.Identity())
		}
		seen[n.UniqueKey] = n
	}
	return nil
}

// CheckEdges fails when a relationship points at a key that no node carries
func CheckEdges(tuples *graph.TupleSet) error {
	keys := make(map[string]bool, len(tuples.Nodes))
	for _, n := range tuples.Nodes {
		keys[n.UniqueKey] = true
	}
	for _, r := range tuples.Relationships {
		if !keys[r.SourceKey] {
			return errors.InvariantErrorf("%s relationship has dangling source %s", r.Type, r.SourceKey)
		}
		if !keys[r.TargetKey] {
			return errors.InvariantErrorf("%s relationship from %s has dangling target %s", r.Type, r.SourceKey, r.TargetKey)
		}
	}
	return nil
}
