package graph

import (
	"fmt"

	"github.com/rohankatakam/codegraph/internal/models"
)

// Node labels
const (
	LabelModule       = "Module"
	LabelClass        = "Class"
	LabelFunction     = "Function"
	LabelVariable     = "Variable"
	LabelImportTarget = "ImportTarget"
)

// AnchorLabel is carried by every emitted node. The unique key constraint
// lives on it, so relationship templates can match endpoints of any label.
const AnchorLabel = "CodeEntity"

// KeyProperty is the property that holds a node's unique key
const KeyProperty = "unique_key"

// NodeLabels lists labels in emission order
var NodeLabels = []string{LabelModule, LabelClass, LabelFunction, LabelVariable, LabelImportTarget}

// RelationshipTypes lists relationship types in emission order
var RelationshipTypes = []string{
	models.RelContains,
	models.RelDefines,
	models.RelImports,
	models.RelInheritsFrom,
	models.RelCalls,
}

// NodeTuple is one node to upsert. Properties hold only scalars and string
// slices.
type NodeTuple struct {
	Label      string         `json:"label"`
	UniqueKey  string         `json:"unique_key"`
	Properties map[string]any `json:"properties"`
}

// Identity describes the node for error messages
func (n NodeTuple) Identity() string {
	path, _ := n.Properties["module_path"].(string)
	if path == "" {
		path, _ = n.Properties["path"].(string)
	}
	name, _ := n.Properties["qual_name"].(string)
	if name == "" {
		name, _ = n.Properties["name"].(string)
	}
	line := n.Properties["start_line"]
	if line == nil {
		line = n.Properties["line"]
	}
	if line != nil {
		return fmt.Sprintf("%s %s at %s:%v", n.Label, name, path, line)
	}
	return fmt.Sprintf("%s %s at %s", n.Label, name, path)
}

// RelationshipTuple is one relationship to upsert between two keyed nodes
type RelationshipTuple struct {
	SourceKey  string         `json:"source_key"`
	TargetKey  string         `json:"target_key"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// TupleSet is the full output of a transform, sorted for determinism
type TupleSet struct {
	Nodes         []NodeTuple
	Relationships []RelationshipTuple
}

// CountByLabel returns node counts per label
func (s *TupleSet) CountByLabel() map[string]int {
	counts := make(map[string]int)
	for _, n := range s.Nodes {
		counts[n.Label]++
	}
	return counts
}

// CountByType returns relationship counts per type
func (s *TupleSet) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, r := range s.Relationships {
		counts[r.Type]++
	}
	return counts
}
