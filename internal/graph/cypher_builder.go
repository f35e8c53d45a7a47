package graph

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CypherBuilder builds the parameterized Cypher templates a loader runs
// against each batch. Labels, relationship types and property names are the
// only text interpolated into a template and must pass identifier
// validation; every value travels in the $rows parameter.
type CypherBuilder struct {
	anchor string
	key    string
}

// NewCypherBuilder creates a builder that anchors nodes on anchor.key
func NewCypherBuilder(anchor, key string) (*CypherBuilder, error) {
	if !isValidIdentifier(anchor) {
		return nil, fmt.Errorf("invalid anchor label: %s (must be alphanumeric + underscore)", anchor)
	}
	if !isValidIdentifier(key) {
		return nil, fmt.Errorf("invalid unique key: %s (must be alphanumeric + underscore)", key)
	}
	return &CypherBuilder{anchor: anchor, key: key}, nil
}

// TemplateID names the template for a batch kind
func TemplateID(kind string) string {
	return "cgraph." + kind
}

// BuildConstraint creates the uniqueness constraint on the anchor key
func (b *CypherBuilder) BuildConstraint() string {
	return fmt.Sprintf(
		"CREATE CONSTRAINT %s_%s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		b.anchor, b.key, b.anchor, b.key,
	)
}

// BuildMergeNodes creates an UNWIND MERGE template for one label.
// Each row is {unique_key, properties}.
func (b *CypherBuilder) BuildMergeNodes(label string) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric + underscore)", label)
	}
	return fmt.Sprintf(
		"UNWIND $rows AS row MERGE (n:%s {%s: row.%s}) SET n:%s SET n += row.properties",
		b.anchor, b.key, b.key, label,
	), nil
}

// BuildMergeRelationships creates an UNWIND MERGE template for one
// relationship type. Each row is {source_key, target_key, properties}.
func (b *CypherBuilder) BuildMergeRelationships(relType string) (string, error) {
	if !isValidIdentifier(relType) {
		return "", fmt.Errorf("invalid relationship type: %s", relType)
	}
	return fmt.Sprintf(
		"UNWIND $rows AS row MATCH (a:%s {%s: row.source_key}) MATCH (b:%s {%s: row.target_key}) "+
			"MERGE (a)-[r:%s]->(b) SET r += row.properties",
		b.anchor, b.key, b.anchor, b.key, relType,
	), nil
}

// isValidIdentifier validates that a string can be safely used as a Cypher identifier
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
