package graph

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/codegraph/internal/errors"
)

// Batch kinds. The label or relationship type travels in the template ID.
const (
	KindNode         = "node"
	KindRelationship = "relationship"
)

// SchemaTemplateID names the uniqueness constraint in the template catalog.
// A loader applies it once, before the first batch.
var SchemaTemplateID = TemplateID("schema")

// Command binds one template to its parameters
type Command struct {
	TemplateID string         `json:"template_id" yaml:"template_id"`
	Parameters map[string]any `json:"parameters" yaml:"parameters"`
}

// Batch is a unit of work for a loader. Batches of one job are applied in
// BatchSeq order; every command is an idempotent upsert.
type Batch struct {
	JobID    string    `json:"job_id" yaml:"job_id"`
	BatchSeq int       `json:"batch_seq" yaml:"batch_seq"`
	Kind     string    `json:"kind" yaml:"kind"`
	Count    int       `json:"count" yaml:"count"`
	Commands []Command `json:"commands" yaml:"commands"`
}

// TemplateCatalog maps template IDs to Cypher text
type TemplateCatalog map[string]string

// Emitter groups tuples into bounded batches
type Emitter struct {
	config  BatchConfig
	builder *CypherBuilder
	logger  *logrus.Logger
}

// NewEmitter creates an emitter using the given batch sizes
func NewEmitter(config BatchConfig, logger *logrus.Logger) *Emitter {
	// anchor and key are constants that always validate
	builder, _ := NewCypherBuilder(AnchorLabel, KeyProperty)
	return &Emitter{config: config, builder: builder, logger: logger}
}

// Emit turns a tuple set into batches: node batches label by label, then
// relationship batches type by type, so every relationship endpoint exists
// before it is matched. The constraint lives only in the catalog.
func (e *Emitter) Emit(jobID string, tuples *TupleSet) ([]Batch, TemplateCatalog, error) {
	if jobID == "" {
		return nil, nil, errors.ValidationErrorf("job id is required")
	}

	catalog := TemplateCatalog{SchemaTemplateID: e.builder.BuildConstraint()}
	var batches []Batch
	add := func(kind, templateID string, rows []any) {
		batches = append(batches, Batch{
			JobID:    jobID,
			BatchSeq: len(batches) + 1,
			Kind:     kind,
			Count:    len(rows),
			Commands: []Command{{
				TemplateID: templateID,
				Parameters: map[string]any{"rows": rows},
			}},
		})
	}
	nodes := make(map[string][]any)
	for _, n := range tuples.Nodes {
		nodes[n.Label] = append(nodes[n.Label], map[string]any{
			KeyProperty:  n.UniqueKey,
			"properties": n.Properties,
		})
	}
	for _, label := range ordered(NodeLabels, nodes) {
		tmpl, err := e.builder.BuildMergeNodes(label)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityCritical, "build node template")
		}
		id := TemplateID(KindNode + ":" + label)
		catalog[id] = tmpl
		for _, chunk := range chunks(nodes[label], e.config.SizeForLabel(label)) {
			add(KindNode, id, chunk)
		}
	}

	rels := make(map[string][]any)
	for _, r := range tuples.Relationships {
		props := r.Properties
		if props == nil {
			props = map[string]any{}
		}
		rels[r.Type] = append(rels[r.Type], map[string]any{
			"source_key": r.SourceKey,
			"target_key": r.TargetKey,
			"properties": props,
		})
	}
	for _, relType := range ordered(RelationshipTypes, rels) {
		tmpl, err := e.builder.BuildMergeRelationships(relType)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityCritical, "build relationship template")
		}
		id := TemplateID(KindRelationship + ":" + relType)
		catalog[id] = tmpl
		for _, chunk := range chunks(rels[relType], e.config.SizeForRelationship(relType)) {
			add(KindRelationship, id, chunk)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"job_id":        jobID,
		"batches":       len(batches),
		"nodes":         len(tuples.Nodes),
		"relationships": len(tuples.Relationships),
	}).Debug("emitted batches")

	return batches, catalog, nil
}

// ordered returns the keys of groups, known names first in their fixed
// order, then any others sorted
func ordered(known []string, groups map[string][]any) []string {
	seen := make(map[string]bool, len(known))
	var out []string
	for _, k := range known {
		seen[k] = true
		if len(groups[k]) > 0 {
			out = append(out, k)
		}
	}
	var extra []string
	for k := range groups {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func chunks(rows []any, size int) [][]any {
	var out [][]any
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
