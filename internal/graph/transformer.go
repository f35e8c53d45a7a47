package graph

import (
	"sort"

	"github.com/rohankatakam/codegraph/internal/errors"
	"github.com/rohankatakam/codegraph/internal/models"
	"github.com/rohankatakam/codegraph/internal/resolution"
)

// TransformOptions controls optional node properties
type TransformOptions struct {
	// Adds mod_time to modules. Off by default: it breaks byte-identical
	// output for untouched files.
	IncludeTimestamps bool
}

// Transform converts the merged IR and resolved relationships into node and
// relationship tuples. Output is sorted by key, so equal input always yields
// equal tuples regardless of processing order.
func Transform(results []*models.FileResult, resolved *resolution.Result, opts TransformOptions) (*TupleSet, error) {
	set := &TupleSet{}

	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Module.Path == "" {
			return nil, errors.InvariantErrorf("module %q has no path", r.Module.Name)
		}
		set.Nodes = append(set.Nodes, moduleNode(r.Module, opts))
		for _, c := range r.Classes {
			set.Nodes = append(set.Nodes, classNode(c))
		}
		for _, f := range r.Functions {
			set.Nodes = append(set.Nodes, functionNode(f))
		}
		for _, v := range r.Variables {
			set.Nodes = append(set.Nodes, variableNode(v))
		}
	}

	if resolved != nil {
		for _, s := range resolved.Stubs {
			set.Nodes = append(set.Nodes, NodeTuple{
				Label:     LabelImportTarget,
				UniqueKey: s.Key,
				Properties: map[string]any{
					"name": s.Name,
					"kind": s.Kind,
				},
			})
		}
		for _, rel := range resolved.Relationships {
			props := make(map[string]any, len(rel.Properties))
			for k, v := range rel.Properties {
				props[k] = v
			}
			set.Relationships = append(set.Relationships, RelationshipTuple{
				SourceKey:  rel.SourceKey,
				TargetKey:  rel.TargetKey,
				Type:       rel.Type,
				Properties: props,
			})
		}
	}

	// stable: key collisions keep input order for the validator to report
	sort.SliceStable(set.Nodes, func(i, j int) bool {
		return set.Nodes[i].UniqueKey < set.Nodes[j].UniqueKey
	})
	sort.SliceStable(set.Relationships, func(i, j int) bool {
		a, b := set.Relationships[i], set.Relationships[j]
		if a.SourceKey != b.SourceKey {
			return a.SourceKey < b.SourceKey
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.TargetKey < b.TargetKey
	})

	return set, nil
}

func moduleNode(m models.Module, opts TransformOptions) NodeTuple {
	props := map[string]any{
		"name":        m.Name,
		"path":        m.Path,
		"line_count":  m.LineCount,
		"byte_size":   m.ByteSize,
		"fingerprint": m.Fingerprint,
		"is_package":  m.IsPackage,
	}
	setString(props, "docstring", m.Docstring)
	setString(props, "parse_error", m.ParseError)
	if opts.IncludeTimestamps && m.ModTime > 0 {
		props["mod_time"] = m.ModTime
	}
	return NodeTuple{Label: LabelModule, UniqueKey: models.ModuleKey(m.Path), Properties: props}
}

func classNode(c models.Class) NodeTuple {
	props := map[string]any{
		"name":         c.Name,
		"qual_name":    c.QualName,
		"module_path":  c.ModulePath,
		"start_line":   c.StartLine,
		"end_line":     c.EndLine,
		"redefinition": c.Redefinition,
	}
	setString(props, "scope", c.Scope)
	setString(props, "docstring", c.Docstring)
	setStrings(props, "decorators", c.Decorators)
	setStrings(props, "bases", c.Bases)
	return NodeTuple{Label: LabelClass, UniqueKey: models.ClassKey(c.ModulePath, c.ID), Properties: props}
}

func functionNode(f models.Function) NodeTuple {
	props := map[string]any{
		"name":        f.Name,
		"qual_name":   f.QualName,
		"module_path": f.ModulePath,
		"signature":   f.Signature,
		"start_line":  f.StartLine,
		"end_line":    f.EndLine,
		"is_method":   f.IsMethod,
		"is_async":    f.IsAsync,
	}
	setString(props, "scope", f.Scope)
	setString(props, "docstring", f.Docstring)
	setString(props, "return_type", f.ReturnType)
	setString(props, "class", f.Class)
	setStrings(props, "decorators", f.Decorators)
	return NodeTuple{Label: LabelFunction, UniqueKey: models.FunctionKey(f.ModulePath, f.ID), Properties: props}
}

func variableNode(v models.Variable) NodeTuple {
	props := map[string]any{
		"name":        v.Name,
		"module_path": v.ModulePath,
		"line":        v.Line,
		"instance":    v.Instance,
	}
	setString(props, "scope", v.Scope)
	setString(props, "annotation", v.Annotation)
	return NodeTuple{Label: LabelVariable, UniqueKey: models.VariableKey(v.ModulePath, v.ID), Properties: props}
}

// optional values are left out rather than stored empty; the loader
// cannot store nulls
func setString(props map[string]any, key, value string) {
	if value != "" {
		props[key] = value
	}
}

func setStrings(props map[string]any, key string, values []string) {
	if len(values) > 0 {
		props[key] = append([]string(nil), values...)
	}
}
