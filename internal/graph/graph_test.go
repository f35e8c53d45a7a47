package graph

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/codegraph/internal/config"
	"github.com/rohankatakam/codegraph/internal/models"
	"github.com/rohankatakam/codegraph/internal/resolution"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func sampleIR() ([]*models.FileResult, *resolution.Result) {
	b := &models.FileResult{
		Module: models.Module{Name: "pkg.b", Path: "/r/pkg/b.py", LineCount: 10, Fingerprint: "ff", ModTime: 1700000000},
		Classes: []models.Class{
			{ID: "Config", Name: "Config", QualName: "Config", ModulePath: "/r/pkg/b.py", StartLine: 1, EndLine: 4, Bases: []string{"Base"}},
		},
		Functions: []models.Function{
			{ID: "Config.__init__@2", Name: "__init__", QualName: "Config.__init__", ModulePath: "/r/pkg/b.py",
				Scope: "Config", Signature: "(self)", StartLine: 2, EndLine: 3, IsMethod: true, Class: "Config"},
		},
	}
	a := &models.FileResult{
		Module:    models.Module{Name: "pkg.a", Path: "/r/pkg/a.py", Docstring: "Settings."},
		Classes:   []models.Class{{ID: "Config", Name: "Config", QualName: "Config", ModulePath: "/r/pkg/a.py", StartLine: 3}},
		Variables: []models.Variable{{ID: "DEBUG", Name: "DEBUG", ModulePath: "/r/pkg/a.py", Line: 1}},
	}
	stub := models.NewStub(models.StubUnresolved, "Base")
	res := &resolution.Result{
		Relationships: []models.Relationship{
			{SourceKey: "class:/r/pkg/b.py:Config", TargetKey: stub.Key, Type: models.RelInheritsFrom,
				Properties: map[string]any{"base": "Base", "position": 0, "via": "unresolved"}},
			{SourceKey: "module:/r/pkg/b.py", TargetKey: "class:/r/pkg/b.py:Config", Type: models.RelDefines},
			{SourceKey: "module:/r/pkg/b.py", TargetKey: "class:/r/pkg/b.py:Config", Type: models.RelContains},
			{SourceKey: "module:/r/pkg/a.py", TargetKey: "class:/r/pkg/a.py:Config", Type: models.RelContains},
		},
		Stubs: []models.Stub{stub},
	}
	return []*models.FileResult{b, a}, res
}

func TestTransformKeysAndOrder(t *testing.T) {
	results, res := sampleIR()
	set, err := Transform(results, res, TransformOptions{})
	require.NoError(t, err)

	var keys []string
	for _, n := range set.Nodes {
		keys = append(keys, n.UniqueKey)
	}
	assert.Equal(t, []string{
		"class:/r/pkg/a.py:Config",
		"class:/r/pkg/b.py:Config",
		"external:unresolved:Base",
		"function:/r/pkg/b.py:Config.__init__@2",
		"module:/r/pkg/a.py",
		"module:/r/pkg/b.py",
		"variable:/r/pkg/a.py:DEBUG",
	}, keys)

	var rels []string
	for _, r := range set.Relationships {
		rels = append(rels, r.SourceKey+" "+r.Type)
		assert.NotNil(t, r.Properties)
	}
	assert.Equal(t, []string{
		"class:/r/pkg/b.py:Config INHERITS_FROM",
		"module:/r/pkg/a.py CONTAINS",
		"module:/r/pkg/b.py CONTAINS",
		"module:/r/pkg/b.py DEFINES",
	}, rels)

	assert.Equal(t, map[string]int{"Class": 2, "Function": 1, "Module": 2, "Variable": 1, "ImportTarget": 1}, set.CountByLabel())
}

func TestTransformIsOrderIndependent(t *testing.T) {
	results, res := sampleIR()
	first, err := Transform(results, res, TransformOptions{})
	require.NoError(t, err)

	reversed := []*models.FileResult{results[1], results[0]}
	second, err := Transform(reversed, res, TransformOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTransformProperties(t *testing.T) {
	results, res := sampleIR()
	set, err := Transform(results, res, TransformOptions{})
	require.NoError(t, err)

	byKey := make(map[string]NodeTuple)
	for _, n := range set.Nodes {
		byKey[n.UniqueKey] = n
	}

	mod := byKey["module:/r/pkg/b.py"]
	assert.Equal(t, "pkg.b", mod.Properties["name"])
	assert.NotContains(t, mod.Properties, "docstring")
	assert.NotContains(t, mod.Properties, "mod_time")
	assert.Equal(t, "Settings.", byKey["module:/r/pkg/a.py"].Properties["docstring"])

	cls := byKey["class:/r/pkg/b.py:Config"]
	assert.Equal(t, []string{"Base"}, cls.Properties["bases"])
	assert.NotContains(t, cls.Properties, "decorators")
	assert.NotContains(t, byKey["class:/r/pkg/a.py:Config"].Properties, "bases")

	stub := byKey["external:unresolved:Base"]
	assert.Equal(t, LabelImportTarget, stub.Label)
	assert.Equal(t, "unresolved", stub.Properties["kind"])

	withTime, err := Transform(results, res, TransformOptions{IncludeTimestamps: true})
	require.NoError(t, err)
	for _, n := range withTime.Nodes {
		if n.UniqueKey == "module:/r/pkg/b.py" {
			assert.Equal(t, int64(1700000000), n.Properties["mod_time"])
		}
	}
}

func TestTransformFailedModule(t *testing.T) {
	failed := &models.FileResult{Module: models.Module{Name: "bad", Path: "/r/bad.py", ParseError: "line 3: unexpected indent"}}
	set, err := Transform([]*models.FileResult{failed}, &resolution.Result{}, TransformOptions{})
	require.NoError(t, err)
	require.Len(t, set.Nodes, 1)
	assert.Equal(t, "line 3: unexpected indent", set.Nodes[0].Properties["parse_error"])
	assert.Empty(t, set.Relationships)
}

func TestTransformRejectsMissingPath(t *testing.T) {
	_, err := Transform([]*models.FileResult{{Module: models.Module{Name: "x"}}}, nil, TransformOptions{})
	assert.Error(t, err)
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		node NodeTuple
		want string
	}{
		{
			NodeTuple{Label: LabelClass, Properties: map[string]any{"qual_name": "A.B", "module_path": "/m.py", "start_line": 4}},
			"Class A.B at /m.py:4",
		},
		{
			NodeTuple{Label: LabelVariable, Properties: map[string]any{"name": "x", "module_path": "/m.py", "line": 9}},
			"Variable x at /m.py:9",
		},
		{
			NodeTuple{Label: LabelModule, Properties: map[string]any{"name": "m", "path": "/m.py"}},
			"Module m at /m.py",
		},
	}
	for _, tt := range tests {
		if got := tt.node.Identity(); got != tt.want {
			t.Errorf("Identity() = %q, want %q", got, tt.want)
		}
	}
}

func TestCypherBuilder(t *testing.T) {
	b, err := NewCypherBuilder(AnchorLabel, KeyProperty)
	require.NoError(t, err)

	q, err := b.BuildMergeNodes(LabelClass)
	require.NoError(t, err)
	assert.Equal(t, "UNWIND $rows AS row MERGE (n:CodeEntity {unique_key: row.unique_key}) SET n:Class SET n += row.properties", q)

	q, err = b.BuildMergeRelationships(models.RelInheritsFrom)
	require.NoError(t, err)
	assert.Contains(t, q, "MERGE (a)-[r:INHERITS_FROM]->(b)")
	assert.Contains(t, q, "MATCH (a:CodeEntity {unique_key: row.source_key})")

	assert.Contains(t, b.BuildConstraint(), "REQUIRE n.unique_key IS UNIQUE")

	for _, bad := range []string{"", "Class) DETACH DELETE n //", "1abc", "has space"} {
		_, err := b.BuildMergeNodes(bad)
		assert.Error(t, err, "label %q", bad)
		_, err = b.BuildMergeRelationships(bad)
		assert.Error(t, err, "type %q", bad)
	}

	_, err = NewCypherBuilder("Code-Entity", KeyProperty)
	assert.Error(t, err)
}

func TestBatchConfigFromEmit(t *testing.T) {
	bc := BatchConfigFromEmit(config.EmitConfig{ClassBatchSize: 7, RelationshipBatchSize: 3})
	assert.Equal(t, 7, bc.SizeForLabel(LabelClass))
	assert.Equal(t, 3, bc.SizeForRelationship(models.RelCalls))
	assert.Equal(t, DefaultBatchConfig().FunctionBatchSize, bc.SizeForLabel(LabelFunction))
	assert.Equal(t, 500, bc.SizeForLabel("Unknown"))
}

func TestEmitBatches(t *testing.T) {
	set := &TupleSet{}
	for i := 0; i < 5; i++ {
		set.Nodes = append(set.Nodes, NodeTuple{
			Label:      LabelFunction,
			UniqueKey:  fmt.Sprintf("function:/m.py:f%d@%d", i, i+1),
			Properties: map[string]any{"name": fmt.Sprintf("f%d", i)},
		})
	}
	set.Nodes = append(set.Nodes, NodeTuple{Label: LabelModule, UniqueKey: "module:/m.py", Properties: map[string]any{}})
	set.Relationships = []RelationshipTuple{
		{SourceKey: "function:/m.py:f0@1", TargetKey: "function:/m.py:f1@2", Type: models.RelCalls},
		{SourceKey: "module:/m.py", TargetKey: "function:/m.py:f0@1", Type: models.RelContains, Properties: map[string]any{}},
	}

	cfg := DefaultBatchConfig()
	cfg.FunctionBatchSize = 2
	batches, catalog, err := NewEmitter(cfg, quiet()).Emit("job-1", set)
	require.NoError(t, err)

	var kinds []string
	for i, b := range batches {
		kinds = append(kinds, fmt.Sprintf("%s/%s/%d", b.Kind, b.Commands[0].TemplateID, b.Count))
		assert.Equal(t, i+1, b.BatchSeq)
		assert.Equal(t, "job-1", b.JobID)
		require.Len(t, b.Commands, 1)
		assert.Contains(t, catalog, b.Commands[0].TemplateID)
		assert.Contains(t, []string{KindNode, KindRelationship}, b.Kind)
		assert.Positive(t, b.Count)
	}
	assert.Equal(t, []string{
		"node/cgraph.node:Module/1",
		"node/cgraph.node:Function/2",
		"node/cgraph.node:Function/2",
		"node/cgraph.node:Function/1",
		"relationship/cgraph.relationship:CONTAINS/1",
		"relationship/cgraph.relationship:CALLS/1",
	}, kinds)
	assert.Contains(t, catalog[SchemaTemplateID], "CREATE CONSTRAINT")

	rows := batches[len(batches)-1].Commands[0].Parameters["rows"].([]any)
	row := rows[0].(map[string]any)
	assert.Equal(t, "function:/m.py:f0@1", row["source_key"])
	assert.NotNil(t, row["properties"])
}

func TestEmitRejectsBadLabel(t *testing.T) {
	set := &TupleSet{Nodes: []NodeTuple{{Label: "Bad Label", UniqueKey: "x"}}}
	_, _, err := NewEmitter(DefaultBatchConfig(), quiet()).Emit("job", set)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid node label"))

	_, _, err = NewEmitter(DefaultBatchConfig(), quiet()).Emit("", &TupleSet{})
	assert.Error(t, err)
}
