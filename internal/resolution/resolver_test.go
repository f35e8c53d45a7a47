package resolution

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/codegraph/internal/models"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func module(path, name string, isPkg bool) *models.FileResult {
	return &models.FileResult{Module: models.Module{Path: path, Name: name, IsPackage: isPkg}}
}

func (b *fileBuilder) class(id, name string, parent models.ParentRef, line int, bases ...string) *fileBuilder {
	b.r.Classes = append(b.r.Classes, models.Class{
		ID: id, Name: name, Parent: parent, ModulePath: b.r.Module.Path, StartLine: line, Bases: bases,
	})
	return b
}

func (b *fileBuilder) function(id, name string, parent models.ParentRef, line int, calls ...string) *fileBuilder {
	fn := models.Function{
		ID: id, Name: name, Parent: parent, ModulePath: b.r.Module.Path, StartLine: line,
		IsMethod: parent.Kind == models.KindClass,
	}
	for i, c := range calls {
		fn.Calls = append(fn.Calls, models.CallSite{Callee: c, Line: line + i + 1})
	}
	b.r.Functions = append(b.r.Functions, fn)
	return b
}

func (b *fileBuilder) imp(i models.Import) *fileBuilder {
	i.ModulePath = b.r.Module.Path
	b.r.Imports = append(b.r.Imports, i)
	return b
}

type fileBuilder struct {
	r *models.FileResult
}

func file(path, name string, isPkg bool) *fileBuilder {
	return &fileBuilder{r: module(path, name, isPkg)}
}

func classOf(id string) models.ParentRef { return models.ParentRef{Kind: models.KindClass, ID: id} }

func resolve(t *testing.T, calls string, files ...*fileBuilder) *Result {
	t.Helper()
	var results []*models.FileResult
	for _, f := range files {
		results = append(results, f.r)
	}
	res, err := NewResolver(NewIndex(results), calls, quiet()).Resolve(context.Background())
	require.NoError(t, err)
	return res
}

func find(res *Result, typ, source string) []models.Relationship {
	var out []models.Relationship
	for _, rel := range res.Relationships {
		if rel.Type == typ && rel.SourceKey == source {
			out = append(out, rel)
		}
	}
	return out
}

func stubKeys(res *Result) []string {
	var keys []string
	for _, s := range res.Stubs {
		keys = append(keys, s.Key)
	}
	return keys
}

func TestCrossFileInheritance(t *testing.T) {
	base := file("/r/pkg/base.py", "pkg.base", false).
		class("Base", "Base", models.ParentRef{}, 1)
	derived := file("/r/pkg/derived.py", "pkg.derived", false).
		imp(models.Import{Name: "Base", Module: "base", From: true, Level: 1, StartLine: 1}).
		class("Derived", "Derived", models.ParentRef{}, 3, "Base")

	res := resolve(t, CallsStrict, base, derived)

	edges := find(res, models.RelInheritsFrom, "class:/r/pkg/derived.py:Derived")
	require.Len(t, edges, 1)
	assert.Equal(t, "class:/r/pkg/base.py:Base", edges[0].TargetKey)
	assert.Equal(t, "import", edges[0].Properties["via"])

	imports := find(res, models.RelImports, "module:/r/pkg/derived.py")
	require.Len(t, imports, 1)
	assert.Equal(t, "module:/r/pkg/base.py", imports[0].TargetKey)
	assert.Equal(t, true, imports[0].Properties["resolved"])
	assert.Equal(t, []string{"Base"}, imports[0].Properties["names"])
}

func TestInheritanceFallbacks(t *testing.T) {
	other := file("/r/pkg/other.py", "pkg.other", false).
		class("Helper", "Helper", models.ParentRef{}, 1)
	dup1 := file("/r/pkg/d1.py", "pkg.d1", false).class("Dup", "Dup", models.ParentRef{}, 1)
	dup2 := file("/r/pkg/d2.py", "pkg.d2", false).class("Dup", "Dup", models.ParentRef{}, 1)
	main := file("/r/pkg/main.py", "pkg.main", false).
		imp(models.Import{Name: "abc", StartLine: 1}).
		imp(models.Import{Name: "Generic", Module: "typing", From: true, StartLine: 2}).
		class("Local", "Local", models.ParentRef{}, 3).
		class("A", "A", models.ParentRef{}, 5, "Local", "abc.ABC", "Generic[T]", "Helper", "Dup", "Missing", "Exception")

	res := resolve(t, CallsStrict, other, dup1, dup2, main)

	edges := find(res, models.RelInheritsFrom, "class:/r/pkg/main.py:A")
	require.Len(t, edges, 7)

	want := []struct{ target, via string }{
		{"class:/r/pkg/main.py:Local", "module"},
		{"external:symbol:abc.ABC", "external"},
		{"external:symbol:typing.Generic", "external"},
		{"class:/r/pkg/other.py:Helper", "package"},
		{"external:unresolved:Dup", "unresolved"},
		{"external:unresolved:Missing", "unresolved"},
		{"external:symbol:builtins.Exception", "builtin"},
	}
	for i, w := range want {
		assert.Equal(t, w.target, edges[i].TargetKey, "base %d", i)
		assert.Equal(t, w.via, edges[i].Properties["via"], "base %d", i)
		assert.Equal(t, i, edges[i].Properties["position"])
	}

	assert.Equal(t, 2, res.Stats.Unresolved)
	assert.Contains(t, stubKeys(res), "external:module:abc")
	assert.Contains(t, stubKeys(res), "external:module:typing")
}

func TestInheritanceFromRootPackage(t *testing.T) {
	base := file("/r/base.py", "base", false).
		class("Base", "Base", models.ParentRef{}, 1)
	pkgInit := file("/r/__init__.py", models.RootPackageName, true).
		imp(models.Import{Name: "Base", Module: "base", From: true, Level: 1, StartLine: 1}).
		class("Derived", "Derived", models.ParentRef{}, 3, "Base")

	res := resolve(t, CallsStrict, base, pkgInit)

	imports := find(res, models.RelImports, "module:/r/__init__.py")
	require.Len(t, imports, 1)
	assert.Equal(t, "module:/r/base.py", imports[0].TargetKey)

	edges := find(res, models.RelInheritsFrom, "class:/r/__init__.py:Derived")
	require.Len(t, edges, 1)
	assert.Equal(t, "class:/r/base.py:Base", edges[0].TargetKey)
	assert.NotContains(t, stubKeys(res), "external:module:__init__.base")
}

func TestInheritanceUsesBindingAtClassLine(t *testing.T) {
	f := file("/r/m.py", "m", false).
		class("Base", "Base", models.ParentRef{}, 1).
		class("D", "D", models.ParentRef{}, 4, "Base").
		class("Base@7", "Base", models.ParentRef{}, 7).
		class("E", "E", models.ParentRef{}, 10, "Base").
		class("Early", "Early", models.ParentRef{}, 12, "Later").
		class("Later", "Later", models.ParentRef{}, 14)

	res := resolve(t, CallsStrict, f)

	tests := []struct {
		source, target, via string
	}{
		{"class:/r/m.py:D", "class:/r/m.py:Base", "module"},
		{"class:/r/m.py:E", "class:/r/m.py:Base@7", "module"},
		{"class:/r/m.py:Early", "external:unresolved:Later", "unresolved"},
	}
	for _, tt := range tests {
		edges := find(res, models.RelInheritsFrom, tt.source)
		require.Len(t, edges, 1, tt.source)
		assert.Equal(t, tt.target, edges[0].TargetKey, tt.source)
		assert.Equal(t, tt.via, edges[0].Properties["via"], tt.source)
	}
	assert.Equal(t, 1, res.Stats.Unresolved)
}

func TestStructureEdges(t *testing.T) {
	f := file("/r/m.py", "m", false).
		class("A", "A", models.ParentRef{}, 1).
		function("A.__init__@2", "__init__", classOf("A"), 2).
		class("B", "B", models.ParentRef{}, 5).
		function("B.__init__@6", "__init__", classOf("B"), 6)
	f.r.Variables = append(f.r.Variables, models.Variable{ID: "A.x", Name: "x", Parent: classOf("A"), ModulePath: "/r/m.py"})

	res := resolve(t, CallsOff, f)

	var containsA []string
	for _, rel := range find(res, models.RelContains, "class:/r/m.py:A") {
		containsA = append(containsA, rel.TargetKey)
	}
	assert.Equal(t, []string{"function:/r/m.py:A.__init__@2", "variable:/r/m.py:A.x"}, containsA)
	assert.Len(t, find(res, models.RelContains, "class:/r/m.py:B"), 1)
	assert.Len(t, find(res, models.RelDefines, "module:/r/m.py"), 5)
	assert.Len(t, find(res, models.RelContains, "module:/r/m.py"), 2)
}

func TestImports(t *testing.T) {
	util := file("/r/pkg/util.py", "pkg.util", false)
	pkgInit := file("/r/pkg/__init__.py", "pkg", true)
	sub := file("/r/pkg/sub/mod.py", "pkg.sub.mod", false).
		imp(models.Import{Name: "util", From: true, Level: 2, StartLine: 1}).
		imp(models.Import{Name: "os.path", StartLine: 2}).
		imp(models.Import{Name: "x", Module: "nowhere", From: true, Level: 4, StartLine: 3}).
		imp(models.Import{Name: "*", Module: "pkg", From: true, Wildcard: true, StartLine: 4}).
		imp(models.Import{Name: "pkg.util", Alias: "u", StartLine: 5})

	res := resolve(t, CallsOff, util, pkgInit, sub)
	edges := find(res, models.RelImports, "module:/r/pkg/sub/mod.py")

	var targets []string
	for _, e := range edges {
		targets = append(targets, e.TargetKey)
	}
	assert.Equal(t, []string{
		"module:/r/pkg/util.py",
		"external:module:os.path",
		"external:unresolved:....nowhere",
		"module:/r/pkg/__init__.py",
	}, targets)

	// two statements reach pkg/util.py; one edge carries both names
	assert.Equal(t, []string{"util", "pkg.util"}, edges[0].Properties["names"])
	assert.Equal(t, 3, res.Stats.ImportsInternal)
	assert.Equal(t, 1, res.Stats.Unresolved)
	assert.Equal(t, 5, res.Stats.Imports)
}

func TestCalls(t *testing.T) {
	helpers := file("/r/pkg/helpers.py", "pkg.helpers", false).
		function("run@1", "run", models.ParentRef{}, 1).
		function("unique@3", "unique", models.ParentRef{}, 3)
	dupA := file("/r/pkg/a.py", "pkg.a", false).function("dup@1", "dup", models.ParentRef{}, 1)
	dupB := file("/r/pkg/b.py", "pkg.b", false).function("dup@1", "dup", models.ParentRef{}, 1)

	app := file("/r/pkg/app.py", "pkg.app", false).
		imp(models.Import{Name: "helpers", From: true, Level: 1, StartLine: 1}).
		imp(models.Import{Name: "run", Module: "helpers", From: true, Level: 1, StartLine: 2}).
		class("Base", "Base", models.ParentRef{}, 3).
		function("Base.save@4", "save", classOf("Base"), 4).
		class("Child", "Child", models.ParentRef{}, 6, "Base").
		function("Child.__init__@7", "__init__", classOf("Child"), 7).
		function("Child.go@9", "go", classOf("Child"), 9,
			"self.save", "run", "helpers.run", "Child", "unique", "dup", "os.getcwd", "self.missing")

	caller := "function:/r/pkg/app.py:Child.go@9"

	strict := resolve(t, CallsStrict, helpers, dupA, dupB, app)
	var got []string
	for _, e := range find(strict, models.RelCalls, caller) {
		got = append(got, e.TargetKey)
		assert.Equal(t, ConfidenceExact, e.Properties["confidence"])
	}
	// run and helpers.run reach the same function and share one edge
	assert.Equal(t, []string{
		"function:/r/pkg/app.py:Base.save@4",
		"function:/r/pkg/helpers.py:run@1",
		"function:/r/pkg/app.py:Child.__init__@7",
	}, got)

	heuristic := resolve(t, CallsHeuristic, helpers, dupA, dupB, app)
	edges := find(heuristic, models.RelCalls, caller)
	require.Len(t, edges, 4)
	assert.Equal(t, "function:/r/pkg/helpers.py:unique@3", edges[3].TargetKey)
	assert.Equal(t, ConfidenceHeuristic, edges[3].Properties["confidence"])

	off := resolve(t, CallsOff, helpers, dupA, dupB, app)
	assert.Empty(t, find(off, models.RelCalls, caller))
}

func TestNestedFunctionCalls(t *testing.T) {
	f := file("/r/m.py", "m", false).
		function("outer@1", "outer", models.ParentRef{}, 1, "inner").
		function("outer@1.inner@2", "inner", models.ParentRef{Kind: models.KindFunction, ID: "outer@1"}, 2, "sibling").
		function("outer@1.sibling@5", "sibling", models.ParentRef{Kind: models.KindFunction, ID: "outer@1"}, 5)

	res := resolve(t, CallsStrict, f)

	out := find(res, models.RelCalls, "function:/r/m.py:outer@1")
	require.Len(t, out, 1)
	assert.Equal(t, "function:/r/m.py:outer@1.inner@2", out[0].TargetKey)

	in := find(res, models.RelCalls, "function:/r/m.py:outer@1.inner@2")
	require.Len(t, in, 1)
	assert.Equal(t, "function:/r/m.py:outer@1.sibling@5", in[0].TargetKey)
}

func TestCleanRef(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Base", "Base"},
		{"mod.Base", "mod.Base"},
		{"Generic[T]", "Generic"},
		{"namedtuple('P', 'x y')", "namedtuple"},
		{"*bases", ""},
		{"a..b", ""},
	}
	for _, tt := range tests {
		if got := cleanRef(tt.in); got != tt.want {
			t.Errorf("cleanRef(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver(NewIndex([]*models.FileResult{module("/r/a.py", "a", false)}), CallsStrict, quiet()).Resolve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
