package extractor

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/codegraph/internal/lexical"
	"github.com/rohankatakam/codegraph/internal/models"
	"github.com/rohankatakam/codegraph/internal/parser"
	"github.com/rohankatakam/codegraph/internal/treesitter"
)

const sample = `"""Shapes module."""
import os.path as osp
from .base import Base, Mixin as M
from . import util
from typing import *

LIMIT: int = 10
a, b = 1, 2

class Shape(Base, M, metaclass=Meta):
    """A shape."""
    sides = 0

    def __init__(self, name):
        self.name = name
        self.sides = 4
        util.register(self)

    @property
    def label(self) -> str:
        def inner():
            return osp.join("x", self.name)
        return inner()

    class Meta:
        ordering = ["name"]

class Point:
    def __init__(self, x):
        self.x = x

class Shape:
    pass

async def main():
    await Shape().run()
`

func backends() []parser.Backend {
	return []parser.Backend{treesitter.New(200), lexical.New(200)}
}

func extract(t *testing.T, b parser.Backend, src string) *models.FileResult {
	t.Helper()
	tree, err := b.Parse(context.Background(), "/repo/pkg/shapes.py", []byte(src))
	require.NoError(t, err)
	res, err := Extract(context.Background(), tree, ModuleInfo{Path: "/repo/pkg/shapes.py", Name: "pkg.shapes"}, AllKinds(), Limits{MaxDepth: 200})
	require.NoError(t, err)
	return res
}

func classIDs(res *models.FileResult) []string {
	var ids []string
	for _, c := range res.Classes {
		ids = append(ids, c.ID)
	}
	return ids
}

func functionIDs(res *models.FileResult) []string {
	var ids []string
	for _, f := range res.Functions {
		ids = append(ids, f.ID)
	}
	return ids
}

func variableIDs(res *models.FileResult) []string {
	var ids []string
	for _, v := range res.Variables {
		ids = append(ids, v.ID)
	}
	return ids
}

func TestExtractEntities(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.Name(), func(t *testing.T) {
			res := extract(t, b, sample)

			assert.Equal(t, "Shapes module.", res.Module.Docstring)
			assert.Equal(t, strings.Count(sample, "\n"), res.Module.LineCount)

			assert.Equal(t, []string{"Shape", "Shape.Meta", "Point", "Shape@32"}, classIDs(res))
			assert.Equal(t, []string{
				"Shape.__init__@14",
				"Shape.label@20",
				"Shape.label@20.inner@21",
				"Point.__init__@29",
				"main@35",
			}, functionIDs(res))
			assert.Equal(t, []string{
				"LIMIT", "a", "b",
				"Shape.sides", "Shape.name",
				"Shape.Meta.ordering",
				"Point.x",
			}, variableIDs(res))

			shape := res.Classes[0]
			assert.Equal(t, []string{"Base", "M"}, shape.Bases)
			assert.Equal(t, "A shape.", shape.Docstring)
			assert.Equal(t, models.ParentRef{}, shape.Parent)
			assert.False(t, shape.Redefinition)
			assert.True(t, res.Classes[3].Redefinition)

			meta := res.Classes[1]
			assert.Equal(t, "Shape.Meta", meta.QualName)
			assert.Equal(t, models.ParentRef{Kind: "class", ID: "Shape"}, meta.Parent)

			init := res.Functions[0]
			assert.True(t, init.IsMethod)
			assert.Equal(t, "Shape", init.Class)
			assert.Equal(t, "__init__(self, name)", init.Signature)
			assert.Equal(t, []models.CallSite{{Callee: "util.register", Line: 17}}, init.Calls)

			label := res.Functions[1]
			assert.Equal(t, []string{"property"}, label.Decorators)
			assert.Equal(t, "str", label.ReturnType)
			assert.Equal(t, "label(self) -> str", label.Signature)
			assert.Equal(t, []models.CallSite{{Callee: "inner", Line: 23}}, label.Calls)

			inner := res.Functions[2]
			assert.False(t, inner.IsMethod)
			assert.Equal(t, models.ParentRef{Kind: "function", ID: "Shape.label@20"}, inner.Parent)
			assert.Equal(t, []models.CallSite{{Callee: "osp.join", Line: 22}}, inner.Calls)

			main := res.Functions[4]
			assert.True(t, main.IsAsync)
			assert.Equal(t, []models.CallSite{{Callee: "Shape", Line: 36}}, main.Calls)

			limit := res.Variables[0]
			assert.Equal(t, "int", limit.Annotation)
			assert.Equal(t, models.ParentRef{}, limit.Parent)

			name := res.Variables[4]
			assert.True(t, name.Instance)
			assert.Equal(t, models.ParentRef{Kind: "class", ID: "Shape"}, name.Parent)
			assert.Equal(t, 15, name.Line)
		})
	}
}

func TestExtractImports(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.Name(), func(t *testing.T) {
			res := extract(t, b, sample)
			require.Len(t, res.Imports, 5)

			want := []models.Import{
				{Name: "os.path", Alias: "osp", StartLine: 2, EndLine: 2},
				{Name: "Base", Module: "base", From: true, Level: 1, StartLine: 3, EndLine: 3},
				{Name: "Mixin", Module: "base", Alias: "M", From: true, Level: 1, StartLine: 3, EndLine: 3},
				{Name: "util", From: true, Level: 1, StartLine: 4, EndLine: 4},
				{Name: "*", Module: "typing", From: true, Wildcard: true, StartLine: 5, EndLine: 5},
			}
			for i := range want {
				want[i].ModulePath = "/repo/pkg/shapes.py"
				assert.Equal(t, want[i], res.Imports[i])
			}

			assert.Equal(t, "osp", res.Imports[0].Bound())
			assert.Equal(t, "M", res.Imports[2].Bound())
		})
	}
}

func TestExtractSameNamesAcrossClasses(t *testing.T) {
	src := `class A:
    def __init__(self):
        pass

class B:
    def __init__(self):
        pass
`
	res := extract(t, treesitter.New(100), src)
	require.Len(t, res.Functions, 2)
	assert.NotEqual(t, res.Functions[0].ID, res.Functions[1].ID)
	assert.Equal(t, "A", res.Functions[0].Parent.ID)
	assert.Equal(t, "B", res.Functions[1].Parent.ID)
}

func TestExtractKindFilter(t *testing.T) {
	tree, err := treesitter.New(200).Parse(context.Background(), "a.py", []byte(sample))
	require.NoError(t, err)

	classes, err := Extract(context.Background(), tree, ModuleInfo{Path: "a.py"}, NewKindSet(models.KindClass), Limits{})
	require.NoError(t, err)
	assert.Len(t, classes.Classes, 4)
	assert.Empty(t, classes.Functions)
	assert.Empty(t, classes.Imports)

	rest, err := Extract(context.Background(), tree, ModuleInfo{Path: "a.py"},
		NewKindSet(models.KindFunction, models.KindVariable, models.KindImport), Limits{})
	require.NoError(t, err)
	assert.Empty(t, rest.Classes)

	merged := Merge(classes, rest)
	full, err := Extract(context.Background(), tree, ModuleInfo{Path: "a.py"}, AllKinds(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, full.EntityCount(), merged.EntityCount())
	assert.Equal(t, functionIDs(full), functionIDs(merged))
}

func TestExtractDeadline(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&sb, "v%d = f(%d)\n", i, i)
	}
	tree, err := lexical.New(10).Parse(context.Background(), "big.py", []byte(sb.String()))
	require.NoError(t, err)

	_, err = Extract(context.Background(), tree, ModuleInfo{Path: "big.py"}, AllKinds(), Limits{Timeout: time.Nanosecond})
	assert.ErrorIs(t, err, ErrDeadline)
}

func TestFailed(t *testing.T) {
	res := Failed(ModuleInfo{Path: "x.py", Name: "x", Fingerprint: "abc"}, []byte("def (:\n"), fmt.Errorf("boom"))
	assert.Equal(t, "boom", res.Module.ParseError)
	assert.Equal(t, 1, res.Module.LineCount)
	assert.Zero(t, res.EntityCount())
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"""  doc  """`, "doc"},
		{`r'raw'`, "raw"},
		{`'''multi
line'''`, "multi\nline"},
		{`""`, ""},
	}
	for _, tt := range tests {
		if got := unquote(tt.in); got != tt.want {
			t.Errorf("unquote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
