package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rohankatakam/codegraph/internal/models"
	"github.com/rohankatakam/codegraph/internal/parser"
)

// Version is bumped whenever extraction output changes shape, so cached
// results from an older extractor are not reused.
const Version = "3"

// ErrDeadline is returned when a file exceeds its wall-clock budget
var ErrDeadline = fmt.Errorf("extraction exceeded wall-clock limit")

// ModuleInfo describes the file being extracted
type ModuleInfo struct {
	Path        string
	Name        string
	IsPackage   bool
	Fingerprint string
	ModTime     int64
}

// Limits bound the work spent on a single file
type Limits struct {
	MaxDepth int
	Timeout  time.Duration
}

// KindSet selects which entity kinds to emit
type KindSet map[string]bool

// AllKinds returns a set with every entity kind
func AllKinds() KindSet {
	return KindSet{
		models.KindClass:    true,
		models.KindFunction: true,
		models.KindVariable: true,
		models.KindImport:   true,
	}
}

// NewKindSet builds a set from a list of kinds
func NewKindSet(kinds ...string) KindSet {
	set := KindSet{}
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

type scope struct {
	kind string // "module", "class", "function"
	qual string // dotted names, no line suffixes
	id   string

	fn       int    // index into result.Functions, -1 when not emitted
	selfName string // receiver name for methods
	selfID   string // owning class id for methods
	selfQual string
}

type walker struct {
	ctx      context.Context
	tree     *parser.Tree
	kinds    KindSet
	maxDepth int
	deadline time.Time
	visited  int

	res       *models.FileResult
	seenClass map[string]bool
	seenVar   map[string]bool
	seenCall  map[string]bool
}

// Extract walks a parsed file once, depth first, threading the enclosing
// scope through the traversal. Only kinds in the set are emitted, but scope
// tracking always covers every definition so IDs agree across backends.
func Extract(ctx context.Context, tree *parser.Tree, info ModuleInfo, kinds KindSet, limits Limits) (*models.FileResult, error) {
	w := &walker{
		ctx:       ctx,
		tree:      tree,
		kinds:     kinds,
		maxDepth:  limits.MaxDepth,
		res:       &models.FileResult{Module: moduleEntity(tree, info)},
		seenClass: make(map[string]bool),
		seenVar:   make(map[string]bool),
		seenCall:  make(map[string]bool),
	}
	if limits.Timeout > 0 {
		w.deadline = time.Now().Add(limits.Timeout)
	}

	root := []scope{{kind: "module", fn: -1}}
	for _, child := range tree.Root.Children {
		if err := w.visit(child, root, 1); err != nil {
			return nil, err
		}
	}

	return w.res, nil
}

// Failed builds the result recorded for a file that could not be parsed:
// the module entity with its error and no children.
func Failed(info ModuleInfo, src []byte, err error) *models.FileResult {
	return &models.FileResult{Module: models.Module{
		Name:        info.Name,
		Path:        info.Path,
		IsPackage:   info.IsPackage,
		LineCount:   countLines(src),
		ByteSize:    int64(len(src)),
		Fingerprint: info.Fingerprint,
		ModTime:     info.ModTime,
		ParseError:  err.Error(),
	}}
}

// Merge combines results produced by different backends for one file
func Merge(parts ...*models.FileResult) *models.FileResult {
	if len(parts) == 0 {
		return nil
	}
	out := &models.FileResult{Module: parts[0].Module}
	for _, p := range parts {
		if out.Module.Docstring == "" {
			out.Module.Docstring = p.Module.Docstring
		}
		out.Classes = append(out.Classes, p.Classes...)
		out.Functions = append(out.Functions, p.Functions...)
		out.Variables = append(out.Variables, p.Variables...)
		out.Imports = append(out.Imports, p.Imports...)
	}
	return out
}

func moduleEntity(tree *parser.Tree, info ModuleInfo) models.Module {
	m := models.Module{
		Name:        info.Name,
		Path:        info.Path,
		IsPackage:   info.IsPackage,
		LineCount:   countLines(tree.Source),
		ByteSize:    int64(len(tree.Source)),
		Fingerprint: info.Fingerprint,
		ModTime:     info.ModTime,
	}
	m.Docstring = docstring(tree, tree.Root.Children)
	return m
}

func (w *walker) check(depth int) error {
	if w.maxDepth > 0 && depth > w.maxDepth {
		return fmt.Errorf("nesting exceeds max depth %d", w.maxDepth)
	}
	w.visited++
	if w.visited%256 != 0 {
		return nil
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if !w.deadline.IsZero() && time.Now().After(w.deadline) {
		return ErrDeadline
	}
	return nil
}

func (w *walker) visit(n *parser.Node, st []scope, depth int) error {
	if err := w.check(depth); err != nil {
		return err
	}

	switch n.Kind {
	case "decorated_definition":
		def := n.ChildByField("definition")
		if def == nil {
			return nil
		}
		var decorators []string
		for _, d := range n.ChildrenOfKind("decorator") {
			decorators = append(decorators, strings.TrimSpace(strings.TrimPrefix(w.tree.Text(d), "@")))
		}
		return w.definition(def, decorators, st, depth)
	case "class_definition", "function_definition":
		return w.definition(n, nil, st, depth)
	case "import_statement", "import_from_statement", "future_import_statement":
		w.imports(n)
		return nil
	case "assignment":
		w.assignment(n, st)
	case "call":
		w.call(n, st)
	}

	for _, c := range n.Children {
		if err := w.visit(c, st, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) definition(n *parser.Node, decorators []string, st []scope, depth int) error {
	top := st[len(st)-1]
	name := w.tree.Text(n.ChildByField("name"))
	if name == "" {
		return nil
	}
	body := n.ChildByField("body")

	var next scope
	if n.Kind == "class_definition" {
		next = w.class(n, name, decorators, top)
	} else {
		next = w.function(n, name, decorators, top)
	}

	if body == nil {
		return nil
	}
	inner := append(st[:len(st):len(st)], next)
	for _, c := range body.Children {
		if err := w.visit(c, inner, depth+2); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) class(n *parser.Node, name string, decorators []string, top scope) scope {
	base := join(top.id, name)
	id := base
	redefined := w.seenClass[base]
	if redefined {
		id = base + "@" + strconv.Itoa(n.StartLine)
	}
	w.seenClass[base] = true

	qual := join(top.qual, name)
	if w.kinds[models.KindClass] {
		var bases []string
		if supers := n.ChildByField("superclasses"); supers != nil {
			for _, arg := range supers.Children {
				switch arg.Kind {
				case "keyword_argument", "comment", "dictionary_splat":
					continue
				}
				bases = append(bases, collapse(w.tree.Text(arg)))
			}
		}
		w.res.Classes = append(w.res.Classes, models.Class{
			ID:           id,
			Parent:       parentOf(top),
			Name:         name,
			QualName:     qual,
			ModulePath:   w.res.Module.Path,
			Scope:        top.qual,
			ScopeKind:    top.kind,
			Docstring:    docstring(w.tree, bodyChildren(n)),
			StartLine:    n.StartLine,
			EndLine:      n.EndLine,
			Decorators:   decorators,
			Bases:        bases,
			Redefinition: redefined,
		})
	}

	return scope{kind: "class", qual: qual, id: id, fn: -1}
}

func (w *walker) function(n *parser.Node, name string, decorators []string, top scope) scope {
	id := join(top.id, name) + "@" + strconv.Itoa(n.StartLine)
	qual := join(top.qual, name)
	params := w.tree.Text(n.ChildByField("parameters"))
	ret := strings.TrimSpace(w.tree.Text(n.ChildByField("return_type")))

	next := scope{kind: "function", qual: qual, id: id, fn: -1}
	isMethod := top.kind == "class"
	if isMethod && !contains(decorators, "staticmethod") {
		next.selfName = firstParam(params)
		next.selfID = top.id
		next.selfQual = top.qual
	}

	if w.kinds[models.KindFunction] {
		sig := name + collapse(params)
		if ret != "" {
			sig += " -> " + ret
		}
		fn := models.Function{
			ID:         id,
			Parent:     parentOf(top),
			Name:       name,
			QualName:   qual,
			ModulePath: w.res.Module.Path,
			Scope:      top.qual,
			ScopeKind:  top.kind,
			Signature:  sig,
			Docstring:  docstring(w.tree, bodyChildren(n)),
			StartLine:  n.StartLine,
			EndLine:    n.EndLine,
			Decorators: decorators,
			ReturnType: ret,
			IsMethod:   isMethod,
			IsAsync:    strings.HasPrefix(w.tree.Text(n), "async"),
		}
		if isMethod {
			fn.Class = top.qual
		}
		next.fn = len(w.res.Functions)
		w.res.Functions = append(w.res.Functions, fn)
	}
	return next
}

func (w *walker) imports(n *parser.Node) {
	if !w.kinds[models.KindImport] {
		return
	}
	base := models.Import{
		ModulePath: w.res.Module.Path,
		StartLine:  n.StartLine,
		EndLine:    n.EndLine,
	}

	if n.Kind != "import_statement" {
		base.From = true
		if n.Kind == "future_import_statement" {
			base.Module = "__future__"
		}
		if mod := n.ChildByField("module_name"); mod != nil {
			if mod.Kind == "relative_import" {
				base.Level = len(strings.TrimSpace(w.tree.Text(mod.FirstOfKind("import_prefix"))))
				base.Module = w.tree.Text(mod.FirstOfKind("dotted_name"))
			} else {
				base.Module = w.tree.Text(mod)
			}
		}
		if n.FirstOfKind("wildcard_import") != nil {
			imp := base
			imp.Name = "*"
			imp.Wildcard = true
			w.res.Imports = append(w.res.Imports, imp)
			return
		}
	}

	for _, name := range n.ChildrenByField("name") {
		imp := base
		if name.Kind == "aliased_import" {
			imp.Name = collapse(w.tree.Text(name.ChildByField("name")))
			imp.Alias = w.tree.Text(name.ChildByField("alias"))
		} else {
			imp.Name = collapse(w.tree.Text(name))
		}
		w.res.Imports = append(w.res.Imports, imp)
	}
}

func (w *walker) assignment(n *parser.Node, st []scope) {
	if !w.kinds[models.KindVariable] {
		return
	}
	top := st[len(st)-1]
	left := n.ChildByField("left")
	if left == nil {
		return
	}
	annotation := ""
	if t := n.ChildByField("type"); t != nil {
		annotation = strings.TrimSpace(w.tree.Text(t))
	}

	targets := []*parser.Node{left}
	if left.Kind == "pattern_list" || left.Kind == "tuple_pattern" || left.Kind == "list_pattern" {
		targets = left.Children
		annotation = ""
	}

	for _, t := range targets {
		switch {
		case (top.kind == "module" || top.kind == "class") && t.Kind == "identifier":
			w.variable(w.tree.Text(t), annotation, t.StartLine, top.id, top.qual, top.kind, false)
		case top.kind == "function" && top.selfName != "" && t.Kind == "attribute":
			obj := t.ChildByField("object")
			if obj == nil || obj.Kind != "identifier" || w.tree.Text(obj) != top.selfName {
				continue
			}
			attr := w.tree.Text(t.ChildByField("attribute"))
			w.variable(attr, annotation, t.StartLine, top.selfID, top.selfQual, "class", true)
		}
	}
}

func (w *walker) variable(name, annotation string, line int, scopeID, scopeQual, scopeKind string, instance bool) {
	if name == "" {
		return
	}
	id := join(scopeID, name)
	if w.seenVar[id] {
		return
	}
	w.seenVar[id] = true

	parent := models.ParentRef{}
	if scopeKind == "class" {
		parent = models.ParentRef{Kind: models.KindClass, ID: scopeID}
	}
	w.res.Variables = append(w.res.Variables, models.Variable{
		ID:         id,
		Parent:     parent,
		Name:       name,
		ModulePath: w.res.Module.Path,
		Scope:      scopeQual,
		ScopeKind:  scopeKind,
		Annotation: annotation,
		Line:       line,
		Instance:   instance,
	})
}

func (w *walker) call(n *parser.Node, st []scope) {
	top := st[len(st)-1]
	if top.kind != "function" || top.fn < 0 {
		return
	}
	callee := collapse(w.tree.Text(n.ChildByField("function")))
	if !isDottedName(callee) {
		return
	}
	key := top.id + "|" + callee + "|" + strconv.Itoa(n.StartLine)
	if w.seenCall[key] {
		return
	}
	w.seenCall[key] = true
	fn := &w.res.Functions[top.fn]
	fn.Calls = append(fn.Calls, models.CallSite{Callee: callee, Line: n.StartLine})
}

func parentOf(s scope) models.ParentRef {
	if s.kind == "module" {
		return models.ParentRef{}
	}
	return models.ParentRef{Kind: s.kind, ID: s.id}
}

func bodyChildren(n *parser.Node) []*parser.Node {
	if body := n.ChildByField("body"); body != nil {
		return body.Children
	}
	return nil
}

// docstring returns the leading string literal of a body, unquoted
func docstring(tree *parser.Tree, stmts []*parser.Node) string {
	for _, s := range stmts {
		if s.Kind == "comment" {
			continue
		}
		if s.Kind != "expression_statement" || len(s.Children) != 1 || s.Children[0].Kind != "string" {
			return ""
		}
		return unquote(tree.Text(s.Children[0]))
	}
	return ""
}

func unquote(s string) string {
	s = strings.TrimLeft(s, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}

// firstParam returns the receiver name from a parameter list
func firstParam(params string) string {
	params = strings.TrimSpace(params)
	params = strings.TrimPrefix(params, "(")
	params = strings.TrimSuffix(params, ")")
	first := params
	if i := strings.IndexAny(first, ",:="); i >= 0 {
		first = first[:i]
	}
	first = strings.TrimSpace(first)
	if strings.HasPrefix(first, "*") || first == "/" {
		return ""
	}
	return first
}

// collapse folds runs of whitespace, including newlines, into single spaces
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isDottedName(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			return false
		}
		for i, r := range part {
			if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 0x7f || i > 0 && r >= '0' && r <= '9') {
				return false
			}
		}
	}
	return true
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	return a + "." + b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := bytes.Count(src, []byte{'\n'})
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}
