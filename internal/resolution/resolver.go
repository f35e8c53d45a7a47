package resolution

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/codegraph/internal/errors"
	"github.com/rohankatakam/codegraph/internal/models"
)

// Call resolution modes
const (
	CallsOff       = "off"
	CallsStrict    = "strict"
	CallsHeuristic = "heuristic"
)

// Confidence values carried by CALLS edges
const (
	ConfidenceExact     = "exact"
	ConfidenceHeuristic = "heuristic"
)

const maxHops = 4

// Stats counts resolution attempts and successes
type Stats struct {
	Imports         int `json:"imports" yaml:"imports"`
	ImportsInternal int `json:"imports_internal" yaml:"imports_internal"`
	Bases           int `json:"bases" yaml:"bases"`
	BasesResolved   int `json:"bases_resolved" yaml:"bases_resolved"`
	Calls           int `json:"calls" yaml:"calls"`
	CallsResolved   int `json:"calls_resolved" yaml:"calls_resolved"`
	Unresolved      int `json:"unresolved" yaml:"unresolved"`
}

// Result holds every relationship of the run and the stubs they point at
type Result struct {
	Relationships []models.Relationship
	Stubs         []models.Stub
	Stats         Stats
}

// Resolver derives relationships from an Index
type Resolver struct {
	index  *Index
	calls  string
	logger *logrus.Logger

	bindings map[string]*scopeBindings // by module path
	inherits map[string][]string       // class key -> resolved internal base keys
	stubs    map[string]models.Stub
	edges    map[string]int // source|target|type -> position in rels
	rels     []models.Relationship
	stats    Stats
}

type binding struct {
	module string // absolute dotted module
	name   string // symbol inside module, empty when the module itself is bound
}

type scopeBindings struct {
	names     map[string]binding
	wildcards []string
}

// target is the outcome of resolving a reference
type target struct {
	key      string // internal entity key
	kind     string // models.KindClass, models.KindFunction or "module"
	external string // dotted name when the reference leaves the analyzed code
}

const kindModule = "module"

// NewResolver creates a resolver. calls is one of CallsOff, CallsStrict,
// CallsHeuristic; anything else behaves as strict.
func NewResolver(index *Index, calls string, logger *logrus.Logger) *Resolver {
	return &Resolver{
		index:    index,
		calls:    calls,
		logger:   logger,
		bindings: make(map[string]*scopeBindings),
		inherits: make(map[string][]string),
		stubs:    make(map[string]models.Stub),
		edges:    make(map[string]int),
	}
}

// Resolve produces CONTAINS, DEFINES, IMPORTS, INHERITS_FROM and, unless
// disabled, CALLS relationships. Unresolvable references become stubs;
// ambiguous calls are dropped.
func (r *Resolver) Resolve(ctx context.Context) (*Result, error) {
	files := r.index.Files()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.structure(f)
		r.imports(f)
	}

	// bases first: CALLS through self walks the inheritance edges
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.bases(f)
	}

	if r.calls != CallsOff {
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r.callEdges(f)
		}
	}

	stubs := make([]models.Stub, 0, len(r.stubs))
	for _, s := range r.stubs {
		stubs = append(stubs, s)
	}
	sort.Slice(stubs, func(i, j int) bool { return stubs[i].Key < stubs[j].Key })

	r.logger.WithFields(logrus.Fields{
		"relationships":    len(r.rels),
		"stubs":            len(stubs),
		"imports":          r.stats.Imports,
		"imports_internal": r.stats.ImportsInternal,
		"bases":            r.stats.Bases,
		"bases_resolved":   r.stats.BasesResolved,
		"calls":            r.stats.Calls,
		"calls_resolved":   r.stats.CallsResolved,
		"unresolved":       r.stats.Unresolved,
	}).Info("resolution complete")

	return &Result{Relationships: r.rels, Stubs: stubs, Stats: r.stats}, nil
}

// edge appends a relationship once per (source, target, type). The first
// occurrence keeps its properties.
func (r *Resolver) edge(source, tgt, typ string, props map[string]any) int {
	id := source + "|" + tgt + "|" + typ
	if i, ok := r.edges[id]; ok {
		return i
	}
	r.edges[id] = len(r.rels)
	r.rels = append(r.rels, models.Relationship{SourceKey: source, TargetKey: tgt, Type: typ, Properties: props})
	return len(r.rels) - 1
}

// unresolved records a reference left as a stub. It never fails the run.
func (r *Resolver) unresolved(err *errors.Error) {
	r.stats.Unresolved++
	r.logger.WithFields(logrus.Fields(err.Context)).WithError(err).Debug("reference unresolved")
}

func (r *Resolver) stub(kind, name string) string {
	s := models.NewStub(kind, name)
	r.stubs[s.Key] = s
	return s.Key
}

func (r *Resolver) structure(f *models.FileResult) {
	path := f.Module.Path
	mod := models.ModuleKey(path)

	for _, c := range f.Classes {
		key := models.ClassKey(path, c.ID)
		r.edge(models.ParentKey(path, c.Parent), key, models.RelContains, nil)
		r.edge(mod, key, models.RelDefines, nil)
	}
	for _, fn := range f.Functions {
		key := models.FunctionKey(path, fn.ID)
		r.edge(models.ParentKey(path, fn.Parent), key, models.RelContains, nil)
		r.edge(mod, key, models.RelDefines, nil)
	}
	for _, v := range f.Variables {
		key := models.VariableKey(path, v.ID)
		r.edge(models.ParentKey(path, v.Parent), key, models.RelContains, nil)
		r.edge(mod, key, models.RelDefines, nil)
	}
}

// absolute resolves the source module of an import against the importing
// module's package. ok is false when relative dots climb above the root.
func absolute(imp models.Import, m models.Module) (string, bool) {
	if imp.Level == 0 {
		return imp.Module, true
	}
	var parts []string
	if pkg := m.Package(); pkg != "" {
		parts = strings.Split(pkg, ".")
	}
	up := imp.Level - 1
	if up > len(parts) {
		return "", false
	}
	return joinName(strings.Join(parts[:len(parts)-up], "."), imp.Module), true
}

func (r *Resolver) scope(f *models.FileResult) *scopeBindings {
	if b, ok := r.bindings[f.Module.Path]; ok {
		return b
	}
	b := &scopeBindings{names: make(map[string]binding)}
	for _, imp := range f.Imports {
		mod, ok := absolute(imp, f.Module)
		if !ok {
			continue
		}
		switch {
		case imp.Wildcard:
			b.wildcards = append(b.wildcards, mod)
		case imp.From:
			b.names[imp.Bound()] = binding{module: mod, name: imp.Name}
		case imp.Alias != "":
			b.names[imp.Alias] = binding{module: imp.Name}
		default:
			head := imp.Bound()
			b.names[head] = binding{module: head}
		}
	}
	r.bindings[f.Module.Path] = b
	return b
}

func (r *Resolver) imports(f *models.FileResult) {
	src := models.ModuleKey(f.Module.Path)

	for _, imp := range f.Imports {
		r.stats.Imports++
		props := map[string]any{
			"name":     imp.Name,
			"line":     imp.StartLine,
			"wildcard": imp.Wildcard,
			"level":    imp.Level,
		}
		if imp.Alias != "" {
			props["alias"] = imp.Alias
		}

		var dst string
		resolved := false
		mod, ok := absolute(imp, f.Module)
		switch {
		case !ok:
			dst = r.stub(models.StubUnresolved, strings.Repeat(".", imp.Level)+imp.Module)
			r.unresolved(errors.ResolutionErrorf("relative import climbs above the root").
				WithContext("module", f.Module.Path).
				WithContext("line", imp.StartLine))
		case !imp.From:
			if m, found := r.index.Module(imp.Name); found {
				dst, resolved = models.ModuleKey(m.Module.Path), true
			} else {
				dst = r.stub(models.StubModule, imp.Name)
			}
		default:
			if sub, found := r.index.Module(joinName(mod, imp.Name)); found && !imp.Wildcard {
				dst, resolved = models.ModuleKey(sub.Module.Path), true
			} else if m, found := r.index.Module(mod); found && mod != "" {
				dst, resolved = models.ModuleKey(m.Module.Path), true
			} else if mod == "" {
				dst = r.stub(models.StubUnresolved, strings.Repeat(".", imp.Level)+imp.Name)
			} else {
				dst = r.stub(models.StubModule, mod)
			}
		}
		if resolved {
			r.stats.ImportsInternal++
		}
		props["resolved"] = resolved

		i := r.edge(src, dst, models.RelImports, props)
		rel := &r.rels[i]
		names, _ := rel.Properties["names"].([]string)
		rel.Properties["names"] = append(names, imp.Name)
	}
}

// symbol looks up name inside an analyzed module, following re-exports
func (r *Resolver) symbol(module, name string, hops int) (target, bool) {
	f, ok := r.index.Module(module)
	if !ok {
		return target{external: joinName(module, name)}, true
	}
	if key, ok := r.index.topClass[module][name]; ok {
		return target{key: key, kind: models.KindClass}, true
	}
	if key, ok := r.index.topFunc[module][name]; ok {
		return target{key: key, kind: models.KindFunction}, true
	}
	if sub, ok := r.index.Module(joinName(module, name)); ok {
		return target{key: models.ModuleKey(sub.Module.Path), kind: kindModule}, true
	}
	if hops < maxHops {
		if b, ok := r.scope(f).names[name]; ok {
			if b.name == "" {
				return r.dotted(b.module, nil, hops+1)
			}
			return r.symbol(b.module, b.name, hops+1)
		}
	}
	return target{}, false
}

// dotted resolves base.rest... by finding the longest analyzed module prefix
func (r *Resolver) dotted(base string, rest []string, hops int) (target, bool) {
	var all []string
	if base != "" {
		all = strings.Split(base, ".")
	}
	all = append(all, rest...)
	if len(all) == 0 {
		return target{}, false
	}

	for i := len(all); i > 0; i-- {
		modName := strings.Join(all[:i], ".")
		f, ok := r.index.Module(modName)
		if !ok {
			continue
		}
		remaining := all[i:]
		switch len(remaining) {
		case 0:
			return target{key: models.ModuleKey(f.Module.Path), kind: kindModule}, true
		case 1:
			return r.symbol(modName, remaining[0], hops)
		case 2:
			if cls, ok := r.index.topClass[modName][remaining[0]]; ok {
				if m, ok := r.index.methods[cls][remaining[1]]; ok {
					return target{key: m, kind: models.KindFunction}, true
				}
			}
		}
		return target{}, false
	}
	return target{external: strings.Join(all, ".")}, true
}

// reference resolves a dotted name as written in file f: module-level
// definitions first, then import bindings, then wildcard imports. A positive
// line limits local definitions to those bound before it.
func (r *Resolver) reference(f *models.FileResult, ref string, line int) (target, bool) {
	parts := strings.Split(ref, ".")
	head := parts[0]

	if len(parts) == 1 {
		if t, ok := localTop(f, head, line); ok {
			return t, true
		}
	}

	sc := r.scope(f)
	if b, ok := sc.names[head]; ok {
		if b.name == "" {
			// "import a.b" binds a; "a.b.C" walks from a
			return r.dotted(b.module, parts[1:], 0)
		}
		if len(parts) == 1 {
			return r.symbol(b.module, b.name, 0)
		}
		return r.dotted(joinName(b.module, b.name), parts[1:], 0)
	}

	if len(parts) == 1 {
		for _, w := range sc.wildcards {
			if _, analyzed := r.index.Module(w); !analyzed {
				continue
			}
			if t, ok := r.symbol(w, head, 0); ok && t.key != "" {
				return t, true
			}
		}
	}
	return target{}, false
}

// localTop finds the module-level class or function that name is bound to
// in f: the last definition, or with before > 0 the last one starting above
// that line
func localTop(f *models.FileResult, name string, before int) (target, bool) {
	var t target
	found := false
	line := -1
	visible := func(start int) bool { return before <= 0 || start < before }
	for _, c := range f.Classes {
		if c.Parent.Kind == "" && c.Name == name && c.StartLine > line && visible(c.StartLine) {
			t, found, line = target{key: models.ClassKey(f.Module.Path, c.ID), kind: models.KindClass}, true, c.StartLine
		}
	}
	for _, fn := range f.Functions {
		if fn.Parent.Kind == "" && fn.Name == name && fn.StartLine > line && visible(fn.StartLine) {
			t, found, line = target{key: models.FunctionKey(f.Module.Path, fn.ID), kind: models.KindFunction}, true, fn.StartLine
		}
	}
	return t, found
}

func (r *Resolver) bases(f *models.FileResult) {
	path := f.Module.Path
	pkg := f.Module.Package()
	// prefix of this file's class keys; a same-file name the line check
	// rejected is not a package match
	ownPrefix := models.ClassKey(path, "")

	for _, c := range f.Classes {
		src := models.ClassKey(path, c.ID)
		for pos, raw := range c.Bases {
			ref := cleanRef(raw)
			if ref == "" {
				continue
			}
			r.stats.Bases++

			// base expressions are evaluated where the class statement runs
			var dst, via string
			t, ok := r.reference(f, ref, c.StartLine)
			switch {
			case ok && t.key != "" && t.kind == models.KindClass:
				if t.key == src {
					continue
				}
				dst, via = t.key, "import"
				if _, local := localTop(f, ref, c.StartLine); local {
					via = "module"
				}
			case ok && t.external != "":
				dst, via = r.stub(models.StubSymbol, t.external), "external"
			case !ok && !strings.Contains(ref, ".") && !r.bound(f, ref):
				if cands := r.index.pkgClass[pkg][ref]; len(cands) == 1 && !strings.HasPrefix(cands[0], ownPrefix) {
					dst, via = cands[0], "package"
				} else if builtins[ref] {
					dst, via = r.stub(models.StubSymbol, "builtins."+ref), "builtin"
				}
			}
			if dst == "" {
				dst, via = r.stub(models.StubUnresolved, ref), "unresolved"
				r.unresolved(errors.ResolutionErrorf("base %s of %s not found", ref, c.Name).
					WithContext("module", path).
					WithContext("line", c.StartLine))
			}
			if !strings.HasPrefix(dst, "external:") {
				r.stats.BasesResolved++
				r.inherits[src] = append(r.inherits[src], dst)
			}

			r.edge(src, dst, models.RelInheritsFrom, map[string]any{
				"base":     raw,
				"position": pos,
				"via":      via,
			})
		}
	}
}

func (r *Resolver) callEdges(f *models.FileResult) {
	path := f.Module.Path
	for _, fn := range f.Functions {
		if len(fn.Calls) == 0 {
			continue
		}
		src := models.FunctionKey(path, fn.ID)
		for _, call := range fn.Calls {
			r.stats.Calls++
			dst, confidence := r.call(f, fn, src, call.Callee)
			if dst == "" {
				continue
			}
			r.stats.CallsResolved++
			r.edge(src, dst, models.RelCalls, map[string]any{
				"callee":     call.Callee,
				"line":       call.Line,
				"confidence": confidence,
			})
		}
	}
}

func (r *Resolver) call(f *models.FileResult, fn models.Function, src, callee string) (string, string) {
	path := f.Module.Path
	parts := strings.Split(callee, ".")

	if len(parts) == 2 && (parts[0] == "self" || parts[0] == "cls") && fn.IsMethod && fn.Parent.Kind == models.KindClass {
		if m := r.method(models.ClassKey(path, fn.Parent.ID), parts[1]); m != "" {
			return m, ConfidenceExact
		}
		return "", ""
	}

	if len(parts) == 1 {
		if key, ok := r.index.nested[src][callee]; ok {
			return key, ConfidenceExact
		}
		if fn.Parent.Kind == models.KindFunction {
			if key, ok := r.index.nested[models.FunctionKey(path, fn.Parent.ID)][callee]; ok {
				return key, ConfidenceExact
			}
		}
	}

	// function bodies run after the module is loaded, so calls see the
	// final module-level binding
	if t, ok := r.reference(f, callee, 0); ok && t.key != "" {
		switch t.kind {
		case models.KindFunction:
			return t.key, ConfidenceExact
		case models.KindClass:
			if ctor := r.method(t.key, "__init__"); ctor != "" {
				return ctor, ConfidenceExact
			}
		}
		return "", ""
	}

	if r.calls == CallsHeuristic && len(parts) == 1 {
		if !r.bound(f, callee) {
			if cands := r.index.pkgFunc[f.Module.Package()][callee]; len(cands) == 1 && cands[0] != src {
				return cands[0], ConfidenceHeuristic
			}
		}
	}
	return "", ""
}

func (r *Resolver) bound(f *models.FileResult, name string) bool {
	_, ok := r.scope(f).names[name]
	return ok
}

// method finds name on a class or, breadth first, on its resolved bases
func (r *Resolver) method(classKey, name string) string {
	queue := []string{classKey}
	seen := map[string]bool{classKey: true}
	for depth := 0; len(queue) > 0 && depth <= maxHops; depth++ {
		var next []string
		for _, c := range queue {
			if m, ok := r.index.methods[c][name]; ok {
				return m
			}
			for _, b := range r.inherits[c] {
				if !seen[b] {
					seen[b] = true
					next = append(next, b)
				}
			}
		}
		queue = next
	}
	return ""
}

// cleanRef reduces a base class expression to a dotted name: subscripts and
// call arguments are dropped ("Generic[T]" -> "Generic")
func cleanRef(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "[("); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return ""
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return ""
		}
		for i, c := range part {
			if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c > 0x7f || i > 0 && c >= '0' && c <= '9') {
				return ""
			}
		}
	}
	return s
}

var builtins = map[string]bool{
	"object": true, "type": true, "int": true, "float": true, "str": true, "bytes": true,
	"bool": true, "list": true, "dict": true, "set": true, "frozenset": true, "tuple": true,
	"BaseException": true, "Exception": true, "ValueError": true, "TypeError": true,
	"KeyError": true, "IndexError": true, "RuntimeError": true, "AttributeError": true,
	"NotImplementedError": true, "OSError": true, "IOError": true, "LookupError": true,
	"ArithmeticError": true, "StopIteration": true, "Warning": true, "UserWarning": true,
	"DeprecationWarning": true,
}
