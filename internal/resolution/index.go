package resolution

import (
	"sort"
	"strings"

	"github.com/rohankatakam/codegraph/internal/models"
)

// Index is the global symbol table over every analyzed file. It is built
// once all files are merged and is read only afterwards.
type Index struct {
	modules map[string]*models.FileResult // dotted name -> file
	order   []*models.FileResult          // path order

	// module-level definitions; a later definition of a name replaces an
	// earlier one, matching runtime binding
	topClass map[string]map[string]string // module -> name -> class key
	topFunc  map[string]map[string]string // module -> name -> function key

	// unique-name lookups within a package
	pkgClass map[string]map[string][]string
	pkgFunc  map[string]map[string][]string

	methods map[string]map[string]string // class key -> method name -> function key
	nested  map[string]map[string]string // function key -> nested function name -> function key
}

// NewIndex builds the index. Files are ordered by path, so when two files
// map to the same dotted name (a.py and a.pyi) the first path wins.
func NewIndex(results []*models.FileResult) *Index {
	ordered := make([]*models.FileResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Module.Path < ordered[j].Module.Path })

	idx := &Index{
		modules:  make(map[string]*models.FileResult, len(ordered)),
		order:    ordered,
		topClass: make(map[string]map[string]string),
		topFunc:  make(map[string]map[string]string),
		pkgClass: make(map[string]map[string][]string),
		pkgFunc:  make(map[string]map[string][]string),
		methods:  make(map[string]map[string]string),
		nested:   make(map[string]map[string]string),
	}

	for _, r := range ordered {
		name := r.Module.Name
		if _, dup := idx.modules[name]; dup {
			continue
		}
		idx.modules[name] = r
		path := r.Module.Path

		for _, c := range r.Classes {
			if c.Parent.Kind == "" {
				put(idx.topClass, name, c.Name, models.ClassKey(path, c.ID))
			}
		}
		for _, f := range r.Functions {
			key := models.FunctionKey(path, f.ID)
			switch f.Parent.Kind {
			case "":
				put(idx.topFunc, name, f.Name, key)
			case models.KindClass:
				put(idx.methods, models.ClassKey(path, f.Parent.ID), f.Name, key)
			case models.KindFunction:
				put(idx.nested, models.FunctionKey(path, f.Parent.ID), f.Name, key)
			}
		}
	}

	for _, r := range ordered {
		name := r.Module.Name
		if idx.modules[name] != r {
			continue
		}
		pkg := r.Module.Package()
		for _, n := range sortedNames(idx.topClass[name]) {
			add(idx.pkgClass, pkg, n, idx.topClass[name][n])
		}
		for _, n := range sortedNames(idx.topFunc[name]) {
			add(idx.pkgFunc, pkg, n, idx.topFunc[name][n])
		}
	}

	return idx
}

// Module returns the file analyzed under a dotted name
func (idx *Index) Module(name string) (*models.FileResult, bool) {
	r, ok := idx.modules[name]
	return r, ok
}

// Files returns every indexed file in path order
func (idx *Index) Files() []*models.FileResult {
	return idx.order
}

func put(m map[string]map[string]string, outer, inner, value string) {
	if m[outer] == nil {
		m[outer] = make(map[string]string)
	}
	m[outer][inner] = value
}

func add(m map[string]map[string][]string, outer, inner, value string) {
	if m[outer] == nil {
		m[outer] = make(map[string][]string)
	}
	m[outer][inner] = append(m[outer][inner], value)
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func joinName(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}

func parentName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i]
	}
	return ""
}
