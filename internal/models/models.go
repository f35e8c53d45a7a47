package models

import "strings"

// Entity kinds. Backend selection is expressed per kind.
const (
	KindClass    = "class"
	KindFunction = "function"
	KindVariable = "variable"
	KindImport   = "import"
)

// Relationship types
const (
	RelContains     = "CONTAINS"
	RelDefines      = "DEFINES"
	RelImports      = "IMPORTS"
	RelCalls        = "CALLS"
	RelInheritsFrom = "INHERITS_FROM"
)

// File processing outcomes reported in the manifest
const (
	StatusOK        = "ok"
	StatusCached    = "cached"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

// Module is one analyzed source file
type Module struct {
	Name        string `json:"name"` // dotted name relative to the source root
	Path        string `json:"path"`
	Docstring   string `json:"docstring,omitempty"`
	LineCount   int    `json:"line_count"`
	ByteSize    int64  `json:"byte_size"`
	Fingerprint string `json:"fingerprint"`
	ModTime     int64  `json:"mod_time,omitempty"` // unix seconds
	IsPackage   bool   `json:"is_package,omitempty"`
	ParseError  string `json:"parse_error,omitempty"`
}

// RootPackageName is the module name of an __init__ file at the catalog root
const RootPackageName = "__init__"

// Package returns the dotted name of the package the module lives in. The
// root package has the empty name, so its relative imports resolve against
// the root like those of its sibling modules.
func (m *Module) Package() string {
	if m.IsPackage {
		if m.Name == RootPackageName {
			return ""
		}
		return m.Name
	}
	if i := strings.LastIndex(m.Name, "."); i >= 0 {
		return m.Name[:i]
	}
	return ""
}

// ParentRef points at the structural parent of an entity within the same
// file. Kind is empty for the module itself.
type ParentRef struct {
	Kind string `json:"kind,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Class is a class definition. ID is unique within the file and never
// depends on the file path, so cached results stay valid after a move.
// Scope is the dotted chain of enclosing class/function names, empty at
// module level. ScopeKind is the kind of the innermost enclosing entity.
type Class struct {
	ID         string    `json:"id"`
	Parent     ParentRef `json:"parent"`
	Name       string    `json:"name"`
	QualName   string    `json:"qual_name"`
	ModulePath string    `json:"module_path"`
	Scope      string    `json:"scope,omitempty"`
	ScopeKind  string    `json:"scope_kind,omitempty"`
	Docstring  string    `json:"docstring,omitempty"`
	StartLine  int       `json:"start_line"`
	EndLine    int       `json:"end_line"`
	Decorators []string  `json:"decorators,omitempty"`
	Bases      []string  `json:"bases,omitempty"`
	// Set when an earlier class with the same qualified name exists in the module
	Redefinition bool `json:"redefinition,omitempty"`
}

type Function struct {
	ID         string     `json:"id"`
	Parent     ParentRef  `json:"parent"`
	Name       string     `json:"name"`
	QualName   string     `json:"qual_name"`
	ModulePath string     `json:"module_path"`
	Scope      string     `json:"scope,omitempty"`
	ScopeKind  string     `json:"scope_kind,omitempty"`
	Signature  string     `json:"signature"`
	Docstring  string     `json:"docstring,omitempty"`
	StartLine  int        `json:"start_line"`
	EndLine    int        `json:"end_line"`
	Decorators []string   `json:"decorators,omitempty"`
	ReturnType string     `json:"return_type,omitempty"`
	IsMethod   bool       `json:"is_method"`
	IsAsync    bool       `json:"is_async,omitempty"`
	Class      string     `json:"class,omitempty"` // qualified name of the enclosing class
	Calls      []CallSite `json:"calls,omitempty"`
}

// CallSite is a raw call expression found in a function body
type CallSite struct {
	Callee string `json:"callee"` // e.g. "helper", "self.save", "os.path.join"
	Line   int    `json:"line"`
}

type Variable struct {
	ID         string    `json:"id"`
	Parent     ParentRef `json:"parent"`
	Name       string    `json:"name"`
	ModulePath string    `json:"module_path"`
	Scope      string    `json:"scope,omitempty"`
	ScopeKind  string    `json:"scope_kind,omitempty"`
	Annotation string    `json:"annotation,omitempty"`
	Line       int       `json:"line"`
	// true for self.<name> assignments inside a method
	Instance bool `json:"instance,omitempty"`
}

type Import struct {
	Name       string `json:"name"`             // imported name ("os.path", "join", "*")
	Module     string `json:"module,omitempty"` // source module of a from-import, raw
	Alias      string `json:"alias,omitempty"`
	From       bool   `json:"from"`
	Wildcard   bool   `json:"wildcard,omitempty"`
	Level      int    `json:"level,omitempty"` // leading dots of a relative import
	ModulePath string `json:"module_path"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

// Bound returns the local name the import introduces
func (i Import) Bound() string {
	if i.Alias != "" {
		return i.Alias
	}
	if i.From {
		return i.Name
	}
	// "import a.b.c" binds "a"
	if dot := strings.Index(i.Name, "."); dot >= 0 {
		return i.Name[:dot]
	}
	return i.Name
}

// Relationship is a resolved edge between two keyed entities
type Relationship struct {
	SourceKey  string         `json:"source_key"`
	TargetKey  string         `json:"target_key"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// FileResult is everything extracted from a single file
type FileResult struct {
	Module    Module     `json:"module"`
	Classes   []Class    `json:"classes,omitempty"`
	Functions []Function `json:"functions,omitempty"`
	Variables []Variable `json:"variables,omitempty"`
	Imports   []Import   `json:"imports,omitempty"`
}

// Rebase points a result at a new location. Cached results are keyed by
// content fingerprint and may have been produced for a different path.
func (r *FileResult) Rebase(path, name string, isPackage bool) {
	r.Module.Path = path
	r.Module.Name = name
	r.Module.IsPackage = isPackage
	for i := range r.Classes {
		r.Classes[i].ModulePath = path
	}
	for i := range r.Functions {
		r.Functions[i].ModulePath = path
	}
	for i := range r.Variables {
		r.Variables[i].ModulePath = path
	}
	for i := range r.Imports {
		r.Imports[i].ModulePath = path
	}
}

// EntityCount returns the number of non-module entities
func (r *FileResult) EntityCount() int {
	return len(r.Classes) + len(r.Functions) + len(r.Variables) + len(r.Imports)
}

// FileOutcome is the manifest record for one cataloged path
type FileOutcome struct {
	Path        string `json:"path" yaml:"path"`
	Status      string `json:"status" yaml:"status"`
	Fingerprint string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}
