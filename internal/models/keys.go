package models

// Unique keys identify graph nodes across runs. They are built from the
// file path and the path independent entity ID only, never from line
// ranges of unrelated entities or traversal order.

// Stub kinds for ImportTarget nodes
const (
	StubModule     = "module"
	StubSymbol     = "symbol"
	StubUnresolved = "unresolved"
)

func ModuleKey(path string) string { return "module:" + path }

func ClassKey(path, id string) string { return KindClass + ":" + path + ":" + id }

func FunctionKey(path, id string) string { return KindFunction + ":" + path + ":" + id }

func VariableKey(path, id string) string { return KindVariable + ":" + path + ":" + id }

// ParentKey returns the key of the structural parent of an entity in the
// module at path
func ParentKey(path string, p ParentRef) string {
	switch p.Kind {
	case KindClass:
		return ClassKey(path, p.ID)
	case KindFunction:
		return FunctionKey(path, p.ID)
	default:
		return ModuleKey(path)
	}
}

// Stub is a placeholder target for references that leave the analyzed
// code: external modules, symbols of external modules, and names that
// could not be resolved at all.
type Stub struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// NewStub builds a stub with its canonical key
func NewStub(kind, name string) Stub {
	return Stub{Key: "external:" + kind + ":" + name, Kind: kind, Name: name}
}
