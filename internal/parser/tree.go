package parser

// Node is a backend-neutral syntax node. Kinds and field names follow the
// tree-sitter Python grammar so every backend feeds the same extractor.
type Node struct {
	Kind      string
	Field     string // field name under the parent, empty if none
	StartLine int    // 1-based
	EndLine   int    // 1-based, inclusive
	StartByte int
	EndByte   int
	Children  []*Node
}

// Tree is a parsed file
type Tree struct {
	Source []byte
	Root   *Node
}

// Text returns the source slice covered by n
func (t *Tree) Text(n *Node) string {
	if n == nil || n.StartByte < 0 || n.EndByte > len(t.Source) || n.StartByte > n.EndByte {
		return ""
	}
	return string(t.Source[n.StartByte:n.EndByte])
}

// ChildByField returns the first child carrying the field name
func (n *Node) ChildByField(field string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildrenByField returns every child carrying the field name
func (n *Node) ChildrenByField(field string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// ChildrenOfKind returns direct children of the given kind
func (n *Node) ChildrenOfKind(kind string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// FirstOfKind returns the first direct child of the given kind
func (n *Node) FirstOfKind(kind string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}
