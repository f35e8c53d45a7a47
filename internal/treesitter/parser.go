package treesitter

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/rohankatakam/codegraph/internal/parser"
)

// Name is the registry name of this backend
const Name = "treesitter"

// Backend parses Python with the tree-sitter grammar and converts the CST
// into the normalized parser.Tree. Only named nodes are kept.
type Backend struct {
	language *sitter.Language
	pool     sync.Pool
	maxDepth int
}

// New creates the backend. maxDepth bounds conversion recursion; files
// nested deeper are rejected with a ParseError.
func New(maxDepth int) *Backend {
	b := &Backend{
		language: sitter.NewLanguage(tree_sitter_python.Language()),
		maxDepth: maxDepth,
	}
	// tree-sitter parsers are not safe for concurrent use, so each worker
	// borrows one from the pool.
	b.pool.New = func() any {
		p := sitter.NewParser()
		if err := p.SetLanguage(b.language); err != nil {
			p.Close()
			return nil
		}
		return p
	}
	return b
}

func (b *Backend) Name() string { return Name }

// Parse implements parser.Backend
func (b *Backend) Parse(ctx context.Context, path string, src []byte) (*parser.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, _ := b.pool.Get().(*sitter.Parser)
	if p == nil {
		return nil, fmt.Errorf("failed to create tree-sitter parser")
	}
	tree := p.Parse(src, nil)
	b.pool.Put(p)
	if tree == nil {
		return nil, &parser.ParseError{Backend: Name, Path: path, Message: "parser returned no tree"}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(path, root)
	}

	c := &converter{ctx: ctx, path: path, maxDepth: b.maxDepth}
	cursor := root.Walk()
	defer cursor.Close()

	out, err := c.visit(cursor, 0)
	if err != nil {
		return nil, err
	}

	return &parser.Tree{Source: src, Root: out}, nil
}

type converter struct {
	ctx      context.Context
	path     string
	maxDepth int
	visited  int
}

func (c *converter) visit(cursor *sitter.TreeCursor, depth int) (*parser.Node, error) {
	if c.maxDepth > 0 && depth > c.maxDepth {
		n := cursor.Node()
		return nil, &parser.ParseError{
			Backend: Name,
			Path:    c.path,
			Line:    int(n.StartPosition().Row) + 1,
			Column:  int(n.StartPosition().Column) + 1,
			Message: fmt.Sprintf("nesting exceeds max depth %d", c.maxDepth),
		}
	}

	c.visited++
	if c.visited%4096 == 0 {
		if err := c.ctx.Err(); err != nil {
			return nil, err
		}
	}

	n := cursor.Node()
	out := &parser.Node{
		Kind:      n.Kind(),
		Field:     cursor.FieldName(),
		StartLine: int(n.StartPosition().Row) + 1,
		EndLine:   int(n.EndPosition().Row) + 1,
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}

	if cursor.GotoFirstChild() {
		for {
			if cursor.Node().IsNamed() {
				child, err := c.visit(cursor, depth+1)
				if err != nil {
					return nil, err
				}
				out.Children = append(out.Children, child)
			}
			if !cursor.GotoNextSibling() {
				break
			}
		}
		cursor.GotoParent()
	}

	return out, nil
}

// syntaxError locates the first ERROR or MISSING node in document order
func syntaxError(path string, root *sitter.Node) error {
	bad := firstErrorNode(root)
	if bad == nil {
		return &parser.ParseError{Backend: Name, Path: path, Message: "syntax error"}
	}

	msg := "syntax error"
	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %s", bad.Kind())
	}
	return &parser.ParseError{
		Backend: Name,
		Path:    path,
		Line:    int(bad.StartPosition().Row) + 1,
		Column:  int(bad.StartPosition().Column) + 1,
		Message: msg,
	}
}

func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
