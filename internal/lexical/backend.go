// Package lexical is a line-oriented Python reader that needs no grammar
// runtime. It understands indentation, brackets, strings and the statement
// forms the extractor consumes, and emits the same node vocabulary as the
// tree-sitter backend. Expressions are kept shallow.
package lexical

import (
	"context"

	"github.com/rohankatakam/codegraph/internal/parser"
)

// Name is the registry name of this backend
const Name = "lexical"

type Backend struct {
	maxDepth int
}

// New creates the backend. maxDepth bounds block nesting.
func New(maxDepth int) *Backend {
	return &Backend{maxDepth: maxDepth}
}

func (b *Backend) Name() string { return Name }

// Parse implements parser.Backend
func (b *Backend) Parse(ctx context.Context, path string, src []byte) (*parser.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sc := newScanner(path, src)
	if err := sc.mask(); err != nil {
		return nil, err
	}
	lines, err := sc.logicalLines()
	if err != nil {
		return nil, err
	}

	bld := &builder{
		sc:       sc,
		lines:    lines,
		maxDepth: b.maxDepth,
		stop:     ctx.Err,
	}
	root, err := bld.module()
	if err != nil {
		return nil, err
	}

	return &parser.Tree{Source: src, Root: root}, nil
}
