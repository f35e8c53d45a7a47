package lexical

import (
	"bytes"

	"github.com/rohankatakam/codegraph/internal/parser"
)

// Statements that open a suite, mapped to the tree-sitter node kind
var compoundKinds = map[string]string{
	"if":      "if_statement",
	"elif":    "elif_clause",
	"else":    "else_clause",
	"for":     "for_statement",
	"while":   "while_statement",
	"try":     "try_statement",
	"except":  "except_clause",
	"finally": "finally_clause",
	"with":    "with_statement",
	"match":   "match_statement",
	"case":    "case_clause",
}

var simpleKinds = map[string]string{
	"return":   "return_statement",
	"pass":     "pass_statement",
	"break":    "break_statement",
	"continue": "continue_statement",
	"raise":    "raise_statement",
	"del":      "delete_statement",
	"global":   "global_statement",
	"nonlocal": "nonlocal_statement",
	"assert":   "assert_statement",
}

var notCallable = map[string]bool{
	"if": true, "elif": true, "while": true, "for": true, "in": true, "not": true,
	"and": true, "or": true, "is": true, "return": true, "yield": true, "await": true,
	"lambda": true, "assert": true, "del": true, "raise": true, "with": true, "as": true,
	"except": true, "import": true, "from": true,
}

type builder struct {
	sc       *scanner
	lines    []logicalLine
	pos      int
	maxDepth int
	stop     func() error
}

func (b *builder) node(kind, field string, start, end int) *parser.Node {
	start, end = b.trim(start, end)
	last := end - 1
	if last < start {
		last = start
	}
	return &parser.Node{
		Kind:      kind,
		Field:     field,
		StartLine: b.sc.lineOf(start),
		EndLine:   b.sc.lineOf(last),
		StartByte: start,
		EndByte:   end,
	}
}

func (b *builder) trim(start, end int) (int, int) {
	m := b.sc.masked
	for start < end && isBlank(m[start]) {
		start++
	}
	for end > start && isBlank(m[end-1]) {
		end--
	}
	return start, end
}

func (b *builder) module() (*parser.Node, error) {
	root := &parser.Node{
		Kind:      "module",
		StartLine: 1,
		EndLine:   b.sc.lineOf(len(b.sc.src)),
		EndByte:   len(b.sc.src),
	}
	if len(b.lines) > 0 && b.lines[0].indent != 0 {
		return nil, b.sc.errorAt(b.lines[0].start, "unexpected indent")
	}
	children, err := b.block(0, 0)
	if err != nil {
		return nil, err
	}
	if b.pos < len(b.lines) {
		return nil, b.sc.errorAt(b.lines[b.pos].start, "unindent does not match any outer indentation level")
	}
	root.Children = children
	return root, nil
}

// block parses consecutive statements at exactly indent. It returns at the
// first line indented less; callers check that line against their own level.
func (b *builder) block(indent, depth int) ([]*parser.Node, error) {
	if b.maxDepth > 0 && depth > b.maxDepth {
		return nil, b.sc.errorAt(b.lines[b.pos].start, "nesting exceeds max depth %d", b.maxDepth)
	}

	var out []*parser.Node
	var decorators []*parser.Node
	for b.pos < len(b.lines) {
		ln := b.lines[b.pos]
		if ln.indent < indent {
			break
		}
		if ln.indent > indent {
			return nil, b.sc.errorAt(ln.start, "unexpected indent")
		}
		if b.pos%256 == 0 {
			if err := b.stop(); err != nil {
				return nil, err
			}
		}
		b.pos++

		stmts, err := b.statement(ln, depth)
		if err != nil {
			return nil, err
		}
		for _, n := range stmts {
			if n.Kind == "decorator" {
				decorators = append(decorators, n)
				continue
			}
			if len(decorators) > 0 {
				if n.Kind != "class_definition" && n.Kind != "function_definition" {
					return nil, b.sc.errorAt(n.StartByte, "decorator must precede def or class")
				}
				n = b.decorate(decorators, n)
				decorators = nil
			}
			out = append(out, n)
		}
	}
	if len(decorators) > 0 {
		return nil, b.sc.errorAt(decorators[0].StartByte, "decorator must precede def or class")
	}
	return out, nil
}

func (b *builder) decorate(decorators []*parser.Node, def *parser.Node) *parser.Node {
	def.Field = "definition"
	wrapped := b.node("decorated_definition", "", decorators[0].StartByte, def.EndByte)
	wrapped.Children = append(append([]*parser.Node{}, decorators...), def)
	return wrapped
}

func (b *builder) statement(ln logicalLine, depth int) ([]*parser.Node, error) {
	m := b.sc.masked
	kw, kwEnd := word(m, ln.start, ln.end)

	switch {
	case m[ln.start] == '@':
		dec := b.node("decorator", "", ln.start, ln.end)
		dec.Children = b.calls(ln.start+1, ln.end)
		return []*parser.Node{dec}, nil
	case kw == "class":
		n, err := b.classDef(ln, kwEnd, depth)
		return one(n, err)
	case kw == "def":
		n, err := b.funcDef(ln, kwEnd, depth)
		return one(n, err)
	case kw == "async":
		next, nextEnd := word(m, kwEnd, ln.end)
		switch next {
		case "def":
			n, err := b.funcDef(ln, nextEnd, depth)
			return one(n, err)
		case "for", "with":
			n, err := b.compound(ln, compoundKinds[next], nextEnd, depth)
			return one(n, err)
		}
	case kw == "import":
		n, err := b.importStatement(ln, kwEnd)
		return one(n, err)
	case kw == "from":
		n, err := b.fromImport(ln, kwEnd)
		return one(n, err)
	case compoundKinds[kw] != "":
		soft := kw == "match" || kw == "case"
		if !soft || m[ln.end-1] == ':' {
			n, err := b.compound(ln, compoundKinds[kw], kwEnd, depth)
			return one(n, err)
		}
	}

	return b.simpleStatements(ln.start, ln.end), nil
}

func one(n *parser.Node, err error) ([]*parser.Node, error) {
	if err != nil {
		return nil, err
	}
	return []*parser.Node{n}, nil
}

// suite parses the body after a header colon: either the rest of the line
// or an indented block on the following lines.
func (b *builder) suite(ln logicalLine, colon, depth int) (*parser.Node, error) {
	if rest, restEnd := b.trim(colon+1, ln.end); rest < restEnd {
		body := b.node("block", "body", rest, restEnd)
		body.Children = b.simpleStatements(rest, restEnd)
		return body, nil
	}

	if b.pos >= len(b.lines) || b.lines[b.pos].indent <= ln.indent {
		return nil, b.sc.errorAt(colon, "expected an indented block")
	}

	first := b.lines[b.pos]
	children, err := b.block(first.indent, depth+1)
	if err != nil {
		return nil, err
	}
	if b.pos < len(b.lines) {
		next := b.lines[b.pos]
		if next.indent > ln.indent && next.indent < first.indent {
			return nil, b.sc.errorAt(next.start, "unindent does not match any outer indentation level")
		}
	}

	last := children[len(children)-1]
	body := b.node("block", "body", first.start, last.EndByte)
	body.Children = children
	return body, nil
}

func (b *builder) classDef(ln logicalLine, after, depth int) (*parser.Node, error) {
	m := b.sc.masked
	nameStart, nameEnd := identAt(m, after, ln.end)
	if nameStart == nameEnd {
		return nil, b.sc.errorAt(after, "expected class name")
	}
	children := []*parser.Node{b.node("identifier", "name", nameStart, nameEnd)}

	i := skipSpaces(m, nameEnd, ln.end)
	if i < ln.end && m[i] == '(' {
		close := matching(m, i, ln.end)
		args := b.node("argument_list", "superclasses", i, close+1)
		args.Children = b.arguments(i+1, close)
		children = append(children, args)
		i = skipSpaces(m, close+1, ln.end)
	}
	if i >= ln.end || m[i] != ':' {
		return nil, b.sc.errorAt(i, "expected ':'")
	}

	body, err := b.suite(ln, i, depth)
	if err != nil {
		return nil, err
	}
	cls := b.node("class_definition", "", ln.start, body.EndByte)
	cls.Children = append(children, body)
	return cls, nil
}

func (b *builder) funcDef(ln logicalLine, after, depth int) (*parser.Node, error) {
	m := b.sc.masked
	nameStart, nameEnd := identAt(m, after, ln.end)
	if nameStart == nameEnd {
		return nil, b.sc.errorAt(after, "expected function name")
	}
	children := []*parser.Node{b.node("identifier", "name", nameStart, nameEnd)}

	i := skipSpaces(m, nameEnd, ln.end)
	if i >= ln.end || m[i] != '(' {
		return nil, b.sc.errorAt(i, "expected '('")
	}
	close := matching(m, i, ln.end)
	children = append(children, b.node("parameters", "parameters", i, close+1))

	i = skipSpaces(m, close+1, ln.end)
	if i+1 < ln.end && m[i] == '-' && m[i+1] == '>' {
		colon := topLevel(m, i+2, ln.end, ':')
		if colon < 0 {
			return nil, b.sc.errorAt(i, "expected ':'")
		}
		children = append(children, b.node("type", "return_type", i+2, colon))
		i = colon
	}
	if i >= ln.end || m[i] != ':' {
		return nil, b.sc.errorAt(i, "expected ':'")
	}

	body, err := b.suite(ln, i, depth)
	if err != nil {
		return nil, err
	}
	fn := b.node("function_definition", "", ln.start, body.EndByte)
	fn.Children = append(children, body)
	return fn, nil
}

func (b *builder) compound(ln logicalLine, kind string, after, depth int) (*parser.Node, error) {
	colon := topLevel(b.sc.masked, after, ln.end, ':')
	if colon < 0 {
		return nil, b.sc.errorAt(ln.end, "expected ':'")
	}
	body, err := b.suite(ln, colon, depth)
	if err != nil {
		return nil, err
	}
	n := b.node(kind, "", ln.start, body.EndByte)
	n.Children = append(b.calls(after, colon), body)
	return n, nil
}

func (b *builder) importStatement(ln logicalLine, after int) (*parser.Node, error) {
	n := b.node("import_statement", "", ln.start, ln.end)
	for _, part := range splitTopLevel(b.sc.masked, after, ln.end, ',') {
		name, err := b.importName(part[0], part[1])
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, name)
	}
	if len(n.Children) == 0 {
		return nil, b.sc.errorAt(after, "expected module name")
	}
	return n, nil
}

func (b *builder) fromImport(ln logicalLine, after int) (*parser.Node, error) {
	m := b.sc.masked
	imp := indexWord(m, after, ln.end, "import")
	if imp < 0 {
		return nil, b.sc.errorAt(after, "expected 'import'")
	}

	n := b.node("import_from_statement", "", ln.start, ln.end)

	modStart, modEnd := b.trim(after, imp)
	if modStart == modEnd {
		return nil, b.sc.errorAt(after, "expected module name")
	}
	if m[modStart] == '.' {
		dots := modStart
		for dots < modEnd && m[dots] == '.' {
			dots++
		}
		rel := b.node("relative_import", "module_name", modStart, modEnd)
		rel.Children = append(rel.Children, b.node("import_prefix", "", modStart, dots))
		if s, e := b.trim(dots, modEnd); s < e {
			rel.Children = append(rel.Children, b.node("dotted_name", "", s, e))
		}
		n.Children = append(n.Children, rel)
	} else {
		n.Children = append(n.Children, b.node("dotted_name", "module_name", modStart, modEnd))
	}

	namesStart, namesEnd := b.trim(imp+len("import"), ln.end)
	if namesStart < namesEnd && m[namesStart] == '(' {
		namesStart, namesEnd = namesStart+1, matching(m, namesStart, namesEnd)
	}
	if s, e := b.trim(namesStart, namesEnd); e-s == 1 && m[s] == '*' {
		n.Children = append(n.Children, b.node("wildcard_import", "", s, e))
		return n, nil
	}
	for _, part := range splitTopLevel(m, namesStart, namesEnd, ',') {
		name, err := b.importName(part[0], part[1])
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, name)
	}
	if len(n.Children) == 1 {
		return nil, b.sc.errorAt(imp, "expected imported names")
	}
	return n, nil
}

// importName handles "a.b" and "a.b as c"
func (b *builder) importName(start, end int) (*parser.Node, error) {
	m := b.sc.masked
	if as := indexWord(m, start, end, "as"); as >= 0 {
		n := b.node("aliased_import", "name", start, end)
		n.Children = []*parser.Node{
			b.node("dotted_name", "name", start, as),
			b.node("identifier", "alias", as+2, end),
		}
		if n.Children[0].StartByte == n.Children[0].EndByte || n.Children[1].StartByte == n.Children[1].EndByte {
			return nil, b.sc.errorAt(as, "malformed alias")
		}
		return n, nil
	}
	s, e := b.trim(start, end)
	if !isDotted(m[s:e]) {
		return nil, b.sc.errorAt(s, "invalid module name")
	}
	return b.node("dotted_name", "name", s, e), nil
}

// simpleStatements handles a ';'-separated run of simple statements
func (b *builder) simpleStatements(start, end int) []*parser.Node {
	var out []*parser.Node
	for _, part := range splitTopLevel(b.sc.masked, start, end, ';') {
		out = append(out, b.simple(part[0], part[1]))
	}
	return out
}

func (b *builder) simple(start, end int) *parser.Node {
	m := b.sc.masked
	start, end = b.trim(start, end)

	if litEnd, ok := b.sc.literals[start]; ok && litEnd == end {
		stmt := b.node("expression_statement", "", start, end)
		stmt.Children = []*parser.Node{b.node("string", "", start, end)}
		return stmt
	}

	kw, _ := word(m, start, end)
	if kind, ok := simpleKinds[kw]; ok {
		stmt := b.node(kind, "", start, end)
		stmt.Children = b.calls(start, end)
		return stmt
	}

	stmt := b.node("expression_statement", "", start, end)
	if eq, augmented := assignOperator(m, start, end); eq >= 0 {
		if augmented {
			assign := b.node("augmented_assignment", "", start, end)
			assign.Children = append(assign.Children, b.target(start, eq-1))
			right := b.node("expression", "right", eq+1, end)
			right.Children = b.calls(eq+1, end)
			assign.Children = append(assign.Children, right)
			stmt.Children = []*parser.Node{assign}
			return stmt
		}
		stmt.Children = []*parser.Node{b.assignment(start, eq, end)}
		return stmt
	}

	// "x: int" without a value
	if colon := topLevel(m, start, end, ':'); colon > start && kw != "lambda" && isDotted(bytes.TrimSpace(m[start:colon])) {
		assign := b.node("assignment", "", start, end)
		assign.Children = []*parser.Node{b.target(start, colon), b.node("type", "type", colon+1, end)}
		stmt.Children = []*parser.Node{assign}
		return stmt
	}

	stmt.Children = b.calls(start, end)
	return stmt
}

// assignment builds left [: type] = right, nesting chained targets the
// way the grammar does: a = b = 1 is assignment(a, assignment(b, 1)).
func (b *builder) assignment(start, eq, end int) *parser.Node {
	m := b.sc.masked
	assign := b.node("assignment", "", start, end)

	leftEnd := eq
	if colon := topLevel(m, start, eq, ':'); colon >= 0 {
		assign.Children = append(assign.Children, b.target(start, colon), b.node("type", "type", colon+1, eq))
	} else {
		assign.Children = append(assign.Children, b.target(start, leftEnd))
	}

	if next, augmented := assignOperator(m, eq+1, end); next >= 0 && !augmented {
		inner := b.assignment(eq+1, next, end)
		inner.Field = "right"
		assign.Children = append(assign.Children, inner)
		return assign
	}

	right := b.node("expression", "right", eq+1, end)
	right.Children = b.calls(eq+1, end)
	assign.Children = append(assign.Children, right)
	return assign
}

func (b *builder) target(start, end int) *parser.Node {
	m := b.sc.masked
	start, end = b.trim(start, end)
	if parts := splitTopLevel(m, start, end, ','); len(parts) > 1 {
		list := b.node("pattern_list", "left", start, end)
		for _, p := range parts {
			list.Children = append(list.Children, b.expression(p[0], p[1], ""))
		}
		return list
	}
	return b.expression(start, end, "left")
}

// expression classifies a small expression by shape
func (b *builder) expression(start, end int, field string) *parser.Node {
	m := b.sc.masked
	start, end = b.trim(start, end)
	text := m[start:end]
	switch {
	case isIdent(text):
		return b.node("identifier", field, start, end)
	case isDotted(text):
		dot := start + bytes.LastIndexByte(text, '.')
		n := b.node("attribute", field, start, end)
		n.Children = []*parser.Node{
			b.expression(start, dot, "object"),
			b.node("identifier", "attribute", dot+1, end),
		}
		return n
	case len(text) > 0 && text[0] == '*':
		n := b.node("list_splat", field, start, end)
		n.Children = []*parser.Node{b.expression(start+1, end, "")}
		return n
	}
	n := b.node("expression", field, start, end)
	n.Children = b.calls(start, end)
	return n
}

// arguments splits a parenthesized argument list into positional
// expressions and keyword_argument nodes
func (b *builder) arguments(start, end int) []*parser.Node {
	m := b.sc.masked
	var out []*parser.Node
	for _, p := range splitTopLevel(m, start, end, ',') {
		if eq, augmented := assignOperator(m, p[0], p[1]); eq >= 0 && !augmented {
			kw := b.node("keyword_argument", "", p[0], p[1])
			kw.Children = []*parser.Node{
				b.node("identifier", "name", p[0], eq),
				b.expression(eq+1, p[1], "value"),
			}
			out = append(out, kw)
			continue
		}
		out = append(out, b.expression(p[0], p[1], ""))
	}
	return out
}

// calls finds every call expression in the span, outermost first
func (b *builder) calls(start, end int) []*parser.Node {
	m := b.sc.masked
	var out []*parser.Node
	for i := start; i < end; i++ {
		if m[i] != '(' {
			continue
		}
		chainEnd := i
		for chainEnd > start && m[chainEnd-1] == ' ' {
			chainEnd--
		}
		chainStart := chainEnd
		for chainStart > start && (isIdentChar(m[chainStart-1]) || m[chainStart-1] == '.') {
			chainStart--
		}
		if chainStart == chainEnd {
			continue
		}
		if chainStart > start {
			prev := m[chainStart-1]
			if prev == ')' || prev == ']' || prev == '"' || prev == '\'' {
				continue
			}
		}
		chain := m[chainStart:chainEnd]
		if !isDotted(chain) || notCallable[string(chain)] {
			continue
		}
		if w, _ := word(m, start, chainStart); (w == "def" || w == "class") && skipSpaces(m, start+len(w), end) == chainStart {
			continue
		}

		close := matching(m, i, end)
		call := b.node("call", "", chainStart, close+1)
		args := b.node("argument_list", "arguments", i, close+1)
		call.Children = []*parser.Node{b.expression(chainStart, chainEnd, "function"), args}
		out = append(out, call)
	}
	return out
}

// assignOperator finds the first top-level assignment operator. augmented
// is set for +=, -= and friends; eq then points at the '='.
func assignOperator(m []byte, start, end int) (eq int, augmented bool) {
	depth := 0
	for i := start; i < end; i++ {
		switch c := m[i]; c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth > 0 {
				continue
			}
			if i+1 < end && m[i+1] == '=' {
				i++
				continue
			}
			if i > start {
				switch m[i-1] {
				case '!', '<', '>', '=', ':':
					if m[i-1] == '<' || m[i-1] == '>' {
						// <<= and >>= are augmented, <= and >= are comparisons
						if i-2 >= start && m[i-2] == m[i-1] {
							return i, true
						}
					}
					continue
				case '+', '-', '*', '/', '%', '&', '|', '^', '@':
					return i, true
				}
			}
			return i, false
		case 'l':
			// a lambda's default values are not assignments
			if depth == 0 && hasWordAt(m, i, end, "lambda") {
				return -1, false
			}
		}
	}
	return -1, false
}

// topLevel returns the index of the first c outside brackets, or -1
func topLevel(m []byte, start, end int, c byte) int {
	depth := 0
	for i := start; i < end; i++ {
		switch m[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case c:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitTopLevel(m []byte, start, end int, sep byte) [][2]int {
	var parts [][2]int
	depth := 0
	from := start
	for i := start; i < end; i++ {
		switch m[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = appendPart(m, parts, from, i)
				from = i + 1
			}
		}
	}
	return appendPart(m, parts, from, end)
}

func appendPart(m []byte, parts [][2]int, start, end int) [][2]int {
	for start < end && isBlank(m[start]) {
		start++
	}
	for end > start && isBlank(m[end-1]) {
		end--
	}
	if start == end {
		return parts
	}
	return append(parts, [2]int{start, end})
}

// matching returns the index of the bracket closing the one at open.
// Balance is already verified by the scanner, so end is only a bound.
func matching(m []byte, open, end int) int {
	depth := 0
	for i := open; i < end; i++ {
		switch m[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return end - 1
}

// word returns the leading identifier of the span
func word(m []byte, start, end int) (string, int) {
	start = skipSpaces(m, start, end)
	i := start
	for i < end && isIdentChar(m[i]) {
		i++
	}
	return string(m[start:i]), i
}

func identAt(m []byte, start, end int) (int, int) {
	start = skipSpaces(m, start, end)
	if start >= end || !isIdentStart(m[start]) {
		return start, start
	}
	i := start
	for i < end && isIdentChar(m[i]) {
		i++
	}
	return start, i
}

func skipSpaces(m []byte, i, end int) int {
	for i < end && isBlank(m[i]) {
		i++
	}
	return i
}

// indexWord finds w as a standalone top-level word
func indexWord(m []byte, start, end int, w string) int {
	depth := 0
	for i := start; i < end; i++ {
		switch m[i] {
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth--
			continue
		}
		if depth == 0 && hasWordAt(m, i, end, w) {
			return i
		}
	}
	return -1
}

func hasWordAt(m []byte, i, end int, w string) bool {
	if i+len(w) > end || string(m[i:i+len(w)]) != w {
		return false
	}
	if i > 0 && isIdentChar(m[i-1]) {
		return false
	}
	return i+len(w) == end || !isIdentChar(m[i+len(w)])
}

func isIdent(b []byte) bool {
	if len(b) == 0 || !isIdentStart(b[0]) {
		return false
	}
	for _, c := range b[1:] {
		if !isIdentChar(c) {
			return false
		}
	}
	return true
}

func isDotted(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, part := range bytes.Split(b, []byte{'.'}) {
		if !isIdent(bytes.TrimSpace(part)) {
			return false
		}
	}
	return true
}
