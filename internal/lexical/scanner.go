package lexical

import (
	"fmt"
	"sort"

	"github.com/rohankatakam/codegraph/internal/parser"
)

// logicalLine is one Python logical line: physical lines joined by open
// brackets, backslash continuations or multi-line strings.
type logicalLine struct {
	start, end int // content span in the source, leading and trailing blanks trimmed
	indent     int
}

// scanner holds the source plus a masked copy of equal length in which
// comments and string interiors are blanked. Structural scans (brackets,
// colons, operators) run on the masked copy; text is read from the source.
type scanner struct {
	path       string
	src        []byte
	masked     []byte
	lineStarts []int
	// string literal start (prefix included) -> end offset
	literals map[int]int
}

func newScanner(path string, src []byte) *scanner {
	s := &scanner{
		path:     path,
		src:      src,
		masked:   make([]byte, len(src)),
		literals: make(map[int]int),
	}
	copy(s.masked, src)
	s.lineStarts = append(s.lineStarts, 0)
	for i, c := range src {
		if c == '\n' {
			s.lineStarts = append(s.lineStarts, i+1)
		}
	}
	return s
}

// lineOf returns the 1-based line holding offset
func (s *scanner) lineOf(offset int) int {
	return sort.Search(len(s.lineStarts), func(i int) bool { return s.lineStarts[i] > offset })
}

func (s *scanner) columnOf(offset int) int {
	return offset - s.lineStarts[s.lineOf(offset)-1] + 1
}

func (s *scanner) errorAt(offset int, format string, args ...any) error {
	if offset > len(s.src) {
		offset = len(s.src)
	}
	return &parser.ParseError{
		Backend: Name,
		Path:    s.path,
		Line:    s.lineOf(offset),
		Column:  s.columnOf(offset),
		Message: fmt.Sprintf(format, args...),
	}
}

// mask blanks comments and string interiors
func (s *scanner) mask() error {
	src, m := s.src, s.masked
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				m[i] = ' '
				i++
			}
		case c == '\'' || c == '"':
			end, err := s.skipString(i)
			if err != nil {
				return err
			}
			s.literals[literalStart(src, i)] = end
			quote := 1
			if end-i >= 6 && src[i+1] == c && src[i+2] == c {
				quote = 3
			}
			for j := i + quote; j < end-quote; j++ {
				m[j] = ' '
			}
			i = end
		default:
			i++
		}
	}
	return nil
}

// skipString returns the offset just past the literal opening at i
func (s *scanner) skipString(i int) (int, error) {
	src := s.src
	q := src[i]
	if i+2 < len(src) && src[i+1] == q && src[i+2] == q {
		j := i + 3
		for j < len(src) {
			if src[j] == '\\' {
				j += 2
				continue
			}
			if src[j] == q && j+2 < len(src) && src[j+1] == q && src[j+2] == q {
				return j + 3, nil
			}
			j++
		}
		return 0, s.errorAt(i, "unterminated triple-quoted string")
	}

	j := i + 1
	for j < len(src) {
		switch src[j] {
		case '\\':
			j += 2
			continue
		case '\n':
			return 0, s.errorAt(i, "unterminated string literal")
		case q:
			return j + 1, nil
		}
		j++
	}
	return 0, s.errorAt(i, "unterminated string literal")
}

// literalStart backs up over a string prefix such as r, b, f, rb
func literalStart(src []byte, quote int) int {
	start := quote
	for k := 0; k < 2 && start > 0; k++ {
		switch src[start-1] {
		case 'r', 'R', 'b', 'B', 'u', 'U', 'f', 'F':
			start--
		default:
			k = 2
		}
	}
	if start < quote && start > 0 && isIdentChar(src[start-1]) {
		return quote
	}
	return start
}

// logicalLines splits the masked source into logical lines and checks
// bracket balance.
func (s *scanner) logicalLines() ([]logicalLine, error) {
	m := s.masked
	var lines []logicalLine
	var open []int

	lineStart := 0
	for i := 0; i <= len(m); i++ {
		if i == len(m) || m[i] == '\n' {
			if i < len(m) && (len(open) > 0 || continued(m, i)) {
				continue
			}
			if ln, ok := s.trimLine(lineStart, i); ok {
				lines = append(lines, ln)
			}
			lineStart = i + 1
			continue
		}

		switch m[i] {
		case '(', '[', '{':
			open = append(open, i)
		case ')', ']', '}':
			if len(open) == 0 {
				return nil, s.errorAt(i, "unmatched '%c'", m[i])
			}
			if !matches(m[open[len(open)-1]], m[i]) {
				return nil, s.errorAt(i, "closing '%c' does not match '%c'", m[i], m[open[len(open)-1]])
			}
			open = open[:len(open)-1]
		}
	}

	if len(open) > 0 {
		at := open[len(open)-1]
		return nil, s.errorAt(at, "'%c' was never closed", m[at])
	}
	return lines, nil
}

func (s *scanner) trimLine(start, end int) (logicalLine, bool) {
	m := s.masked
	indent := 0
	i := start
scan:
	for ; i < end; i++ {
		switch m[i] {
		case ' ':
			indent++
		case '\t':
			indent = (indent/8 + 1) * 8
		case '\f':
			indent = 0
		default:
			break scan
		}
	}
	j := end
	for j > i && isBlank(m[j-1]) {
		j--
	}
	if j <= i {
		return logicalLine{}, false
	}
	return logicalLine{start: i, end: j, indent: indent}, true
}

func continued(m []byte, newline int) bool {
	k := newline - 1
	if k >= 0 && m[k] == '\r' {
		k--
	}
	return k >= 0 && m[k] == '\\'
}

func matches(open, close byte) bool {
	return (open == '(' && close == ')') || (open == '[' && close == ']') || (open == '{' && close == '}')
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\\'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
