package jsonpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrSyntax = errors.New("invalid jsonpath")

type kind int

const (
	kindChild kind = iota
	kindIndex
	kindWildcard
	kindSlice
	kindFilter
)

type segment struct {
	kind    kind
	descent bool
	names   []string
	indexes []int
	start   *int
	end     *int
	filter  *filter
}

// Path is a compiled expression.
type Path struct {
	expr     string
	segments []segment
}

// Compile parses expr. A leading "$" is optional.
func Compile(expr string) (*Path, error) {
	p := &parser{src: strings.TrimSpace(expr)}
	segments, err := p.parse()
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrSyntax, expr, err)
	}
	return &Path{expr: expr, segments: segments}, nil
}

func (p *Path) String() string {
	return p.expr
}

// Query returns every match in document order.
func Query(doc []byte, expr string) ([]any, error) {
	path, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return path.Query(doc), nil
}

// First returns the first match, or false when nothing matches.
func First(doc []byte, expr string) (any, bool, error) {
	path, err := Compile(expr)
	if err != nil {
		return nil, false, err
	}
	v, ok := path.First(doc)
	return v, ok, nil
}

func (p *Path) Query(doc []byte) []any {
	matches := p.eval(doc)
	values := make([]any, len(matches))
	for i, m := range matches {
		values[i] = m.Value()
	}
	return values
}

func (p *Path) First(doc []byte) (any, bool) {
	matches := p.eval(doc)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0].Value(), true
}

func (p *Path) eval(doc []byte) []gjson.Result {
	if !gjson.ValidBytes(doc) {
		return nil
	}
	return p.evalNode(gjson.ParseBytes(doc))
}

func (p *Path) evalNode(root gjson.Result) []gjson.Result {
	current := []gjson.Result{root}
	for _, seg := range p.segments {
		var next []gjson.Result
		for _, node := range current {
			if seg.descent {
				for _, d := range descendants(node, nil) {
					next = seg.apply(d, next)
				}
				continue
			}
			next = seg.apply(node, next)
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current
}

func (s segment) apply(node gjson.Result, out []gjson.Result) []gjson.Result {
	switch s.kind {
	case kindChild:
		if !node.IsObject() {
			return out
		}
		for _, name := range s.names {
			if v, ok := member(node, name); ok {
				out = append(out, v)
			}
		}
	case kindIndex:
		if !node.IsArray() {
			return out
		}
		elems := node.Array()
		for _, i := range s.indexes {
			if i < 0 {
				i += len(elems)
			}
			if i >= 0 && i < len(elems) {
				out = append(out, elems[i])
			}
		}
	case kindWildcard:
		out = append(out, children(node)...)
	case kindSlice:
		if !node.IsArray() {
			return out
		}
		elems := node.Array()
		start, end := bounds(s.start, s.end, len(elems))
		for i := start; i < end; i++ {
			out = append(out, elems[i])
		}
	case kindFilter:
		for _, c := range children(node) {
			if s.filter.match(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

// member looks up an object key literally, without gjson path syntax.
func member(node gjson.Result, name string) (gjson.Result, bool) {
	var found gjson.Result
	ok := false
	node.ForEach(func(key, value gjson.Result) bool {
		if key.String() == name {
			found, ok = value, true
			return false
		}
		return true
	})
	return found, ok
}

func children(node gjson.Result) []gjson.Result {
	switch {
	case node.IsArray():
		return node.Array()
	case node.IsObject():
		var out []gjson.Result
		node.ForEach(func(_, value gjson.Result) bool {
			out = append(out, value)
			return true
		})
		return out
	}
	return nil
}

func descendants(node gjson.Result, out []gjson.Result) []gjson.Result {
	out = append(out, node)
	for _, c := range children(node) {
		out = descendants(c, out)
	}
	return out
}

func bounds(start, end *int, n int) (int, int) {
	s, e := 0, n
	if start != nil {
		s = *start
		if s < 0 {
			s += n
		}
	}
	if end != nil {
		e = *end
		if e < 0 {
			e += n
		}
	}
	if s < 0 {
		s = 0
	}
	if e > n {
		e = n
	}
	if s > e {
		s = e
	}
	return s, e
}

type parser struct {
	src string
	pos int
}

func (p *parser) parse() ([]segment, error) {
	if strings.HasPrefix(p.src, "$") {
		p.pos = 1
	} else if p.src != "" && p.src[0] != '.' && p.src[0] != '[' {
		// bare "a.b" is read as "$.a.b"
		p.src = "." + p.src
	}

	var segments []segment
	for p.pos < len(p.src) {
		descent := false
		switch {
		case strings.HasPrefix(p.src[p.pos:], ".."):
			descent = true
			p.pos += 2
		case p.src[p.pos] == '.':
			p.pos++
		case p.src[p.pos] == '[':
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos], p.pos)
		}

		if p.pos >= len(p.src) {
			return nil, errors.New("unexpected end of expression")
		}

		var seg segment
		var err error
		if p.src[p.pos] == '[' {
			seg, err = p.bracket()
		} else {
			seg, err = p.dotted()
		}
		if err != nil {
			return nil, err
		}
		seg.descent = descent
		segments = append(segments, seg)
	}
	return segments, nil
}

func (p *parser) dotted() (segment, error) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '.' && p.src[p.pos] != '[' {
		p.pos++
	}
	name := p.src[start:p.pos]
	switch name {
	case "":
		return segment{}, fmt.Errorf("empty member name at offset %d", start)
	case "*":
		return segment{kind: kindWildcard}, nil
	}
	return segment{kind: kindChild, names: []string{name}}, nil
}

func (p *parser) bracket() (segment, error) {
	open := p.pos
	end, err := matchingBracket(p.src, open)
	if err != nil {
		return segment{}, err
	}
	body := strings.TrimSpace(p.src[open+1 : end])
	p.pos = end + 1

	switch {
	case body == "":
		return segment{}, fmt.Errorf("empty brackets at offset %d", open)
	case body == "*":
		return segment{kind: kindWildcard}, nil
	case strings.HasPrefix(body, "?"):
		f, err := parseFilter(body[1:])
		if err != nil {
			return segment{}, err
		}
		return segment{kind: kindFilter, filter: f}, nil
	case body[0] == '\'' || body[0] == '"':
		names, err := splitQuoted(body)
		if err != nil {
			return segment{}, err
		}
		return segment{kind: kindChild, names: names}, nil
	case strings.Contains(body, ":"):
		return parseSlice(body)
	}

	var indexes []int
	for _, part := range strings.Split(body, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return segment{}, fmt.Errorf("invalid index %q", part)
		}
		indexes = append(indexes, i)
	}
	return segment{kind: kindIndex, indexes: indexes}, nil
}

func matchingBracket(src string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated bracket at offset %d", open)
}

func splitQuoted(body string) ([]string, error) {
	var names []string
	rest := body
	for {
		rest = strings.TrimSpace(rest)
		if rest == "" || (rest[0] != '\'' && rest[0] != '"') {
			return nil, fmt.Errorf("expected quoted name in [%s]", body)
		}
		name, n, err := unquote(rest)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		rest = strings.TrimSpace(rest[n:])
		if rest == "" {
			return names, nil
		}
		if rest[0] != ',' {
			return nil, fmt.Errorf("expected ',' in [%s]", body)
		}
		rest = rest[1:]
	}
}

// unquote reads a quoted literal at the start of s and returns its value and
// the number of bytes consumed.
func unquote(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string %s", s)
}

func parseSlice(body string) (segment, error) {
	parts := strings.Split(body, ":")
	if len(parts) > 3 {
		return segment{}, fmt.Errorf("invalid slice [%s]", body)
	}
	if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" && strings.TrimSpace(parts[2]) != "1" {
		return segment{}, fmt.Errorf("slice steps are not supported: [%s]", body)
	}
	seg := segment{kind: kindSlice}
	for i, target := range []**int{&seg.start, &seg.end} {
		s := strings.TrimSpace(parts[i])
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return segment{}, fmt.Errorf("invalid slice bound %q", s)
		}
		*target = &n
	}
	return seg, nil
}
