package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// filter is a disjunction of conjunctions of comparisons.
type filter struct {
	any [][]*comparison
}

type comparison struct {
	left  operand
	op    string
	right *operand
}

type operand struct {
	path    *Path
	literal any
	isLit   bool
}

var comparisonOps = []string{"==", "!=", "<=", ">=", "<", ">"}

func parseFilter(src string) (*filter, error) {
	src = strings.TrimSpace(src)
	if !strings.HasPrefix(src, "(") || !strings.HasSuffix(src, ")") {
		return nil, fmt.Errorf("filter must be wrapped in parentheses: ?%s", src)
	}
	src = src[1 : len(src)-1]

	f := &filter{}
	for _, disjunct := range splitOutsideQuotes(src, "||") {
		var all []*comparison
		for _, term := range splitOutsideQuotes(disjunct, "&&") {
			c, err := parseComparison(strings.TrimSpace(term))
			if err != nil {
				return nil, err
			}
			all = append(all, c)
		}
		f.any = append(f.any, all)
	}
	return f, nil
}

func parseComparison(term string) (*comparison, error) {
	for _, op := range comparisonOps {
		idx := indexOutsideQuotes(term, op)
		if idx < 0 {
			continue
		}
		left, err := parseOperand(strings.TrimSpace(term[:idx]))
		if err != nil {
			return nil, err
		}
		right, err := parseOperand(strings.TrimSpace(term[idx+len(op):]))
		if err != nil {
			return nil, err
		}
		return &comparison{left: left, op: op, right: &right}, nil
	}
	left, err := parseOperand(term)
	if err != nil {
		return nil, err
	}
	return &comparison{left: left}, nil
}

func parseOperand(s string) (operand, error) {
	switch {
	case s == "":
		return operand{}, fmt.Errorf("empty filter operand")
	case strings.HasPrefix(s, "@"):
		path, err := Compile("$" + s[1:])
		if err != nil {
			return operand{}, err
		}
		return operand{path: path}, nil
	case s[0] == '\'' || s[0] == '"':
		v, n, err := unquote(s)
		if err != nil {
			return operand{}, err
		}
		if n != len(s) {
			return operand{}, fmt.Errorf("unexpected text after string literal: %s", s)
		}
		return operand{literal: v, isLit: true}, nil
	case s == "true":
		return operand{literal: true, isLit: true}, nil
	case s == "false":
		return operand{literal: false, isLit: true}, nil
	case s == "null":
		return operand{literal: nil, isLit: true}, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return operand{}, fmt.Errorf("invalid filter literal %q", s)
	}
	return operand{literal: n, isLit: true}, nil
}

func (f *filter) match(node gjson.Result) bool {
	for _, all := range f.any {
		ok := true
		for _, c := range all {
			if !c.match(node) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (c *comparison) match(node gjson.Result) bool {
	left, leftOK := c.left.resolve(node)
	if c.right == nil {
		return leftOK
	}
	right, rightOK := c.right.resolve(node)
	if !leftOK || !rightOK {
		return c.op == "!=" && leftOK != rightOK
	}

	switch c.op {
	case "==":
		return equalValues(left, right)
	case "!=":
		return !equalValues(left, right)
	}

	if ln, ok := left.(float64); ok {
		if rn, ok := right.(float64); ok {
			return compareOrdered(ln, rn, c.op)
		}
		return false
	}
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return compareOrdered(strings.Compare(ls, rs), 0, c.op)
		}
	}
	return false
}

func (o operand) resolve(node gjson.Result) (any, bool) {
	if o.isLit {
		return o.literal, true
	}
	matches := o.path.evalNode(node)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0].Value(), true
}

func equalValues(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	}
	return false
}

func compareOrdered[T int | float64](a, b T, op string) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func splitOutsideQuotes(s, sep string) []string {
	var parts []string
	for {
		idx := indexOutsideQuotes(s, sep)
		if idx < 0 {
			return append(parts, s)
		}
		parts = append(parts, s[:idx])
		s = s[idx+len(sep):]
	}
}

func indexOutsideQuotes(s, sub string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if strings.HasPrefix(s[i:], sub) {
			return i
		}
	}
	return -1
}
