package env

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/testforge/packages/builtin"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// WarnFunc receives a notice for every placeholder left unresolved.
type WarnFunc func(format string, args ...any)

// Resolver substitutes placeholders against a fixed variable set. The set is
// read but never modified, so one Resolver may be shared by goroutines.
type Resolver struct {
	variables map[string]any
	funcs     *builtin.Registry
	warnFunc  WarnFunc
}

type ResolverOption func(*Resolver)

func WithWarnFunc(fn WarnFunc) ResolverOption {
	return func(r *Resolver) {
		r.warnFunc = fn
	}
}

func WithBuiltins(funcs *builtin.Registry) ResolverOption {
	return func(r *Resolver) {
		r.funcs = funcs
	}
}

func NewResolver(vars map[string]any, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		variables: vars,
		funcs:     builtin.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Substitute replaces placeholders in value using vars and the default builtins.
func Substitute(value any, vars map[string]any) any {
	return NewResolver(vars).Substitute(value)
}

func (r *Resolver) warn(format string, args ...any) {
	if r.warnFunc != nil {
		r.warnFunc(format, args...)
	}
}

// Substitute returns a copy of value with every string leaf resolved. Strings,
// map[string]any, []any, map[string]string and []string are walked; any other
// value is returned as is. Object keys are not substituted.
func (r *Resolver) Substitute(value any) any {
	switch v := value.(type) {
	case string:
		return r.Resolve(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = r.Substitute(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.Substitute(item)
		}
		return out
	case map[string]string:
		return r.ResolveAll(v)
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = r.Resolve(item)
		}
		return out
	default:
		return value
	}
}

// Resolve substitutes the placeholders of a single string in one pass.
func (r *Resolver) Resolve(input string) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		raw := match[2 : len(match)-2]
		if val, ok := r.lookup(raw); ok {
			return Stringify(val)
		}

		expr := strings.TrimSpace(raw)
		if builtin.IsCall(expr) {
			if result, ok := r.funcs.Call(expr); ok {
				return Stringify(result)
			}
			r.warn("unresolved function call: %s", expr)
			return match
		}

		r.warn("unresolved variable: %s", expr)
		return match
	})
}

func (r *Resolver) ResolveAll(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	result := make(map[string]string, len(values))
	for k, v := range values {
		result[k] = r.Resolve(v)
	}
	return result
}

func (r *Resolver) lookup(name string) (any, bool) {
	if val, ok := r.variables[name]; ok {
		return val, true
	}
	trimmed := strings.TrimSpace(name)
	if trimmed != name {
		if val, ok := r.variables[trimmed]; ok {
			return val, true
		}
	}
	return nil, false
}

// HasVariable reports whether name resolves, exact or trimmed.
func (r *Resolver) HasVariable(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Unresolved lists the placeholder names in input that have no variable and
// are not builtin calls.
func (r *Resolver) Unresolved(input string) []string {
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		if _, ok := r.lookup(m[1]); ok {
			continue
		}
		expr := strings.TrimSpace(m[1])
		if builtin.IsCall(expr) {
			continue
		}
		names = append(names, expr)
	}
	return names
}

// Stringify renders a variable value the way it is spliced into text.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatFloat(val, 64)
	case float32:
		return formatFloat(float64(val), 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case json.Number:
		return val.String()
	case map[string]any, []any, map[string]string, []string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}
