package env

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute_Strings(t *testing.T) {
	vars := map[string]any{
		"userId": float64(42),
		"name":   "alice",
		"ratio":  1.5,
		"active": true,
		"none":   nil,
		"tags":   []any{"a", "b"},
		"meta":   map[string]any{"k": "v"},
		"big":    int64(9007199254740993),
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no placeholders", input: "plain text", expected: "plain text"},
		{name: "integral float", input: "/users/{{userId}}", expected: "/users/42"},
		{name: "fractional float", input: "{{ratio}}", expected: "1.5"},
		{name: "bool", input: "{{active}}", expected: "true"},
		{name: "nil", input: "{{none}}", expected: "null"},
		{name: "slice as json", input: "{{tags}}", expected: `["a","b"]`},
		{name: "map as json", input: "{{meta}}", expected: `{"k":"v"}`},
		{name: "int64", input: "{{big}}", expected: "9007199254740993"},
		{name: "trimmed name", input: "{{ name }}", expected: "alice"},
		{name: "multiple", input: "{{name}}-{{userId}}", expected: "alice-42"},
		{name: "missing stays literal", input: "Bearer {{token}}", expected: "Bearer {{token}}"},
		{name: "unknown call stays literal", input: "{{nope()}}", expected: "{{nope()}}"},
		{name: "builtin call", input: "{{base64(abc)}}", expected: "YWJj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Substitute(tt.input, vars))
		})
	}
}

func TestSubstitute_ExactNameWinsOverTrimmed(t *testing.T) {
	vars := map[string]any{" padded ": "exact", "padded": "trimmed"}

	assert.Equal(t, "exact", Substitute("{{ padded }}", vars))
	assert.Equal(t, "trimmed", Substitute("{{padded  }}", vars))
}

func TestSubstitute_SinglePass(t *testing.T) {
	vars := map[string]any{
		"a": "{{b}}",
		"b": "should-not-appear",
	}

	assert.Equal(t, "{{b}}", Substitute("{{a}}", vars))
}

func TestSubstitute_Idempotent(t *testing.T) {
	vars := map[string]any{"x": "1"}
	input := map[string]any{"plain": "no placeholders", "missing": "{{y}}"}

	once := Substitute(input, vars)
	twice := Substitute(once, vars)
	assert.Equal(t, input, once)
	assert.Equal(t, once, twice)
}

func TestSubstitute_Structures(t *testing.T) {
	vars := map[string]any{"id": float64(7), "name": "bob"}

	body := map[string]any{
		"user": map[string]any{
			"id":   "{{id}}",
			"name": "{{name}}",
			"age":  float64(30),
		},
		"list":  []any{"{{name}}", true, nil},
		"{{k}}": "key untouched",
	}

	got := Substitute(body, vars)
	assert.Equal(t, map[string]any{
		"user": map[string]any{
			"id":   "7",
			"name": "bob",
			"age":  float64(30),
		},
		"list":  []any{"bob", true, nil},
		"{{k}}": "key untouched",
	}, got)

	// input is not mutated
	assert.Equal(t, "{{id}}", body["user"].(map[string]any)["id"])

	headers := Substitute(map[string]string{"Authorization": "Bearer {{name}}"}, vars)
	assert.Equal(t, map[string]string{"Authorization": "Bearer bob"}, headers)

	assert.Equal(t, []string{"bob", "x"}, Substitute([]string{"{{name}}", "x"}, vars))
	assert.Equal(t, 12, Substitute(12, vars))
	assert.Nil(t, Substitute(nil, vars))
}

func TestResolver_WarnFunc(t *testing.T) {
	var warnings []string
	r := NewResolver(map[string]any{"a": "1"}, WithWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}))

	out := r.Resolve("{{a}} {{b}} {{zzz()}}")

	assert.Equal(t, "1 {{b}} {{zzz()}}", out)
	require.Len(t, warnings, 2)
	assert.Equal(t, "unresolved variable: b", warnings[0])
	assert.Equal(t, "unresolved function call: zzz()", warnings[1])
}

func TestResolver_Unresolved(t *testing.T) {
	r := NewResolver(map[string]any{"a": "1"})

	assert.Equal(t, []string{"b", "c"}, r.Unresolved("{{a}}/{{b}}/{{ c }}/{{uuid()}}"))
	assert.Empty(t, r.Unresolved("{{a}}"))
	assert.True(t, r.HasVariable(" a "))
	assert.False(t, r.HasVariable("b"))
}

func TestStringify(t *testing.T) {
	tests := []struct {
		value    any
		expected string
	}{
		{"s", "s"},
		{float64(42), "42"},
		{float64(-3), "-3"},
		{0.1, "0.1"},
		{float64(1e21), "1e+21"},
		{int(5), "5"},
		{false, "false"},
		{nil, "null"},
		{[]any{float64(1), "x"}, `[1,"x"]`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Stringify(tt.value), "%#v", tt.value)
	}
}
