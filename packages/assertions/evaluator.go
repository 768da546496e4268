package assertions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/testforge/packages/core/env"
	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/abdul-hamid-achik/testforge/packages/http"
	"github.com/abdul-hamid-achik/testforge/packages/jsonpath"
)

var (
	errHeaderRequired   = errors.New("header name is required")
	errJSONPathRequired = errors.New("JSONPath expression is required")
)

// actual is a value read from a response. defined is false when the path or
// header did not resolve, which is distinct from an explicit null.
type actual struct {
	value   any
	defined bool
}

type Evaluator struct {
	response *http.Response
	doc      []byte
	docOK    bool
}

func NewEvaluator(resp *http.Response) *Evaluator {
	e := &Evaluator{response: resp}
	if resp != nil {
		e.doc, e.docOK = resp.JSON()
	}
	return e
}

// EvaluateAll evaluates every assertion against resp, preserving order.
func EvaluateAll(assertions []*model.Assertion, resp *http.Response) []*model.AssertionResult {
	e := NewEvaluator(resp)
	results := make([]*model.AssertionResult, 0, len(assertions))
	for _, a := range assertions {
		results = append(results, e.Evaluate(a))
	}
	return results
}

// Evaluate never panics; evaluation problems become a failed result whose
// message starts with "Error:".
func (e *Evaluator) Evaluate(assertion *model.Assertion) (result *model.AssertionResult) {
	result = &model.AssertionResult{
		Type:     assertion.Type,
		Field:    assertion.Field,
		Operator: assertion.Operator,
		Expected: assertion.Value,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Actual = nil
			result.Passed = false
			result.Message = fmt.Sprintf("Error: %v", r)
		}
	}()

	if e.response == nil {
		return evaluationError(result, errors.New("no response"))
	}

	got, err := e.actualValue(assertion)
	if err != nil {
		return evaluationError(result, err)
	}

	passed, err := compare(assertion.Operator, got, assertion.Value)
	if err != nil {
		return evaluationError(result, err)
	}

	result.Actual = got.value
	result.Passed = passed
	if passed {
		result.Message = "✓ " + formatMessage(assertion, got)
	} else {
		result.Message = "✗ " + formatMessage(assertion, got)
	}
	return result
}

func evaluationError(result *model.AssertionResult, err error) *model.AssertionResult {
	result.Actual = nil
	result.Passed = false
	result.Message = "Error: " + err.Error()
	return result
}

func (e *Evaluator) actualValue(assertion *model.Assertion) (actual, error) {
	switch assertion.Type {
	case model.AssertStatus:
		return actual{value: e.response.StatusCode, defined: true}, nil
	case model.AssertHeader:
		if assertion.Field == "" {
			return actual{}, errHeaderRequired
		}
		v, ok := e.response.Header(assertion.Field)
		if !ok {
			return actual{}, nil
		}
		return actual{value: v, defined: true}, nil
	case model.AssertBody:
		if assertion.Field == "" {
			return actual{value: e.response.Body, defined: true}, nil
		}
		if !e.docOK {
			return actual{}, nil
		}
		v, ok := jsonpath.Dotted(e.doc, assertion.Field)
		return actual{value: v, defined: ok}, nil
	case model.AssertJSONPath:
		if assertion.Field == "" {
			return actual{}, errJSONPathRequired
		}
		if !e.docOK {
			return actual{}, nil
		}
		v, ok, err := jsonpath.First(e.doc, assertion.Field)
		if err != nil {
			return actual{}, err
		}
		return actual{value: v, defined: ok}, nil
	case model.AssertResponseTime:
		return actual{value: e.response.DurationMs(), defined: true}, nil
	default:
		return actual{}, fmt.Errorf("%w: %s", model.ErrUnknownAssertionType, assertion.Type)
	}
}

func compare(op model.Operator, got actual, expected any) (bool, error) {
	switch op {
	case model.OpEquals:
		return got.defined && Equal(got.value, expected), nil
	case model.OpContains:
		if !got.defined {
			return false, nil
		}
		return contains(got.value, expected), nil
	case model.OpGreaterThan:
		return toNumber(got) > toNumber(actual{value: expected, defined: true}), nil
	case model.OpLessThan:
		return toNumber(got) < toNumber(actual{value: expected, defined: true}), nil
	case model.OpExists:
		return got.defined && got.value != nil, nil
	case model.OpMatches:
		s, ok := got.value.(string)
		if !ok {
			return false, nil
		}
		re, err := regexp.Compile(env.Stringify(expected))
		if err != nil {
			return false, fmt.Errorf("invalid regular expression: %w", err)
		}
		return re.MatchString(s), nil
	default:
		return false, fmt.Errorf("%w: %s", model.ErrUnknownOperator, op)
	}
}

func contains(got, expected any) bool {
	switch v := got.(type) {
	case string:
		return strings.Contains(v, env.Stringify(expected))
	case []any:
		for _, item := range v {
			if Equal(item, expected) {
				return true
			}
		}
		return false
	case map[string]any:
		return strings.Contains(encodeJSON(v), env.Stringify(expected))
	default:
		return false
	}
}

func formatMessage(assertion *model.Assertion, got actual) string {
	field := assertion.Field
	if field == "" {
		field = string(assertion.Type)
	}
	actualStr := "undefined"
	if got.defined {
		actualStr = encodeJSON(got.value)
	}
	return fmt.Sprintf("%s %s %s (actual: %s)", field, assertion.Operator, encodeJSON(assertion.Value), actualStr)
}

func encodeJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
