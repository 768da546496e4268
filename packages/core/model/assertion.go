package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownAssertionType = errors.New("unknown assertion type")
	ErrUnknownOperator      = errors.New("unknown operator")
	ErrUnknownSource        = errors.New("unknown extractor source")
)

// AssertionType selects which part of a response an assertion inspects.
type AssertionType string

const (
	AssertStatus       AssertionType = "status"
	AssertHeader       AssertionType = "header"
	AssertBody         AssertionType = "body"
	AssertJSONPath     AssertionType = "jsonPath"
	AssertResponseTime AssertionType = "responseTime"
)

func (t AssertionType) Valid() bool {
	switch t {
	case AssertStatus, AssertHeader, AssertBody, AssertJSONPath, AssertResponseTime:
		return true
	}
	return false
}

func (t *AssertionType) UnmarshalJSON(data []byte) error {
	return decodeTag(data, (*string)(t), func() bool { return t.Valid() }, ErrUnknownAssertionType)
}

func (t *AssertionType) UnmarshalYAML(node *yaml.Node) error {
	return decodeYAMLTag(node, (*string)(t), func() bool { return t.Valid() }, ErrUnknownAssertionType)
}

// Operator is the comparison applied between actual and expected values.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpExists      Operator = "exists"
	OpMatches     Operator = "matches"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpContains, OpGreaterThan, OpLessThan, OpExists, OpMatches:
		return true
	}
	return false
}

func (o *Operator) UnmarshalJSON(data []byte) error {
	return decodeTag(data, (*string)(o), func() bool { return o.Valid() }, ErrUnknownOperator)
}

func (o *Operator) UnmarshalYAML(node *yaml.Node) error {
	return decodeYAMLTag(node, (*string)(o), func() bool { return o.Valid() }, ErrUnknownOperator)
}

// Assertion is a declarative check of one response attribute. Field is the
// header name, dotted body path or JSONPath expression depending on Type.
type Assertion struct {
	Type     AssertionType `json:"type" yaml:"type"`
	Field    string        `json:"field,omitempty" yaml:"field,omitempty"`
	Operator Operator      `json:"operator" yaml:"operator"`
	Value    any           `json:"value,omitempty" yaml:"value,omitempty"`
}

// AssertionResult is the evaluated outcome of one Assertion.
type AssertionResult struct {
	Type     AssertionType `json:"type"`
	Field    string        `json:"field,omitempty"`
	Operator Operator      `json:"operator"`
	Expected any           `json:"expected"`
	Actual   any           `json:"actual"`
	Passed   bool          `json:"passed"`
	Message  string        `json:"message"`
}

// ExtractorSource selects where an extractor reads its value from.
type ExtractorSource string

const (
	SourceHeader   ExtractorSource = "header"
	SourceBody     ExtractorSource = "body"
	SourceJSONPath ExtractorSource = "jsonPath"
)

func (s ExtractorSource) Valid() bool {
	switch s {
	case SourceHeader, SourceBody, SourceJSONPath:
		return true
	}
	return false
}

func (s *ExtractorSource) UnmarshalJSON(data []byte) error {
	return decodeTag(data, (*string)(s), func() bool { return s.Valid() }, ErrUnknownSource)
}

func (s *ExtractorSource) UnmarshalYAML(node *yaml.Node) error {
	return decodeYAMLTag(node, (*string)(s), func() bool { return s.Valid() }, ErrUnknownSource)
}

// VariableExtractor pulls one named value out of a response for later steps.
type VariableExtractor struct {
	Name   string          `json:"name" yaml:"name"`
	Source ExtractorSource `json:"source" yaml:"source"`
	Path   string          `json:"path,omitempty" yaml:"path,omitempty"`
}

func decodeTag(data []byte, dst *string, valid func() bool, sentinel error) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*dst = s
	if !valid() {
		return fmt.Errorf("%w: %q", sentinel, s)
	}
	return nil
}

func decodeYAMLTag(node *yaml.Node, dst *string, valid func() bool, sentinel error) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	*dst = s
	if !valid() {
		return fmt.Errorf("line %d: %w: %q", node.Line, sentinel, s)
	}
	return nil
}
