// Package suitefile reads suite definitions written in YAML or JSON.
//
// A file carries everything one run needs:
//
//	name: login flow
//	baseUrl: http://localhost:8080
//	variables:
//	  username: ada
//	credential:
//	  type: BEARER_TOKEN
//	  data: {token: "{{API_TOKEN}}"}
//	steps:
//	  - name: login
//	    method: POST
//	    endpoint: /login
//	    body: {user: "{{username}}"}
//	    assertions:
//	      - {type: status, operator: equals, value: 200}
//	    extractVariables:
//	      - {name: token, source: body, path: token}
package suitefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	envpkg "github.com/abdul-hamid-achik/testforge/packages/core/env"
	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// File is a decoded suite file.
type File struct {
	Name       string            `yaml:"name"`
	BaseURL    string            `yaml:"baseUrl"`
	Variables  map[string]any    `yaml:"variables,omitempty"`
	Credential *Credential       `yaml:"credential,omitempty"`
	Steps      []*model.TestStep `yaml:"steps"`
}

type Credential struct {
	Name string               `yaml:"name,omitempty"`
	Type model.CredentialType `yaml:"type"`
	Data map[string]any       `yaml:"data,omitempty"`
}

// SchemaError lists every envelope violation found in a file.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "invalid suite file: " + strings.Join(e.Problems, "; ")
}

// Load reads and parses the suite file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse checks data against the envelope schema and decodes it. Steps without
// an explicit order take their 1-based position in the file.
func Parse(data []byte) (*File, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode suite file: %w", err)
	}
	for i, step := range f.Steps {
		if step.Order == 0 {
			step.Order = i + 1
		}
		step.Method = strings.ToUpper(step.Method)
	}
	return &f, nil
}

// Validate checks the file envelope only.
func Validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse suite file: %w", err)
	}
	doc, err := normalize(doc)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode suite file: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(envelopeSchema),
		gojsonschema.NewBytesLoader(encoded),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	schemaErr := &SchemaError{}
	for _, desc := range result.Errors() {
		schemaErr.Problems = append(schemaErr.Problems, desc.String())
	}
	return schemaErr
}

// normalize converts YAML maps with non-string keys so the document can be
// encoded as JSON.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	case []any:
		for i, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	}
	return v, nil
}

// Seeder is the storage needed to register a file for execution.
type Seeder interface {
	CreateSuite(ctx context.Context, suite *model.TestSuite) error
	CreateEnvironment(ctx context.Context, env *model.Environment) error
	CreateCredential(ctx context.Context, cred *model.Credential) error
}

// Seeded holds the IDs created by Seed.
type Seeded struct {
	SuiteID       string
	EnvironmentID string
	CredentialID  string
}

// Seed stores the suite, an environment for BaseURL and the credential if
// the file declares one. Placeholders in the credential data are resolved
// against the file variables so secrets can come from a dotenv file.
func Seed(ctx context.Context, s Seeder, f *File) (Seeded, error) {
	if f == nil {
		return Seeded{}, errors.New("suite file is nil")
	}
	var out Seeded

	suite := &model.TestSuite{Name: f.Name, Steps: f.Steps}
	if err := s.CreateSuite(ctx, suite); err != nil {
		return out, fmt.Errorf("seed suite: %w", err)
	}
	out.SuiteID = suite.ID

	env := &model.Environment{Name: f.Name, BaseURL: f.BaseURL}
	if err := s.CreateEnvironment(ctx, env); err != nil {
		return out, fmt.Errorf("seed environment: %w", err)
	}
	out.EnvironmentID = env.ID

	if f.Credential != nil {
		name := f.Credential.Name
		if name == "" {
			name = f.Name
		}
		data, _ := envpkg.Substitute(f.Credential.Data, f.Variables).(map[string]any)
		cred := &model.Credential{Name: name, Type: f.Credential.Type, Data: data}
		if err := s.CreateCredential(ctx, cred); err != nil {
			return out, fmt.Errorf("seed credential: %w", err)
		}
		out.CredentialID = cred.ID
	}
	return out, nil
}
