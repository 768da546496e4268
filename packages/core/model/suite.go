package model

// TestSuite is an ordered list of steps run against one environment.
type TestSuite struct {
	ID    string      `json:"id" yaml:"id"`
	Name  string      `json:"name" yaml:"name"`
	Steps []*TestStep `json:"steps" yaml:"steps"`
}

// TestStep is one HTTP request with its assertions and extractors. Endpoint,
// Headers and Body may contain {{name}} placeholders.
type TestStep struct {
	ID               string               `json:"id" yaml:"id"`
	SuiteID          string               `json:"suiteId,omitempty" yaml:"suiteId,omitempty"`
	Name             string               `json:"name" yaml:"name"`
	Order            int                  `json:"order" yaml:"order"`
	Method           string               `json:"method" yaml:"method"`
	Endpoint         string               `json:"endpoint" yaml:"endpoint"`
	Headers          map[string]string    `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body             any                  `json:"body,omitempty" yaml:"body,omitempty"`
	Assertions       []*Assertion         `json:"assertions,omitempty" yaml:"assertions,omitempty"`
	ExtractVariables []*VariableExtractor `json:"extractVariables,omitempty" yaml:"extractVariables,omitempty"`
}

// Environment is the target application a suite runs against.
type Environment struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
}

// CredentialType selects how a credential payload becomes request headers.
type CredentialType string

const (
	CredentialAPIKey        CredentialType = "API_KEY"
	CredentialBasicAuth     CredentialType = "BASIC_AUTH"
	CredentialBearerToken   CredentialType = "BEARER_TOKEN"
	CredentialOAuth2        CredentialType = "OAUTH2"
	CredentialCustomHeaders CredentialType = "CUSTOM_HEADERS"
)

// Credential is a resolved credential. Data is the decrypted payload and must
// never be persisted verbatim by the engine.
type Credential struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Type CredentialType `json:"type"`
	Data map[string]any `json:"-"`
}
