// Package credential turns a resolved credential payload into request headers.
package credential

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/testforge/packages/core/env"
	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

const DefaultAPIKeyHeader = "X-API-Key"

var ErrMissingField = errors.New("credential field missing")

// Headers derives the headers a credential contributes to every step of an
// execution. Unknown types contribute nothing. An OAuth2 payload without an
// access token contributes nothing either.
func Headers(credType model.CredentialType, data map[string]any) (map[string]string, error) {
	headers := make(map[string]string)

	switch credType {
	case model.CredentialAPIKey:
		key, err := required(data, "apiKey")
		if err != nil {
			return nil, err
		}
		name := DefaultAPIKeyHeader
		if v, ok := field(data, "headerName"); ok && v != "" {
			name = v
		}
		headers[name] = key
	case model.CredentialBasicAuth:
		user, err := required(data, "username")
		if err != nil {
			return nil, err
		}
		pass, _ := field(data, "password")
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	case model.CredentialBearerToken:
		token, err := required(data, "token")
		if err != nil {
			return nil, err
		}
		headers["Authorization"] = "Bearer " + token
	case model.CredentialOAuth2:
		if token, ok := field(data, "accessToken"); ok && token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	case model.CredentialCustomHeaders:
		switch custom := data["headers"].(type) {
		case map[string]any:
			for k, v := range custom {
				headers[k] = env.Stringify(v)
			}
		case map[string]string:
			for k, v := range custom {
				headers[k] = v
			}
		case nil:
		default:
			return nil, fmt.Errorf("%w: headers must be an object", ErrMissingField)
		}
	}

	return headers, nil
}

func field(data map[string]any, name string) (string, bool) {
	v, ok := data[name]
	if !ok || v == nil {
		return "", false
	}
	return env.Stringify(v), true
}

func required(data map[string]any, name string) (string, error) {
	v, ok := field(data, name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return v, nil
}
