// Package oauth2 fetches access tokens for OAUTH2 credentials that carry a
// token endpoint instead of a ready token.
package oauth2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/env"
)

// GrantType represents the OAuth2 grant type
type GrantType string

const (
	// ClientCredentials is the client_credentials grant type
	ClientCredentials GrantType = "client_credentials"
	// Password is the password (resource owner) grant type
	Password GrantType = "password"
)

var ErrUnsupportedGrant = errors.New("unsupported OAuth2 grant type")

// Config holds OAuth2 configuration
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Username     string // For password grant
	Password     string // For password grant
	GrantType    GrantType
}

// ConfigFromData reads a token endpoint configuration out of a credential
// payload. ok is false when the payload has no tokenUrl.
//
// Recognized keys: tokenUrl, clientId, clientSecret, scope (space separated
// string or list), grantType, username, password.
func ConfigFromData(data map[string]any) (cfg *Config, ok bool, err error) {
	tokenURL := str(data["tokenUrl"])
	if tokenURL == "" {
		return nil, false, nil
	}
	cfg = &Config{
		TokenURL:     tokenURL,
		ClientID:     str(data["clientId"]),
		ClientSecret: str(data["clientSecret"]),
		Username:     str(data["username"]),
		Password:     str(data["password"]),
		GrantType:    GrantType(str(data["grantType"])),
	}
	switch scope := data["scope"].(type) {
	case string:
		cfg.Scopes = strings.Fields(scope)
	case []any:
		for _, s := range scope {
			cfg.Scopes = append(cfg.Scopes, env.Stringify(s))
		}
	}

	switch cfg.GrantType {
	case "":
		cfg.GrantType = ClientCredentials
	case ClientCredentials:
	case Password:
		if cfg.Username == "" {
			return nil, true, fmt.Errorf("oauth2 password grant requires username")
		}
	default:
		return nil, true, fmt.Errorf("%w: %s", ErrUnsupportedGrant, cfg.GrantType)
	}
	return cfg, true, nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return env.Stringify(v)
}

// Token represents an OAuth2 access token
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"-"`
}

// expiredAt reports whether the token is expired at now. A 30 second buffer
// absorbs clock skew.
func (t *Token) expiredAt(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(30 * time.Second).After(t.ExpiresAt)
}

// Provider handles OAuth2 token acquisition
type Provider struct {
	httpClient *http.Client
	cache      *TokenCache
	now        func() time.Time
}

type ProviderOption func(*Provider)

func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

func WithCache(cache *TokenCache) ProviderOption {
	return func(p *Provider) {
		p.cache = cache
	}
}

// NewProvider creates a new OAuth2 provider
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      NewTokenCache(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AccessToken returns a token for the credential payload. ok is false when
// the payload does not describe a token endpoint.
func (p *Provider) AccessToken(ctx context.Context, data map[string]any) (string, bool, error) {
	cfg, ok, err := ConfigFromData(data)
	if !ok || err != nil {
		return "", ok, err
	}
	token, err := p.GetToken(ctx, cfg)
	if err != nil {
		return "", true, err
	}
	return token.AccessToken, true, nil
}

// GetToken retrieves a valid access token, fetching a new one if necessary
func (p *Provider) GetToken(ctx context.Context, cfg *Config) (*Token, error) {
	key := cacheKey(cfg)
	if token := p.cache.Get(key); token != nil && !token.expiredAt(p.now()) {
		return token, nil
	}

	token, err := p.fetchToken(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, token)
	return token, nil
}

func cacheKey(cfg *Config) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", cfg.TokenURL, cfg.GrantType, cfg.ClientID, cfg.Username, strings.Join(cfg.Scopes, ","))
}

func (p *Provider) fetchToken(ctx context.Context, cfg *Config) (*Token, error) {
	data := url.Values{}
	switch cfg.GrantType {
	case Password:
		data.Set("grant_type", string(Password))
		data.Set("username", cfg.Username)
		data.Set("password", cfg.Password)
	default:
		data.Set("grant_type", string(ClientCredentials))
	}
	if len(cfg.Scopes) > 0 {
		data.Set("scope", strings.Join(cfg.Scopes, " "))
	}
	return p.doTokenRequest(ctx, cfg, data)
}

func (p *Provider) doTokenRequest(ctx context.Context, cfg *Config, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(cfg.ClientID + ":" + cfg.ClientSecret))
		req.Header.Set("Authorization", "Basic "+auth)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("token request failed: %s - %s", errResp.Error, errResp.ErrorDescription)
		}
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}

	if token.ExpiresIn > 0 {
		token.ExpiresAt = p.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	return &token, nil
}
