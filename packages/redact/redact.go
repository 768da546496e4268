// Package redact masks credential material in persisted request snapshots.
package redact

import (
	"strings"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

const Mask = "[REDACTED]"

// DefaultKeys are header names that are always masked when redaction is on.
var DefaultKeys = []string{
	"Authorization", "Proxy-Authorization", "Cookie", "X-API-Key",
}

// Policy controls what is masked. Keys adds header names on top of
// DefaultKeys.
type Policy struct {
	Enabled bool
	Keys    []string
}

func DefaultPolicy() Policy {
	return Policy{Enabled: true}
}

// Disabled keeps snapshots verbatim.
func Disabled() Policy {
	return Policy{}
}

// Headers returns a copy of headers with sensitive values masked. credential
// holds the headers a credential contributed: their names are masked, and
// their values are also masked wherever they appear inside other headers.
func (p Policy) Headers(headers map[string]string, credential map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	if !p.Enabled {
		for k, v := range headers {
			out[k] = v
		}
		return out
	}

	keys := p.keySet(credential)
	literals := secretLiterals(credential)
	for k, v := range headers {
		if keys[strings.ToLower(k)] {
			out[k] = Mask
			continue
		}
		out[k] = maskLiterals(v, literals)
	}
	return out
}

// Request masks the headers and URL of a request snapshot.
func (p Policy) Request(snap model.RequestSnapshot, credential map[string]string) model.RequestSnapshot {
	if !p.Enabled {
		return snap
	}
	snap.Headers = p.Headers(snap.Headers, credential)
	snap.URL = maskLiterals(snap.URL, secretLiterals(credential))
	return snap
}

func (p Policy) keySet(credential map[string]string) map[string]bool {
	set := make(map[string]bool, len(DefaultKeys)+len(p.Keys)+len(credential))
	for _, k := range DefaultKeys {
		set[strings.ToLower(k)] = true
	}
	for _, k := range p.Keys {
		set[strings.ToLower(k)] = true
	}
	for k := range credential {
		set[strings.ToLower(k)] = true
	}
	return set
}

// secretLiterals collects credential values worth scanning for. The auth scheme
// prefix is stripped so a bare token copied elsewhere is still found.
func secretLiterals(credential map[string]string) []string {
	var out []string
	for _, v := range credential {
		for _, prefix := range []string{"Bearer ", "Basic "} {
			v = strings.TrimPrefix(v, prefix)
		}
		// short values produce false positives
		if len(v) >= 6 {
			out = append(out, v)
		}
	}
	return out
}

func maskLiterals(s string, literals []string) string {
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, Mask)
	}
	return s
}
