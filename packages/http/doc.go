// Package http is the request executor of the testforge engine.
//
// It wraps the standard library's http package with:
//   - Configurable timeouts (30s by default, overridable per request)
//   - A bounded redirect policy (5 redirects)
//   - Optional outbound rate limiting
//   - Normalized responses: lower-case header keys, JSON-decoded bodies
//   - Typed transport failures, kept apart from 4xx/5xx responses
package http
