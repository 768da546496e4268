package http

import (
	"net/http"
	"strings"
	"time"
)

// Request is one outgoing call. Body may be nil, a string or []byte (sent
// verbatim) or any JSON-encodable value (sent as application/json).
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body any) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// BuildURL joins a base URL and an endpoint: one trailing slash is stripped
// from the base and a leading slash is enforced on the endpoint.
func BuildURL(baseURL, endpoint string) string {
	base := strings.TrimSuffix(baseURL, "/")
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}

// MergeHeaders merges header sets left to right; later sets win on collision.
// Names are compared case-insensitively and the later set's spelling is kept.
func MergeHeaders(sets ...map[string]string) map[string]string {
	merged := make(map[string]string)
	names := make(map[string]string)
	for _, headers := range sets {
		for k, v := range headers {
			canonical := http.CanonicalHeaderKey(k)
			if prev, ok := names[canonical]; ok && prev != k {
				delete(merged, prev)
			}
			names[canonical] = k
			merged[k] = v
		}
	}
	return merged
}
