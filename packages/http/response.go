package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type Response struct {
	StatusCode int
	Status     string
	// Headers has lower-case keys; multi-value headers are joined with ", ".
	Headers map[string]string
	// Body is the decoded JSON document for JSON responses, else the raw text.
	Body     any
	Raw      []byte
	Duration time.Duration
	// RequestHeaders are the headers the client set on the outgoing request,
	// keyed by canonical name. Transport-level headers such as Host are absent.
	RequestHeaders map[string]string
}

func newResponse(httpResp *http.Response, raw []byte, elapsed time.Duration) *Response {
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     statusText(httpResp),
		Headers:    NormalizeHeaders(httpResp.Header),
		Raw:        raw,
		Duration:   elapsed,
	}
	resp.Body = resp.decodeBody()
	return resp
}

func statusText(httpResp *http.Response) string {
	if text := http.StatusText(httpResp.StatusCode); text != "" {
		return text
	}
	_, text, _ := strings.Cut(httpResp.Status, " ")
	return text
}

func flattenHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k, values := range h {
		headers[k] = strings.Join(values, ", ")
	}
	return headers
}

// NormalizeHeaders lower-cases keys and joins multi-value headers.
func NormalizeHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k, values := range h {
		headers[strings.ToLower(k)] = strings.Join(values, ", ")
	}
	return headers
}

func (r *Response) decodeBody() any {
	if len(r.Raw) == 0 {
		return ""
	}
	if r.IsJSON() {
		var result any
		if err := json.Unmarshal(r.Raw, &result); err == nil {
			return result
		}
	}
	return string(r.Raw)
}

func (r *Response) BodyString() string {
	return string(r.Raw)
}

// JSON returns the body as JSON bytes: the raw payload when the response was
// JSON, otherwise the encoded Body value.
func (r *Response) JSON() ([]byte, bool) {
	if _, isText := r.Body.(string); !isText && len(r.Raw) > 0 {
		return r.Raw, true
	}
	data, err := json.Marshal(r.Body)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (r *Response) Header(key string) (string, bool) {
	v, ok := r.Headers[strings.ToLower(key)]
	return v, ok
}

func (r *Response) ContentType() string {
	v, _ := r.Header("Content-Type")
	return v
}

func (r *Response) IsJSON() bool {
	ct := strings.ToLower(r.ContentType())
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
