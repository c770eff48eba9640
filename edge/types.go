package edge

import (
	"encoding/json"
	"strings"
)

// Header is a single header field as CloudFront represents it: Key keeps the
// original casing.
type Header struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

// Headers maps a lowercase header name to its ordered values.
type Headers map[string][]Header

// Get returns the first value for name.
func (h Headers) Get(name string) (string, bool) {
	vs := h[strings.ToLower(name)]
	if len(vs) == 0 {
		return "", false
	}
	return vs[0].Value, true
}

// Set replaces all values for name with value.
func (h Headers) Set(name, value string) {
	h[strings.ToLower(name)] = []Header{{Key: name, Value: value}}
}

// Del removes name.
func (h Headers) Del(name string) {
	delete(h, strings.ToLower(name))
}

// Request is the viewer request CloudFront hands to the function. Fields the
// mediator does not inspect are carried through untouched.
type Request struct {
	ClientIP    string          `json:"clientIp"`
	Headers     Headers         `json:"headers"`
	Method      string          `json:"method"`
	Querystring string          `json:"querystring"`
	URI         string          `json:"uri"`
	Body        json.RawMessage `json:"body,omitempty"`
	Origin      json.RawMessage `json:"origin,omitempty"`
}

// Response is a generated response that ends the request at the edge.
type Response struct {
	Status            string  `json:"status"`
	StatusDescription string  `json:"statusDescription,omitempty"`
	Headers           Headers `json:"headers,omitempty"`
	Body              string  `json:"body,omitempty"`
}

// Result is the outcome of mediating one request: exactly one of Request
// (forward, annotated) or Response (answer at the edge) is set.
type Result struct {
	Request  *Request
	Response *Response
}

// Forwarded reports whether the request continues to the origin.
func (r Result) Forwarded() bool { return r.Request != nil }

// Event is a Lambda@Edge invocation payload.
type Event struct {
	Records []Record `json:"Records"`
}

type Record struct {
	CF CloudFront `json:"cf"`
}

type CloudFront struct {
	Config  json.RawMessage `json:"config,omitempty"`
	Request *Request        `json:"request"`
}
