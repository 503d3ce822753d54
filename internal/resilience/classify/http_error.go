package classify

import (
	"fmt"
	"net/http"
	"strings"
)

// Response is what the transport saw from the server.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HTTPError is the failure reported by an HTTP transport.
// A nil Response means the request never produced one (connectivity failure).
type HTTPError struct {
	Method   string
	URL      string
	Response *Response
	Err      error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	target := strings.TrimSpace(e.Method + " " + e.URL)
	if e.Response == nil {
		if e.Err != nil {
			return fmt.Sprintf("%s: no response: %v", target, e.Err)
		}
		return fmt.Sprintf("%s: no response", target)
	}
	return fmt.Sprintf("%s: HTTP %d", target, e.Response.StatusCode)
}

// Unwrap returns the underlying transport error, if any.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// headerValue looks up key through the canonical http.Header accessor and
// falls back to the raw lowercase key for maps that were built by hand.
func (r *Response) headerValue(key string) string {
	if r.Header == nil {
		return ""
	}
	if v := r.Header.Get(key); v != "" {
		return v
	}
	if vs := r.Header[strings.ToLower(key)]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}
