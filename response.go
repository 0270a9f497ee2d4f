package oauth

import (
	"encoding/json"
	"net/http"
)

// Response accumulates the outcome of a handler: a status code (default 200),
// headers and either a JSON body or a redirect. Header writes are
// case-insensitive.
type Response struct {
	Status int
	Header http.Header
	Body   map[string]any
}

// NewResponse creates an empty Response with status 200.
func NewResponse() *Response {
	return &Response{
		Status: http.StatusOK,
		Header: http.Header{},
		Body:   map[string]any{},
	}
}

// Get returns a response header value.
func (r *Response) Get(field string) string {
	return r.Header.Get(field)
}

// Set sets a response header.
func (r *Response) Set(field, value string) {
	r.Header.Set(field, value)
}

// Redirect marks the response as a 302 redirect to the given URL.
func (r *Response) Redirect(url string) {
	r.Set("Location", url)
	r.Status = http.StatusFound
}

// IsRedirect reports whether the response carries redirect semantics.
func (r *Response) IsRedirect() bool {
	return r.Get("Location") != ""
}

// WriteTo renders the response onto a net/http response writer. Redirects
// are written as-is; everything else is serialized as a JSON body.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	for field, values := range r.Header {
		for _, v := range values {
			w.Header().Add(field, v)
		}
	}
	if r.IsRedirect() {
		w.WriteHeader(r.Status)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.Status)
	if len(r.Body) == 0 {
		return nil
	}
	return json.NewEncoder(w).Encode(r.Body)
}

// setError fills the response with the RFC error body and status for the
// given error, wrapping untyped errors as server_error.
func (r *Response) setError(err error) *OAuthError {
	oe := WrapError(err)
	r.Body = map[string]any{
		"error":             oe.Code,
		"error_description": oe.Description,
	}
	r.Status = oe.Status
	r.Set("Cache-Control", "no-store")
	r.Set("Pragma", "no-cache")
	return oe
}
