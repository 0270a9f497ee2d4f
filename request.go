package oauth

import (
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Request is a transport-agnostic snapshot of an inbound HTTP request.
// Header lookups are case-insensitive; Query and Body are never nil.
type Request struct {
	Method     string
	Header     http.Header
	Query      url.Values
	Body       url.Values
	RemoteAddr string

	contentType string
}

// NewRequest creates a Request from explicit parts. Nil maps are replaced
// with empty ones so parameter lookups never fault.
func NewRequest(method string, header http.Header, query, body url.Values) *Request {
	if header == nil {
		header = http.Header{}
	}
	if query == nil {
		query = url.Values{}
	}
	if body == nil {
		body = url.Values{}
	}
	return &Request{
		Method:      method,
		Header:      header,
		Query:       query,
		Body:        body,
		contentType: header.Get("Content-Type"),
	}
}

// NewRequestFromHTTP wraps a net/http request, parsing the query string and,
// for form-encoded requests, the body. The body is consumed.
func NewRequestFromHTTP(r *http.Request) (*Request, error) {
	body := url.Values{}
	if r.Body != nil && r.Method != http.MethodGet {
		if err := r.ParseForm(); err != nil {
			return nil, ErrInvalidRequest("malformed request body")
		}
		body = r.PostForm
	}
	req := NewRequest(r.Method, r.Header.Clone(), r.URL.Query(), body)
	req.RemoteAddr = r.RemoteAddr
	return req, nil
}

// Get returns a request header value. Lookup is case-insensitive.
func (r *Request) Get(field string) string {
	return r.Header.Get(field)
}

// Param returns a request parameter, preferring the form body over the
// query string.
func (r *Request) Param(name string) string {
	if v := r.Body.Get(name); v != "" {
		return v
	}
	return r.Query.Get(name)
}

// Is reports whether the request content type matches the given mime type,
// ignoring parameters such as charset.
func (r *Request) Is(contentType string) bool {
	ct := r.contentType
	if ct == "" {
		ct = r.Header.Get("Content-Type")
	}
	parsed, _, err := mime.ParseMediaType(ct)
	if err != nil {
		parsed = strings.TrimSpace(strings.ToLower(ct))
	}
	return parsed == contentType
}

// BasicAuth returns the client credentials from the Authorization header,
// if the header carries HTTP Basic authentication.
func (r *Request) BasicAuth() (username, password string, ok bool) {
	hr := http.Request{Header: r.Header}
	return hr.BasicAuth()
}
