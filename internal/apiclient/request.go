package apiclient

import (
	"net/url"
	"sync/atomic"
)

// RetryToken is the once-only permission to replay a request after an inline
// refresh. Take succeeds exactly once.
type RetryToken struct {
	spent atomic.Bool
}

func NewRetryToken() *RetryToken {
	return &RetryToken{}
}

// Take consumes the token, reporting whether it was still available.
func (t *RetryToken) Take() bool {
	return t.spent.CompareAndSwap(false, true)
}

// Spent reports whether the token has been consumed.
func (t *RetryToken) Spent() bool {
	return t.spent.Load()
}

type request struct {
	method  string
	path    string
	bearer  string
	query   url.Values
	headers map[string]string
	retry   *RetryToken
}

// RequestOption customizes a single request.
type RequestOption func(*request)

// WithBearer sends token instead of the stored access token. Such requests
// are never refreshed and retried.
func WithBearer(token string) RequestOption {
	return func(r *request) { r.bearer = token }
}

// WithoutRetry disables 401 interception for the request.
func WithoutRetry() RequestOption {
	return func(r *request) { r.retry.Take() }
}

// WithRetryToken shares an existing retry allowance with the request.
func WithRetryToken(t *RetryToken) RequestOption {
	return func(r *request) {
		if t != nil {
			r.retry = t
		}
	}
}

// WithQuery appends query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(r *request) { r.query = q }
}

// WithHeader sets an additional request header.
func WithHeader(key, value string) RequestOption {
	return func(r *request) {
		if r.headers == nil {
			r.headers = make(map[string]string)
		}
		r.headers[key] = value
	}
}
