package weberr

import (
	"errors"
	"net/http"
)

type responder interface {
	Response() (body interface{}, status int)
}

// Response returns the outermost response attached to err.
func Response(err error) (body interface{}, status int, ok bool) {
	var re responder
	if !errors.As(err, &re) {
		return nil, 0, false
	}
	body, status = re.Response()
	return body, status, true
}

type responseError struct {
	error
	body   interface{}
	status int
}

func (e *responseError) Response() (interface{}, int) { return e.body, e.status }

func (e *responseError) Unwrap() error { return e.error }

// Headers collects the response headers attached anywhere in the chain of
// err.
func Headers(err error) http.Header {
	h := make(http.Header)
	for ; err != nil; err = errors.Unwrap(err) {
		if he, ok := err.(*headerError); ok && h.Get(he.key) == "" {
			h.Set(he.key, he.value)
		}
	}
	return h
}

type headerError struct {
	error
	key   string
	value string
}

func (e *headerError) Unwrap() error { return e.error }
