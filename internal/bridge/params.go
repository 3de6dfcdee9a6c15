package bridge

import (
	"context"
	"net/http"
)

type paramsKey struct{}

// WithParams attaches the host router's path parameters to r so handlers can
// read them without knowing which host matched the route.
func WithParams(r *http.Request, params map[string]string) *http.Request {
	if len(params) == 0 {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), paramsKey{}, params))
}

// Param returns the named path parameter, falling back to net/http's own
// pattern values.
func Param(r *http.Request, name string) string {
	if params, ok := r.Context().Value(paramsKey{}).(map[string]string); ok {
		if v, ok := params[name]; ok {
			return v
		}
	}
	return r.PathValue(name)
}
