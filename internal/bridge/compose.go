package bridge

import (
	"context"
	"net/http"
)

// Compose chains handlers so that each handler's next runs the one after it,
// and the last one's next runs the caller's next.
func Compose(handlers ...Handler) Handler {
	return func(ctx context.Context, r *http.Request, next Next) (*Response, error) {
		var at func(i int) Next
		at = func(i int) Next {
			return func(ctx context.Context) (*Response, error) {
				if i == len(handlers) {
					if next == nil {
						return nil, nil
					}
					return next(ctx)
				}
				return handlers[i](ctx, r, at(i+1))
			}
		}
		return at(0)(ctx)
	}
}

// WithHeader returns a handler that sets name on whatever response the rest
// of the chain produces.
func WithHeader(name, value string) Handler {
	return func(ctx context.Context, _ *http.Request, next Next) (*Response, error) {
		if next == nil {
			return nil, nil
		}
		resp, err := next(ctx)
		if err != nil || resp == nil {
			return resp, err
		}
		resp.Header.Set(name, value)
		return resp, nil
	}
}
