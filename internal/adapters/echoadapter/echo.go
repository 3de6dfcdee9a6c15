// Package echoadapter mounts bridged handlers on echo.
package echoadapter

import (
	"context"
	"net/http"

	"resbridge/internal/bridge"
	"resbridge/internal/shared"

	"github.com/labstack/echo/v4"
)

const invocationKeyPrefix = "resbridge.invocation."

// Middleware mounts a legacy handler in an echo chain. Calling next inside
// the handler runs the rest of the chain on the same echo context; headers
// set before that are kept on the real response.
//
// The invocation is stored on the echo context, so re-entering the same
// bridge for the same request returns the response it already built.
func Middleware(h bridge.LegacyFunc, cfg bridge.Config) echo.MiddlewareFunc {
	b := bridge.New(h, cfg)
	key := invocationKeyPrefix + b.Name()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			inv, ok := c.Get(key).(*bridge.Invocation)
			if !ok {
				inv = b.NewInvocation()
				inv.MirrorTo(c.Response().Header())
				c.Set(key, inv)
			}

			r := Request(c)
			var nextErr error
			resp, err := b.ServeInvocation(r.Context(), inv, r, func(context.Context) (*bridge.Response, error) {
				nextErr = next(c)
				return nil, nil
			})
			if err != nil {
				return writeError(c, err)
			}
			if resp == nil {
				return nextErr
			}
			return Write(c, resp)
		}
	}
}

// Handler serves a fetch-style handler as an echo route. No response means 404.
func Handler(h bridge.Handler) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := Request(c)
		resp, err := h(r.Context(), r, nil)
		if err != nil {
			return writeError(c, err)
		}
		if resp == nil {
			return echo.ErrNotFound
		}
		return Write(c, resp)
	}
}

// Write streams resp to the echo response.
func Write(c echo.Context, resp *bridge.Response) error {
	if c.Response().Committed {
		c.Logger().Warnf("response already committed, dropping bridged response with status %d", resp.Status)
		if resp.Body != nil {
			return resp.Body.Close()
		}
		return nil
	}
	return bridge.WriteResponse(c.Response(), resp)
}

// Request returns the echo request carrying the matched route params.
func Request(c echo.Context) *http.Request {
	names := c.ParamNames()
	if len(names) == 0 {
		return c.Request()
	}
	values := c.ParamValues()
	params := make(map[string]string, len(names))
	for i, name := range names {
		if i < len(values) {
			params[name] = values[i]
		}
	}
	return bridge.WithParams(c.Request(), params)
}

func writeError(c echo.Context, err error) error {
	if c.Response().Committed {
		return err
	}
	return c.String(shared.StatusFromError(err), shared.PublicMessage(err))
}
