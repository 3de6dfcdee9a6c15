// Package ginadapter mounts bridged handlers on gin.
package ginadapter

import (
	"context"
	"net/http"

	"resbridge/internal/bridge"
	"resbridge/internal/shared"

	"github.com/gin-gonic/gin"
)

// Middleware mounts a legacy handler in a gin chain. Delegating runs
// c.Next(); a produced response aborts the chain.
func Middleware(h bridge.LegacyFunc, cfg bridge.Config) gin.HandlerFunc {
	b := bridge.New(h, cfg)
	return func(c *gin.Context) {
		inv := b.NewInvocation()
		inv.MirrorTo(c.Writer.Header())

		r := Request(c)
		resp, err := b.ServeInvocation(r.Context(), inv, r, func(context.Context) (*bridge.Response, error) {
			c.Next()
			return nil, nil
		})
		if err != nil {
			writeError(c, err)
			return
		}
		if resp == nil {
			return
		}
		c.Abort()
		if err := bridge.WriteResponse(c.Writer, resp); err != nil {
			b.Log().Warnw("Streaming bridged response failed", "bridge", b.Name(), "path", c.FullPath(), "error", err)
		}
	}
}

// Handler serves a fetch-style handler as a gin route. No response means 404.
func Handler(h bridge.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := Request(c)
		resp, err := h(r.Context(), r, nil)
		if err != nil {
			writeError(c, err)
			return
		}
		if resp == nil {
			c.String(http.StatusNotFound, http.StatusText(http.StatusNotFound))
			return
		}
		_ = bridge.WriteResponse(c.Writer, resp)
	}
}

// Request returns the gin request carrying the matched route params.
func Request(c *gin.Context) *http.Request {
	if len(c.Params) == 0 {
		return c.Request
	}
	params := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}
	return bridge.WithParams(c.Request, params)
}

func writeError(c *gin.Context, err error) {
	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.String(shared.StatusFromError(err), shared.PublicMessage(err))
	c.Abort()
}
