// Package fasthttpadapter mounts bridged handlers on fasthttp. Requests are
// converted to net/http once per call and bodies are streamed back through
// SetBodyStream.
package fasthttpadapter

import (
	"context"
	"io"
	"net/http"

	"resbridge/internal/bridge"
	"resbridge/internal/shared"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Handler serves a fetch-style handler on fasthttp. No response means 404.
func Handler(h bridge.Handler) fasthttp.RequestHandler {
	return func(fctx *fasthttp.RequestCtx) {
		r, cancel, err := Request(fctx)
		if err != nil {
			fctx.Error(err.Error(), fasthttp.StatusBadRequest)
			return
		}
		resp, err := h(r.Context(), r, nil)
		if err != nil {
			cancel()
			writeError(fctx, err)
			return
		}
		if resp == nil {
			cancel()
			plainError(fctx, http.StatusText(http.StatusNotFound), fasthttp.StatusNotFound)
			return
		}
		Write(fctx, resp, cancel)
	}
}

// Middleware mounts a legacy handler in front of next. Delegating copies the
// headers set so far onto the fasthttp response and runs next.
func Middleware(h bridge.LegacyFunc, cfg bridge.Config, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	b := bridge.New(h, cfg)
	return func(fctx *fasthttp.RequestCtx) {
		r, cancel, err := Request(fctx)
		if err != nil {
			fctx.Error(err.Error(), fasthttp.StatusBadRequest)
			return
		}

		// fasthttp headers are not a map, so the mirror is a copy that is
		// written back, removals included, before delegating
		platform := http.Header{}
		fctx.Response.Header.VisitAll(func(k, v []byte) {
			platform.Add(string(k), string(v))
		})
		seeded := make([]string, 0, len(platform))
		for name := range platform {
			seeded = append(seeded, name)
		}

		inv := b.NewInvocation()
		inv.MirrorTo(platform)
		resp, err := b.ServeInvocation(r.Context(), inv, r, func(context.Context) (*bridge.Response, error) {
			for _, name := range seeded {
				if len(platform.Values(name)) == 0 {
					fctx.Response.Header.Del(name)
				}
			}
			copyHeader(&fctx.Response.Header, platform)
			next(fctx)
			return nil, nil
		})
		switch {
		case err != nil:
			cancel()
			writeError(fctx, err)
		case resp == nil:
			cancel()
		default:
			Write(fctx, resp, cancel)
		}
	}
}

// Request converts fctx to a net/http request with the router's user values
// as path params. cancel releases the request context; Write takes it over
// when a body is streamed.
func Request(fctx *fasthttp.RequestCtx) (*http.Request, context.CancelFunc, error) {
	r := new(http.Request)
	if err := fasthttpadaptor.ConvertRequest(fctx, r, true); err != nil {
		return nil, nil, err
	}
	params := map[string]string{}
	fctx.VisitUserValues(func(k []byte, v any) {
		if s, ok := v.(string); ok {
			params[string(k)] = s
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	r = r.WithContext(ctx)
	return bridge.WithParams(r, params), cancel, nil
}

// Write sets status and headers on fctx and hands the body to fasthttp as a
// chunked stream. cancel runs once fasthttp is done with the body.
func Write(fctx *fasthttp.RequestCtx, resp *bridge.Response, cancel context.CancelFunc) {
	fctx.SetStatusCode(resp.Status)
	copyHeader(&fctx.Response.Header, resp.Header)
	if resp.Body == nil {
		cancel()
		return
	}
	fctx.SetBodyStream(&body{ReadCloser: resp.Body, cancel: cancel}, -1)
}

type body struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *body) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func copyHeader(dst *fasthttp.ResponseHeader, src http.Header) {
	for name, values := range src {
		for i, v := range values {
			if i == 0 {
				dst.Set(name, v)
				continue
			}
			dst.Add(name, v)
		}
	}
}

func writeError(fctx *fasthttp.RequestCtx, err error) {
	plainError(fctx, shared.PublicMessage(err), shared.StatusFromError(err))
}

// plainError is fctx.Error without resetting headers set by earlier middlewares.
func plainError(fctx *fasthttp.RequestCtx, msg string, status int) {
	fctx.SetStatusCode(status)
	fctx.SetContentType("text/plain; charset=utf-8")
	fctx.SetBodyString(msg)
}
