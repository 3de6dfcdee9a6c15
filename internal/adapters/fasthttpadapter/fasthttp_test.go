package fasthttpadapter

import (
	"net/http"
	"testing"

	"resbridge/internal/bridge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func testConfig(name string) bridge.Config {
	return bridge.Config{Name: name, Log: zap.NewNop().Sugar()}
}

func newCtx(method, uri string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	fctx := new(fasthttp.RequestCtx)
	fctx.Init(&req, nil, nil)
	return fctx
}

func TestHandlerStreamsBody(t *testing.T) {
	b := bridge.New(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		w.SetStatus(http.StatusCreated)
		w.SetHeader("Content-Type", "text/plain")
		if _, err := w.WriteString("hello "); err != nil {
			return err
		}
		return w.EndString(bridge.Param(r, "name"))
	}, testConfig("hello"))

	fctx := newCtx(http.MethodGet, "/hello/gopher")
	fctx.SetUserValue("name", "gopher")
	Handler(b.Handler())(fctx)

	assert.Equal(t, http.StatusCreated, fctx.Response.StatusCode())
	assert.Equal(t, "text/plain", string(fctx.Response.Header.ContentType()))
	assert.Equal(t, "hello gopher", string(fctx.Response.Body()))
}

func TestHandlerNotFound(t *testing.T) {
	b := bridge.New(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		next()
		return nil
	}, testConfig("none"))

	fctx := newCtx(http.MethodGet, "/missing")
	Handler(b.Handler())(fctx)
	assert.Equal(t, http.StatusNotFound, fctx.Response.StatusCode())
}

func TestMiddlewareDelegatesWithHeaders(t *testing.T) {
	mw := Middleware(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		w.SetHeader("X-Test-Value", "universal-middleware")
		next()
		return nil
	}, testConfig("headers"), func(fctx *fasthttp.RequestCtx) {
		fctx.SetBodyString("downstream")
	})

	fctx := newCtx(http.MethodGet, "/")
	mw(fctx)
	assert.Equal(t, http.StatusOK, fctx.Response.StatusCode())
	assert.Equal(t, "universal-middleware", string(fctx.Response.Header.Peek("X-Test-Value")))
	assert.Equal(t, "downstream", string(fctx.Response.Body()))
}

func TestMiddlewareAnswersError(t *testing.T) {
	mw := Middleware(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		panic("bad")
	}, testConfig("panic"), func(fctx *fasthttp.RequestCtx) {
		t.Error("next must not run")
	})

	fctx := newCtx(http.MethodPost, "/")
	mw(fctx)
	require.Equal(t, http.StatusInternalServerError, fctx.Response.StatusCode())
	assert.Equal(t, "internal server error", string(fctx.Response.Body()))
}
