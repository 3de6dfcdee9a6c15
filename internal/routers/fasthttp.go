package routers

import (
	"net/http"

	"resbridge/internal/adapters/fasthttpadapter"
	"resbridge/internal/middleware"
	"resbridge/internal/routes/demo"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

func NewFastHTTP(cfg Config) fasthttp.RequestHandler {
	r := router.New()
	r.GET("/ping", func(fctx *fasthttp.RequestCtx) {
		fctx.SetStatusCode(fasthttp.StatusOK)
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", fasthttpadapter.Middleware(cfg.metricsGuard(), cfg.bridge("metrics_guard"),
			fasthttpadaptor.NewFastHTTPHandler(cfg.Metrics)))
	}
	r.NotFound = func(fctx *fasthttp.RequestCtx) {
		fctx.Error(http.StatusText(http.StatusNotFound), fasthttp.StatusNotFound)
	}

	for _, rt := range demo.Routes() {
		h := fasthttpadapter.Handler(cfg.route(rt).Handler())
		if rt.Guarded {
			h = fasthttpadapter.Middleware(cfg.guard(), cfg.bridge("guard"), h)
		}
		r.Handle(rt.Method, braceParams(rt.Path), h)
	}

	h := r.Handler
	h = fasthttpadapter.Middleware(demo.StripHeaders, cfg.bridge("strip_headers"), h)
	h = fasthttpadapter.Middleware(demo.SetHeaders, cfg.bridge("set_headers"), h)
	return middleware.TrackFastHTTP(cfg.Log, h)
}
