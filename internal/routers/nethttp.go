package routers

import (
	"net/http"

	"resbridge/internal/bridge"
	"resbridge/internal/middleware"
	"resbridge/internal/routes/demo"
)

func NewServeMux(cfg Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", ping)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", bridge.Middleware(cfg.metricsGuard(), cfg.bridge("metrics_guard"))(cfg.Metrics))
	}

	guard := bridge.Middleware(cfg.guard(), cfg.bridge("guard"))
	for _, rt := range demo.Routes() {
		h := bridge.ToHTTPHandler(cfg.route(rt).Handler())
		if rt.Guarded {
			h = guard(h)
		}
		pattern := braceParams(rt.Path)
		if pattern == "/" {
			pattern = "/{$}"
		}
		mux.Handle(rt.Method+" "+pattern, h)
	}

	var h http.Handler = mux
	h = bridge.Middleware(demo.StripHeaders, cfg.bridge("strip_headers"))(h)
	h = bridge.Middleware(demo.SetHeaders, cfg.bridge("set_headers"))(h)
	return middleware.TrackHTTP(cfg.Log, h)
}
