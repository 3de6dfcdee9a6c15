package routers

import (
	"net/http"

	"resbridge/internal/adapters/echoadapter"
	"resbridge/internal/middleware"
	"resbridge/internal/routes/demo"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

func NewEcho(cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/ping", echo.WrapHandler(http.HandlerFunc(ping)))
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics), echoadapter.Middleware(cfg.metricsGuard(), cfg.bridge("metrics_guard")))
	}

	base := e.Group("")
	base.Use(emw.CORS())
	base.Use(middleware.NewRecoverMiddleware(cfg.Log))
	base.Use(middleware.NewTrackMiddleware(cfg.Log))
	base.Use(echoadapter.Middleware(demo.SetHeaders, cfg.bridge("set_headers")))
	base.Use(echoadapter.Middleware(demo.StripHeaders, cfg.bridge("strip_headers")))

	guard := echoadapter.Middleware(cfg.guard(), cfg.bridge("guard"))
	for _, rt := range demo.Routes() {
		var mws []echo.MiddlewareFunc
		if rt.Guarded {
			mws = append(mws, guard)
		}
		base.Add(rt.Method, rt.Path, echoadapter.Handler(cfg.route(rt).Handler()), mws...)
	}
	return e
}
