package routers

import (
	"net/http"

	"resbridge/internal/adapters/ginadapter"
	"resbridge/internal/middleware"
	"resbridge/internal/routes/demo"
	"resbridge/internal/shared"

	"github.com/gin-gonic/gin"
)

func NewGin(cfg Config) *gin.Engine {
	g := gin.New()
	g.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		cfg.Log.Errorw("Api Panic", "error", recovered)
		c.String(http.StatusInternalServerError, shared.ErrInternalServerError.Err.Error())
	}))

	g.GET("/ping", gin.WrapF(ping))
	if cfg.Metrics != nil {
		g.GET("/metrics", ginadapter.Middleware(cfg.metricsGuard(), cfg.bridge("metrics_guard")), gin.WrapH(cfg.Metrics))
	}
	g.NoRoute(middleware.NewGinTrack(cfg.Log), func(c *gin.Context) {
		c.String(http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	base := g.Group("",
		middleware.NewGinTrack(cfg.Log),
		ginadapter.Middleware(demo.SetHeaders, cfg.bridge("set_headers")),
		ginadapter.Middleware(demo.StripHeaders, cfg.bridge("strip_headers")),
	)
	guard := ginadapter.Middleware(cfg.guard(), cfg.bridge("guard"))
	for _, rt := range demo.Routes() {
		var handlers []gin.HandlerFunc
		if rt.Guarded {
			handlers = append(handlers, guard)
		}
		handlers = append(handlers, ginadapter.Handler(cfg.route(rt).Handler()))
		base.Handle(rt.Method, rt.Path, handlers...)
	}
	return g
}
