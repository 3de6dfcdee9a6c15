// Package routers wires the demo routes onto each supported host.
package routers

import (
	"net/http"
	"strings"

	"resbridge/internal/bridge"
	"resbridge/internal/middleware"
	"resbridge/internal/routes/demo"

	"go.uber.org/zap"
)

type Config struct {
	Log           *zap.SugaredLogger
	Keys          middleware.KeyLookup
	Observer      bridge.Observer
	SegmentSize   int
	MetricsAPIKey string
	Metrics       http.Handler
}

func (c Config) bridge(name string) bridge.Config {
	return bridge.Config{
		Name:        name,
		SegmentSize: c.SegmentSize,
		Log:         c.Log.With("bridge", name),
		Observer:    c.Observer,
	}
}

func (c Config) route(rt demo.Route) *bridge.Bridge {
	return bridge.New(rt.Handler, c.bridge(routeName(rt)))
}

func (c Config) guard() bridge.LegacyFunc {
	return middleware.NewGuard(c.Keys, c.Log)
}

func (c Config) metricsGuard() bridge.LegacyFunc {
	return middleware.NewMetricsGuard(c.MetricsAPIKey)
}

// routeName turns "GET /user/:name" into "get_user_name" for labels.
func routeName(rt demo.Route) string {
	path := strings.Trim(strings.NewReplacer("/", "_", ":", "", "-", "_").Replace(rt.Path), "_")
	if path == "" {
		path = "root"
	}
	return strings.ToLower(rt.Method) + "_" + path
}

// braceParams rewrites :param segments to {param}, the syntax of net/http's
// mux and fasthttp's router.
func braceParams(path string) string {
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, ":") {
			segs[i] = "{" + seg[1:] + "}"
		}
	}
	return strings.Join(segs, "/")
}

func ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
