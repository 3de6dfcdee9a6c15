package echoadapter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"resbridge/internal/bridge"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testConfig(name string) bridge.Config {
	return bridge.Config{Name: name, Log: zap.NewNop().Sugar()}
}

func newServer() *echo.Echo {
	e := echo.New()
	e.Use(Middleware(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		w.SetHeader("X-Test-Value", "universal-middleware")
		next()
		return nil
	}, testConfig("headers")))
	e.Use(Middleware(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		if r.URL.Path == "/guarded" {
			w.Status(http.StatusUnauthorized)
			return w.SendString("Unauthorized")
		}
		next()
		return nil
	}, testConfig("guard")))

	user := bridge.New(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		return w.SendString("User name is: " + bridge.Param(r, "name"))
	}, testConfig("user"))
	e.GET("/user/:name", Handler(user.Handler()))

	boom := bridge.New(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		return errors.New("boom")
	}, testConfig("boom"))
	e.GET("/boom", Handler(boom.Handler()))

	nothing := bridge.New(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		next()
		return nil
	}, testConfig("nothing"))
	e.GET("/nothing", Handler(nothing.Handler()))
	return e
}

func do(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouteParamsReachHandler(t *testing.T) {
	rec := do(newServer(), "/user/magne4000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User name is: magne4000", rec.Body.String())
	assert.Equal(t, "universal-middleware", rec.Header().Get("X-Test-Value"))
}

func TestMiddlewareShortCircuits(t *testing.T) {
	rec := do(newServer(), "/guarded")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", rec.Body.String())
}

func TestHandlerErrors(t *testing.T) {
	e := newServer()
	rec := do(e, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(e, "/nothing").Code)
	assert.Equal(t, http.StatusNotFound, do(e, "/404").Code)
}
