package ginadapter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"resbridge/internal/bridge"
	"resbridge/internal/shared"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testConfig(name string) bridge.Config {
	return bridge.Config{Name: name, Log: zap.NewNop().Sugar()}
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	g.Use(Middleware(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		w.SetHeader("X-Test-Value", "universal-middleware")
		w.SetHeader("X-Should-Be-Removed", "1")
		next()
		return nil
	}, testConfig("headers")))
	g.Use(Middleware(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		w.RemoveHeader("X-Should-Be-Removed")
		if r.URL.Path == "/throw-early" {
			return &shared.RequestError{StatusCode: http.StatusInternalServerError, Err: errTest}
		}
		next()
		return nil
	}, testConfig("strip")))

	user := bridge.New(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		return w.SendString("User name is: " + bridge.Param(r, "name"))
	}, testConfig("user"))
	g.GET("/user/:name", Handler(user.Handler()))

	stream := bridge.New(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		go func() {
			for _, part := range []string{"a", "b", "c"} {
				if _, err := w.WriteString(part); err != nil {
					return
				}
			}
			_ = w.End()
		}()
		return nil
	}, testConfig("stream"))
	g.GET("/stream", Handler(stream.Handler()))
	return g
}

var errTest = errors.New("universal-middleware throw early test")

func TestHeadersMirrorAcrossChain(t *testing.T) {
	rec := httptest.NewRecorder()
	newEngine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/magne4000", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User name is: magne4000", rec.Body.String())
	assert.Equal(t, "universal-middleware", rec.Header().Get("X-Test-Value"))
	assert.Empty(t, rec.Header().Values("X-Should-Be-Removed"))
}

func TestErrorBeforeResolutionAnswers500(t *testing.T) {
	rec := httptest.NewRecorder()
	newEngine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/throw-early", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "universal-middleware throw early test"))
}

func TestStreamedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newEngine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())
}
