package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"resbridge/internal/bridge"
	"resbridge/internal/keys"
	"resbridge/internal/shared"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testKey = strings.Repeat("k", shared.APIKeyLength)

func guarded(log *zap.SugaredLogger) http.Handler {
	lookup := keys.Static{testKey: {KeyID: 42, OwnerID: 9, Role: "admin", Active: true}}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "inner")
	})
	mw := bridge.Middleware(NewGuard(lookup, log), bridge.Config{Name: "guard", Log: log})
	return TrackHTTP(log, mw(inner))
}

func TestGuardRejectsMissingKey(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core).Sugar()

	rec := httptest.NewRecorder()
	guarded(log).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guarded", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	ends := logs.FilterMessage("end_of_request").All()
	require.Len(t, ends, 1)
	assert.Equal(t, zapcore.WarnLevel, ends[0].Level)
}

func TestGuardRejectsInactiveKey(t *testing.T) {
	lookup := keys.Static{testKey: {KeyID: 1, Active: false}}
	h := bridge.Middleware(NewGuard(lookup, zap.NewNop().Sugar()), bridge.Config{Name: "guard", Log: zap.NewNop().Sugar()})(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardPassesKnownKey(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	guarded(log).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inner", rec.Body.String())
	assert.Equal(t, "42", rec.Header().Get("X-Key-Id"))

	ends := logs.FilterMessage("end_of_request").All()
	require.Len(t, ends, 1)
	assert.Equal(t, zapcore.InfoLevel, ends[0].Level)
	request, ok := ends[0].ContextMap()["request"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 42, request["key_id"])
	assert.Equal(t, "admin", request["role"])
}

func TestMetricsGuard(t *testing.T) {
	h := bridge.Middleware(NewMetricsGuard(testKey), bridge.Config{Name: "metrics", Log: zap.NewNop().Sugar()})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "metrics")
		}))

	cases := []struct {
		auth   string
		status int
		body   string
	}{
		{"", http.StatusUnauthorized, "Missing or invalid API key"},
		{"Bearer " + strings.Repeat("x", shared.APIKeyLength), http.StatusUnauthorized, "Unauthorized API key"},
		{"Bearer " + testKey, http.StatusOK, "metrics"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.status, rec.Code, tc.auth)
		assert.Equal(t, tc.body, rec.Body.String(), tc.auth)
	}
}

func TestMetricsGuardWithoutKeyConfigured(t *testing.T) {
	h := bridge.Middleware(NewMetricsGuard(""), bridge.Config{Name: "metrics", Log: zap.NewNop().Sugar()})(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEchoTrackLogsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()

	e := echo.New()
	e.Use(NewRecoverMiddleware(log))
	e.Use(NewTrackMiddleware(log))
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})
	e.GET("/panic", func(c echo.Context) error {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(requestIDHeader), "req_"))

	ends := logs.FilterMessage("end_of_request").All()
	require.Len(t, ends, 1)
	assert.Equal(t, zapcore.WarnLevel, ends[0].Level)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("Api Panic").Len())
}

func TestStatusWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	_, _ = sw.Write([]byte("x"))
	sw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, sw.status)
	assert.Equal(t, rec, sw.Unwrap())
}
