package middleware

import (
	"fmt"
	"net/http"
	"time"

	"resbridge/internal/ctx"
	"resbridge/internal/metrics"
	"resbridge/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	requestIDHeader  = "X-Request-Id"
	externalIDHeader = "X-External-Request-Id"
)

func newRequestID() string {
	reqID, _ := nanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 28)
	return "req_" + reqID
}

func startRequest(log *zap.SugaredLogger, host, path, externalID string) (*zap.SugaredLogger, *ctx.ContextLogValues) {
	values := &ctx.ContextLogValues{
		RequestID:  newRequestID(),
		ExternalID: externalID,
		Host:       host,
		StartTime:  time.Now(),
		Path:       path,
	}
	return log.With("request_id", values.RequestID), values
}

func endRequest(log *zap.SugaredLogger, values *ctx.ContextLogValues, status int) {
	values.StatusCode = status
	values.RequestDuration = time.Since(values.StartTime)
	log.Desugar().Log(values.Level(), "end_of_request", zap.Object("request", values))
	metrics.ResponseCodes.WithLabelValues(values.Path, fmt.Sprintf("%d", status)).Inc()
}

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			logger, values := startRequest(log, "echo", c.Path(), c.Request().Header.Get(externalIDHeader))
			c.SetRequest(ctx.WithRequest(c.Request(), logger, values))
			c.Response().Header().Set(requestIDHeader, values.RequestID)

			cc := &ctx.Context{Context: c, Log: logger, Reqid: values.RequestID, LogValues: values}
			err := next(cc)
			if err != nil {
				values.AddError(err)
				c.Error(err)
			}
			endRequest(logger, values, cc.Response().Status)
			return nil
		}
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error())
			return c.String(500, shared.ErrInternalServerError.Err.Error())
		},
	})
}

// NewGinTrack is NewTrackMiddleware for gin.
func NewGinTrack(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger, values := startRequest(log, "gin", c.FullPath(), c.GetHeader(externalIDHeader))
		c.Request = ctx.WithRequest(c.Request, logger, values)
		c.Header(requestIDHeader, values.RequestID)
		c.Next()
		for _, err := range c.Errors {
			values.AddError(err.Err)
		}
		endRequest(logger, values, c.Writer.Status())
	}
}

// TrackHTTP is NewTrackMiddleware for net/http.
func TrackHTTP(log *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger, values := startRequest(log, "nethttp", r.URL.Path, r.Header.Get(externalIDHeader))
		w.Header().Set(requestIDHeader, values.RequestID)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, ctx.WithRequest(r, logger, values))
		endRequest(logger, values, sw.status)
	})
}

// TrackFastHTTP is NewTrackMiddleware for fasthttp. Streamed bodies are
// still being written when the request is logged.
func TrackFastHTTP(log *zap.SugaredLogger, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(fctx *fasthttp.RequestCtx) {
		logger, values := startRequest(log, "fasthttp", string(fctx.Path()), string(fctx.Request.Header.Peek(externalIDHeader)))
		fctx.Response.Header.Set(requestIDHeader, values.RequestID)
		next(fctx)
		endRequest(logger, values, fctx.Response.StatusCode())
	}
}

// statusWriter captures the status code of a net/http response.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the original writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
