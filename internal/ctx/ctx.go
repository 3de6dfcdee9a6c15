// Package ctx
package ctx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextLogValues should only be accessed for logging, and not for
// actual business logic, or any other logic
type ContextLogValues struct {
	// Added in base middleware
	RequestID       string
	ExternalID      string
	Host            string
	StartTime       time.Time
	StatusCode      int
	RequestDuration time.Duration
	Path            string

	// Added in guard
	KeyID   uint64
	OwnerID uint64
	Role    string

	// Added dynamically
	Error error
}

// AddError adds errors to the error chain. Always add errors, even if only warnings.
// Log level is determined by the status code of the request
func (c *ContextLogValues) AddError(err error) {
	if c.Error == nil {
		c.Error = err
		return
	}
	c.Error = fmt.Errorf("%w: %w", err, c.Error)
}

func (c *ContextLogValues) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if c.KeyID != 0 {
		enc.AddUint64("key_id", c.KeyID)
		enc.AddUint64("owner_id", c.OwnerID)
		enc.AddString("role", c.Role)
	}
	enc.AddString("request_id", c.RequestID)
	enc.AddString("external_id", c.ExternalID)
	enc.AddString("host", c.Host)
	enc.AddTime("start_time", c.StartTime)
	enc.AddDuration("request_duration", c.RequestDuration)
	enc.AddInt("status_code", c.StatusCode)
	if c.Error != nil {
		enc.AddString("error", c.Error.Error())
	}
	enc.AddString("path", c.Path)
	return nil
}

// Level picks the log level for a finished request from its status code.
func (c *ContextLogValues) Level() zapcore.Level {
	switch {
	case c.StatusCode >= 500:
		return zapcore.ErrorLevel
	case c.StatusCode >= 400 || c.Error != nil:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

type Context struct {
	echo.Context
	Log       *zap.SugaredLogger
	Reqid     string
	LogValues *ContextLogValues
}

type requestKey struct{}

type requestValues struct {
	log    *zap.SugaredLogger
	values *ContextLogValues
}

// WithRequest attaches the per-request logger and log values to r so bridged
// handlers, which only see the *http.Request, can reach them.
func WithRequest(r *http.Request, log *zap.SugaredLogger, values *ContextLogValues) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestKey{}, &requestValues{log: log, values: values}))
}

// Log returns the per-request logger, or fallback when none was attached.
func Log(r *http.Request, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if rv, ok := r.Context().Value(requestKey{}).(*requestValues); ok && rv.log != nil {
		return rv.log
	}
	return fallback
}

// LogValues returns the per-request log values, if any.
func LogValues(r *http.Request) *ContextLogValues {
	if rv, ok := r.Context().Value(requestKey{}).(*requestValues); ok {
		return rv.values
	}
	return nil
}
