// Package middleware holds the host middlewares and the bridged guards.
package middleware

import (
	"context"
	"net/http"
	"strconv"

	"resbridge/internal/bridge"
	"resbridge/internal/ctx"
	"resbridge/internal/shared"

	"go.uber.org/zap"
)

type KeyLookup interface {
	Lookup(ctx context.Context, apiKey string) (*shared.KeyMetadata, error)
}

// NewGuard is a legacy handler that lets requests with an active API key
// through to next and answers everything else with 401.
func NewGuard(keys KeyLookup, log *zap.SugaredLogger) bridge.LegacyFunc {
	return func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		logger := ctx.Log(r, log)
		apiKey, err := shared.ExtractAPIKey(r)
		if err != nil {
			logger.Debugw("Rejected request without usable key", "error", err)
			return unauthorized(w, "Unauthorized")
		}
		key, err := keys.Lookup(r.Context(), apiKey)
		if err != nil || !key.Active {
			logger.Infow("Rejected request with unknown key", "error", err)
			return unauthorized(w, "Unauthorized")
		}
		if values := ctx.LogValues(r); values != nil {
			values.KeyID = key.KeyID
			values.OwnerID = key.OwnerID
			values.Role = key.Role
		}
		w.SetHeader("X-Key-Id", strconv.FormatUint(key.KeyID, 10))
		next()
		return nil
	}
}

// NewMetricsGuard protects the metrics endpoint with a single static key.
func NewMetricsGuard(metricsAPIKey string) bridge.LegacyFunc {
	return func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		apiKey, err := shared.ExtractAPIKey(r)
		if err != nil {
			return unauthorized(w, "Missing or invalid API key")
		}
		if metricsAPIKey == "" || apiKey != metricsAPIKey {
			return unauthorized(w, "Unauthorized API key")
		}
		next()
		return nil
	}
}

func unauthorized(w *bridge.Shim, msg string) error {
	w.Status(http.StatusUnauthorized)
	w.SetHeader("Content-Type", "text/plain; charset=utf-8")
	return w.SendString(msg)
}
