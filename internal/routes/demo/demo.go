// Package demo holds callback-style handlers written the way pre-bridge
// services wrote them: mutate the response, write, end, or call next.
package demo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"resbridge/internal/bridge"
	"resbridge/internal/shared"
)

const (
	TestHeader    = "X-Test-Value"
	RemovedHeader = "X-Should-Be-Removed"
	jsonType      = "application/json; charset=utf-8"
)

var (
	ErrThrowEarly = &shared.RequestError{StatusCode: http.StatusInternalServerError, Err: errors.New("universal-middleware throw early test")}
	ErrThrowLate  = &shared.RequestError{StatusCode: http.StatusInternalServerError, Err: errors.New("universal-middleware throw late test")}
	ErrBadBody    = &shared.RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("invalid json body")}
)

// Route is one demo endpoint. Path uses :param segments.
type Route struct {
	Method  string
	Path    string
	Handler bridge.LegacyFunc
	Guarded bool
}

func Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Path: "/", Handler: Root},
		{Method: http.MethodGet, Path: "/guarded", Handler: Guarded, Guarded: true},
		{Method: http.MethodGet, Path: "/throw-early", Handler: ThrowEarly},
		{Method: http.MethodGet, Path: "/throw-late", Handler: ThrowLate},
		{Method: http.MethodGet, Path: "/throw-early-and-late", Handler: ThrowEarlyAndLate},
		{Method: http.MethodGet, Path: "/user/:name", Handler: User},
		{Method: http.MethodGet, Path: "/stream", Handler: Stream},
		{Method: http.MethodGet, Path: "/cached", Handler: Cached},
		{Method: http.MethodPost, Path: "/post", Handler: Post},
	}
}

// SetHeaders runs before every route.
func SetHeaders(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	w.SetHeader(TestHeader, "universal-middleware")
	w.SetHeader(RemovedHeader, "1")
	next()
	return nil
}

// StripHeaders runs after SetHeaders and removes what it should not have set.
func StripHeaders(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	w.RemoveHeader(RemovedHeader)
	next()
	return nil
}

func Root(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	body, err := json.Marshal(map[string]any{
		"long":          strings.Repeat("a", 1024),
		"something":     map[string]int{"a": 1},
		"somethingElse": map[string]int{"b": 2},
		"waitUntil":     "undefined",
	})
	if err != nil {
		return err
	}
	w.SetHeader("Content-Type", jsonType)
	return w.Send(body)
}

func Guarded(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	w.SetHeader("Content-Type", "text/plain; charset=utf-8")
	return w.SendString("Authorized")
}

func ThrowEarly(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	return ErrThrowEarly
}

// ThrowLate fails after a pause, still before anything was written.
func ThrowLate(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	select {
	case <-time.After(10 * time.Millisecond):
	case <-r.Context().Done():
		return r.Context().Err()
	}
	return ErrThrowLate
}

// ThrowEarlyAndLate fails right away and keeps a writer around that tries to
// write after the call was rejected.
func ThrowEarlyAndLate(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = w.WriteString("late")
	}()
	return ErrThrowEarly
}

func User(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	w.SetHeader("Content-Type", "text/plain; charset=utf-8")
	return w.SendString("User name is: " + bridge.Param(r, "name"))
}

// Stream sends server-sent events from a goroutine after the handler returned.
func Stream(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	w.SetHeader("Content-Type", "text/event-stream")
	w.SetHeader("Cache-Control", "no-cache")
	w.SetHeader("Connection", "keep-alive")
	w.Flush()

	go func() {
		for i := range 5 {
			if r.Context().Err() != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %d\n\n", i); err != nil {
				return
			}
		}
		_ = w.EndString("data: [DONE]\n\n")
	}()
	return nil
}

const cachedETag = `"demo-v1"`

// Cached answers 304 when the client already holds the current version.
func Cached(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	w.SetHeader("ETag", cachedETag)
	if r.Header.Get("If-None-Match") == cachedETag {
		w.SetStatus(http.StatusNotModified)
		return w.End()
	}
	w.SetHeader("Content-Type", "text/plain; charset=utf-8")
	return w.SendString("fresh")
}

func Post(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ErrBadBody
	}
	w.SetHeader("Content-Type", jsonType)
	return w.SendString(`{"ok":true}`)
}
