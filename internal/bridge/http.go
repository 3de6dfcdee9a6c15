package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"

	"resbridge/internal/shared"
)

const copyBufferSize = 32 << 10

// WriteResponse streams resp into w, flushing after every chunk so that a
// slowly produced body reaches the client as it is written. Headers already
// on w are kept unless resp overrides them.
func WriteResponse(w http.ResponseWriter, resp *Response) error {
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.Status)
	if resp.Body == nil {
		return nil
	}
	defer resp.Body.Close()

	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ToHTTPHandler serves a fetch-style handler on net/http. A handler that
// produces nothing answers 404.
func ToHTTPHandler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := h(r.Context(), r, nil)
		if err != nil {
			http.Error(w, shared.PublicMessage(err), shared.StatusFromError(err))
			return
		}
		if resp == nil {
			http.NotFound(w, r)
			return
		}
		_ = WriteResponse(w, resp)
	})
}

// FromHTTPHandler adapts a plain net/http handler. Returning from ServeHTTP
// ends the response.
func FromHTTPHandler(h http.Handler) LegacyFunc {
	return func(w *Shim, r *http.Request, _ NextFunc) error {
		h.ServeHTTP(w, r)
		return w.End()
	}
}

// FromHTTPMiddleware adapts net/http middleware. Invoking the wrapped handler
// is the delegate continuation; otherwise returning ends the response.
func FromHTTPMiddleware(mw func(http.Handler) http.Handler) LegacyFunc {
	return func(w *Shim, r *http.Request, next NextFunc) error {
		delegated := false
		inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			delegated = true
			next()
		})
		mw(inner).ServeHTTP(w, r)
		if delegated {
			return nil
		}
		return w.End()
	}
}

// Middleware mounts a legacy handler in a net/http chain. Headers it sets
// before delegating are mirrored onto the real response.
func Middleware(h LegacyFunc, cfg Config) func(http.Handler) http.Handler {
	b := New(h, cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inv := b.NewInvocation()
			inv.MirrorTo(w.Header())
			resp, err := b.ServeInvocation(r.Context(), inv, r, func(context.Context) (*Response, error) {
				next.ServeHTTP(w, r)
				return nil, nil
			})
			if err != nil {
				code := shared.StatusFromError(err)
				b.cfg.Log.Warnw("Bridged handler failed", "bridge", b.cfg.Name, "path", r.URL.Path, "status", code, "error", err)
				http.Error(w, shared.PublicMessage(err), code)
				return
			}
			if resp == nil {
				return
			}
			if err := WriteResponse(w, resp); err != nil {
				b.cfg.Log.Warnw("Streaming bridged response failed", "bridge", b.cfg.Name, "path", r.URL.Path, "error", err)
			}
		})
	}
}
