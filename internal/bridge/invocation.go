package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"resbridge/internal/metrics"
	"resbridge/internal/shared"

	"go.uber.org/zap"
)

// Invocation is the per-request state behind a Shim: status, headers, the
// closed flag, the resolved Response and the Pipe feeding its body. It is
// never shared between requests. A host may serve the same Invocation again
// when its own chain re-enters the bridge for the same request.
type Invocation struct {
	name     string
	log      *zap.SugaredLogger
	observer Observer

	mu         sync.Mutex
	status     int
	header     http.Header
	platform   http.Header
	mirrored   map[string]struct{}
	closed     bool
	resolved   *Response
	reported   bool
	gate       *gate
	ctx        context.Context
	path       string
	started    time.Time
	resolvedAt time.Time

	pipe   *Pipe
	events *emitter
	shim   *Shim
}

// NewInvocation creates fresh state using cfg's limits, logger and observer.
func NewInvocation(cfg Config) *Invocation {
	cfg = cfg.withDefaults()
	inv := &Invocation{
		name:     cfg.Name,
		log:      cfg.Log,
		observer: cfg.Observer,
		status:   http.StatusOK,
		header:   http.Header{},
		ctx:      context.Background(),
		started:  time.Now(),
		pipe:     NewPipe(cfg.SegmentSize, cfg.QueueDepth),
		events:   newEmitter(cfg.Log),
	}
	inv.shim = &Shim{inv: inv}
	return inv
}

// Shim returns the legacy response object bound to this invocation.
func (inv *Invocation) Shim() *Shim {
	return inv.shim
}

// MirrorTo makes header mutations also land on h, the host's native response
// headers. Headers already set are copied over immediately.
func (inv *Invocation) MirrorTo(h http.Header) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.platform = h
	inv.mirrored = map[string]struct{}{}
	inv.mirrorLocked(inv.header)
}

func (inv *Invocation) headerMap() http.Header {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.resolved == nil && !inv.closed {
		return inv.header
	}
	inv.log.Debugw("Header map requested after commit, changes are dropped", "bridge", inv.name, "path", inv.path)
	return inv.header.Clone()
}

// Resolved returns the Response once one was built.
func (inv *Invocation) Resolved() (*Response, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.resolved, inv.resolved != nil
}

// Closed reports whether a terminal call was issued or the stream ended.
func (inv *Invocation) Closed() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.closed
}

// begin binds a new gate for one served call.
func (inv *Invocation) begin(ctx context.Context, r *http.Request) *gate {
	g := newGate()
	inv.mu.Lock()
	inv.gate = g
	inv.ctx = ctx
	if r != nil && r.URL != nil {
		inv.path = r.URL.Path
	}
	inv.mu.Unlock()
	return g
}

func (inv *Invocation) context() context.Context {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.ctx
}

// resolve freezes status and headers into the Response the first time it is
// called and settles the current gate with it. Later calls return the same
// Response. It fails with ErrDeferred when the current call already delegated.
func (inv *Invocation) resolve() (*Response, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.resolveLocked()
}

func (inv *Invocation) resolveLocked() (*Response, error) {
	if inv.resolved != nil {
		return inv.resolved, nil
	}
	if inv.gate != nil && inv.gate.outcome() != OutcomePending {
		if inv.gate.outcome() == OutcomeDeferred {
			return nil, shared.ErrDeferred
		}
		return nil, shared.ErrResponseClosed
	}

	resp := &Response{Status: inv.status, Header: inv.header.Clone()}
	if nullBodyStatus(inv.status) {
		inv.pipe.Discard()
	} else {
		resp.Body = inv.pipe.Reader()
	}
	inv.resolved = resp
	inv.resolvedAt = time.Now()
	if inv.gate != nil && inv.gate.settle(OutcomeResponse, resp, nil) {
		metrics.ResolutionLatency.WithLabelValues(inv.name).Observe(inv.resolvedAt.Sub(inv.started).Seconds())
	}
	return resp, nil
}

// deferTo settles g as Deferred unless a response already exists. Headers
// set so far are pushed to the platform response so they survive delegation.
func (inv *Invocation) deferTo(g *gate) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.resolved != nil {
		inv.ignoredLocked("next", errors.New("next called after the response was committed"))
		return
	}
	if !g.settle(OutcomeDeferred, nil, nil) {
		inv.ignoredLocked("next", errors.New("call already settled"))
		return
	}
	inv.mirrorLocked(inv.header)
}

// mirrorLocked copies h onto the platform headers. Names mirrored earlier but
// since dropped from the shim's own map, e.g. through Header().Del, are
// deleted from the platform too. Callers hold mu.
func (inv *Invocation) mirrorLocked(h http.Header) {
	if inv.platform == nil {
		return
	}
	for name := range inv.mirrored {
		if len(inv.header.Values(name)) == 0 {
			inv.platform.Del(name)
			delete(inv.mirrored, name)
		}
	}
	copyHeader(inv.platform, h)
	for name := range h {
		inv.mirrored[http.CanonicalHeaderKey(name)] = struct{}{}
	}
}

// handlerFailed routes a handler error: before resolution it rejects the call,
// after resolution it fails the body stream.
func (inv *Invocation) handlerFailed(g *gate, err error) {
	inv.mu.Lock()
	if g.settle(OutcomeFailed, nil, err) {
		inv.closed = true
		inv.pipe.Abort(err)
		inv.mu.Unlock()
		return
	}
	resolved := inv.resolved != nil
	inv.mu.Unlock()

	switch {
	case g.outcome() == OutcomeDeferred && !resolved:
		inv.log.Errorw("Legacy handler failed after delegating to next", "bridge", inv.name, "error", err)
	case errors.Is(err, shared.ErrStreamAborted) || errors.Is(err, context.Canceled):
		inv.log.Debugw("Legacy handler stopped by stream abort", "bridge", inv.name, "error", err)
	case inv.pipe.Fail(err):
		inv.log.Errorw("Legacy handler failed after response was committed", "bridge", inv.name, "error", err)
		inv.mu.Lock()
		inv.closed = true
		inv.mu.Unlock()
		inv.events.emit("error", err)
		inv.terminate(err)
	default:
		inv.log.Errorw("Legacy handler failed after response was sent", "bridge", inv.name, "error", err)
	}
}

// abandon gives up on a call whose context ended while pending; late writes
// fail fast instead of blocking on a reader that will never come.
func (inv *Invocation) abandon(g *gate, err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !g.settle(OutcomeFailed, nil, err) {
		return
	}
	inv.closed = true
	inv.pipe.Abort(err)
}

func (inv *Invocation) write(op string, b []byte) (int, error) {
	if inv.Closed() {
		inv.ignored(op, shared.ErrResponseClosed)
		return 0, shared.ErrResponseClosed
	}
	if _, err := inv.resolve(); err != nil {
		inv.ignored(op, err)
		return 0, err
	}
	n, err := inv.pipe.Write(inv.context(), b)
	metrics.BytesStreamed.WithLabelValues(inv.name).Add(float64(n))
	if err != nil && !errors.Is(err, shared.ErrResponseClosed) {
		inv.streamAborted(err)
	}
	return n, err
}

// end is the terminal unit behind End and Send: mark closed, resolve, write
// the final chunks, close the pipe, notify listeners. Only the first call acts.
func (inv *Invocation) end(op string, chunks ...[]byte) error {
	inv.mu.Lock()
	if inv.closed {
		inv.mu.Unlock()
		inv.ignored(op, shared.ErrResponseClosed)
		return nil
	}
	inv.closed = true
	_, err := inv.resolveLocked()
	inv.mu.Unlock()
	if err != nil {
		inv.ignored(op, err)
		return nil
	}

	ctx := inv.context()
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		n, err := inv.pipe.Write(ctx, chunk)
		metrics.BytesStreamed.WithLabelValues(inv.name).Add(float64(n))
		if err != nil {
			inv.streamAborted(err)
			return err
		}
	}
	if err := inv.pipe.Close(); err != nil {
		inv.streamAborted(err)
		return err
	}
	inv.events.emit("finish")
	inv.events.emit("end")
	inv.terminate(nil)
	return nil
}

func (inv *Invocation) streamAborted(err error) {
	inv.mu.Lock()
	inv.closed = true
	inv.mu.Unlock()
	metrics.StreamAborts.WithLabelValues(inv.name).Inc()
	inv.log.Warnw("Response stream aborted", "bridge", inv.name, "error", err)
	inv.events.emit("error", err)
	inv.terminate(err)
}

// terminate emits close and reports the response outcome once.
func (inv *Invocation) terminate(err error) {
	inv.mu.Lock()
	if inv.reported {
		inv.mu.Unlock()
		return
	}
	inv.reported = true
	rec := inv.recordLocked(OutcomeResponse, err)
	inv.mu.Unlock()

	inv.events.emit("close")
	inv.report(rec)
}

func (inv *Invocation) recordLocked(outcome Outcome, err error) Record {
	rec := Record{
		Bridge:   inv.name,
		Path:     inv.path,
		Outcome:  outcome,
		Status:   inv.status,
		Bytes:    inv.pipe.Written(),
		Duration: time.Since(inv.started),
		Err:      err,
		At:       inv.started,
	}
	if !inv.resolvedAt.IsZero() {
		rec.Resolution = inv.resolvedAt.Sub(inv.started)
	}
	return rec
}

func (inv *Invocation) reportOutcome(outcome Outcome, err error) {
	inv.mu.Lock()
	rec := inv.recordLocked(outcome, err)
	inv.mu.Unlock()
	inv.report(rec)
}

func (inv *Invocation) report(rec Record) {
	if inv.observer != nil {
		inv.observer.Observe(rec)
	}
}

func (inv *Invocation) ignored(op string, err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.ignoredLocked(op, err)
}

func (inv *Invocation) ignoredLocked(op string, err error) {
	metrics.PostCloseOps.WithLabelValues(inv.name, op).Inc()
	inv.log.Warnw("Ignoring response call", "bridge", inv.name, "op", op, "reason", err.Error(), "path", inv.path)
}

// mutable reports whether status and headers may still change, logging the
// reason when they may not. Callers hold mu.
func (inv *Invocation) mutableLocked(op string) bool {
	switch {
	case inv.closed:
		inv.ignoredLocked(op, shared.ErrResponseClosed)
		return false
	case inv.resolved != nil:
		inv.ignoredLocked(op, errors.New("headers already sent"))
		return false
	case inv.gate != nil && inv.gate.outcome() == OutcomeDeferred:
		inv.ignoredLocked(op, shared.ErrDeferred)
		return false
	}
	return true
}

func (inv *Invocation) setStatus(op string, code int) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.mutableLocked(op) {
		return false
	}
	if code < 100 || code > 999 {
		inv.log.Warnw("Ignoring invalid status code", "bridge", inv.name, "status", code)
		return false
	}
	inv.status = code
	return true
}

func (inv *Invocation) setHeader(op, name string, values []string, add bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.mutableLocked(op) {
		return
	}
	for i, v := range values {
		if i == 0 && !add {
			inv.header.Set(name, v)
			continue
		}
		inv.header.Add(name, v)
	}
	inv.mirrorLocked(http.Header{name: inv.header.Values(name)})
}

func (inv *Invocation) removeHeader(name string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.mutableLocked("removeHeader") {
		return
	}
	inv.header.Del(name)
	inv.mirrorLocked(nil)
}

func (inv *Invocation) writeHead(code int, header http.Header) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.mutableLocked("writeHead") {
		return
	}
	if code >= 100 && code <= 999 {
		inv.status = code
	} else {
		inv.log.Warnw("Ignoring invalid status code", "bridge", inv.name, "status", code)
	}
	for name, values := range header {
		inv.header.Del(name)
		for _, v := range values {
			inv.header.Add(name, v)
		}
	}
	inv.mirrorLocked(header)
}

func copyHeader(dst, src http.Header) {
	if dst == nil {
		return
	}
	for name, values := range src {
		dst[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
}
