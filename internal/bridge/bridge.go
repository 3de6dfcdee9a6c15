// Package bridge runs callback-style handlers, which mutate a long-lived
// response object and finish whenever they like, behind a fetch-style handler
// signature that returns one immutable Response with a streamed body.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"resbridge/internal/metrics"
	"resbridge/internal/shared"

	"go.uber.org/zap"
)

// NextFunc is the delegate continuation handed to a legacy handler. Calling it
// before any output means "not mine, ask the next handler".
type NextFunc func()

// LegacyFunc is a callback-era handler. It may return before finishing the
// response and keep writing from other goroutines.
type LegacyFunc func(w *Shim, r *http.Request, next NextFunc) error

// Next runs the rest of the host chain and returns its result.
type Next func(ctx context.Context) (*Response, error)

// Handler is the fetch-style signature. A nil Response with a nil error means
// no response was produced and the caller should carry on.
type Handler func(ctx context.Context, r *http.Request, next Next) (*Response, error)

// Record describes one finished invocation.
type Record struct {
	Bridge     string
	Path       string
	Outcome    Outcome
	Status     int
	Bytes      int64
	Resolution time.Duration
	Duration   time.Duration
	Err        error
	At         time.Time
}

// Observer receives a Record per finished invocation. Observe must not block.
type Observer interface {
	Observe(rec Record)
}

type ObserverFunc func(rec Record)

func (f ObserverFunc) Observe(rec Record) { f(rec) }

type Config struct {
	// Name labels logs and metrics.
	Name string
	// SegmentSize bounds each pipe write; see shared.DefaultSegmentSize.
	SegmentSize int
	// QueueDepth is how many segments may wait for the consumer.
	QueueDepth int
	Log        *zap.SugaredLogger
	Observer   Observer
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "bridge"
	}
	c.SegmentSize = shared.ClampSegmentSize(c.SegmentSize)
	if c.QueueDepth <= 0 {
		c.QueueDepth = shared.DefaultQueueDepth
	}
	if c.Log == nil {
		c.Log = zap.NewNop().Sugar()
	}
	return c
}

type Bridge struct {
	handler LegacyFunc
	cfg     Config
}

func New(h LegacyFunc, cfg Config) *Bridge {
	return &Bridge{handler: h, cfg: cfg.withDefaults()}
}

func (b *Bridge) Name() string {
	return b.cfg.Name
}

// Log returns the bridge's logger.
func (b *Bridge) Log() *zap.SugaredLogger {
	return b.cfg.Log
}

// NewInvocation returns fresh per-request state configured like b.
func (b *Bridge) NewInvocation() *Invocation {
	return NewInvocation(b.cfg)
}

// Handler exposes b with the fetch-style signature.
func (b *Bridge) Handler() Handler {
	return b.Serve
}

// Serve runs the legacy handler for r on fresh state.
func (b *Bridge) Serve(ctx context.Context, r *http.Request, next Next) (*Response, error) {
	return b.ServeInvocation(ctx, b.NewInvocation(), r, next)
}

// ServeInvocation runs the legacy handler against inv and blocks until the
// call settles:
//   - the first write, flush, end or send returns the Response, whose body
//     keeps streaming whatever the handler writes afterwards;
//   - next called first returns the result of the host's next;
//   - an error or panic before either returns that error;
//   - otherwise Serve waits, until ctx is done.
//
// An inv that already holds a Response short-circuits to it.
func (b *Bridge) ServeInvocation(ctx context.Context, inv *Invocation, r *http.Request, next Next) (*Response, error) {
	if resp, ok := inv.Resolved(); ok {
		b.cfg.Log.Debugw("Reusing resolved response", "bridge", b.cfg.Name, "status", resp.Status)
		return resp, nil
	}

	g := inv.begin(ctx, r)
	inflight := metrics.InflightInvocations.WithLabelValues(b.cfg.Name)
	inflight.Inc()
	defer inflight.Dec()

	go b.run(inv, g, r)

	outcome, resp, err := g.wait(ctx)
	metrics.Invocations.WithLabelValues(b.cfg.Name, outcome.String()).Inc()
	switch outcome {
	case OutcomeResponse:
		return resp, nil
	case OutcomeDeferred:
		inv.reportOutcome(OutcomeDeferred, nil)
		if next == nil {
			return nil, nil
		}
		return next(ctx)
	case OutcomeFailed:
		inv.reportOutcome(OutcomeFailed, err)
		return nil, err
	}

	inv.abandon(g, err)
	// the handler may have settled between wait and abandon
	if outcome, resp, _ := g.wait(context.Background()); outcome == OutcomeResponse {
		return resp, nil
	}
	inv.reportOutcome(OutcomePending, err)
	b.cfg.Log.Debugw("Bridged call abandoned before resolution", "bridge", b.cfg.Name, "error", err)
	return nil, err
}

func (b *Bridge) run(inv *Invocation, g *gate, r *http.Request) {
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", shared.ErrHandlerPanic, rec)
			b.cfg.Log.Errorw("Legacy handler panic", "bridge", b.cfg.Name, "panic", rec, "stack", string(debug.Stack()))
		}
		if err != nil {
			inv.handlerFailed(g, err)
		}
	}()
	err = b.handler(inv.shim, r, func() { inv.deferTo(g) })
}
