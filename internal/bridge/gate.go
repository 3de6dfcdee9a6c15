package bridge

import (
	"context"
	"sync"
)

// Outcome is the state of one served call.
type Outcome int32

const (
	OutcomePending Outcome = iota
	OutcomeResponse
	OutcomeDeferred
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResponse:
		return "response"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// gate settles a served call exactly once. The first settle wins; later
// attempts report false and leave the held values untouched.
type gate struct {
	mu    sync.Mutex
	state Outcome
	resp  *Response
	err   error
	done  chan struct{}
}

func newGate() *gate {
	return &gate{done: make(chan struct{})}
}

func (g *gate) settle(state Outcome, resp *Response, err error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != OutcomePending {
		return false
	}
	g.state = state
	g.resp = resp
	g.err = err
	close(g.done)
	return true
}

func (g *gate) outcome() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// wait blocks until the gate settles or ctx is done. A settled gate always
// wins over a concurrently canceled ctx.
func (g *gate) wait(ctx context.Context) (Outcome, *Response, error) {
	select {
	case <-g.done:
	case <-ctx.Done():
		select {
		case <-g.done:
		default:
			return OutcomePending, nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.resp, g.err
}
