package bridge

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"resbridge/internal/shared"
)

// Pipe is a single producer, single consumer byte pipe. Writes are cut into
// segments of at most segSize bytes and every segment waits for a free slot in
// a queue of fixed depth, so a slow consumer stalls the producer instead of
// growing memory. Segments are copied; callers may reuse their buffers.
type Pipe struct {
	segSize int
	queue   chan []byte

	// wmu serializes writers and Close so segments are never reordered and
	// the queue is never closed under a pending send.
	wmu     sync.Mutex
	closed  bool
	discard atomic.Bool

	aborted   chan struct{}
	abortOnce sync.Once

	errMu sync.Mutex
	err   error

	written atomic.Int64

	// consumer side only
	cur []byte
}

func NewPipe(segSize, depth int) *Pipe {
	if depth <= 0 {
		depth = shared.DefaultQueueDepth
	}
	return &Pipe{
		segSize: shared.ClampSegmentSize(segSize),
		queue:   make(chan []byte, depth),
		aborted: make(chan struct{}),
	}
}

// Write enqueues b segment by segment. It returns once the last segment was
// accepted, or early with the number of bytes accepted when the consumer
// aborted or ctx was canceled. A canceled ctx aborts the pipe.
func (p *Pipe) Write(ctx context.Context, b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	if p.closed {
		return 0, shared.ErrResponseClosed
	}
	if p.discard.Load() {
		return len(b), nil
	}

	n := 0
	for n < len(b) {
		select {
		case <-p.aborted:
			return n, p.abortErr()
		default:
		}

		end := min(n+p.segSize, len(b))
		seg := make([]byte, end-n)
		copy(seg, b[n:end])

		select {
		case p.queue <- seg:
		case <-p.aborted:
			return n, p.abortErr()
		case <-ctx.Done():
			p.Abort(ctx.Err())
			return n, p.abortErr()
		}
		p.written.Add(int64(len(seg)))
		n = end
	}
	return n, nil
}

// Close ends the stream once every preceding write is queued. The consumer
// sees EOF only after draining them. Closing twice is a no-op.
func (p *Pipe) Close() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.queue)
	return p.abortErr()
}

// Fail ends the stream with err. The consumer drains what was queued and then
// reads err instead of EOF. It reports false when the stream was already closed.
func (p *Pipe) Fail(err error) bool {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.closed {
		return false
	}
	p.setErr(err)
	p.closed = true
	close(p.queue)
	return true
}

// Abort is the consumer going away. Pending and future writes fail with err,
// or ErrStreamAborted when err is nil.
func (p *Pipe) Abort(err error) {
	p.abortOnce.Do(func() {
		if err == nil {
			err = shared.ErrStreamAborted
		}
		p.setErr(err)
		close(p.aborted)
	})
}

// Discard turns the pipe into a sink. Used for responses that carry no body.
func (p *Pipe) Discard() {
	p.discard.Store(true)
}

// Written reports the bytes accepted so far.
func (p *Pipe) Written() int64 {
	return p.written.Load()
}

// Reader returns the consumer end. Closing it aborts the producer.
func (p *Pipe) Reader() io.ReadCloser {
	return pipeReader{p: p}
}

func (p *Pipe) read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(p.cur) == 0 {
		select {
		case seg, ok := <-p.queue:
			if !ok {
				if err := p.loadErr(); err != nil {
					return 0, err
				}
				return 0, io.EOF
			}
			p.cur = seg
		case <-p.aborted:
			return 0, p.abortErr()
		}
	}
	n := copy(b, p.cur)
	p.cur = p.cur[n:]
	return n, nil
}

func (p *Pipe) setErr(err error) {
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()
}

func (p *Pipe) loadErr() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Pipe) abortErr() error {
	select {
	case <-p.aborted:
	default:
		return nil
	}
	if err := p.loadErr(); err != nil {
		return err
	}
	return shared.ErrStreamAborted
}

type pipeReader struct {
	p *Pipe
}

func (r pipeReader) Read(b []byte) (int, error) {
	return r.p.read(b)
}

func (r pipeReader) Close() error {
	r.p.Abort(nil)
	return nil
}
