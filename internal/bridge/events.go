package bridge

import (
	"sync"

	"go.uber.org/zap"
)

// ListenerID identifies a registration so it can be removed later; Go funcs
// are not comparable.
type ListenerID uint64

// Listener receives the arguments passed to Emit.
type Listener func(args ...any)

type listenerRecord struct {
	id   ListenerID
	fn   Listener
	once bool
}

// emitter is an event name -> ordered listeners registry. Emit never runs a
// listener in the caller's goroutine; batches run in emit order, each one
// starting after the previous one finished.
type emitter struct {
	mu        sync.Mutex
	nextID    ListenerID
	listeners map[string][]listenerRecord
	pending   sync.WaitGroup
	tail      chan struct{}
	log       *zap.SugaredLogger
}

func newEmitter(log *zap.SugaredLogger) *emitter {
	return &emitter{listeners: map[string][]listenerRecord{}, log: log}
}

func (e *emitter) add(name string, fn Listener, once bool) ListenerID {
	if fn == nil || name == "" {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.listeners[name] = append(e.listeners[name], listenerRecord{id: e.nextID, fn: fn, once: once})
	return e.nextID
}

func (e *emitter) remove(name string, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	recs := e.listeners[name]
	for i, rec := range recs {
		if rec.id == id {
			e.listeners[name] = append(recs[:i:i], recs[i+1:]...)
			return true
		}
	}
	return false
}

func (e *emitter) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[name])
}

// emit snapshots the listeners of name, drops the one-shot ones, and queues
// the snapshot behind earlier batches. It reports whether anyone listened.
func (e *emitter) emit(name string, args ...any) bool {
	e.mu.Lock()
	recs := e.listeners[name]
	if len(recs) == 0 {
		e.mu.Unlock()
		return false
	}
	batch := make([]Listener, 0, len(recs))
	kept := make([]listenerRecord, 0, len(recs))
	for _, rec := range recs {
		batch = append(batch, rec.fn)
		if !rec.once {
			kept = append(kept, rec)
		}
	}
	e.listeners[name] = kept
	prev, done := e.tail, make(chan struct{})
	e.tail = done
	e.pending.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.pending.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		for _, fn := range batch {
			e.call(name, fn, args)
		}
	}()
	return true
}

func (e *emitter) call(name string, fn Listener, args []any) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Warnw("Response listener panicked", "event", name, "panic", rec)
		}
	}()
	fn(args...)
}

// drain waits for every dispatched batch to finish.
func (e *emitter) drain() {
	e.pending.Wait()
}
