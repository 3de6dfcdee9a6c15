package bridge

import (
	"context"
	"net/http"

	"resbridge/internal/shared"
)

// Shim is the legacy response object handed to a LegacyFunc. It implements
// http.ResponseWriter and http.Flusher, so plain net/http handlers can write
// to it, and adds the callback-era surface: settable status, header get/set/
// remove, writeHead, end/send and event listeners.
//
// Nothing on a Shim panics. Calls that can no longer take effect log a warning
// and return.
type Shim struct {
	inv *Invocation
}

var (
	_ http.ResponseWriter = (*Shim)(nil)
	_ http.Flusher        = (*Shim)(nil)
)

// Header returns the live header map until status and headers are committed.
// After that it returns a detached copy, so changes are dropped. Changes made
// through the map reach mirrored platform headers only when the handler
// delegates to next; SetHeader and RemoveHeader mirror right away.
func (s *Shim) Header() http.Header {
	return s.inv.headerMap()
}

// Write streams b into the response body, committing status and headers on
// the first call. It returns once b was accepted by the pipe.
func (s *Shim) Write(b []byte) (int, error) {
	return s.inv.write("write", b)
}

func (s *Shim) WriteString(str string) (int, error) {
	return s.inv.write("write", []byte(str))
}

// WriteHeader records the status without committing it.
func (s *Shim) WriteHeader(code int) {
	s.inv.setStatus("writeHeader", code)
}

// Flush commits status and headers without writing a byte.
func (s *Shim) Flush() {
	if s.inv.Closed() {
		s.inv.ignored("flush", shared.ErrResponseClosed)
		return
	}
	if _, err := s.inv.resolve(); err != nil {
		s.inv.ignored("flush", err)
	}
}

// Status sets the status code and returns the shim for chaining.
func (s *Shim) Status(code int) *Shim {
	s.inv.setStatus("status", code)
	return s
}

func (s *Shim) SetStatus(code int) {
	s.inv.setStatus("status", code)
}

func (s *Shim) StatusCode() int {
	s.inv.mu.Lock()
	defer s.inv.mu.Unlock()
	return s.inv.status
}

// SetHeader replaces name with value. Names are case-insensitive.
func (s *Shim) SetHeader(name string, value ...string) {
	if len(value) == 0 {
		return
	}
	s.inv.setHeader("setHeader", name, value, false)
}

// AppendHeader adds values to name.
func (s *Shim) AppendHeader(name string, value ...string) {
	if len(value) == 0 {
		return
	}
	s.inv.setHeader("appendHeader", name, value, true)
}

func (s *Shim) GetHeader(name string) string {
	s.inv.mu.Lock()
	defer s.inv.mu.Unlock()
	return s.inv.header.Get(name)
}

func (s *Shim) HasHeader(name string) bool {
	s.inv.mu.Lock()
	defer s.inv.mu.Unlock()
	return len(s.inv.header.Values(name)) > 0
}

func (s *Shim) RemoveHeader(name string) {
	s.inv.removeHeader(name)
}

// WriteHead sets the status and merges header; it does not commit them.
func (s *Shim) WriteHead(code int, header http.Header) {
	s.inv.writeHead(code, header)
}

// WriteHeadMessage is WriteHead with a reason phrase. The phrase is dropped;
// the Response carries only the code.
func (s *Shim) WriteHeadMessage(code int, message string, header http.Header) {
	s.inv.log.Debugw("Dropping status message", "bridge", s.inv.name, "status", code, "message", message)
	s.inv.writeHead(code, header)
}

// HeadersSent reports whether status and headers are frozen.
func (s *Shim) HeadersSent() bool {
	s.inv.mu.Lock()
	defer s.inv.mu.Unlock()
	return s.inv.resolved != nil || s.inv.closed
}

// Finished reports whether End or Send was called or the stream ended.
func (s *Shim) Finished() bool {
	return s.inv.Closed()
}

// End writes the optional final chunks and closes the body. Only the first
// call has an effect. The error is non-nil only if the consumer aborted.
func (s *Shim) End(chunks ...[]byte) error {
	return s.inv.end("end", chunks...)
}

func (s *Shim) EndString(str string) error {
	return s.inv.end("end", []byte(str))
}

// Send writes body and ends the response as one terminal unit.
func (s *Shim) Send(body []byte) error {
	return s.inv.end("send", body)
}

func (s *Shim) SendString(body string) error {
	return s.inv.end("send", []byte(body))
}

// Context returns the context of the call currently being served.
func (s *Shim) Context() context.Context {
	return s.inv.context()
}

// On registers fn for every emission of event.
func (s *Shim) On(event string, fn Listener) ListenerID {
	return s.inv.events.add(event, fn, false)
}

func (s *Shim) AddListener(event string, fn Listener) ListenerID {
	return s.inv.events.add(event, fn, false)
}

// Once registers fn for the next emission of event only.
func (s *Shim) Once(event string, fn Listener) ListenerID {
	return s.inv.events.add(event, fn, true)
}

func (s *Shim) RemoveListener(event string, id ListenerID) bool {
	return s.inv.events.remove(event, id)
}

func (s *Shim) Off(event string, id ListenerID) bool {
	return s.inv.events.remove(event, id)
}

func (s *Shim) ListenerCount(event string) int {
	return s.inv.events.count(event)
}

// Emit dispatches event to its listeners asynchronously. Emitting "pipe"
// commits the response, as a stream being piped into it would.
func (s *Shim) Emit(event string, args ...any) bool {
	if event == "pipe" {
		s.Flush()
	}
	return s.inv.events.emit(event, args...)
}
