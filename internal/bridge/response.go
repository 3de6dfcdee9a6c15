package bridge

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

// Response is the immutable result of a bridged call. Status and Header are
// fixed when the response is built; Body streams lazily and is nil for
// responses that carry no body.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// NewResponse builds a Response. A nil body, or a status that forbids a body,
// yields a nil Body.
func NewResponse(status int, header http.Header, body io.Reader) *Response {
	if header == nil {
		header = http.Header{}
	}
	resp := &Response{Status: status, Header: header}
	if body == nil || nullBodyStatus(status) {
		return resp
	}
	if rc, ok := body.(io.ReadCloser); ok {
		resp.Body = rc
	} else {
		resp.Body = io.NopCloser(body)
	}
	return resp
}

// Text builds a plain text Response.
func Text(status int, text string) *Response {
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return NewResponse(status, h, strings.NewReader(text))
}

// Bytes drains and closes the body.
func (r *Response) Bytes() ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r.Body)
	return buf.Bytes(), err
}

// nullBodyStatus reports the statuses a fetch Response must not carry a body for.
func nullBodyStatus(code int) bool {
	switch code {
	case http.StatusSwitchingProtocols, http.StatusEarlyHints,
		http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}
	return false
}
