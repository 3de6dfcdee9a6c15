package buckets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"resbridge/internal/bridge"
	"resbridge/internal/database"
	"resbridge/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]database.Invocation
	err     error
	calls   int
}

func (r *recorder) save(_ context.Context, rows []database.Invocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, rows)
	return nil
}

func (r *recorder) rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func newTestJournal(t *testing.T, rec *recorder) *Journal {
	j := NewJournal(zaptest.NewLogger(t).Sugar(), rec.save)
	j.flushInterval = time.Hour
	j.retryWait = 0
	return j
}

func record(name string) bridge.Record {
	return bridge.Record{
		Bridge:     name,
		Path:       "/x",
		Outcome:    bridge.OutcomeResponse,
		Status:     200,
		Bytes:      10,
		Resolution: 2 * time.Millisecond,
		Duration:   5 * time.Millisecond,
		At:         time.Now(),
	}
}

func TestFlushWritesBucketPerBridge(t *testing.T) {
	rec := &recorder{}
	j := newTestJournal(t, rec)
	j.Observe(record("a"))
	j.Observe(record("a"))
	failed := record("b")
	failed.Err = errors.New("boom")
	j.Observe(failed)

	assert.Zero(t, j.Flush("a"))
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0], 2)
	assert.Equal(t, "response", rec.batches[0][0].Outcome)
	assert.Equal(t, int64(2), rec.batches[0][0].ResolutionMs)

	j.Shutdown()
	assert.Equal(t, 3, rec.rows())
	assert.Equal(t, "boom", rec.batches[1][0].Error)
}

func TestFullBucketFlushesImmediately(t *testing.T) {
	rec := &recorder{}
	j := newTestJournal(t, rec)
	for range shared.BucketMaxRecords {
		j.Observe(record("a"))
	}

	assert.Eventually(t, func() bool {
		return rec.rows() == shared.BucketMaxRecords
	}, 2*time.Second, 10*time.Millisecond)
	j.Shutdown()
}

func TestFlushGivesUpAfterRetries(t *testing.T) {
	rec := &recorder{err: errors.New("db down")}
	j := newTestJournal(t, rec)
	j.Observe(record("a"))

	assert.Zero(t, j.Flush("a"))
	assert.Equal(t, shared.MaxFlushRetries, rec.calls)
	assert.Zero(t, j.Flush("a"))
	assert.Equal(t, shared.MaxFlushRetries, rec.calls)
	j.Shutdown()
}

func TestJournalObservesBridge(t *testing.T) {
	rec := &recorder{}
	j := newTestJournal(t, rec)
	b := bridge.New(func(w *bridge.Shim, r *http.Request, next bridge.NextFunc) error {
		return w.EndString("ok")
	}, bridge.Config{Name: "journal", Observer: j})

	resp, err := b.Serve(context.Background(), httptest.NewRequest(http.MethodGet, "/j", nil), nil)
	require.NoError(t, err)
	_, err = resp.Bytes()
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.buckets["journal"] != nil
	}, 2*time.Second, 10*time.Millisecond)
	j.Shutdown()
	require.Equal(t, 1, rec.rows())
	assert.Equal(t, "/j", rec.batches[0][0].Path)
	assert.Equal(t, int64(2), rec.batches[0][0].Bytes)
}
