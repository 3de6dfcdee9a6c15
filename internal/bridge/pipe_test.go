package bridge

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"resbridge/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeRoundTrip(t *testing.T) {
	p := NewPipe(4, 8)
	n, err := p.Write(context.Background(), []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	require.NoError(t, p.Close())

	body, err := io.ReadAll(p.Reader())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
	assert.Equal(t, int64(11), p.Written())
}

func TestPipeCopiesSegments(t *testing.T) {
	p := NewPipe(16, 2)
	buf := []byte("abc")
	_, err := p.Write(context.Background(), buf)
	require.NoError(t, err)
	copy(buf, "xyz")
	require.NoError(t, p.Close())

	body, err := io.ReadAll(p.Reader())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))
}

func TestPipeWriteAfterClose(t *testing.T) {
	p := NewPipe(16, 2)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Write(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, shared.ErrResponseClosed)
}

func TestPipeBackpressureAndAbort(t *testing.T) {
	p := NewPipe(1, 1)
	errc := make(chan error, 1)
	counts := make(chan int, 1)
	go func() {
		n, err := p.Write(context.Background(), []byte("abc"))
		counts <- n
		errc <- err
	}()

	select {
	case <-errc:
		t.Fatal("write completed without a reader")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Reader().Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, shared.ErrStreamAborted)
		assert.Less(t, <-counts, 3)
	case <-time.After(waitTimeout):
		t.Fatal("abort did not release the writer")
	}
}

func TestPipeWriteHonorsContext(t *testing.T) {
	p := NewPipe(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.Write(ctx, []byte("abc"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = io.ReadAll(p.Reader())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeFailDeliversErrorAfterData(t *testing.T) {
	boom := errors.New("boom")
	p := NewPipe(16, 4)
	_, err := p.Write(context.Background(), []byte("data"))
	require.NoError(t, err)
	assert.True(t, p.Fail(boom))
	assert.False(t, p.Fail(boom))

	body, err := io.ReadAll(p.Reader())
	assert.Equal(t, "data", string(body))
	assert.ErrorIs(t, err, boom)
}

func TestPipeDiscard(t *testing.T) {
	p := NewPipe(1, 1)
	p.Discard()
	n, err := p.Write(context.Background(), []byte("ignored entirely"))
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Zero(t, p.Written())
}

func TestGateFirstSettleWins(t *testing.T) {
	g := newGate()
	resp := Text(200, "x")
	assert.True(t, g.settle(OutcomeResponse, resp, nil))
	assert.False(t, g.settle(OutcomeDeferred, nil, nil))

	outcome, got, err := g.wait(context.Background())
	assert.Equal(t, OutcomeResponse, outcome)
	assert.Same(t, resp, got)
	assert.NoError(t, err)
}

func TestGateWaitPrefersSettledState(t *testing.T) {
	g := newGate()
	g.settle(OutcomeDeferred, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, _, err := g.wait(ctx)
	assert.Equal(t, OutcomeDeferred, outcome)
	assert.NoError(t, err)

	pending := newGate()
	outcome, _, err = pending.wait(ctx)
	assert.Equal(t, OutcomePending, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "pending", outcome.String())
}
