package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestEmitterOrderAndOnce(t *testing.T) {
	e := newEmitter(zap.NewNop().Sugar())
	var mu sync.Mutex
	var got []string
	record := func(tag string) Listener {
		return func(args ...any) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, tag)
		}
	}

	e.add("ping", record("a"), false)
	e.add("ping", record("b"), true)
	e.add("ping", record("c"), false)
	assert.Equal(t, 3, e.count("ping"))

	assert.True(t, e.emit("ping"))
	e.drain()
	assert.True(t, e.emit("ping"))
	e.drain()

	assert.Equal(t, []string{"a", "b", "c", "a", "c"}, got)
	assert.Equal(t, 2, e.count("ping"))
}

func TestEmitterRemove(t *testing.T) {
	e := newEmitter(zap.NewNop().Sugar())
	id := e.add("ping", func(...any) { t.Error("removed listener ran") }, false)
	assert.NotZero(t, id)
	assert.True(t, e.remove("ping", id))
	assert.False(t, e.remove("ping", id))
	assert.False(t, e.emit("ping"))
	assert.Zero(t, e.add("", func(...any) {}, false))
}

func TestEmitterRecoversListenerPanic(t *testing.T) {
	e := newEmitter(zap.NewNop().Sugar())
	ran := false
	e.add("ping", func(...any) { panic("listener") }, false)
	e.add("ping", func(args ...any) { ran = args[0].(int) == 7 }, false)

	e.emit("ping", 7)
	e.drain()
	assert.True(t, ran)
}

func TestEmitterKeepsEmitOrderAcrossEvents(t *testing.T) {
	e := newEmitter(zap.NewNop().Sugar())
	var mu sync.Mutex
	var got []string
	record := func(tag string) Listener {
		return func(args ...any) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, tag)
		}
	}
	e.add("finish", func(...any) {
		time.Sleep(20 * time.Millisecond)
		record("finish")()
	}, true)
	e.add("end", record("end"), true)
	e.add("close", record("close"), true)

	e.emit("finish")
	e.emit("end")
	e.emit("close")
	e.drain()

	assert.Equal(t, []string{"finish", "end", "close"}, got)
}
