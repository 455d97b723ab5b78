package device

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayManager_FireAndSelfRemove(t *testing.T) {
	m := NewDelayManager()

	done := make(chan struct{})
	m.Add("x", 10*time.Millisecond, func() { close(done) })
	assert.True(t, m.Exists("x"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("延时未触发")
	}

	// 触发后自动移除
	assert.Eventually(t, func() bool { return !m.Exists("x") },
		time.Second, 5*time.Millisecond)
}

func TestDelayManager_SameNameReplaces(t *testing.T) {
	m := NewDelayManager()

	var first, second atomic.Int32
	m.Add("x", 20*time.Millisecond, func() { first.Add(1) })
	m.Add("x", 20*time.Millisecond, func() { second.Add(1) })

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestDelayManager_Remove(t *testing.T) {
	m := NewDelayManager()

	var fired atomic.Int32
	m.Add("x", 20*time.Millisecond, func() { fired.Add(1) })
	m.Remove("x")
	assert.False(t, m.Exists("x"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	// 不存在时移除无操作
	m.Remove("y")
}

func TestDelayManager_RemovedEntrySkipsLateFire(t *testing.T) {
	m := NewDelayManager()

	var fired atomic.Int32
	cb := func() { fired.Add(1) }
	m.Add("x", time.Hour, cb)

	m.mu.Lock()
	tm := m.timers["x"]
	m.mu.Unlock()

	// 定时器已到期但回调还没跑时被Remove：到期入口必须放弃回调
	m.Remove("x")
	m.fire("x", tm, cb)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDelayManager_ReplacedEntrySkipsLateFire(t *testing.T) {
	m := NewDelayManager()

	var old atomic.Int32
	m.Add("x", time.Hour, func() { old.Add(1) })

	m.mu.Lock()
	stale := m.timers["x"]
	m.mu.Unlock()

	// 同名Add替换后，旧定时器的到期入口不得执行回调，也不得移除新条目
	m.Add("x", time.Hour, func() {})
	m.fire("x", stale, func() { old.Add(1) })

	assert.Equal(t, int32(0), old.Load())
	assert.True(t, m.Exists("x"))
}

func TestDelayManager_RemoveAll(t *testing.T) {
	m := NewDelayManager()

	var fired atomic.Int32
	m.Add("a", 20*time.Millisecond, func() { fired.Add(1) })
	m.Add("b", 20*time.Millisecond, func() { fired.Add(1) })
	m.RemoveAll()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
