package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManager_FiresOnce(t *testing.T) {
	m := NewManager(5 * time.Millisecond)
	defer m.Stop()

	fired := make(chan uint, 4)
	m.Schedule(7, time.Now().Add(10*time.Millisecond), func() { fired <- 7 })

	select {
	case key := <-fired:
		if key != 7 {
			t.Errorf("Expected key 7, got %d", key)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	select {
	case <-fired:
		t.Fatal("timer fired twice")
	case <-time.After(50 * time.Millisecond):
	}

	if m.Len() != 0 {
		t.Errorf("Expected empty queue after firing, got %d", m.Len())
	}
}

func TestManager_ScheduleKeepsEarliest(t *testing.T) {
	m := NewManager(time.Hour)
	defer m.Stop()

	base := time.Now()
	if !m.Schedule(1, base.Add(time.Minute), func() {}) {
		t.Fatal("first Schedule should queue a task")
	}
	if m.Schedule(1, base.Add(2*time.Minute), func() {}) {
		t.Error("a later deadline should not replace an earlier one")
	}
	if !m.Schedule(1, base.Add(30*time.Second), func() {}) {
		t.Error("an earlier deadline should replace the queued one")
	}

	at, ok := m.Deadline(1)
	if !ok || !at.Equal(base.Add(30*time.Second)) {
		t.Errorf("Expected deadline %v, got %v (ok=%v)", base.Add(30*time.Second), at, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Expected one task per key, got %d", m.Len())
	}
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(5 * time.Millisecond)
	defer m.Stop()

	var calls int32
	m.Schedule(3, time.Now().Add(20*time.Millisecond), func() { atomic.AddInt32(&calls, 1) })
	m.Cancel(3)

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("cancelled timer should not fire")
	}
	if _, ok := m.Deadline(3); ok {
		t.Error("cancelled timer should not report a deadline")
	}
}

func TestManager_OrdersByDeadline(t *testing.T) {
	m := NewManager(5 * time.Millisecond)
	defer m.Stop()

	order := make(chan uint, 3)
	now := time.Now()
	m.Schedule(2, now.Add(40*time.Millisecond), func() { order <- 2 })
	m.Schedule(1, now.Add(10*time.Millisecond), func() { order <- 1 })

	first := <-order
	second := <-order
	if first != 1 || second != 2 {
		t.Errorf("Expected firing order 1,2, got %d,%d", first, second)
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := NewManager(time.Millisecond)
	m.Stop()
	m.Stop()
}
