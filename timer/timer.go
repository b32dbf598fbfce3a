// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// DeadlineTask fires Callback once at Execute. Key identifies the owner (a
// game ID); a key has at most one task queued.
type DeadlineTask struct {
	Key      uint
	Execute  time.Time
	Callback func()
	index    int
}

type TimerQueue []*DeadlineTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*DeadlineTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// Manager 按 key 管理一次性定时任务
type Manager struct {
	queue TimerQueue
	byKey map[uint]*DeadlineTask
	mutex sync.Mutex

	tick     time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewManager starts a manager that checks for due tasks every tick.
func NewManager(tick time.Duration) *Manager {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	m := &Manager{
		queue: make(TimerQueue, 0),
		byKey: make(map[uint]*DeadlineTask),
		tick:  tick,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	heap.Init(&m.queue)
	go m.process()
	return m
}

// Schedule arranges for callback to run at `at`. If the key already has a
// task due no later than `at`, the existing task is kept and false is
// returned; a later task is moved forward and replaced.
func (m *Manager) Schedule(key uint, at time.Time, callback func()) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task, ok := m.byKey[key]; ok {
		if !at.Before(task.Execute) {
			return false
		}
		task.Execute = at
		task.Callback = callback
		heap.Fix(&m.queue, task.index)
		return true
	}

	task := &DeadlineTask{Key: key, Execute: at, Callback: callback}
	heap.Push(&m.queue, task)
	m.byKey[key] = task
	return true
}

// Cancel drops the key's task, if any.
func (m *Manager) Cancel(key uint) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task, ok := m.byKey[key]; ok {
		heap.Remove(&m.queue, task.index)
		delete(m.byKey, key)
	}
}

// Deadline reports when the key's task is due.
func (m *Manager) Deadline(key uint) (time.Time, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task, ok := m.byKey[key]; ok {
		return task.Execute, true
	}
	return time.Time{}, false
}

func (m *Manager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop halts the manager. Queued tasks are discarded; callbacks already
// started keep running.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
}

func (m *Manager) process() {
	defer close(m.done)
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			for _, task := range m.due(now) {
				go task.Callback()
			}
		}
	}
}

func (m *Manager) due(now time.Time) []*DeadlineTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var fired []*DeadlineTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		delete(m.byKey, task.Key)
		fired = append(fired, task)
	}
	return fired
}
