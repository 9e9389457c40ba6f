package timer

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler is a Scheduler whose clock only moves when told to.
// Callbacks run synchronously on the goroutine that advances the clock.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	nextID int64
	tasks  []*manualTask
}

type manualTask struct {
	id  int64
	at  time.Time
	run func()
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &manualTask{id: m.nextID, at: m.now.Add(d), run: f}
	m.tasks = append(m.tasks, t)
	return func() { m.cancel(t.id) }
}

func (m *ManualScheduler) cancel(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tasks {
		if t.id == id {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}

func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// popDue removes the earliest task due at or before limit and moves the
// clock to its deadline.
func (m *ManualScheduler) popDue(limit time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil
	}
	sort.SliceStable(m.tasks, func(i, j int) bool { return m.tasks[i].at.Before(m.tasks[j].at) })
	t := m.tasks[0]
	if t.at.After(limit) {
		return nil
	}
	m.tasks = m.tasks[1:]
	if t.at.After(m.now) {
		m.now = t.at
	}
	return t
}

// Advance moves the clock forward by d, running every task that falls due,
// including ones scheduled by callbacks along the way. It returns how many
// ran.
func (m *ManualScheduler) Advance(d time.Duration) int {
	target := m.Now().Add(d)
	fired := 0
	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.run()
		fired++
	}
	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
	return fired
}

// FireNext jumps to the earliest pending deadline and runs that one task.
func (m *ManualScheduler) FireNext() bool {
	t := m.popDue(time.Unix(1<<62, 0))
	if t == nil {
		return false
	}
	t.run()
	return true
}
