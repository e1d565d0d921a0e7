// Package clock абстрагирует текущее время, чтобы таймауты и интерполяцию
// можно было тестировать детерминированно.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock источник текущего времени (UTC) и отложенных вызовов
type Clock interface {
	Now() time.Time
	// AfterFunc вызывает f, когда пройдет d
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer отложенный вызов. Stop возвращает false, если вызов уже состоялся
// или был отменен.
type Timer interface {
	Stop() bool
}

// System реальные часы
type System struct{}

// Now возвращает текущее время в UTC
func (System) Now() time.Time {
	return time.Now().UTC()
}

// AfterFunc обертка над time.AfterFunc
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual часы, управляемые вручную (тесты). Таймеры срабатывают внутри
// Advance и Set, в вызывающей горутине, по порядку своего времени.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock *Manual
	at    time.Time
	f     func()
	done  bool
}

// NewManual создает часы, стоящие на start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

// Now возвращает установленное время
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc регистрирует вызов на now+d. Даже при d <= 0 вызов
// произойдет только при следующем Advance или Set.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{clock: m, at: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// Set переставляет часы
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	due := m.takeDueLocked()
	m.mu.Unlock()
	fire(due)
}

// Advance сдвигает часы вперед и возвращает новое время
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	due := m.takeDueLocked()
	m.mu.Unlock()
	fire(due)
	return now
}

// PendingTimers число незапущенных таймеров
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) takeDueLocked() []*manualTimer {
	var due []*manualTimer
	rest := m.timers[:0]
	for _, t := range m.timers {
		if t.at.After(m.now) {
			rest = append(rest, t)
			continue
		}
		t.done = true
		due = append(due, t)
	}
	m.timers = rest
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	return due
}

func fire(due []*manualTimer) {
	for _, t := range due {
		t.f()
	}
}

func (t *manualTimer) Stop() bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			break
		}
	}
	return true
}
