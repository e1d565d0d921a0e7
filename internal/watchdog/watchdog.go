// Package watchdog обнаруживает позывные, переставшие присылать обновления
// без явного удаления (упавший клиент не шлет пакет remove).
package watchdog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/signal"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// DefaultTimeout таймаут универсального watchdog
const DefaultTimeout = 5 * time.Second

type entry struct {
	firstSeen    time.Time
	lastActivity time.Time
}

// Expired позывной, у которого истек таймаут
type Expired struct {
	Callsign     models.Callsign
	FirstSeen    time.Time
	LastActivity time.Time
}

// Watchdog хранит время последней активности по позывным одного класса
type Watchdog struct {
	name    string
	timeout time.Duration
	clock   clock.Clock
	logger  *utils.Logger
	enabled atomic.Bool

	mu      sync.Mutex
	entries map[models.Callsign]*entry

	// TimedOut срабатывает ровно один раз на каждое истечение
	TimedOut signal.Signal[Expired]
}

// New создает watchdog. timeout <= 0 заменяется на DefaultTimeout.
func New(name string, timeout time.Duration, clk clock.Clock, logger *utils.Logger) (*Watchdog, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	w := &Watchdog{
		name:    name,
		timeout: timeout,
		clock:   clk,
		logger:  logger.WithComponent("watchdog").WithField("watchdog", name),
		entries: make(map[models.Callsign]*entry),
	}
	w.enabled.Store(true)
	return w, nil
}

// Name имя watchdog (aircraft, atc)
func (w *Watchdog) Name() string { return w.name }

// Timeout настроенный таймаут
func (w *Watchdog) Timeout() time.Duration { return w.timeout }

// Touch отмечает активность позывного. Новый позывной регистрируется автоматически,
// у известного обновляется только время.
func (w *Watchdog) Touch(cs models.Callsign) {
	if cs.IsEmpty() {
		return
	}
	now := w.clock.Now()

	w.mu.Lock()
	if e, ok := w.entries[cs]; ok {
		e.lastActivity = now
	} else {
		w.entries[cs] = &entry{firstSeen: now, lastActivity: now}
	}
	w.mu.Unlock()
}

// Remove убирает позывной. Повторный вызов ничего не делает.
func (w *Watchdog) Remove(cs models.Callsign) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.entries[cs]; !ok {
		return false
	}
	delete(w.entries, cs)
	return true
}

// RemoveAll очищает таблицу (например, при разрыве соединения)
func (w *Watchdog) RemoveAll() int {
	w.mu.Lock()
	n := len(w.entries)
	w.entries = make(map[models.Callsign]*entry)
	w.mu.Unlock()

	if n > 0 {
		w.logger.WithField("count", n).Debug("Cleared watchdog")
	}
	return n
}

// SetEnabled включает и выключает проверку таймаутов. Touch и Remove работают всегда.
func (w *Watchdog) SetEnabled(enabled bool) {
	if w.enabled.Swap(enabled) != enabled {
		w.logger.WithField("enabled", enabled).Info("Watchdog state changed")
	}
}

// IsEnabled включена ли проверка
func (w *Watchdog) IsEnabled() bool {
	return w.enabled.Load()
}

// CheckTimeouts удаляет позывные с now-lastActivity > timeout и сообщает о каждом
// через TimedOut. Возвращает истекшие позывные по алфавиту.
func (w *Watchdog) CheckTimeouts() []models.Callsign {
	expired := w.Expire()
	if len(expired) == 0 {
		return nil
	}
	callsigns := make([]models.Callsign, len(expired))
	for i, e := range expired {
		callsigns[i] = e.Callsign
	}
	return callsigns
}

// Expire то же, что CheckTimeouts, но возвращает записи целиком:
// LastActivity нужен, чтобы не удалить позывной, обновленный после проверки.
func (w *Watchdog) Expire() []Expired {
	if !w.enabled.Load() {
		return nil
	}
	now := w.clock.Now()

	w.mu.Lock()
	var expired []Expired
	for cs, e := range w.entries {
		if now.Sub(e.lastActivity) > w.timeout {
			expired = append(expired, Expired{Callsign: cs, FirstSeen: e.firstSeen, LastActivity: e.lastActivity})
			delete(w.entries, cs)
		}
	}
	w.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].Callsign < expired[j].Callsign })
	for _, e := range expired {
		w.logger.WithFields(map[string]interface{}{
			"callsign":      e.Callsign,
			"last_activity": e.LastActivity,
			"idle":          now.Sub(e.LastActivity).String(),
		}).Info("Callsign timed out")
		w.TimedOut.Emit(e)
	}
	return expired
}

// Contains отслеживается ли позывной
func (w *Watchdog) Contains(cs models.Callsign) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entries[cs]
	return ok
}

// Count число отслеживаемых позывных
func (w *Watchdog) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// LastActivity время последней активности позывного
func (w *Watchdog) LastActivity(cs models.Callsign) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[cs]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActivity, true
}

// FirstSeen время регистрации позывного
func (w *Watchdog) FirstSeen(cs models.Callsign) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[cs]
	if !ok {
		return time.Time{}, false
	}
	return e.firstSeen, true
}

// Run периодически вызывает CheckTimeouts до отмены контекста.
// Анализатор не использует Run: он проверяет свои watchdog в рамках цикла.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CheckTimeouts()
		}
	}
}
