package signal

import (
	"sync"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/clock"
)

// Digest копит ключи изменений и сбрасывает их пачкой не чаще одного раза
// за interval. Первый Add после сброса запускает таймер; если пачка
// дорастает до maxBatch, сброс происходит сразу в вызывающей горутине.
// Ключи в пачке уникальны и идут в порядке первого добавления.
type Digest[K comparable] struct {
	interval time.Duration
	maxBatch int
	clock    clock.Clock
	flush    func([]K)

	mu      sync.Mutex
	pending []K
	seen    map[K]struct{}
	timer   clock.Timer
	gen     uint64
	stopped bool
}

// NewDigest создает digest. maxBatch <= 0 отключает досрочный сброс.
// Таймер берется из clk, nil означает системные часы.
func NewDigest[K comparable](interval time.Duration, maxBatch int, clk clock.Clock, flush func([]K)) *Digest[K] {
	if clk == nil {
		clk = clock.System{}
	}
	return &Digest[K]{
		interval: interval,
		maxBatch: maxBatch,
		clock:    clk,
		flush:    flush,
		seen:     make(map[K]struct{}),
	}
}

// Add регистрирует изменение ключа
func (d *Digest[K]) Add(key K) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if _, ok := d.seen[key]; !ok {
		d.seen[key] = struct{}{}
		d.pending = append(d.pending, key)
	}

	if d.maxBatch > 0 && len(d.pending) >= d.maxBatch {
		batch := d.takeLocked()
		d.mu.Unlock()
		d.flush(batch)
		return
	}

	if d.timer == nil {
		gen := d.gen
		d.timer = d.clock.AfterFunc(d.interval, func() { d.onTimer(gen) })
	}
	d.mu.Unlock()
}

func (d *Digest[K]) onTimer(gen uint64) {
	d.mu.Lock()
	// таймер уже отменен сбросом по maxBatch или Flush
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	batch := d.takeLocked()
	d.mu.Unlock()

	if len(batch) > 0 {
		d.flush(batch)
	}
}

// takeLocked забирает накопленное и останавливает таймер. Вызывать под d.mu.
func (d *Digest[K]) takeLocked() []K {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	batch := d.pending
	d.pending = nil
	d.seen = make(map[K]struct{})
	return batch
}

// Flush немедленно сбрасывает накопленное, если оно есть
func (d *Digest[K]) Flush() {
	d.mu.Lock()
	batch := d.takeLocked()
	d.mu.Unlock()

	if len(batch) > 0 {
		d.flush(batch)
	}
}

// Stop сбрасывает остаток и запрещает дальнейшие Add
func (d *Digest[K]) Stop() {
	d.mu.Lock()
	d.stopped = true
	batch := d.takeLocked()
	d.mu.Unlock()

	if len(batch) > 0 {
		d.flush(batch)
	}
}

// Pending число ключей, ожидающих сброса
func (d *Digest[K]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
