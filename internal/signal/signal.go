// Package signal содержит типизированные уведомления наблюдателям
// и дебаунс (digest) для склеивания пачек изменений.
package signal

import "sync"

// Signal список подписчиков на события типа T.
// Emit вызывает подписчиков синхронно, вне внутренней блокировки,
// поэтому подписчик может сам подписываться и отписываться.
type Signal[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]func(T)
	order    []uint64
}

// Connect подписывает fn и возвращает функцию отписки
func (s *Signal[T]) Connect(fn func(T)) (disconnect func()) {
	s.mu.Lock()
	if s.handlers == nil {
		s.handlers = make(map[uint64]func(T))
	}
	s.nextID++
	id := s.nextID
	s.handlers[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.disconnect(id) })
	}
}

func (s *Signal[T]) disconnect(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.handlers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Emit доставляет value всем подписчикам в порядке подписки
func (s *Signal[T]) Emit(value T) {
	s.mu.RLock()
	handlers := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(value)
	}
}

// Len число подписчиков
func (s *Signal[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
