package store

import (
	"log/slog"
	"sync"
)

// broadcaster fans values out to subscriber channels. Each subscriber has
// its own buffered channel; if a subscriber falls behind, its oldest
// pending value is dropped.
type broadcaster[T any] struct {
	logger      *slog.Logger
	subscribers map[int]chan T
	mu          sync.RWMutex
	nextID      int
	closed      bool
}

func newBroadcaster[T any](logger *slog.Logger) *broadcaster[T] {
	return &broadcaster[T]{
		logger:      logger,
		subscribers: make(map[int]chan T),
	}
}

// subscribe creates a subscriber channel with the given buffer size (at
// least 1). After close, the returned channel is already closed.
func (b *broadcaster[T]) subscribe(bufSize int) (int, <-chan T) {
	if bufSize < 1 {
		bufSize = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan T, bufSize)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// unsubscribe removes a subscriber and closes its channel.
func (b *broadcaster[T]) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// broadcast sends v to all current subscribers without blocking.
func (b *broadcaster[T]) broadcast(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
				b.logger.Warn("dropping oldest state for slow subscriber", "subscriber", id)
			default:
			}
			select {
			case ch <- v:
			default:
				b.logger.Warn("could not deliver state to subscriber", "subscriber", id)
			}
		}
	}
}

// close closes every subscriber channel. Later subscriptions are born
// closed.
func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *broadcaster[T]) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
