package bridge

import "sync"

// oneshot is a publish-exactly-once result cell. Complete after the first
// call is a no-op, which makes late responses (after timeout or cancel)
// silently discardable.
type oneshot[T any] struct {
	ch   chan T
	once sync.Once
}

func newOneshot[T any]() *oneshot[T] {
	return &oneshot[T]{ch: make(chan T, 1)}
}

// complete publishes the value. Returns true if this call won the slot.
func (o *oneshot[T]) complete(v T) bool {
	won := false
	o.once.Do(func() {
		o.ch <- v
		won = true
	})
	return won
}
