// Package broadcast provides a last-value-replay state cell: observers that
// subscribe late still receive the current value immediately, then every
// subsequent update.
package broadcast

import "sync"

// subscriberBuffer bounds each observer channel. A subscriber that falls
// this far behind starts losing intermediate values but always eventually
// observes the latest one.
const subscriberBuffer = 16

// Cell holds a value and broadcasts updates to subscribers.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[int]chan T
	next  int
}

// NewCell creates a cell seeded with an initial value.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		subs:  make(map[int]chan T),
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set stores a new value and broadcasts it. Slow subscribers have their
// oldest pending value dropped so Set never blocks.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	for _, ch := range c.subs {
		c.send(ch, value)
	}
}

// Subscribe registers an observer. The current value is delivered first.
// The returned cancel function is idempotent.
func (c *Cell[T]) Subscribe() (<-chan T, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next
	c.next++
	ch := make(chan T, subscriberBuffer)
	ch <- c.value
	c.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (c *Cell[T]) send(ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
		}
		select {
		case <-ch: // drop oldest
		default:
		}
	}
}
