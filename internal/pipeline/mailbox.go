package pipeline

import "sync"

// Mailbox is a single-slot, latest-wins queue. Put overwrites any value
// that has not been taken yet; Ready fires after every Put.
type Mailbox[T any] struct {
	mu    sync.Mutex
	value T
	full  bool
	wake  chan struct{}
}

// NewMailbox returns an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{wake: make(chan struct{}, 1)}
}

// Put stores v, replacing a waiting value. It reports whether a value was
// replaced.
func (m *Mailbox[T]) Put(v T) (replaced bool) {
	m.mu.Lock()
	replaced = m.full
	m.value, m.full = v, true
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return replaced
}

// Take removes and returns the waiting value, if any.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if !m.full {
		return zero, false
	}
	v := m.value
	m.value, m.full = zero, false
	return v, true
}

// Ready returns a channel that receives after a Put. A receive does not
// guarantee a value; the slot may already have been taken.
func (m *Mailbox[T]) Ready() <-chan struct{} { return m.wake }
